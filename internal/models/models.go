package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Enums

// SceneKind is the tagged-union discriminator for a scene's visual
// treatment. It is resolved once at decode time so downstream stages
// switch on it exhaustively instead of probing optional fields.
type SceneKind string

const (
	SceneKindImage SceneKind = "image"
	SceneKindVideo SceneKind = "video"
	SceneKindText  SceneKind = "text"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a status is final. Terminal jobs are
// immutable; the manager never transitions them again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type StorageLocation string

const (
	StorageLocal StorageLocation = "local"
	StorageCloud StorageLocation = "cloud"
)

// Models

// Scene is one narrated beat of a script. AudioPath, Duration, and
// AssetPath start empty and are filled in by acquisition; Duration > 0
// once the scene is resolved. Text scenes never get an AssetPath —
// they render from Narration directly.
type Scene struct {
	Number    int       `json:"scene_number"`
	Narration string    `json:"script"`
	Keywords  []string  `json:"asset_keywords"`
	Kind      SceneKind `json:"-"`

	AudioPath string  `json:"audio_file_path,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	AssetPath string  `json:"asset_file_path,omitempty"`
}

// sceneWire mirrors the script-generation service's JSON shape, where
// the kind is split across asset_type ("image", "video", "image/video")
// and scene_type ("media", "text"). Any non-text scene_type resolves
// by asset_type, so older "default" payloads decode identically.
type sceneWire struct {
	Number    int      `json:"scene_number"`
	Narration string   `json:"script"`
	Keywords  []string `json:"asset_keywords"`
	AssetType string   `json:"asset_type"`
	SceneType string   `json:"scene_type"`

	AudioPath string  `json:"audio_file_path,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	AssetPath string  `json:"asset_file_path,omitempty"`
}

func (s *Scene) UnmarshalJSON(data []byte) error {
	var w sceneWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Scene{
		Number:    w.Number,
		Narration: w.Narration,
		Keywords:  w.Keywords,
		Kind:      resolveKind(w.AssetType, w.SceneType),
		AudioPath: w.AudioPath,
		Duration:  w.Duration,
		AssetPath: w.AssetPath,
	}
	return nil
}

func (s Scene) MarshalJSON() ([]byte, error) {
	w := sceneWire{
		Number:    s.Number,
		Narration: s.Narration,
		Keywords:  s.Keywords,
		AssetType: string(s.Kind),
		SceneType: "media",
		AudioPath: s.AudioPath,
		Duration:  s.Duration,
		AssetPath: s.AssetPath,
	}
	if s.Kind == SceneKindText {
		w.AssetType = ""
		w.SceneType = "text"
	}
	return json.Marshal(w)
}

// resolveKind collapses the loose asset_type/scene_type pair into one
// tag. scene_type=text wins; an asset_type containing "video" (e.g.
// "image/video") resolves to video, anything else to image.
func resolveKind(assetType, sceneType string) SceneKind {
	if strings.EqualFold(sceneType, "text") {
		return SceneKindText
	}
	if strings.Contains(strings.ToLower(assetType), "video") {
		return SceneKindVideo
	}
	return SceneKindImage
}

// Script is the immutable scene list for one generation request.
// Scene order defines final render order.
type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// ParseScript decodes a script-generation response.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type Job struct {
	ID              string     `json:"id"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progress_message"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	VideoID         *int64     `json:"video_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type Video struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	SourceURL       string          `json:"source_url"`
	FilePath        string          `json:"file_path"`
	StorageLocation StorageLocation `json:"storage_location"`
	Duration        *float64        `json:"duration,omitempty"`
	SizeMB          *float64        `json:"size_mb,omitempty"`
	ScriptJSON      string          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DTOs for API requests and responses

type GenerateVideoRequest struct {
	URL string `json:"url"`
}

type GenerateVideoResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

type ListJobsResponse struct {
	Jobs  []Job `json:"jobs"`
	Count int   `json:"count"`
}

type ListVideosResponse struct {
	Videos []Video `json:"videos"`
	Count  int     `json:"count"`
}
