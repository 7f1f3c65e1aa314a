package models

import (
	"encoding/json"
	"testing"
)

func TestSceneKindResolution(t *testing.T) {
	tests := []struct {
		name      string
		assetType string
		sceneType string
		want      SceneKind
	}{
		{"plain image", "image", "default", SceneKindImage},
		{"plain video", "video", "default", SceneKindVideo},
		{"combined prefers video", "image/video", "default", SceneKindVideo},
		{"text wins over asset type", "video", "text", SceneKindText},
		{"text uppercase", "", "TEXT", SceneKindText},
		{"empty defaults to image", "", "", SceneKindImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveKind(tt.assetType, tt.sceneType)
			if got != tt.want {
				t.Errorf("resolveKind(%q, %q) = %q, want %q", tt.assetType, tt.sceneType, got, tt.want)
			}
		})
	}
}

func TestSceneUnmarshalJSON(t *testing.T) {
	raw := `{
		"scene_number": 3,
		"script": "The city never sleeps.",
		"asset_keywords": ["city", "night", "skyline"],
		"asset_type": "image/video",
		"scene_type": "default"
	}`

	var s Scene
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal scene: %v", err)
	}
	if s.Number != 3 {
		t.Errorf("Number = %d, want 3", s.Number)
	}
	if s.Kind != SceneKindVideo {
		t.Errorf("Kind = %q, want %q", s.Kind, SceneKindVideo)
	}
	if len(s.Keywords) != 3 || s.Keywords[0] != "city" {
		t.Errorf("Keywords = %v", s.Keywords)
	}
}

func TestSceneMarshalRoundTrip(t *testing.T) {
	orig := Scene{
		Number:    1,
		Narration: "Welcome to the show",
		Keywords:  []string{"intro"},
		Kind:      SceneKindText,
		Duration:  4.0,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Scene
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Kind != SceneKindText {
		t.Errorf("round trip Kind = %q, want %q", back.Kind, SceneKindText)
	}
	if back.Duration != 4.0 {
		t.Errorf("round trip Duration = %v, want 4.0", back.Duration)
	}
}

func TestParseScript(t *testing.T) {
	raw := `{
		"title": "How LLMs Work",
		"scenes": [
			{"scene_number": 1, "script": "Intro", "asset_keywords": ["ai"], "asset_type": "image", "scene_type": "default"},
			{"scene_number": 2, "script": "Key Point", "asset_keywords": [], "asset_type": "", "scene_type": "text"}
		]
	}`

	script, err := ParseScript([]byte(raw))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if script.Title != "How LLMs Work" {
		t.Errorf("Title = %q", script.Title)
	}
	if len(script.Scenes) != 2 {
		t.Fatalf("len(Scenes) = %d, want 2", len(script.Scenes))
	}
	if script.Scenes[0].Kind != SceneKindImage {
		t.Errorf("scene 1 Kind = %q, want image", script.Scenes[0].Kind)
	}
	if script.Scenes[1].Kind != SceneKindText {
		t.Errorf("scene 2 Kind = %q, want text", script.Scenes[1].Kind)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q.Terminal() = false, want true", s)
		}
	}
	active := []JobStatus{JobStatusPending, JobStatusProcessing}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%q.Terminal() = true, want false", s)
		}
	}
}
