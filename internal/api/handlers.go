package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reelcraft/reelcraft/internal/cleanup"
	"github.com/reelcraft/reelcraft/internal/jobs"
	"github.com/reelcraft/reelcraft/internal/models"
)

// VideoStore is the video catalog as the handlers see it.
type VideoStore interface {
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	ListVideos(ctx context.Context, limit, offset int) ([]models.Video, error)
	CountVideos(ctx context.Context) (int, error)
	DeleteVideo(ctx context.Context, id int64) error
}

// ObjectStore removes uploaded video objects. *storage.Storage is the
// production implementation.
type ObjectStore interface {
	Enabled() bool
	Delete(ctx context.Context, key string) error
	KeyFromPublicURL(publicURL string) (string, bool)
}

type Handler struct {
	manager *jobs.Manager
	videos  VideoStore
	cleanup *cleanup.Service
	objects ObjectStore
}

func NewHandler(manager *jobs.Manager, videos VideoStore, cleaner *cleanup.Service, objects ObjectStore) *Handler {
	return &Handler{
		manager: manager,
		videos:  videos,
		cleanup: cleaner,
		objects: objects,
	}
}

// GenerateVideo handles POST /api/generate-video
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		respondError(w, http.StatusBadRequest, "URL must be a valid http(s) URL")
		return
	}

	job, err := h.manager.Create(r.Context(), req.URL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	message := "Video generation started"
	if job.Status == models.JobStatusCompleted {
		message = job.ProgressMessage
	}

	respondJSON(w, http.StatusAccepted, models.GenerateVideoResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: message,
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.manager.Status(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /api/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.manager.Status(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Status.Terminal() {
		respondError(w, http.StatusConflict, "Job is already "+string(job.Status))
		return
	}

	if err := h.manager.Cancel(r.Context(), jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"job_id":  jobID,
		"message": "Cancellation requested",
	})
}

// ListJobs handles GET /api/jobs
// Query params:
//   - status: filter by job status (pending, processing, completed, failed, cancelled)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.JobStatus(statusFilter) {
		case models.JobStatusPending, models.JobStatusProcessing,
			models.JobStatusCompleted, models.JobStatusFailed,
			models.JobStatusCancelled:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: pending, processing, completed, failed, cancelled")
			return
		}
	}

	limit, offset := parsePaging(r)

	list, count, err := h.manager.List(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:  list,
		Count: count,
	})
}

// ListVideos handles GET /api/videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)

	videos, err := h.videos.ListVideos(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}
	count, err := h.videos.CountVideos(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count videos")
		return
	}

	respondJSON(w, http.StatusOK, models.ListVideosResponse{
		Videos: videos,
		Count:  count,
	})
}

// GetVideo handles GET /api/videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.videoFromRequest(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, video)
}

// GetVideoFile handles GET /api/videos/{id}/file. Local videos are
// served straight off disk; cloud videos redirect to their public URL.
func (h *Handler) GetVideoFile(w http.ResponseWriter, r *http.Request) {
	video, ok := h.videoFromRequest(w, r)
	if !ok {
		return
	}

	if video.StorageLocation == models.StorageCloud {
		http.Redirect(w, r, video.FilePath, http.StatusTemporaryRedirect)
		return
	}

	if _, err := os.Stat(video.FilePath); err != nil {
		respondError(w, http.StatusNotFound, "Video file not found on disk")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", "inline; filename=\""+safeFilename(video.Title)+".mp4\"")
	http.ServeFile(w, r, video.FilePath)
}

// DeleteVideo handles DELETE /api/videos/{id}. The stored file goes
// first so a failed removal leaves the row behind for a retry.
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.videoFromRequest(w, r)
	if !ok {
		return
	}

	if video.StorageLocation == models.StorageCloud {
		if h.objects != nil && h.objects.Enabled() {
			if key, ok := h.objects.KeyFromPublicURL(video.FilePath); ok {
				if err := h.objects.Delete(r.Context(), key); err != nil {
					respondError(w, http.StatusInternalServerError, "Failed to delete stored video file")
					return
				}
			}
		}
	} else if err := os.Remove(video.FilePath); err != nil && !os.IsNotExist(err) {
		respondError(w, http.StatusInternalServerError, "Failed to delete video file")
		return
	}

	if err := h.videos.DeleteVideo(r.Context(), video.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete video")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Video deleted"})
}

// GetStats handles GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cleanup.GetStats())
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) videoFromRequest(w http.ResponseWriter, r *http.Request) (*models.Video, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid video ID")
		return nil, false
	}

	video, err := h.videos.GetVideo(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Video not found")
		return nil, false
	}
	return video, true
}

func parsePaging(r *http.Request) (limit, offset int) {
	limit = 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset = 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// safeFilename strips characters that break a Content-Disposition header.
func safeFilename(title string) string {
	if title == "" {
		return "video"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\n', '\r':
			return '_'
		}
		return r
	}, title)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
