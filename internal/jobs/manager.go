package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/reelcraft/reelcraft/internal/models"
	"github.com/reelcraft/reelcraft/internal/pipeline"
)

// Store is the persistent authority for job and video state.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id string, progress int, message string) error
	UpdateJobError(ctx context.Context, id string, status models.JobStatus, errorMessage string) error
	SetJobVideo(ctx context.Context, id string, videoID int64) error
	ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, error)
	CountJobs(ctx context.Context, status string) (int, error)

	CreateVideo(ctx context.Context, video *models.Video) error
	FindVideoBySourceURL(ctx context.Context, sourceURL string) (*models.Video, error)
	UpdateVideoCloudLocation(ctx context.Context, id int64, publicURL string) error
}

// Runner executes the generation pipeline for one job.
type Runner interface {
	Run(ctx context.Context, jobID, url string, report pipeline.ProgressFunc) (*pipeline.Result, error)
}

// Uploader pushes finished videos to object storage. Enabled reports
// whether uploads are configured at all.
type Uploader interface {
	Enabled() bool
	UploadFile(ctx context.Context, key, localPath, contentType string) error
	GetPublicURL(key string) string
}

// ObjectKeyFunc builds the storage key for a finished video.
type ObjectKeyFunc func(videoID int64, filename string) string

// Cleaner removes a job's working files. CleanupJob runs on every
// terminal path; RemoveOutput additionally discards the rendered file
// on failure and cancellation.
type Cleaner interface {
	CleanupJob(jobID string)
	RemoveOutput(jobID string)
}

// Manager owns the lifecycle of generation jobs: creation, the
// background goroutine per job, cooperative cancellation, and
// finalization. The store holds all job state; the in-memory registry
// holds only cancel handles.
type Manager struct {
	store     Store
	runner    Runner
	bus       *Bus
	uploader  Uploader
	objectKey ObjectKeyFunc
	cleaner   Cleaner

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	progress map[string]int
}

func NewManager(store Store, runner Runner, bus *Bus, uploader Uploader, objectKey ObjectKeyFunc, cleaner Cleaner) *Manager {
	return &Manager{
		store:     store,
		runner:    runner,
		bus:       bus,
		uploader:  uploader,
		objectKey: objectKey,
		cleaner:   cleaner,
		cancels:   make(map[string]context.CancelFunc),
		progress:  make(map[string]int),
	}
}

// Create registers a new job for the URL and starts its pipeline in
// the background. When a completed video already exists for the same
// source URL the job short-circuits straight to completed with that
// video attached.
func (m *Manager) Create(ctx context.Context, url string) (*models.Job, error) {
	job := &models.Job{
		ID:              uuid.NewString(),
		Status:          models.JobStatusPending,
		Progress:        0,
		ProgressMessage: "Job queued",
	}

	// The cancel handle is registered before the job row exists, so a
	// Cancel that lands mid-create always finds it instead of settling
	// the record directly and racing the pipeline goroutine.
	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	if err := m.store.CreateJob(ctx, job); err != nil {
		m.release(job.ID)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	cached, err := m.store.FindVideoBySourceURL(ctx, url)
	if err != nil {
		log.Printf("[Jobs] Cache lookup failed for %s: %v", url, err)
	}
	if cached != nil {
		if runCtx.Err() != nil {
			// Cancelled during the cache lookup; the cancel wins.
			m.finishCancelled(job.ID)
			m.release(job.ID)
			job.Status = models.JobStatusCancelled
			return job, nil
		}
		defer m.release(job.ID)
		return m.completeFromCache(ctx, job, cached)
	}

	go m.run(runCtx, job.ID, url)

	log.Printf("[Jobs] Created job %s for %s", job.ID, url)
	return job, nil
}

// completeFromCache finishes a job immediately with a pre-existing
// video. No pipeline work runs and no temp assets exist.
func (m *Manager) completeFromCache(ctx context.Context, job *models.Job, video *models.Video) (*models.Job, error) {
	if err := m.store.SetJobVideo(ctx, job.ID, video.ID); err != nil {
		return nil, fmt.Errorf("failed to attach cached video: %w", err)
	}

	msg := fmt.Sprintf("Video already generated: %s", video.Title)
	if err := m.store.UpdateJobProgress(ctx, job.ID, 100, msg); err != nil {
		return nil, fmt.Errorf("failed to update job progress: %w", err)
	}
	if err := m.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	m.bus.PublishStatus(job.ID, models.JobStatusCompleted, 100, msg)

	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.ProgressMessage = msg
	job.VideoID = &video.ID

	log.Printf("[Jobs] Job %s served from cache (video %d)", job.ID, video.ID)
	return job, nil
}

// run drives one job to a terminal state.
func (m *Manager) run(ctx context.Context, jobID, url string) {
	defer m.release(jobID)

	bg := context.Background()

	// A job already settled as terminal (for instance a cancel handled
	// without a live handle after a restart) must never run again.
	if job, err := m.store.GetJob(bg, jobID); err == nil && job.Status.Terminal() {
		log.Printf("[Jobs] Job %s is already %s, not starting", jobID, job.Status)
		return
	}

	if err := m.store.UpdateJobStatus(bg, jobID, models.JobStatusProcessing); err != nil {
		log.Printf("[Jobs] Job %s: failed to mark processing: %v", jobID, err)
	}
	m.bus.PublishStatus(jobID, models.JobStatusProcessing, 0, "Job started")

	result, err := m.runner.Run(ctx, jobID, url, m.reporter(jobID))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			m.finishCancelled(jobID)
		} else {
			m.finishFailed(jobID, err)
		}
		return
	}

	// A cancel that lands after the render completes still wins.
	if ctx.Err() != nil {
		m.finishCancelled(jobID)
		return
	}

	m.finishCompleted(ctx, jobID, url, result)
}

// reporter returns the progress callback for one job. Progress is
// clamped monotonic: concurrent stages may report out of order, but
// observers never see it decrease.
func (m *Manager) reporter(jobID string) pipeline.ProgressFunc {
	return func(progress int, message string) {
		m.mu.Lock()
		if progress <= m.progress[jobID] {
			m.mu.Unlock()
			return
		}
		m.progress[jobID] = progress
		m.mu.Unlock()

		if err := m.store.UpdateJobProgress(context.Background(), jobID, progress, message); err != nil {
			log.Printf("[Jobs] Job %s: progress update failed: %v", jobID, err)
		}
		m.bus.PublishProgress(jobID, progress, message)
	}
}

func (m *Manager) finishCompleted(ctx context.Context, jobID, url string, result *pipeline.Result) {
	bg := context.Background()

	video := &models.Video{
		Title:           result.Title,
		SourceURL:       url,
		FilePath:        result.OutputPath,
		StorageLocation: models.StorageLocal,
		ScriptJSON:      result.ScriptJSON,
	}
	if result.Duration > 0 {
		video.Duration = &result.Duration
	}
	if result.SizeMB > 0 {
		video.SizeMB = &result.SizeMB
	}

	if err := m.store.CreateVideo(bg, video); err != nil {
		m.finishFailed(jobID, fmt.Errorf("failed to persist video: %w", err))
		return
	}
	if err := m.store.SetJobVideo(bg, jobID, video.ID); err != nil {
		log.Printf("[Jobs] Job %s: failed to attach video %d: %v", jobID, video.ID, err)
	}

	m.uploadVideo(ctx, jobID, video, result.OutputPath)

	report := m.reporter(jobID)
	report(100, fmt.Sprintf("Video created successfully: %s", result.Title))

	if err := m.store.UpdateJobStatus(bg, jobID, models.JobStatusCompleted); err != nil {
		log.Printf("[Jobs] Job %s: failed to mark completed: %v", jobID, err)
	}
	m.bus.PublishStatus(jobID, models.JobStatusCompleted, 100, "Video created successfully")

	m.cleaner.CleanupJob(jobID)
	log.Printf("[Jobs] Job %s completed (video %d)", jobID, video.ID)
}

// uploadVideo pushes the finished file to object storage. Upload
// failure degrades gracefully: the job still completes and the video
// stays local.
func (m *Manager) uploadVideo(ctx context.Context, jobID string, video *models.Video, outputPath string) {
	if m.uploader == nil || !m.uploader.Enabled() {
		log.Printf("[Jobs] Job %s: cloud storage not configured, keeping video local", jobID)
		return
	}

	report := m.reporter(jobID)
	report(95, "Uploading video to cloud storage...")

	key := m.objectKey(video.ID, fmt.Sprintf("%s.mp4", jobID))

	// Uploads finish even when the job context was cancelled after the
	// render completed.
	uploadCtx := context.WithoutCancel(ctx)
	if err := m.uploader.UploadFile(uploadCtx, key, outputPath, "video/mp4"); err != nil {
		log.Printf("[Jobs] Job %s: upload failed, keeping video local: %v", jobID, err)
		return
	}

	publicURL := m.uploader.GetPublicURL(key)
	if err := m.store.UpdateVideoCloudLocation(context.Background(), video.ID, publicURL); err != nil {
		log.Printf("[Jobs] Job %s: failed to record cloud location: %v", jobID, err)
		return
	}

	video.FilePath = publicURL
	video.StorageLocation = models.StorageCloud
	log.Printf("[Jobs] Job %s: video uploaded to %s", jobID, publicURL)
}

func (m *Manager) finishFailed(jobID string, cause error) {
	bg := context.Background()
	msg := pipeline.Translate(cause)

	if err := m.store.UpdateJobError(bg, jobID, models.JobStatusFailed, msg); err != nil {
		log.Printf("[Jobs] Job %s: failed to record error: %v", jobID, err)
	}
	m.bus.PublishStatus(jobID, models.JobStatusFailed, m.lastProgress(jobID), msg)

	m.cleaner.CleanupJob(jobID)
	m.cleaner.RemoveOutput(jobID)
	log.Printf("[Jobs] Job %s failed: %v", jobID, cause)
}

func (m *Manager) finishCancelled(jobID string) {
	bg := context.Background()

	if err := m.store.UpdateJobStatus(bg, jobID, models.JobStatusCancelled); err != nil {
		log.Printf("[Jobs] Job %s: failed to mark cancelled: %v", jobID, err)
	}
	m.bus.PublishStatus(jobID, models.JobStatusCancelled, m.lastProgress(jobID), "Job cancelled")

	m.cleaner.CleanupJob(jobID)
	m.cleaner.RemoveOutput(jobID)
	log.Printf("[Jobs] Job %s cancelled", jobID)
}

// Cancel requests cooperative cancellation of a running job. Terminal
// jobs cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job is already %s", job.Status)
	}

	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()

	if !ok {
		// No running goroutine (e.g. process restarted): settle the
		// record directly.
		m.finishCancelled(jobID)
		return nil
	}

	cancel()
	log.Printf("[Jobs] Cancellation requested for job %s", jobID)
	return nil
}

// Status returns a job's current state from the store.
func (m *Manager) Status(ctx context.Context, jobID string) (*models.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// List returns jobs filtered by status with the total count.
func (m *Manager) List(ctx context.Context, status string, limit, offset int) ([]models.Job, int, error) {
	jobs, err := m.store.ListJobs(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := m.store.CountJobs(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return jobs, count, nil
}

func (m *Manager) lastProgress(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[jobID]
}

func (m *Manager) release(jobID string) {
	m.mu.Lock()
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}
	delete(m.progress, jobID)
	m.mu.Unlock()
}
