package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/reelcraft/reelcraft/internal/models"
	"github.com/reelcraft/reelcraft/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	videos   map[int64]*models.Video
	bySource map[string]*models.Video
	nextID   int64
	history  []int // every progress value written, in order
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[string]*models.Job),
		videos:   make(map[int64]*models.Video),
		bySource: make(map[string]*models.Video),
		nextID:   1,
	}
}

func (s *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
	return nil
}

func (s *memStore) UpdateJobProgress(ctx context.Context, id string, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Progress = progress
	s.jobs[id].ProgressMessage = message
	s.history = append(s.history, progress)
	return nil
}

func (s *memStore) UpdateJobError(ctx context.Context, id string, status models.JobStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
	s.jobs[id].ErrorMessage = &errorMessage
	return nil
}

func (s *memStore) SetJobVideo(ctx context.Context, id string, videoID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].VideoID = &videoID
	return nil
}

func (s *memStore) ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, j := range s.jobs {
		if status == "" || string(j.Status) == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) CountJobs(ctx context.Context, status string) (int, error) {
	jobs, _ := s.ListJobs(ctx, status, 0, 0)
	return len(jobs), nil
}

func (s *memStore) CreateVideo(ctx context.Context, video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video.ID = s.nextID
	s.nextID++
	cp := *video
	s.videos[video.ID] = &cp
	s.bySource[video.SourceURL] = &cp
	return nil
}

func (s *memStore) FindVideoBySourceURL(ctx context.Context, sourceURL string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.bySource[sourceURL]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) UpdateVideoCloudLocation(ctx context.Context, id int64, publicURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[id].FilePath = publicURL
	s.videos[id].StorageLocation = models.StorageCloud
	return nil
}

func (s *memStore) progressHistory() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.history))
	copy(out, s.history)
	return out
}

type fakeRunner struct {
	mu      sync.Mutex
	started chan string
	block   chan struct{} // nil = finish immediately
	err     error
	calls   int
}

func (r *fakeRunner) Run(ctx context.Context, jobID, url string, report pipeline.ProgressFunc) (*pipeline.Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.started != nil {
		r.started <- jobID
	}

	report(5, "Extracting article content...")
	report(25, "Script generated with 9 scenes")

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	report(90, "Finalizing video...")
	return &pipeline.Result{
		Title:      "Test Reel",
		OutputPath: "/tmp/out.mp4",
		Duration:   42.0,
		SizeMB:     3.5,
		ScriptJSON: `{"title":"Test Reel","scenes":[]}`,
	}, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeCleaner struct {
	mu      sync.Mutex
	cleaned []string
	removed []string
}

func (c *fakeCleaner) CleanupJob(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleaned = append(c.cleaned, jobID)
}

func (c *fakeCleaner) RemoveOutput(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, jobID)
}

func (c *fakeCleaner) cleanedJobs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleaned...)
}

func (c *fakeCleaner) removedOutputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.removed...)
}

type fakeUploader struct {
	enabled bool
	err     error
	mu      sync.Mutex
	keys    []string
}

func (u *fakeUploader) Enabled() bool { return u.enabled }

func (u *fakeUploader) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.mu.Unlock()
	return u.err
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

func testObjectKey(videoID int64, filename string) string {
	return fmt.Sprintf("videos/%d/%s", videoID, filename)
}

func newTestManager(store *memStore, runner *fakeRunner, cleaner *fakeCleaner, uploader *fakeUploader) *Manager {
	return NewManager(store, runner, NewBus(nil, time.Hour), uploader, testObjectKey, cleaner)
}

func waitForStatus(t *testing.T, store *memStore, jobID string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s (last: %+v)", jobID, want, job)
	return nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateRunsJobToCompletion(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	cleaner := &fakeCleaner{}
	m := newTestManager(store, runner, cleaner, &fakeUploader{})

	job, err := m.Create(context.Background(), "https://example.test/article")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("initial status = %s, want pending", job.Status)
	}

	final := waitForStatus(t, store, job.ID, models.JobStatusCompleted)
	if final.VideoID == nil {
		t.Fatal("completed job has no video")
	}
	if final.Progress != 100 {
		t.Errorf("final progress = %d, want 100", final.Progress)
	}

	if got := cleaner.cleanedJobs(); len(got) != 1 || got[0] != job.ID {
		t.Errorf("cleanup jobs = %v, want [%s]", got, job.ID)
	}
	if got := cleaner.removedOutputs(); len(got) != 0 {
		t.Errorf("output removed on success: %v", got)
	}
}

func TestCreateCacheHitSkipsPipeline(t *testing.T) {
	store := newMemStore()
	url := "https://example.test/cached"
	store.CreateVideo(context.Background(), &models.Video{
		Title:           "Cached Reel",
		SourceURL:       url,
		FilePath:        "/videos/cached.mp4",
		StorageLocation: models.StorageLocal,
	})

	runner := &fakeRunner{}
	m := newTestManager(store, runner, &fakeCleaner{}, &fakeUploader{})

	job, err := m.Create(context.Background(), url)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != models.JobStatusCompleted {
		t.Errorf("cache hit status = %s, want completed", job.Status)
	}
	if job.VideoID == nil {
		t.Fatal("cache hit has no video id")
	}
	if job.Progress != 100 {
		t.Errorf("cache hit progress = %d, want 100", job.Progress)
	}

	time.Sleep(20 * time.Millisecond)
	if runner.callCount() != 0 {
		t.Errorf("runner called %d times on cache hit", runner.callCount())
	}
}

func TestCancelRunningJob(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{started: make(chan string, 1), block: make(chan struct{})}
	cleaner := &fakeCleaner{}
	m := newTestManager(store, runner, cleaner, &fakeUploader{})

	job, err := m.Create(context.Background(), "https://example.test/slow")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	<-runner.started
	if err := m.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	final := waitForStatus(t, store, job.ID, models.JobStatusCancelled)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("status = %s", final.Status)
	}

	if got := cleaner.removedOutputs(); len(got) != 1 {
		t.Errorf("cancelled job should remove output, got %v", got)
	}
}

// createHookStore lets a test interleave work into the middle of
// Manager.Create, between the job insert and the pipeline launch.
type createHookStore struct {
	*memStore
	onLookup func()
}

func (s *createHookStore) FindVideoBySourceURL(ctx context.Context, sourceURL string) (*models.Video, error) {
	if s.onLookup != nil {
		s.onLookup()
	}
	return s.memStore.FindVideoBySourceURL(ctx, sourceURL)
}

func pendingJobID(t *testing.T, store *memStore) string {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for id := range store.jobs {
		return id
	}
	t.Fatal("no job inserted yet")
	return ""
}

func TestCancelDuringCreateDoesNotResurrectJob(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	hook := &createHookStore{memStore: store}
	m := NewManager(hook, runner, NewBus(nil, time.Hour), &fakeUploader{}, testObjectKey, &fakeCleaner{})

	// Cancel lands while Create is still between the job insert and
	// launching the pipeline goroutine.
	hook.onLookup = func() {
		if err := m.Cancel(context.Background(), pendingJobID(t, store)); err != nil {
			t.Errorf("Cancel during create: %v", err)
		}
	}

	job, err := m.Create(context.Background(), "https://example.test/raced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	waitForStatus(t, store, job.ID, models.JobStatusCancelled)

	// A resurrected job would move on to processing and completed.
	time.Sleep(30 * time.Millisecond)
	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("status = %s after cancel during create, want cancelled", final.Status)
	}
}

func TestCancelDuringCreateBeatsCacheHit(t *testing.T) {
	store := newMemStore()
	url := "https://example.test/raced-cache"
	store.CreateVideo(context.Background(), &models.Video{
		Title:     "Cached Reel",
		SourceURL: url,
		FilePath:  "/videos/cached.mp4",
	})

	runner := &fakeRunner{}
	hook := &createHookStore{memStore: store}
	m := NewManager(hook, runner, NewBus(nil, time.Hour), &fakeUploader{}, testObjectKey, &fakeCleaner{})

	hook.onLookup = func() {
		if err := m.Cancel(context.Background(), pendingJobID(t, store)); err != nil {
			t.Errorf("Cancel during create: %v", err)
		}
	}

	job, err := m.Create(context.Background(), url)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != models.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled to win over the cache hit", job.Status)
	}
	if runner.callCount() != 0 {
		t.Errorf("runner called %d times", runner.callCount())
	}
}

func TestRunSkipsTerminalJob(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	m := newTestManager(store, runner, &fakeCleaner{}, &fakeUploader{})

	jobID := "job-settled"
	store.CreateJob(context.Background(), &models.Job{ID: jobID, Status: models.JobStatusCancelled})

	m.run(context.Background(), jobID, "https://example.test/settled")

	if runner.callCount() != 0 {
		t.Errorf("runner called %d times for a terminal job", runner.callCount())
	}
	final, _ := store.GetJob(context.Background(), jobID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("terminal status was overwritten to %s", final.Status)
	}
}

func TestCancelTerminalJobFails(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	m := newTestManager(store, runner, &fakeCleaner{}, &fakeUploader{})

	job, err := m.Create(context.Background(), "https://example.test/fast")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, store, job.ID, models.JobStatusCompleted)

	if err := m.Cancel(context.Background(), job.ID); err == nil {
		t.Error("expected error cancelling a completed job")
	}
}

func TestFailureRecordsTranslatedErrorAndCleansUp(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{err: errors.New("pexels returned status 429")}
	cleaner := &fakeCleaner{}
	m := newTestManager(store, runner, cleaner, &fakeUploader{})

	job, err := m.Create(context.Background(), "https://example.test/limited")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	final := waitForStatus(t, store, job.ID, models.JobStatusFailed)
	if final.ErrorMessage == nil {
		t.Fatal("failed job has no error message")
	}
	if *final.ErrorMessage == "pexels returned status 429" {
		t.Error("raw upstream error leaked to user-facing message")
	}

	if len(cleaner.cleanedJobs()) != 1 || len(cleaner.removedOutputs()) != 1 {
		t.Errorf("failure cleanup incomplete: cleaned=%v removed=%v",
			cleaner.cleanedJobs(), cleaner.removedOutputs())
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, &fakeRunner{}, &fakeCleaner{}, &fakeUploader{})

	jobID := "job-1"
	store.CreateJob(context.Background(), &models.Job{ID: jobID, Status: models.JobStatusProcessing})

	report := m.reporter(jobID)
	report(50, "Narration audio generated")
	report(55, "Visual assets downloaded")
	report(50, "Narration audio generated") // late arrival, must be ignored
	report(75, "Assets ready")

	history := store.progressHistory()
	for i := 1; i < len(history); i++ {
		if history[i] <= history[i-1] {
			t.Fatalf("progress not strictly increasing: %v", history)
		}
	}

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Progress != 75 {
		t.Errorf("final progress = %d, want 75", job.Progress)
	}
}

func TestUploadSuccessFlipsVideoToCloud(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	uploader := &fakeUploader{enabled: true}
	m := newTestManager(store, runner, &fakeCleaner{}, uploader)

	job, err := m.Create(context.Background(), "https://example.test/uploaded")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final := waitForStatus(t, store, job.ID, models.JobStatusCompleted)

	store.mu.Lock()
	video := store.videos[*final.VideoID]
	store.mu.Unlock()

	if video.StorageLocation != models.StorageCloud {
		t.Errorf("storage location = %s, want cloud", video.StorageLocation)
	}
	if video.FilePath == "/tmp/out.mp4" {
		t.Error("file path not updated to public URL")
	}
}

func TestUploadFailureDegradesToLocal(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	uploader := &fakeUploader{enabled: true, err: errors.New("bucket unavailable")}
	m := newTestManager(store, runner, &fakeCleaner{}, uploader)

	job, err := m.Create(context.Background(), "https://example.test/degraded")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final := waitForStatus(t, store, job.ID, models.JobStatusCompleted)

	store.mu.Lock()
	video := store.videos[*final.VideoID]
	store.mu.Unlock()

	if video.StorageLocation != models.StorageLocal {
		t.Errorf("storage location = %s, want local after failed upload", video.StorageLocation)
	}
}
