package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reelcraft/reelcraft/internal/config"
	"github.com/reelcraft/reelcraft/internal/models"
	"github.com/reelcraft/reelcraft/internal/services"
)

type fakeTTS struct {
	mu         sync.Mutex
	inFlight   int32
	maxSeen    int32
	calls      int32
	delay      time.Duration
	err        error
}

func (f *fakeTTS) GenerateSpeech(ctx context.Context, text string) (*services.TTSResponse, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	atomic.AddInt32(&f.calls, 1)

	f.mu.Lock()
	if cur > f.maxSeen {
		f.maxSeen = cur
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &services.TTSResponse{AudioData: []byte("riff"), Format: "wav"}, nil
}

type fakeMedia struct {
	photosByQuery map[string][]services.PexelsPhoto
	videosByQuery map[string][]services.PexelsVideo
	searchQueries []string
	mu            sync.Mutex
	downloadErr   error
}

func (f *fakeMedia) SearchPhotos(ctx context.Context, query string, perPage int) ([]services.PexelsPhoto, error) {
	f.mu.Lock()
	f.searchQueries = append(f.searchQueries, query)
	f.mu.Unlock()
	return f.photosByQuery[query], nil
}

func (f *fakeMedia) SearchVideos(ctx context.Context, query string, perPage int) ([]services.PexelsVideo, error) {
	f.mu.Lock()
	f.searchQueries = append(f.searchQueries, query)
	f.mu.Unlock()
	return f.videosByQuery[query], nil
}

func (f *fakeMedia) DownloadFile(ctx context.Context, fileURL, destPath string) error {
	return f.downloadErr
}

type fakeSelector struct {
	index int
	err   error
	calls int32
}

func (f *fakeSelector) SelectAsset(ctx context.Context, narration string, candidates []services.AssetCandidate) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return 0, f.err
	}
	return f.index, nil
}

type fakeProber struct {
	duration float64
}

func (f *fakeProber) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return f.duration, nil
}

func somePhotos(n int) []services.PexelsPhoto {
	photos := make([]services.PexelsPhoto, n)
	for i := range photos {
		photos[i].ID = int64(i + 1)
		photos[i].Alt = "city skyline at night"
		photos[i].Src.Original = "https://example.test/photo.jpg"
	}
	return photos
}

func mediaScenes(n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			Number:    i + 1,
			Narration: "Narration text",
			Keywords:  []string{"city", "night"},
			Kind:      models.SceneKindImage,
		}
	}
	return scenes
}

func testAcquirer(tts *fakeTTS, media *fakeMedia, sel *fakeSelector) *Acquirer {
	cfg := config.DefaultRenderConfig()
	return NewAcquirer(tts, media, sel, &fakeProber{duration: 3.2}, cfg)
}

func TestAcquireBoundsNarrationConcurrency(t *testing.T) {
	tts := &fakeTTS{delay: 20 * time.Millisecond}
	media := &fakeMedia{photosByQuery: map[string][]services.PexelsPhoto{"city": somePhotos(5)}}
	a := testAcquirer(tts, media, &fakeSelector{})

	scenes := mediaScenes(8)
	if err := a.Acquire(context.Background(), scenes, t.TempDir(), nil, nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if tts.maxSeen > 3 {
		t.Errorf("narration concurrency peaked at %d, want <= 3", tts.maxSeen)
	}
	if tts.calls != 8 {
		t.Errorf("tts calls = %d, want 8", tts.calls)
	}
	for i, s := range scenes {
		if s.AudioPath == "" || s.Duration != 3.2 || s.AssetPath == "" {
			t.Errorf("scene %d not fully acquired: %+v", i, s)
		}
	}
}

func TestAcquireTextScenesSkipSynthesisAndSearch(t *testing.T) {
	tts := &fakeTTS{}
	media := &fakeMedia{photosByQuery: map[string][]services.PexelsPhoto{"city": somePhotos(2)}}
	a := testAcquirer(tts, media, &fakeSelector{})

	scenes := []models.Scene{
		{Number: 1, Narration: "Spoken line", Keywords: []string{"city"}, Kind: models.SceneKindImage},
		{Number: 2, Narration: "KEY POINT", Kind: models.SceneKindText},
	}

	if err := a.Acquire(context.Background(), scenes, t.TempDir(), nil, nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if tts.calls != 1 {
		t.Errorf("tts calls = %d, want 1", tts.calls)
	}
	if scenes[1].Duration != 4.0 {
		t.Errorf("text scene duration = %v, want 4.0", scenes[1].Duration)
	}
	if scenes[1].AudioPath != "" || scenes[1].AssetPath != "" {
		t.Errorf("text scene acquired assets: %+v", scenes[1])
	}
}

func TestAcquireFallsBackToGenericKeyword(t *testing.T) {
	media := &fakeMedia{photosByQuery: map[string][]services.PexelsPhoto{
		"generic": somePhotos(3),
	}}
	a := testAcquirer(&fakeTTS{}, media, &fakeSelector{})

	scenes := []models.Scene{{
		Number: 1, Narration: "line", Keywords: []string{"unfindable thing"},
		Kind: models.SceneKindImage,
	}}

	if err := a.Acquire(context.Background(), scenes, t.TempDir(), nil, nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if scenes[0].AssetPath == "" {
		t.Error("scene asset not acquired via fallback")
	}

	found := false
	for _, q := range media.searchQueries {
		if q == "generic" {
			found = true
		}
	}
	if !found {
		t.Errorf("fallback keyword never searched: %v", media.searchQueries)
	}
}

func TestAcquireFailsWhenNoCandidatesAnywhere(t *testing.T) {
	media := &fakeMedia{photosByQuery: map[string][]services.PexelsPhoto{}}
	a := testAcquirer(&fakeTTS{}, media, &fakeSelector{})

	scenes := []models.Scene{{
		Number: 1, Narration: "line", Keywords: []string{"nothing"},
		Kind: models.SceneKindImage,
	}}

	err := a.Acquire(context.Background(), scenes, t.TempDir(), nil, nil)
	if err == nil {
		t.Fatal("expected acquisition failure")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAcquisition {
		t.Errorf("error = %v, want acquisition StageError", err)
	}
}

func TestAcquireSelectorFailureFallsBackToTopResult(t *testing.T) {
	media := &fakeMedia{photosByQuery: map[string][]services.PexelsPhoto{"city": somePhotos(5)}}
	sel := &fakeSelector{err: errors.New("model unavailable")}
	a := testAcquirer(&fakeTTS{}, media, sel)

	scenes := mediaScenes(1)
	if err := a.Acquire(context.Background(), scenes, t.TempDir(), nil, nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if scenes[0].AssetPath == "" {
		t.Error("scene asset not acquired despite selector fallback")
	}
	if sel.calls == 0 {
		t.Error("selector never consulted")
	}
}

func TestAcquireNarrationFailureIsFatalSynthesisError(t *testing.T) {
	tts := &fakeTTS{err: errors.New("voice quota exhausted")}
	media := &fakeMedia{photosByQuery: map[string][]services.PexelsPhoto{"city": somePhotos(2)}}
	a := testAcquirer(tts, media, &fakeSelector{})

	err := a.Acquire(context.Background(), mediaScenes(2), t.TempDir(), nil, nil)
	if err == nil {
		t.Fatal("expected synthesis failure")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSynthesis {
		t.Errorf("error = %v, want synthesis StageError", err)
	}
	if !strings.Contains(err.Error(), "voice quota exhausted") {
		t.Errorf("error should wrap cause: %v", err)
	}
}
