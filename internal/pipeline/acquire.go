package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/reelcraft/reelcraft/internal/config"
	"github.com/reelcraft/reelcraft/internal/models"
	"github.com/reelcraft/reelcraft/internal/services"
)

// fallbackKeyword broadens a search that returned nothing before the
// scene is declared unservable.
const fallbackKeyword = "generic"

// MediaSearcher finds and fetches stock assets.
type MediaSearcher interface {
	SearchPhotos(ctx context.Context, query string, perPage int) ([]services.PexelsPhoto, error)
	SearchVideos(ctx context.Context, query string, perPage int) ([]services.PexelsVideo, error)
	DownloadFile(ctx context.Context, fileURL, destPath string) error
}

// Selector picks the best candidate asset for a scene's narration.
type Selector interface {
	SelectAsset(ctx context.Context, narration string, candidates []services.AssetCandidate) (int, error)
}

// Prober measures media files on disk.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Acquirer fills in each scene's narration audio and visual asset.
type Acquirer struct {
	tts      services.TTSService
	media    MediaSearcher
	selector Selector
	prober   Prober
	cfg      config.RenderConfig
}

func NewAcquirer(tts services.TTSService, media MediaSearcher, selector Selector, prober Prober, cfg config.RenderConfig) *Acquirer {
	return &Acquirer{tts: tts, media: media, selector: selector, prober: prober, cfg: cfg}
}

// Acquire runs narration synthesis and visual acquisition for every
// scene concurrently and writes results back into the scenes slice by
// index, so completion order never reorders output. Any scene failure
// cancels the rest and fails the whole acquisition. onNarrationDone
// and onVisualsDone fire when their half completes successfully; nil
// callbacks are skipped.
func (a *Acquirer) Acquire(ctx context.Context, scenes []models.Scene, workDir string, onNarrationDone, onVisualsDone func()) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return acquisitionError("failed to create work dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.SynthesizeAll(gctx, scenes, workDir); err != nil {
			return err
		}
		if onNarrationDone != nil {
			onNarrationDone()
		}
		return nil
	})

	g.Go(func() error {
		if err := a.AcquireVisuals(gctx, scenes, workDir); err != nil {
			return err
		}
		if onVisualsDone != nil {
			onVisualsDone()
		}
		return nil
	})

	return g.Wait()
}

// SynthesizeAll generates narration for every speaking scene, at most
// NarrationConcurrency at a time. Text scenes speak nothing; they get
// the fixed title-card duration.
func (a *Acquirer) SynthesizeAll(ctx context.Context, scenes []models.Scene, workDir string) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(a.cfg.NarrationConcurrency)

	for i := range scenes {
		i := i

		if scenes[i].Kind == models.SceneKindText {
			scenes[i].Duration = a.cfg.TextSceneSeconds
			continue
		}

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return synthesisError("scene %d: %w", scenes[i].Number, err)
			}
			defer sem.Release(1)

			return a.synthesizeNarration(gctx, &scenes[i], workDir)
		})
	}

	return g.Wait()
}

// AcquireVisuals searches and downloads the visual asset for every
// media scene concurrently.
func (a *Acquirer) AcquireVisuals(ctx context.Context, scenes []models.Scene, workDir string) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range scenes {
		i := i

		if scenes[i].Kind == models.SceneKindText {
			continue
		}

		g.Go(func() error {
			return a.acquireVisual(gctx, &scenes[i], workDir)
		})
	}

	return g.Wait()
}

// synthesizeNarration generates the voice-over for one scene and
// measures its exact duration from the written file.
func (a *Acquirer) synthesizeNarration(ctx context.Context, scene *models.Scene, workDir string) error {
	resp, err := a.tts.GenerateSpeech(ctx, scene.Narration)
	if err != nil {
		return synthesisError("scene %d narration: %w", scene.Number, err)
	}

	audioPath := filepath.Join(workDir, fmt.Sprintf("scene_%d_audio.%s", scene.Number, resp.Format))
	if err := os.WriteFile(audioPath, resp.AudioData, 0644); err != nil {
		return synthesisError("scene %d narration: %w", scene.Number, err)
	}

	duration, err := a.prober.ProbeDuration(ctx, audioPath)
	if err != nil {
		return synthesisError("scene %d narration duration: %w", scene.Number, err)
	}

	scene.AudioPath = audioPath
	scene.Duration = duration

	log.Printf("[Acquire] Scene %d narration ready (%.2fs)", scene.Number, duration)
	return nil
}

// acquireVisual searches for candidates, has the selector pick one,
// and downloads it. An empty first search retries once with the
// broadened fallback keyword.
func (a *Acquirer) acquireVisual(ctx context.Context, scene *models.Scene, workDir string) error {
	keyword := fallbackKeyword
	if len(scene.Keywords) > 0 {
		keyword = scene.Keywords[0]
	}

	switch scene.Kind {
	case models.SceneKindImage:
		return a.acquirePhoto(ctx, scene, keyword, workDir)
	case models.SceneKindVideo:
		return a.acquireClip(ctx, scene, keyword, workDir)
	}
	return acquisitionError("scene %d: unexpected kind %q", scene.Number, scene.Kind)
}

func (a *Acquirer) acquirePhoto(ctx context.Context, scene *models.Scene, keyword, workDir string) error {
	photos, err := a.media.SearchPhotos(ctx, keyword, a.cfg.AssetCandidates)
	if err != nil {
		return acquisitionError("scene %d photo search: %w", scene.Number, err)
	}
	if len(photos) == 0 && keyword != fallbackKeyword {
		log.Printf("[Acquire] Scene %d: no photos for %q, retrying with %q", scene.Number, keyword, fallbackKeyword)
		photos, err = a.media.SearchPhotos(ctx, fallbackKeyword, a.cfg.AssetCandidates)
		if err != nil {
			return acquisitionError("scene %d photo search: %w", scene.Number, err)
		}
	}
	if len(photos) == 0 {
		return acquisitionError("scene %d: no photo candidates for %q", scene.Number, keyword)
	}

	candidates := make([]services.AssetCandidate, len(photos))
	for i, p := range photos {
		candidates[i] = services.AssetCandidate{Index: i, Description: p.Description()}
	}
	chosen := a.selectCandidate(ctx, scene, candidates)

	destPath := filepath.Join(workDir, fmt.Sprintf("scene_%d_image.jpg", scene.Number))
	if err := a.media.DownloadFile(ctx, photos[chosen].DownloadURL(), destPath); err != nil {
		return acquisitionError("scene %d photo download: %w", scene.Number, err)
	}

	scene.AssetPath = destPath
	log.Printf("[Acquire] Scene %d photo ready (candidate %d of %d)", scene.Number, chosen, len(photos))
	return nil
}

func (a *Acquirer) acquireClip(ctx context.Context, scene *models.Scene, keyword, workDir string) error {
	videos, err := a.media.SearchVideos(ctx, keyword, a.cfg.AssetCandidates)
	if err != nil {
		return acquisitionError("scene %d video search: %w", scene.Number, err)
	}
	if len(videos) == 0 && keyword != fallbackKeyword {
		log.Printf("[Acquire] Scene %d: no videos for %q, retrying with %q", scene.Number, keyword, fallbackKeyword)
		videos, err = a.media.SearchVideos(ctx, fallbackKeyword, a.cfg.AssetCandidates)
		if err != nil {
			return acquisitionError("scene %d video search: %w", scene.Number, err)
		}
	}
	if len(videos) == 0 {
		return acquisitionError("scene %d: no video candidates for %q", scene.Number, keyword)
	}

	candidates := make([]services.AssetCandidate, len(videos))
	for i, v := range videos {
		candidates[i] = services.AssetCandidate{Index: i, Description: v.Description()}
	}
	chosen := a.selectCandidate(ctx, scene, candidates)

	destPath := filepath.Join(workDir, fmt.Sprintf("scene_%d_video.mp4", scene.Number))
	if err := a.media.DownloadFile(ctx, videos[chosen].DownloadURL(), destPath); err != nil {
		return acquisitionError("scene %d video download: %w", scene.Number, err)
	}

	scene.AssetPath = destPath
	log.Printf("[Acquire] Scene %d video ready (candidate %d of %d)", scene.Number, chosen, len(videos))
	return nil
}

// selectCandidate asks the selector for the best match and falls back
// to the top-ranked result on any selector failure.
func (a *Acquirer) selectCandidate(ctx context.Context, scene *models.Scene, candidates []services.AssetCandidate) int {
	if len(candidates) == 1 {
		return 0
	}

	chosen, err := a.selector.SelectAsset(ctx, scene.Narration, candidates)
	if err != nil {
		log.Printf("[Acquire] Scene %d: selector failed (%v), using top result", scene.Number, err)
		return 0
	}
	return chosen
}
