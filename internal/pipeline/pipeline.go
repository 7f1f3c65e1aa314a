package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/reelcraft/reelcraft/internal/config"
	"github.com/reelcraft/reelcraft/internal/models"
	"github.com/reelcraft/reelcraft/internal/services"
)

// Scraper extracts article content as markdown.
type Scraper interface {
	ScrapeMarkdown(ctx context.Context, url string) (string, error)
}

// ScriptGenerator turns article markdown into a scene script.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, markdown string) (*models.Script, error)
}

// Compositor renders scene segments and assembles the final file.
// *services.FFmpegService is the production implementation.
type Compositor interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	RenderImageSegment(ctx context.Context, imagePath, outputPath string, duration float64, sceneIndex int) error
	RenderVideoSegment(ctx context.Context, videoPath, outputPath string, duration, speedFactor float64, loops int) error
	RenderTextSegment(ctx context.Context, text, outputPath string, duration float64) error
	ConcatWithTransitions(ctx context.Context, segmentPaths []string, durations []float64, outputPath string) error
	ConcatSegments(ctx context.Context, segmentPaths []string, outputPath string) error
	BuildVoiceTrack(ctx context.Context, entries []services.VoiceEntry, outputPath string) error
	MixWithDucking(ctx context.Context, voicePath, musicPath, outputPath string) error
	Mux(ctx context.Context, visualPath, audioPath, outputPath string) error
}

// Result is what a finished pipeline run hands back for persistence.
type Result struct {
	Title      string
	OutputPath string
	Duration   float64
	SizeMB     float64
	ScriptJSON string
}

// ProgressFunc receives checkpoint updates during a run.
type ProgressFunc func(progress int, message string)

type Pipeline struct {
	scraper   Scraper
	scripts   ScriptGenerator
	acquirer  *Acquirer
	comp      Compositor
	cfg       config.RenderConfig
	tempDir   string
	outputDir string
	musicPath string
}

func New(scraper Scraper, scripts ScriptGenerator, acquirer *Acquirer, comp Compositor, cfg config.RenderConfig, tempDir, outputDir, musicPath string) *Pipeline {
	return &Pipeline{
		scraper:   scraper,
		scripts:   scripts,
		acquirer:  acquirer,
		comp:      comp,
		cfg:       cfg,
		tempDir:   tempDir,
		outputDir: outputDir,
		musicPath: musicPath,
	}
}

// WorkDir returns the per-job temp directory for intermediate assets.
func (p *Pipeline) WorkDir(jobID string) string {
	return filepath.Join(p.tempDir, jobID)
}

// Run executes the full generation pipeline for one job. Cancellation
// is cooperative: the context is checked at stage boundaries, and the
// final mux always runs to completion before the flag wins.
func (p *Pipeline) Run(ctx context.Context, jobID, url string, report ProgressFunc) (*Result, error) {
	workDir := p.WorkDir(jobID)

	report(5, "Extracting article content...")
	markdown, err := p.scraper.ScrapeMarkdown(ctx, url)
	if err != nil {
		return nil, acquisitionError("article extraction: %w", err)
	}
	report(10, "Article content extracted")

	report(15, "Generating video script...")
	script, err := p.scripts.GenerateScript(ctx, markdown)
	if err != nil {
		return nil, acquisitionError("script generation: %w", err)
	}
	report(25, fmt.Sprintf("Script generated with %d scenes", len(script.Scenes)))

	report(30, "Generating narration and gathering assets...")
	err = p.acquirer.Acquire(ctx, script.Scenes, workDir,
		func() { report(50, "Narration audio generated") },
		func() { report(55, "Visual assets downloaded") },
	)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(75, "Assets ready")

	specs, err := p.resolveTimings(ctx, script.Scenes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(80, "Composing video...")
	visualPath, err := p.composeVisualTrack(ctx, specs, workDir)
	if err != nil {
		return nil, err
	}

	report(85, "Mixing audio...")
	audioPath, err := p.composeAudioTrack(ctx, specs, workDir)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(90, "Finalizing video...")
	outputPath := filepath.Join(p.outputDir, fmt.Sprintf("%s.mp4", jobID))
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, compositionError("failed to create output dir: %w", err)
	}

	// The mux subprocess is never interrupted mid-write; a cancel
	// request takes effect right after it finishes.
	muxCtx := context.WithoutCancel(ctx)
	if err := p.comp.Mux(muxCtx, visualPath, audioPath, outputPath); err != nil {
		return nil, compositionError("final mux: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := p.describeOutput(ctx, script, outputPath)
	if err != nil {
		return nil, err
	}

	log.Printf("[Pipeline] Job %s rendered %q (%.1fs, %.1f MB)", jobID, result.Title, result.Duration, result.SizeMB)
	return result, nil
}

// resolveTimings probes downloaded video clips and reconciles every
// scene's visual with its narration duration.
func (p *Pipeline) resolveTimings(ctx context.Context, scenes []models.Scene) ([]RenderSpec, error) {
	sourceDurations := make(map[int]float64)
	for i, scene := range scenes {
		if scene.Kind != models.SceneKindVideo {
			continue
		}
		d, err := p.comp.ProbeDuration(ctx, scene.AssetPath)
		if err != nil {
			return nil, compositionError("scene %d source probe: %w", scene.Number, err)
		}
		sourceDurations[i] = d
	}

	specs, err := ResolveScript(scenes, sourceDurations, p.cfg)
	if err != nil {
		return nil, compositionError("timing resolution: %w", err)
	}
	return specs, nil
}

// composeVisualTrack renders each scene to a segment and joins them.
// With transitions on, every non-final segment carries the crossfade
// overlap in its RenderDuration so the overlap is absorbed and the
// timeline length stays the sum of the resolved durations.
func (p *Pipeline) composeVisualTrack(ctx context.Context, specs []RenderSpec, workDir string) (string, error) {
	segmentPaths := make([]string, len(specs))
	segmentDurations := make([]float64, len(specs))

	for i, spec := range specs {
		renderDur := spec.RenderDuration

		segPath := filepath.Join(workDir, fmt.Sprintf("segment_%d.mp4", i))

		var err error
		switch spec.Kind {
		case models.SceneKindImage:
			err = p.comp.RenderImageSegment(ctx, spec.VisualPath, segPath, renderDur, i)
		case models.SceneKindVideo:
			err = p.comp.RenderVideoSegment(ctx, spec.VisualPath, segPath, renderDur, spec.SpeedFactor, spec.Loops)
		case models.SceneKindText:
			err = p.comp.RenderTextSegment(ctx, spec.Text, segPath, renderDur)
		default:
			err = fmt.Errorf("unknown segment kind %q", spec.Kind)
		}
		if err != nil {
			return "", compositionError("segment %d: %w", i, err)
		}

		segmentPaths[i] = segPath
		segmentDurations[i] = renderDur
	}

	visualPath := filepath.Join(workDir, "visual_track.mp4")
	if p.cfg.TransitionsEnabled && len(specs) > 1 {
		if err := p.comp.ConcatWithTransitions(ctx, segmentPaths, segmentDurations, visualPath); err != nil {
			return "", compositionError("transition concat: %w", err)
		}
	} else {
		if err := p.comp.ConcatSegments(ctx, segmentPaths, visualPath); err != nil {
			return "", compositionError("concat: %w", err)
		}
	}

	return visualPath, nil
}

// composeAudioTrack concatenates narration in scene order, with
// silence standing in for text scenes, then mixes background music
// under it.
func (p *Pipeline) composeAudioTrack(ctx context.Context, specs []RenderSpec, workDir string) (string, error) {
	entries := make([]services.VoiceEntry, len(specs))
	for i, spec := range specs {
		entries[i] = services.VoiceEntry{AudioPath: spec.AudioPath, Duration: spec.Duration}
	}

	voicePath := filepath.Join(workDir, "voice_track.m4a")
	if err := p.comp.BuildVoiceTrack(ctx, entries, voicePath); err != nil {
		return "", compositionError("voice track: %w", err)
	}

	audioPath := filepath.Join(workDir, "audio_track.m4a")
	if err := p.comp.MixWithDucking(ctx, voicePath, p.musicPath, audioPath); err != nil {
		return "", compositionError("music mix: %w", err)
	}

	return audioPath, nil
}

// describeOutput measures the finished file and packages the result.
func (p *Pipeline) describeOutput(ctx context.Context, script *models.Script, outputPath string) (*Result, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, compositionError("output missing: %w", err)
	}

	// Best effort; a probe failure should not discard a finished render.
	duration, err := p.comp.ProbeDuration(context.WithoutCancel(ctx), outputPath)
	if err != nil {
		log.Printf("[Pipeline] Output duration probe failed: %v", err)
		duration = 0
	}

	scriptJSON, err := json.Marshal(script)
	if err != nil {
		return nil, compositionError("script marshal: %w", err)
	}

	return &Result{
		Title:      script.Title,
		OutputPath: outputPath,
		Duration:   duration,
		SizeMB:     float64(info.Size()) / (1024 * 1024),
		ScriptJSON: string(scriptJSON),
	}, nil
}
