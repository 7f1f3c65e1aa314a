package pipeline

import (
	"fmt"
	"math"

	"github.com/reelcraft/reelcraft/internal/config"
	"github.com/reelcraft/reelcraft/internal/models"
)

// Playback speed bounds. Warping beyond these makes footage look
// obviously wrong, so the remainder is covered by looping or trimming.
const (
	minSpeedFactor = 0.5
	maxSpeedFactor = 2.0
)

// RenderSpec is the per-scene render plan handed to the compositor.
// Exactly one of VisualPath or Text is set, matching Kind.
type RenderSpec struct {
	Kind       models.SceneKind
	VisualPath string
	Text       string
	AudioPath  string

	// Duration is the segment's place on the timeline, equal to the
	// narration length (or the fixed text-scene length).
	Duration float64

	// RenderDuration is the length the segment is actually rendered
	// at: Duration plus the crossfade overlap for non-final segments,
	// so the transition consumes the extension instead of the scene.
	RenderDuration float64

	// SpeedFactor and Loops only apply to video scenes. SpeedFactor
	// warps playback; Loops repeats the warped clip from the start
	// when it still falls short. Loops and tail-trimming are mutually
	// exclusive by construction. Both are planned against
	// RenderDuration so the warped stream always reaches the trim
	// point.
	SpeedFactor float64
	Loops       int
}

// ResolveTiming reconciles a scene's visual with its narration
// duration. sourceDuration is the probed length of the downloaded
// clip; it is ignored for image and text scenes. overlap is the extra
// footage the segment must carry past its slot for the outgoing
// crossfade; zero for final segments and when transitions are off.
func ResolveTiming(scene models.Scene, sourceDuration, overlap float64, cfg config.RenderConfig) (RenderSpec, error) {
	switch scene.Kind {
	case models.SceneKindText:
		return RenderSpec{
			Kind:           models.SceneKindText,
			Text:           scene.Narration,
			Duration:       cfg.TextSceneSeconds,
			RenderDuration: cfg.TextSceneSeconds + overlap,
		}, nil

	case models.SceneKindImage:
		if scene.Duration <= 0 {
			return RenderSpec{}, fmt.Errorf("scene %d has no narration duration", scene.Number)
		}
		return RenderSpec{
			Kind:           models.SceneKindImage,
			VisualPath:     scene.AssetPath,
			AudioPath:      scene.AudioPath,
			Duration:       scene.Duration,
			RenderDuration: scene.Duration + overlap,
		}, nil

	case models.SceneKindVideo:
		if scene.Duration <= 0 {
			return RenderSpec{}, fmt.Errorf("scene %d has no narration duration", scene.Number)
		}
		if sourceDuration <= 0 {
			return RenderSpec{}, fmt.Errorf("scene %d has no source duration", scene.Number)
		}

		// The warp must produce footage for the whole rendered length,
		// overlap included, or the output trim has nothing to cut to.
		renderDur := scene.Duration + overlap
		factor := clamp(renderDur/sourceDuration, minSpeedFactor, maxSpeedFactor)
		warped := sourceDuration * factor

		loops := 0
		if warped < renderDur {
			// Clip is still too short at maximum stretch: repeat the
			// warped clip from the start until it covers the segment.
			loops = int(math.Ceil(renderDur/warped)) - 1
		}
		// When warped > renderDur the compositor's output trim cuts
		// the tail; no extra bookkeeping needed here.

		return RenderSpec{
			Kind:           models.SceneKindVideo,
			VisualPath:     scene.AssetPath,
			AudioPath:      scene.AudioPath,
			Duration:       scene.Duration,
			RenderDuration: renderDur,
			SpeedFactor:    factor,
			Loops:          loops,
		}, nil
	}

	return RenderSpec{}, fmt.Errorf("scene %d has unknown kind %q", scene.Number, scene.Kind)
}

// ResolveScript resolves every scene in order. Non-final scenes get
// the crossfade overlap added to their render plan when transitions
// are enabled.
func ResolveScript(scenes []models.Scene, sourceDurations map[int]float64, cfg config.RenderConfig) ([]RenderSpec, error) {
	specs := make([]RenderSpec, 0, len(scenes))
	for i, scene := range scenes {
		overlap := 0.0
		if cfg.TransitionsEnabled && i < len(scenes)-1 {
			overlap = cfg.TransitionSeconds
		}

		spec, err := ResolveTiming(scene, sourceDurations[i], overlap, cfg)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// TotalDuration is the length of the final timeline: the sum of every
// resolved scene duration. Transition overlap never shortens it.
func TotalDuration(specs []RenderSpec) float64 {
	total := 0.0
	for _, s := range specs {
		total += s.Duration
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
