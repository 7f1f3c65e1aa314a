package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRenderConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadRenderConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadRenderConfig: %v", err)
	}
	def := DefaultRenderConfig()
	if cfg.FPS != def.FPS || cfg.Width != def.Width || cfg.Height != def.Height {
		t.Errorf("got %d fps %dx%d, want defaults %d fps %dx%d",
			cfg.FPS, cfg.Width, cfg.Height, def.FPS, def.Width, def.Height)
	}
	if cfg.NarrationConcurrency != 3 {
		t.Errorf("NarrationConcurrency = %d, want 3", cfg.NarrationConcurrency)
	}
	if len(cfg.TransitionCycle) != 6 {
		t.Errorf("TransitionCycle = %v, want 6 entries", cfg.TransitionCycle)
	}
}

func TestLoadRenderConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	data := []byte("fps: 30\ntext_scene_seconds: 5.5\nducking:\n  ratio: 4\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRenderConfig(path)
	if err != nil {
		t.Fatalf("LoadRenderConfig: %v", err)
	}
	if cfg.FPS != 30 {
		t.Errorf("FPS = %d, want 30", cfg.FPS)
	}
	if cfg.TextSceneSeconds != 5.5 {
		t.Errorf("TextSceneSeconds = %v, want 5.5", cfg.TextSceneSeconds)
	}
	if cfg.Ducking.Ratio != 4 {
		t.Errorf("Ducking.Ratio = %v, want 4", cfg.Ducking.Ratio)
	}
	// untouched fields keep defaults
	if cfg.Width != 720 || cfg.Height != 1280 {
		t.Errorf("dimensions = %dx%d, want 720x1280", cfg.Width, cfg.Height)
	}
	if cfg.VoiceVolume != 2.0 {
		t.Errorf("VoiceVolume = %v, want 2.0", cfg.VoiceVolume)
	}
}

func TestLoadRenderConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero fps", "fps: 0\n"},
		{"negative width", "width: -1\n"},
		{"zero concurrency", "narration_concurrency: 0\n"},
		{"zero candidates", "asset_candidates: 0\n"},
		{"zero transition", "transition_seconds: 0\n"},
		{"empty cycle", "transition_cycle: []\n"},
		{"bad yaml", "fps: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "render.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadRenderConfig(path); err == nil {
				t.Errorf("expected error for %q", tt.yaml)
			}
		})
	}
}
