package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (optional, progress snapshot cache)
	RedisURL            string
	ProgressSnapshotTTL int // seconds a job's last progress event stays in Redis

	// Firecrawl (article extraction)
	FirecrawlKey string

	// OpenAI (script generation + asset selection)
	OpenAIKey string

	// Gemini (preferred TTS provider)
	GeminiKey      string
	GeminiTTSModel string
	GeminiVoice    string

	// ElevenLabs (alternative TTS provider — used when Gemini key is not set)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Pexels (stock media search)
	PexelsKey string

	// Object storage (optional; local-only when unset)
	StorageURL    string
	StorageKey    string
	StorageBucket string

	// Paths
	TempDir             string
	OutputDir           string
	BackgroundMusicPath string // empty = no background music track
	RenderConfigPath    string

	// Render tunables loaded from RenderConfigPath
	Render RenderConfig
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		BackendAPIKey:       getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		ProgressSnapshotTTL: getEnvInt("PROGRESS_SNAPSHOT_TTL", 3600),
		FirecrawlKey:        getEnv("FIRECRAWL_API_KEY", ""),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		GeminiKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiTTSModel:      getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiVoice:         getEnv("GEMINI_TTS_VOICE", "Kore"),
		ElevenLabsKey:       getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:   getEnv("ELEVENLABS_VOICE_ID", ""),
		PexelsKey:           getEnv("PEXELS_API_KEY", ""),
		StorageURL:          getEnv("STORAGE_URL", ""),
		StorageKey:          getEnv("STORAGE_API_KEY", ""),
		StorageBucket:       getEnv("STORAGE_BUCKET", "reelcraft-videos"),
		TempDir:             getEnv("TEMP_DIR", "temp_assets"),
		OutputDir:           getEnv("OUTPUT_DIR", "output_videos"),
		BackgroundMusicPath: getEnv("BACKGROUND_MUSIC_PATH", ""),
		RenderConfigPath:    getEnv("RENDER_CONFIG_PATH", "render.yaml"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.FirecrawlKey == "" {
		return nil, fmt.Errorf("FIRECRAWL_API_KEY is required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.PexelsKey == "" {
		return nil, fmt.Errorf("PEXELS_API_KEY is required")
	}

	// At least one TTS provider must be configured
	if cfg.GeminiKey == "" && cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("either GEMINI_API_KEY or ELEVENLABS_API_KEY is required for TTS")
	}

	render, err := LoadRenderConfig(cfg.RenderConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load render config: %w", err)
	}
	cfg.Render = *render

	return cfg, nil
}

// RenderConfig holds the compositor tunables. Values come from a yaml
// file so render behavior can change without a rebuild; every field
// has a compiled-in default and a missing file is not an error.
type RenderConfig struct {
	FPS    int `yaml:"fps"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	NarrationConcurrency int64 `yaml:"narration_concurrency"`
	AssetCandidates      int   `yaml:"asset_candidates"`

	TransitionsEnabled bool     `yaml:"transitions_enabled"`
	TransitionSeconds  float64  `yaml:"transition_seconds"`
	TransitionCycle    []string `yaml:"transition_cycle"`

	TextSceneSeconds float64 `yaml:"text_scene_seconds"`

	// Sources wider than target aspect ratio by this factor get the
	// blurred-background treatment instead of a plain scale-crop.
	AspectTrigger float64 `yaml:"aspect_trigger"`

	VoiceVolume float64 `yaml:"voice_volume"`
	MusicVolume float64 `yaml:"music_volume"`

	Ducking DuckingConfig `yaml:"ducking"`
}

// DuckingConfig parameterizes the sidechaincompress filter that dips
// background music under narration.
type DuckingConfig struct {
	Threshold float64 `yaml:"threshold"`
	Ratio     float64 `yaml:"ratio"`
	AttackMs  float64 `yaml:"attack_ms"`
	ReleaseMs float64 `yaml:"release_ms"`
}

func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		FPS:                  25,
		Width:                720,
		Height:               1280,
		NarrationConcurrency: 3,
		AssetCandidates:      5,
		TransitionsEnabled:   true,
		TransitionSeconds:    0.3,
		TransitionCycle: []string{
			"fade", "wipeleft", "wiperight", "slideleft", "slideright", "fadeblack",
		},
		TextSceneSeconds: 4.0,
		AspectTrigger:    1.2,
		VoiceVolume:      2.0,
		MusicVolume:      0.2,
		Ducking: DuckingConfig{
			Threshold: 0.03,
			Ratio:     8,
			AttackMs:  20,
			ReleaseMs: 300,
		},
	}
}

// LoadRenderConfig reads tunables from path, overlaying them onto the
// defaults. A missing file returns the defaults unchanged.
func LoadRenderConfig(path string) (*RenderConfig, error) {
	cfg := DefaultRenderConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.FPS <= 0 || cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("fps, width, and height must be positive")
	}
	if cfg.NarrationConcurrency < 1 {
		return nil, fmt.Errorf("narration_concurrency must be at least 1")
	}
	if cfg.AssetCandidates < 1 {
		return nil, fmt.Errorf("asset_candidates must be at least 1")
	}
	if cfg.TransitionSeconds <= 0 {
		return nil, fmt.Errorf("transition_seconds must be positive")
	}
	if len(cfg.TransitionCycle) == 0 {
		return nil, fmt.Errorf("transition_cycle must not be empty")
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
