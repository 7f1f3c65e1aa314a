package services

import "context"

// ---------------------------------------------------------------------------
// TTSService — common interface for text-to-speech providers
// Both Gemini and ElevenLabs implement this interface so the pipeline
// can use whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData []byte
	Format    string // "wav", "mp3"
}

// TTSService is the interface that any TTS provider must implement.
// Duration is not reported here; callers measure the written file with
// ffprobe, which is exact where provider estimates are not.
type TTSService interface {
	GenerateSpeech(ctx context.Context, text string) (*TTSResponse, error)
}
