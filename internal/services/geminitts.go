package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Text-to-Speech Service
// Uses the Gemini API speech models. The API returns raw PCM frames
// (16-bit little-endian, 24 kHz, mono), which are wrapped in a WAV
// container here so ffmpeg can consume the result directly.
// ---------------------------------------------------------------------------

const (
	geminiPCMSampleRate = 24000
	geminiPCMChannels   = 1
	geminiPCMSampleBits = 16
)

type GeminiTTSService struct {
	client *genai.Client
	model  string
	voice  string
}

// Ensure GeminiTTSService implements TTSService at compile time.
var _ TTSService = (*GeminiTTSService)(nil)

func NewGeminiTTSService(apiKey, model, voice string) (*GeminiTTSService, error) {
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	if voice == "" {
		voice = "Kore"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiTTSService{client: client, model: model, voice: voice}, nil
}

// GenerateSpeech converts text to WAV audio via the Gemini speech API.
func (s *GeminiTTSService) GenerateSpeech(ctx context.Context, text string) (*TTSResponse, error) {
	log.Printf("[GeminiTTS] Generating speech (model=%s, voice=%s, textLen=%d)",
		s.model, s.voice, len(text))

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(text),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
						VoiceName: s.voice,
					},
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("gemini tts request failed: %w", err)
	}

	pcm := extractInlineAudio(resp)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("gemini tts returned no audio data")
	}

	wav := wrapPCMInWAV(pcm, geminiPCMSampleRate, geminiPCMChannels, geminiPCMSampleBits)

	log.Printf("[GeminiTTS] Speech generated (%d PCM bytes)", len(pcm))

	return &TTSResponse{
		AudioData: wav,
		Format:    "wav",
	}, nil
}

func extractInlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}

// wrapPCMInWAV frames raw PCM samples with a canonical 44-byte RIFF
// header.
func wrapPCMInWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
