package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reelcraft/reelcraft/internal/models"
)

type ScriptService struct {
	client *openai.Client
}

func NewScriptService(apiKey string) *ScriptService {
	return &ScriptService{
		client: openai.NewClient(apiKey),
	}
}

const scriptSystemPrompt = `You are an expert short-form video scriptwriter and visual content strategist. Your task is to adapt a given article into a compelling, fast-paced video script for a platform like Instagram Reels or TikTok.

Convert the article into a single valid JSON object with this exact structure:
{
  "title": "A Catchy Title for the Reel",
  "scenes": [
    {
      "scene_number": 1,
      "script": "Voiceover text for this scene.",
      "asset_keywords": ["keyword1", "keyword2", "keyword3"],
      "asset_type": "image/video",
      "scene_type": "media"
    }
  ]
}

Constraints:
- The total script length must be suitable for a 30 to 60-second video. Generate 7-15 scenes.
- The script content should be engaging, concise, and easy to understand.
- asset_keywords are used to search stock media, so describe concrete, searchable visuals, never abstract concepts. "rising stock market graph" is good; "success" is bad. Combine descriptive terms, include colors and shot types when they matter.
- asset_type is "image", "video", or "image/video".
- scene_type "media" is the default. scene_type "text" is a text-only scene showing a short punchy key point (1-5 words) on a solid background; use sparingly (1-2 per video), omit asset_keywords and asset_type, and put ONLY the display text in script.
- Output the JSON object only, with no surrounding text or code fences.`

// GenerateScript turns article markdown into a scene script.
func (s *ScriptService) GenerateScript(ctx context.Context, markdown string) (*models.Script, error) {
	userPrompt := fmt.Sprintf("Create a video script from this article:\n\n%s", markdown)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scriptSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	script, err := models.ParseScript([]byte(rawContent))
	if err != nil {
		log.Printf("[ScriptGen] parse failed: %v", err)
		log.Printf("[ScriptGen] raw response: %s", truncateString(rawContent, 2000))
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	if script.Title == "" {
		return nil, fmt.Errorf("script has no title")
	}
	if len(script.Scenes) == 0 {
		return nil, fmt.Errorf("script has no scenes")
	}
	for i, scene := range script.Scenes {
		if scene.Narration == "" {
			return nil, fmt.Errorf("scene %d has empty script", i+1)
		}
		if scene.Kind != models.SceneKindText && len(scene.Keywords) == 0 {
			return nil, fmt.Errorf("scene %d has no asset keywords", i+1)
		}
	}

	log.Printf("[ScriptGen] Script generated: %q, %d scenes", script.Title, len(script.Scenes))

	return script, nil
}

// AssetCandidate describes one search result offered to the selector.
type AssetCandidate struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
}

type assetChoice struct {
	Index int `json:"index"`
}

// SelectAsset asks the model which candidate best illustrates the
// narration and returns its index. Callers fall back to index 0 when
// this returns an error.
func (s *ScriptService) SelectAsset(ctx context.Context, narration string, candidates []AssetCandidate) (int, error) {
	if len(candidates) == 0 {
		return 0, fmt.Errorf("no candidates to select from")
	}

	var sb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&sb, "%d: %s\n", c.Index, c.Description)
	}

	userPrompt := fmt.Sprintf(
		"Narration for the scene:\n%q\n\nCandidate stock assets:\n%s\nPick the candidate that best illustrates the narration. Respond with JSON: {\"index\": <number>}",
		narration, sb.String())

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a video editor choosing b-roll. Answer with the requested JSON only.",
			},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("no response from openai")
	}

	var choice assetChoice
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &choice); err != nil {
		return 0, fmt.Errorf("failed to parse selection: %w", err)
	}

	if choice.Index < 0 || choice.Index >= len(candidates) {
		return 0, fmt.Errorf("selection index %d out of range [0,%d)", choice.Index, len(candidates))
	}

	return choice.Index, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
