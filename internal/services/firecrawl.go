package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Firecrawl Article Extraction Service
// Scrapes a web page and returns its readable content as markdown,
// which is what the script generator consumes.
// ---------------------------------------------------------------------------

const firecrawlBaseURL = "https://api.firecrawl.dev"

type FirecrawlService struct {
	apiKey string
	client *http.Client
}

func NewFirecrawlService(apiKey string) *FirecrawlService {
	return &FirecrawlService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type firecrawlScrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlScrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// ScrapeMarkdown fetches the page at url and returns it as markdown.
func (s *FirecrawlService) ScrapeMarkdown(ctx context.Context, url string) (string, error) {
	reqBody := firecrawlScrapeRequest{
		URL:     url,
		Formats: []string{"markdown"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Firecrawl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		firecrawlBaseURL+"/v2/scrape", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create Firecrawl request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	log.Printf("[Firecrawl] Scraping %s", url)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Firecrawl request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Firecrawl returned status %d: %s", resp.StatusCode, string(body))
	}

	var scrape firecrawlScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&scrape); err != nil {
		return "", fmt.Errorf("failed to decode Firecrawl response: %w", err)
	}

	if !scrape.Success {
		return "", fmt.Errorf("Firecrawl scrape failed: %s", scrape.Error)
	}

	if scrape.Data.Markdown == "" {
		return "", fmt.Errorf("Firecrawl returned empty markdown for %s", url)
	}

	log.Printf("[Firecrawl] Scraped %d bytes of markdown", len(scrape.Data.Markdown))

	return scrape.Data.Markdown, nil
}
