package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Pexels Stock Media Service
// Searches the Pexels photo and video APIs and downloads the chosen
// asset file. Search returns ranked candidates so a selector can pick
// the best match for a scene.
// ---------------------------------------------------------------------------

const (
	pexelsBaseURL     = "https://api.pexels.com"
	pexelsOrientation = "portrait"

	pexelsMaxRetries = 3
	pexelsBaseDelay  = 1 * time.Second
	pexelsMaxDelay   = 15 * time.Second
)

type PexelsService struct {
	apiKey string
	client *http.Client
}

func NewPexelsService(apiKey string) *PexelsService {
	return &PexelsService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// PexelsPhoto is one photo search result.
type PexelsPhoto struct {
	ID  int64  `json:"id"`
	Alt string `json:"alt"`
	Src struct {
		Original string `json:"original"`
		Large2x  string `json:"large2x"`
	} `json:"src"`
}

// PexelsVideo is one video search result.
type PexelsVideo struct {
	ID       int64   `json:"id"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Files    []struct {
		Quality string `json:"quality"`
		Link    string `json:"link"`
	} `json:"video_files"`
}

type pexelsPhotoResponse struct {
	Photos []PexelsPhoto `json:"photos"`
}

type pexelsVideoResponse struct {
	Videos []PexelsVideo `json:"videos"`
}

// SearchPhotos returns up to perPage portrait photos for the query.
func (s *PexelsService) SearchPhotos(ctx context.Context, query string, perPage int) ([]PexelsPhoto, error) {
	endpoint := fmt.Sprintf("%s/v1/search?query=%s&orientation=%s&per_page=%d",
		pexelsBaseURL, url.QueryEscape(query), pexelsOrientation, perPage)

	var result pexelsPhotoResponse
	if err := s.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("pexels photo search failed: %w", err)
	}

	log.Printf("[Pexels] Photo search %q: %d results", query, len(result.Photos))
	return result.Photos, nil
}

// SearchVideos returns up to perPage portrait videos for the query.
func (s *PexelsService) SearchVideos(ctx context.Context, query string, perPage int) ([]PexelsVideo, error) {
	endpoint := fmt.Sprintf("%s/videos/search?query=%s&orientation=%s&per_page=%d",
		pexelsBaseURL, url.QueryEscape(query), pexelsOrientation, perPage)

	var result pexelsVideoResponse
	if err := s.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("pexels video search failed: %w", err)
	}

	log.Printf("[Pexels] Video search %q: %d results", query, len(result.Videos))
	return result.Videos, nil
}

// DownloadURL returns the file URL for a photo.
func (p PexelsPhoto) DownloadURL() string {
	if p.Src.Large2x != "" {
		return p.Src.Large2x
	}
	return p.Src.Original
}

// DownloadURL returns the best file URL for a video, preferring HD.
func (v PexelsVideo) DownloadURL() string {
	for _, f := range v.Files {
		if f.Quality == "hd" {
			return f.Link
		}
	}
	if len(v.Files) > 0 {
		return v.Files[0].Link
	}
	return ""
}

// Description summarizes a photo for the asset selector.
func (p PexelsPhoto) Description() string {
	if p.Alt != "" {
		return p.Alt
	}
	return fmt.Sprintf("photo %d (no description)", p.ID)
}

// Description summarizes a video for the asset selector. Pexels video
// results carry no alt text, so the page URL slug is the best signal.
func (v PexelsVideo) Description() string {
	slug := strings.Trim(strings.TrimPrefix(v.URL, "https://www.pexels.com/video/"), "/")
	slug = strings.ReplaceAll(slug, "-", " ")
	if slug == "" {
		return fmt.Sprintf("video %d, %.0fs", v.ID, v.Duration)
	}
	return fmt.Sprintf("%s (%.0fs)", slug, v.Duration)
}

// DownloadFile fetches fileURL to destPath with retries.
func (s *PexelsService) DownloadFile(ctx context.Context, fileURL, destPath string) error {
	if fileURL == "" {
		return fmt.Errorf("no download url")
	}

	var lastErr error
	for attempt := 0; attempt <= pexelsMaxRetries; attempt++ {
		if attempt > 0 {
			delay := pexelsRetryDelay(attempt)
			log.Printf("[Pexels] Download retry %d/%d (waiting %v)...", attempt, pexelsMaxRetries, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := s.downloadOnce(ctx, fileURL, destPath); err != nil {
			lastErr = err
			log.Printf("[Pexels] Download attempt %d failed: %v", attempt+1, err)
			continue
		}
		return nil
	}

	return fmt.Errorf("download failed after %d attempts: %w", pexelsMaxRetries+1, lastErr)
}

func (s *PexelsService) downloadOnce(ctx context.Context, fileURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}

	return out.Close()
}

func (s *PexelsService) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= pexelsMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("search cancelled: %w", ctx.Err())
			case <-time.After(pexelsRetryDelay(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			lastErr = fmt.Errorf("pexels returned status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("pexels returned status %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode pexels response: %w", err)
		}
		return nil
	}

	return lastErr
}

func pexelsRetryDelay(attempt int) time.Duration {
	delay := float64(pexelsBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(pexelsMaxDelay) {
		delay = float64(pexelsMaxDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}
