package cleanup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Service removes working files left behind by generation jobs. Each
// job keeps its intermediate assets in tempDir/<jobID>; finished
// renders live in outputDir as <jobID>.mp4.
type Service struct {
	tempDir   string
	outputDir string
}

func New(tempDir, outputDir string) *Service {
	return &Service{tempDir: tempDir, outputDir: outputDir}
}

// CleanupJob removes a job's temp directory. Runs on every terminal
// path; errors are logged, never fatal.
func (s *Service) CleanupJob(jobID string) {
	dir := filepath.Join(s.tempDir, jobID)

	size := dirSize(dir)
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("[Cleanup] Failed to remove %s: %v", dir, err)
		return
	}
	if size > 0 {
		log.Printf("[Cleanup] Removed temp assets for job %s (%.2f MB)", jobID, float64(size)/(1024*1024))
	}
}

// RemoveOutput discards a job's rendered file. Used on failure and
// cancellation so partial or unwanted outputs never accumulate.
func (s *Service) RemoveOutput(jobID string) {
	path := filepath.Join(s.outputDir, fmt.Sprintf("%s.mp4", jobID))

	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Cleanup] Failed to remove output %s: %v", path, err)
		}
		return
	}
	log.Printf("[Cleanup] Removed output %s", path)
}

// SweepOld removes temp assets older than maxAge. Output videos are
// never touched. Returns the number of entries removed.
func (s *Service) SweepOld(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Cleanup] Failed to read %s: %v", s.tempDir, err)
		}
		return 0
	}

	for _, entry := range entries {
		path := filepath.Join(s.tempDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Printf("[Cleanup] Failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("[Cleanup] Swept %d stale temp entries older than %v", removed, maxAge)
	}
	return removed
}

// Stats describes current disk usage of the working directories.
type Stats struct {
	TempFiles   int     `json:"temp_files"`
	TempMB      float64 `json:"temp_mb"`
	OutputFiles int     `json:"output_files"`
	OutputMB    float64 `json:"output_mb"`
}

// GetStats walks both directories and totals file counts and sizes.
func (s *Service) GetStats() Stats {
	tempFiles, tempBytes := walkStats(s.tempDir)
	outFiles, outBytes := walkStats(s.outputDir)

	return Stats{
		TempFiles:   tempFiles,
		TempMB:      float64(tempBytes) / (1024 * 1024),
		OutputFiles: outFiles,
		OutputMB:    float64(outBytes) / (1024 * 1024),
	}
}

func walkStats(root string) (int, int64) {
	count := 0
	var total int64

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		count++
		total += info.Size()
		return nil
	})

	return count, total
}

func dirSize(root string) int64 {
	_, total := walkStats(root)
	return total
}
