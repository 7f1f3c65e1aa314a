package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reelcraft/reelcraft/internal/models"
)

func (db *DB) CreateVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (
			title, source_url, file_path, storage_location,
			duration, size_mb, script_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	return db.QueryRowContext(
		ctx, query,
		video.Title, video.SourceURL, video.FilePath, video.StorageLocation,
		video.Duration, video.SizeMB, video.ScriptJSON,
	).Scan(&video.ID, &video.CreatedAt)
}

func (db *DB) GetVideo(ctx context.Context, id int64) (*models.Video, error) {
	query := `
		SELECT
			id, title, source_url, file_path, storage_location,
			duration, size_mb, script_json, created_at
		FROM videos
		WHERE id = $1
	`

	video := &models.Video{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&video.ID, &video.Title, &video.SourceURL, &video.FilePath,
		&video.StorageLocation, &video.Duration, &video.SizeMB,
		&video.ScriptJSON, &video.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return video, nil
}

// FindVideoBySourceURL returns the most recent video generated from
// the given source URL, or nil when none exists. Used for the
// cache-hit fast path on job creation.
func (db *DB) FindVideoBySourceURL(ctx context.Context, sourceURL string) (*models.Video, error) {
	query := `
		SELECT
			id, title, source_url, file_path, storage_location,
			duration, size_mb, script_json, created_at
		FROM videos
		WHERE source_url = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	video := &models.Video{}
	err := db.QueryRowContext(ctx, query, sourceURL).Scan(
		&video.ID, &video.Title, &video.SourceURL, &video.FilePath,
		&video.StorageLocation, &video.Duration, &video.SizeMB,
		&video.ScriptJSON, &video.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find video by source url: %w", err)
	}

	return video, nil
}

func (db *DB) ListVideos(ctx context.Context, limit, offset int) ([]models.Video, error) {
	query := `
		SELECT
			id, title, source_url, file_path, storage_location,
			duration, size_mb, script_json, created_at
		FROM videos
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var video models.Video
		err := rows.Scan(
			&video.ID, &video.Title, &video.SourceURL, &video.FilePath,
			&video.StorageLocation, &video.Duration, &video.SizeMB,
			&video.ScriptJSON, &video.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	return videos, nil
}

func (db *DB) CountVideos(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}

// UpdateVideoCloudLocation records a successful upload: the file path
// becomes the public URL and the storage location flips to cloud.
func (db *DB) UpdateVideoCloudLocation(ctx context.Context, id int64, publicURL string) error {
	query := `UPDATE videos SET file_path = $1, storage_location = $2 WHERE id = $3`

	_, err := db.ExecContext(ctx, query, publicURL, models.StorageCloud, id)
	if err != nil {
		return fmt.Errorf("failed to update video location: %w", err)
	}
	return nil
}

func (db *DB) DeleteVideo(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("video not found")
	}

	return nil
}
