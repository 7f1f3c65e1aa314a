package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reelcraft/reelcraft/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, status, progress, progress_message)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Status, job.Progress, job.ProgressMessage,
	).Scan(&job.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT
			id, status, progress, progress_message, error_message,
			video_id, created_at, started_at, completed_at
		FROM jobs
		WHERE id = $1
	`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Status, &job.Progress, &job.ProgressMessage,
		&job.ErrorMessage, &job.VideoID, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// UpdateJobStatus transitions a job. Moving into processing stamps
// started_at; moving into a terminal status stamps completed_at.
func (db *DB) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	now := time.Now()
	query := `UPDATE jobs SET status = $1 WHERE id = $2`
	args := []interface{}{status, id}

	switch {
	case status == models.JobStatusProcessing:
		query = `UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	case status.Terminal():
		query = `UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}

	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (db *DB) UpdateJobProgress(ctx context.Context, id string, progress int, message string) error {
	query := `UPDATE jobs SET progress = $1, progress_message = $2 WHERE id = $3`

	_, err := db.ExecContext(ctx, query, progress, message, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (db *DB) UpdateJobError(ctx context.Context, id string, status models.JobStatus, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, status, errorMessage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job error: %w", err)
	}
	return nil
}

func (db *DB) SetJobVideo(ctx context.Context, id string, videoID int64) error {
	query := `UPDATE jobs SET video_id = $1 WHERE id = $2`

	_, err := db.ExecContext(ctx, query, videoID, id)
	if err != nil {
		return fmt.Errorf("failed to set job video: %w", err)
	}
	return nil
}

func (db *DB) ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, error) {
	query := `
		SELECT
			id, status, progress, progress_message, error_message,
			video_id, created_at, started_at, completed_at
		FROM jobs
	`
	args := []interface{}{}

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		err := rows.Scan(
			&job.ID, &job.Status, &job.Progress, &job.ProgressMessage,
			&job.ErrorMessage, &job.VideoID, &job.CreatedAt,
			&job.StartedAt, &job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (db *DB) CountJobs(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM jobs`
	args := []interface{}{}

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}
