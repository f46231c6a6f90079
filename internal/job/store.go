package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/segment"
)

// Store is the persistent job queue. Rows double as the queue (FIFO by
// creation time over status 'queued') and as the progress record clients
// poll.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates a job store backed by PostgreSQL.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("job-store")}
}

const jobColumns = `id, fingerprint, query, canonical, kind, status, current_video_id, result, error, created_at, updated_at`

func (s *Store) scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	var currentVideoID, jobError sql.NullString
	var resultJSON []byte

	err := row.Scan(&j.ID, &j.Fingerprint, &j.Query, &j.Canonical, &j.Kind,
		&j.Status, &currentVideoID, &resultJSON, &jobError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	j.CurrentVideoID = currentVideoID.String
	j.Error = jobError.String
	if len(resultJSON) > 0 {
		var seg segment.Segment
		if err := json.Unmarshal(resultJSON, &seg); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		j.Result = &seg
	}

	return &j, nil
}

// FindByFingerprint returns the job for a fingerprint, or nil.
func (s *Store) FindByFingerprint(ctx context.Context, fp string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM search_jobs WHERE fingerprint = $1`, fp)
	j, err := s.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job by fingerprint: %w", err)
	}
	return j, nil
}

// FindByID returns the job with the given id, or nil.
func (s *Store) FindByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM search_jobs WHERE id = $1`, id)
	j, err := s.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job by id: %w", err)
	}
	return j, nil
}

// Create enqueues a new job in status 'queued'. Returns ErrDuplicateKey
// when a job already exists for the fingerprint.
func (s *Store) Create(ctx context.Context, init Init) (*Job, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO search_jobs (id, fingerprint, query, canonical, kind, status)
		VALUES ($1, $2, $3, $4, $5, 'queued')
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query, id, init.Fingerprint, init.Query, init.Canonical, init.Kind)
	j, err := s.scanJob(row)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("job enqueued",
		slog.String("job_id", j.ID),
		slog.String("fingerprint", j.Fingerprint),
		slog.String("kind", string(j.Kind)))

	return j, nil
}

// SetStatus advances a job to a non-terminal phase. Terminal jobs are
// never regressed: the WHERE clause refuses to touch them.
func (s *Store) SetStatus(ctx context.Context, fp string, status Status, currentVideoID string) error {
	query := `
		UPDATE search_jobs
		SET status = $2, current_video_id = NULLIF($3, ''), updated_at = NOW()
		WHERE fingerprint = $1 AND status NOT IN ('completed', 'failed')
	`

	if _, err := s.db.ExecContext(ctx, query, fp, status, currentVideoID); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

// SetResult terminalizes a job as completed with its segment.
func (s *Store) SetResult(ctx context.Context, fp string, seg segment.Segment) error {
	resultJSON, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}

	query := `
		UPDATE search_jobs
		SET status = 'completed', result = $2, current_video_id = NULL, updated_at = NOW()
		WHERE fingerprint = $1 AND status NOT IN ('completed', 'failed')
	`

	if _, err := s.db.ExecContext(ctx, query, fp, resultJSON); err != nil {
		return fmt.Errorf("failed to set job result: %w", err)
	}

	s.logger.Info("job completed",
		slog.String("fingerprint", fp),
		slog.String("video_id", seg.VideoID))

	return nil
}

// SetError terminalizes a job as failed with a human-readable message.
func (s *Store) SetError(ctx context.Context, fp string, message string) error {
	query := `
		UPDATE search_jobs
		SET status = 'failed', error = $2, current_video_id = NULL, updated_at = NOW()
		WHERE fingerprint = $1 AND status NOT IN ('completed', 'failed')
	`

	if _, err := s.db.ExecContext(ctx, query, fp, message); err != nil {
		return fmt.Errorf("failed to set job error: %w", err)
	}

	s.logger.Info("job failed",
		slog.String("fingerprint", fp),
		slog.String("error", message))

	return nil
}

// ListQueued returns queued jobs in FIFO order by creation time.
func (s *Store) ListQueued(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM search_jobs WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued jobs: %w", err)
	}

	return jobs, nil
}
