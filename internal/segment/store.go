package segment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wordclip/wordclip/internal/logger"
)

// Store persists completed segments keyed by fingerprint. Records are
// durable and never evicted.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates a segment store backed by PostgreSQL.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("segment-store")}
}

// FindByFingerprint returns the segment for a fingerprint, or nil when
// none exists.
func (s *Store) FindByFingerprint(ctx context.Context, fp string) (*Segment, error) {
	query := `
		SELECT fingerprint, query, video_id, start_time, end_time, caption, captions, created_at
		FROM segments
		WHERE fingerprint = $1
	`

	var seg Segment
	var captionsJSON []byte
	err := s.db.QueryRowContext(ctx, query, fp).Scan(
		&seg.Fingerprint, &seg.Query, &seg.VideoID,
		&seg.StartTime, &seg.EndTime, &seg.Caption,
		&captionsJSON, &seg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query segment: %w", err)
	}

	if err := json.Unmarshal(captionsJSON, &seg.Captions); err != nil {
		return nil, fmt.Errorf("failed to decode segment captions: %w", err)
	}

	return &seg, nil
}

// Insert stores a new segment. Returns ErrDuplicateKey when a segment
// already exists for the fingerprint.
func (s *Store) Insert(ctx context.Context, seg Segment) error {
	captionsJSON, err := json.Marshal(seg.Captions)
	if err != nil {
		return fmt.Errorf("failed to encode segment captions: %w", err)
	}
	if seg.Captions == nil {
		captionsJSON = []byte("[]")
	}

	query := `
		INSERT INTO segments (fingerprint, query, video_id, start_time, end_time, caption, captions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		seg.Fingerprint, seg.Query, seg.VideoID,
		seg.StartTime, seg.EndTime, seg.Caption, captionsJSON,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateKey
		}
		s.logger.Error("failed to insert segment",
			slog.String("fingerprint", seg.Fingerprint),
			slog.String("video_id", seg.VideoID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert segment: %w", err)
	}

	s.logger.Debug("segment inserted",
		slog.String("fingerprint", seg.Fingerprint),
		slog.String("video_id", seg.VideoID))

	return nil
}

// isDuplicateKey detects unique-constraint violations without depending
// on driver-specific error types.
func isDuplicateKey(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "unique constraint"))
}
