package wordindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/segment"
)

// Entry is one reverse-index row: a word and every clip it occurs in,
// in insertion order.
type Entry struct {
	Word      string        `json:"word"`
	Examples  []segment.Ref `json:"examples"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Stats summarizes the index.
type Stats struct {
	TotalWords    int64 `json:"totalWords"`
	TotalMappings int64 `json:"totalMappings"`
}

// Store is the word → clips reverse index. Idempotence of example
// insertion is enforced here, inside a transaction, not by a store-level
// uniqueness constraint.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates a word index backed by PostgreSQL.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("word-index")}
}

// AddSegmentToWords upserts every word with the segment reference,
// appending it only when no existing example shares (videoId, start,
// end). The whole batch runs in one transaction with row locks; the
// transaction is retried on serialization failures.
func (s *Store) AddSegmentToWords(ctx context.Context, words []string, ref segment.Ref) error {
	if len(words) == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.addInTx(ctx, words, ref)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		s.logger.Warn("word index transaction conflict, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
	return err
}

func (s *Store) addInTx(ctx context.Context, words []string, ref segment.Ref) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin word index transaction: %w", err)
	}
	defer tx.Rollback()

	for _, word := range words {
		var examplesJSON []byte
		err := tx.QueryRowContext(ctx,
			`SELECT examples FROM word_index WHERE word = $1 FOR UPDATE`, word,
		).Scan(&examplesJSON)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			newExamples, err := json.Marshal([]segment.Ref{ref})
			if err != nil {
				return fmt.Errorf("failed to encode examples: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO word_index (word, examples) VALUES ($1, $2)`,
				word, newExamples); err != nil {
				return fmt.Errorf("failed to insert word %q: %w", word, err)
			}

		case err != nil:
			return fmt.Errorf("failed to lock word %q: %w", word, err)

		default:
			var examples []segment.Ref
			if err := json.Unmarshal(examplesJSON, &examples); err != nil {
				return fmt.Errorf("failed to decode examples for %q: %w", word, err)
			}

			if containsRef(examples, ref) {
				continue
			}

			examples = append(examples, ref)
			updated, err := json.Marshal(examples)
			if err != nil {
				return fmt.Errorf("failed to encode examples: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE word_index SET examples = $2, updated_at = NOW() WHERE word = $1`,
				word, updated); err != nil {
				return fmt.Errorf("failed to update word %q: %w", word, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit word index transaction: %w", err)
	}
	return nil
}

// containsRef reports whether a reference with the same
// (videoId, start, end) already exists.
func containsRef(examples []segment.Ref, ref segment.Ref) bool {
	for _, e := range examples {
		if e.VideoID == ref.VideoID && e.StartTime == ref.StartTime && e.EndTime == ref.EndTime {
			return true
		}
	}
	return false
}

func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "could not serialize") || strings.Contains(msg, "deadlock detected")
}

// FindByWord returns the entry for a word, or nil. Examples come back in
// insertion order.
func (s *Store) FindByWord(ctx context.Context, word string) (*Entry, error) {
	var e Entry
	var examplesJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT word, examples, created_at, updated_at FROM word_index WHERE word = $1`,
		strings.ToLower(word),
	).Scan(&e.Word, &examplesJSON, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query word %q: %w", word, err)
	}

	if err := json.Unmarshal(examplesJSON, &e.Examples); err != nil {
		return nil, fmt.Errorf("failed to decode examples for %q: %w", word, err)
	}
	return &e, nil
}

// ListWords returns an alphabetical page of indexed words.
func (s *Store) ListWords(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM word_index ORDER BY word ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating words: %w", err)
	}
	return words, nil
}

// GetStats returns index-wide totals.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(jsonb_array_length(examples)), 0)
		FROM word_index
	`).Scan(&st.TotalWords, &st.TotalMappings)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query index stats: %w", err)
	}
	return st, nil
}
