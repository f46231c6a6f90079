package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wordclip/wordclip/internal/logger"
)

// ErrDuplicateKey is returned by Insert when an analysis already exists
// for the fingerprint.
var ErrDuplicateKey = errors.New("analysis already exists for fingerprint")

// Store persists completed analyses. The result body is immutable;
// access_count and last_accessed_at advance monotonically.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates an analysis store backed by PostgreSQL.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("analysis-store")}
}

// FindByFingerprint returns the record for a fingerprint, or nil.
func (s *Store) FindByFingerprint(ctx context.Context, fp string) (*Record, error) {
	var r Record
	var contextBefore, contextAfter, difficultyNotes sql.NullString
	var breakdownJSON, idiomsJSON, chunkLogJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, sentence, target_word, target_language, native_language,
		       context_before, context_after,
		       full_translation, literal_translation, grammar_analysis,
		       breakdown, idioms, difficulty_notes, chunk_log,
		       access_count, created_at, last_accessed_at
		FROM analyses
		WHERE fingerprint = $1
	`, fp).Scan(
		&r.Fingerprint,
		&r.Request.Sentence, &r.Request.TargetWord,
		&r.Request.TargetLanguage, &r.Request.NativeLanguage,
		&contextBefore, &contextAfter,
		&r.Result.FullTranslation, &r.Result.LiteralTranslation, &r.Result.GrammarAnalysis,
		&breakdownJSON, &idiomsJSON, &difficultyNotes, &chunkLogJSON,
		&r.AccessCount, &r.CreatedAt, &r.LastAccessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	r.Request.ContextBefore = contextBefore.String
	r.Request.ContextAfter = contextAfter.String
	r.Result.DifficultyNotes = difficultyNotes.String

	if err := json.Unmarshal(breakdownJSON, &r.Result.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	if err := json.Unmarshal(idiomsJSON, &r.Result.Idioms); err != nil {
		return nil, fmt.Errorf("failed to decode idioms: %w", err)
	}
	if len(chunkLogJSON) > 0 {
		if err := json.Unmarshal(chunkLogJSON, &r.ChunkLog); err != nil {
			return nil, fmt.Errorf("failed to decode chunk log: %w", err)
		}
	}

	return &r, nil
}

// Insert stores a new analysis with an initial access count of 1.
func (s *Store) Insert(ctx context.Context, r Record) error {
	breakdownJSON, err := json.Marshal(r.Result.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	idiomsJSON, err := json.Marshal(r.Result.Idioms)
	if err != nil {
		return fmt.Errorf("failed to encode idioms: %w", err)
	}

	var chunkLogJSON any
	if len(r.ChunkLog) > 0 {
		b, err := json.Marshal(r.ChunkLog)
		if err != nil {
			return fmt.Errorf("failed to encode chunk log: %w", err)
		}
		chunkLogJSON = b
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (
			fingerprint, sentence, target_word, target_language, native_language,
			context_before, context_after,
			full_translation, literal_translation, grammar_analysis,
			breakdown, idioms, difficulty_notes, chunk_log
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, NULLIF($13, ''), $14)
	`,
		r.Fingerprint,
		r.Request.Sentence, r.Request.TargetWord,
		r.Request.TargetLanguage, r.Request.NativeLanguage,
		r.Request.ContextBefore, r.Request.ContextAfter,
		r.Result.FullTranslation, r.Result.LiteralTranslation, r.Result.GrammarAnalysis,
		breakdownJSON, idiomsJSON, r.Result.DifficultyNotes, chunkLogJSON,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// IncrementAccess bumps the access counter and freshness stamp,
// returning the updated count.
func (s *Store) IncrementAccess(ctx context.Context, fp string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE analyses
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE fingerprint = $1
		RETURNING access_count
	`, fp).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment access count: %w", err)
	}
	return count, nil
}
