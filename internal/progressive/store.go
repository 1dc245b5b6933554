// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package progressive persists incomplete endpoint matches across
// conversation turns, keyed by (conversation_id, endpoint_id).
package progressive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/tombee/semroute/internal/metrics"
	"github.com/tombee/semroute/pkg/catalog"
)

// opSpan opens the trace span every public store operation runs under.
func opSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer("semroute/progressive").Start(ctx, "progressive."+op)
}

// Store persists ongoing matches in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Config contains store configuration.
type Config struct {
	// Path is the database file path. The special value ":memory:"
	// creates an in-memory store (single connection, test use).
	Path string

	// MaxOpenConns limits the connection pool. Default: 10.
	MaxOpenConns int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DatabaseURL resolves the store location. DATABASE_URL wins (sqlx-style
// "sqlite:" schemes are stripped); otherwise DB_PATH names a directory,
// created if needed, that will contain conversations.db.
func DatabaseURL() (string, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		url = strings.TrimPrefix(url, "sqlite://")
		url = strings.TrimPrefix(url, "sqlite:")
		return url, nil
	}

	dir := os.Getenv("DB_PATH")
	if dir == "" {
		return "", errors.New("DB_PATH environment variable must be set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	return filepath.Join(dir, "conversations.db"), nil
}

// Open opens (creating if needed) the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode allows concurrent readers alongside the writer.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 10
	}
	// An in-memory database is private to its connection; pooling more
	// than one would hand each caller a different empty store.
	if cfg.Path == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ongoing_matches (
			conversation_id TEXT NOT NULL,
			endpoint_id TEXT NOT NULL,
			parameters TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (conversation_id, endpoint_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ongoing_matches_conversation
			ON ongoing_matches(conversation_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update merges newParams into the row for the pair and upserts it.
// Names already present have their value overwritten; new names append.
// created_at survives updates; updated_at is set to now (UTC RFC 3339).
func (s *Store) Update(ctx context.Context, conversationID, endpointID string, newParams []ParameterValue) error {
	ctx, span := opSpan(ctx, "update")
	defer span.End()

	err := s.update(ctx, conversationID, endpointID, newParams)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordProgressiveOp("update", "error")
		return err
	}
	metrics.RecordProgressiveOp("update", "success")
	return nil
}

func (s *Store) update(ctx context.Context, conversationID, endpointID string, newParams []ParameterValue) error {
	existing, err := s.get(ctx, conversationID, endpointID)
	if err != nil {
		return err
	}

	var all []ParameterValue
	if existing != nil {
		all, err = existing.MatchedParameters()
		if err != nil {
			return err
		}
	}

	for _, p := range newParams {
		merged := false
		for i := range all {
			if all[i].Name == p.Name {
				all[i].Value = p.Value
				merged = true
				break
			}
		}
		if !merged {
			all = append(all, p)
		}
	}

	encoded, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT OR REPLACE INTO ongoing_matches
		(conversation_id, endpoint_id, parameters, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE((SELECT created_at FROM ongoing_matches WHERE conversation_id = ? AND endpoint_id = ?), ?), ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		conversationID, endpointID, string(encoded),
		conversationID, endpointID, now, now,
	); err != nil {
		return fmt.Errorf("failed to upsert ongoing match: %w", err)
	}

	s.logger.Info("updated progressive match",
		"conversation_id", conversationID,
		"endpoint_id", endpointID,
		"parameter_count", len(all),
	)
	return nil
}

// Get returns the row for the pair, or nil when absent.
func (s *Store) Get(ctx context.Context, conversationID, endpointID string) (*OngoingMatch, error) {
	ctx, span := opSpan(ctx, "get")
	defer span.End()

	m, err := s.get(ctx, conversationID, endpointID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordProgressiveOp("get", "error")
		return nil, err
	}
	metrics.RecordProgressiveOp("get", "success")
	return m, nil
}

func (s *Store) get(ctx context.Context, conversationID, endpointID string) (*OngoingMatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, endpoint_id, parameters, created_at, updated_at
		FROM ongoing_matches
		WHERE conversation_id = ? AND endpoint_id = ?
	`, conversationID, endpointID)

	var m OngoingMatch
	err := row.Scan(&m.ConversationID, &m.EndpointID, &m.Parameters, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ongoing match: %w", err)
	}
	return &m, nil
}

// GetIncomplete returns an open match for the conversation when one
// exists. At most one per conversation is expected; the most recently
// updated row wins if there are several.
func (s *Store) GetIncomplete(ctx context.Context, conversationID string) (*OngoingMatch, error) {
	ctx, span := opSpan(ctx, "get_incomplete")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, endpoint_id, parameters, created_at, updated_at
		FROM ongoing_matches
		WHERE conversation_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, conversationID)

	var m OngoingMatch
	err := row.Scan(&m.ConversationID, &m.EndpointID, &m.Parameters, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordProgressiveOp("get_incomplete", "success")
		return nil, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordProgressiveOp("get_incomplete", "error")
		return nil, fmt.Errorf("failed to read ongoing match: %w", err)
	}

	metrics.RecordProgressiveOp("get_incomplete", "success")
	return &m, nil
}

// Complete removes the row once the endpoint request is fully specified.
func (s *Store) Complete(ctx context.Context, conversationID, endpointID string) error {
	ctx, span := opSpan(ctx, "complete")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM ongoing_matches
		WHERE conversation_id = ? AND endpoint_id = ?
	`, conversationID, endpointID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordProgressiveOp("complete", "error")
		return fmt.Errorf("failed to delete ongoing match: %w", err)
	}

	metrics.RecordProgressiveOp("complete", "success")
	s.logger.Info("completed progressive match",
		"conversation_id", conversationID,
		"endpoint_id", endpointID,
	)
	return nil
}

// CheckCompletion evaluates how much of the required parameter set the
// stored match covers. Alternatives count in both directions: a stored
// name listed in the required parameter's alternatives satisfies it, as
// does the required name listed in the stored parameter's alternatives.
func (s *Store) CheckCompletion(ctx context.Context, conversationID, endpointID string, requiredNames []string, endpointParams []catalog.Parameter) (*MatchResult, error) {
	ctx, span := opSpan(ctx, "check_completion")
	defer span.End()

	m, err := s.get(ctx, conversationID, endpointID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordProgressiveOp("check_completion", "error")
		return nil, err
	}

	matched := []ParameterValue{}
	if m != nil {
		matched, err = m.MatchedParameters()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordProgressiveOp("check_completion", "error")
			return nil, err
		}
	}

	missing := []string{}
	satisfiedCount := 0
	for _, required := range requiredNames {
		if satisfied(required, matched, endpointParams) {
			satisfiedCount++
		} else {
			missing = append(missing, required)
		}
	}

	percentage := 100.0
	if len(requiredNames) > 0 {
		percentage = float64(satisfiedCount) / float64(len(requiredNames)) * 100
	}
	complete := len(missing) == 0

	metrics.RecordProgressiveOp("check_completion", "success")
	return &MatchResult{
		ConversationID:       conversationID,
		EndpointID:           endpointID,
		EndpointDescription:  fmt.Sprintf("Endpoint %s", endpointID),
		MatchedParameters:    matched,
		MissingParameters:    missing,
		IsComplete:           complete,
		CompletionPercentage: percentage,
		ReadyForExecution:    complete,
	}, nil
}
