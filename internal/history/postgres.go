package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS genui_generations (
	id              BIGSERIAL PRIMARY KEY,
	metadata_id     TEXT NOT NULL UNIQUE,
	session_id      TEXT NOT NULL,
	interaction_id  TEXT NOT NULL,
	task_id         TEXT NOT NULL,
	provider        TEXT NOT NULL,
	prompt_id       TEXT NOT NULL,
	action_type     TEXT NOT NULL,
	content_kind    TEXT NOT NULL,
	urls            JSONB NOT NULL,
	content_ids     JSONB NOT NULL,
	request_params  JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS genui_generations_session
	ON genui_generations (session_id, interaction_id, content_kind, created_at);
`

// PostgresStore keeps history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("history: postgres dsn required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO genui_generations
		(metadata_id, session_id, interaction_id, task_id, provider, prompt_id, action_type, content_kind,
		 urls, content_ids, request_params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (metadata_id) DO NOTHING
	`, r.MetadataID, r.SessionID, r.InteractionID, r.TaskID, r.Provider, r.PromptID, r.ActionType, r.ContentKind,
		nonNil(r.URLs), nonNil(r.ContentIDs), r.RequestParams, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT metadata_id, session_id, interaction_id, task_id, provider, prompt_id, action_type, content_kind,
		       urls, content_ids, request_params, created_at
		FROM genui_generations
		WHERE session_id = $1
		  AND ($2 = '' OR interaction_id = $2)
		  AND ($3 = '' OR content_kind = $3)
		ORDER BY created_at, id
	`, q.SessionID, q.InteractionID, q.ContentKind)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.MetadataID, &r.SessionID, &r.InteractionID, &r.TaskID, &r.Provider, &r.PromptID,
			&r.ActionType, &r.ContentKind, &r.URLs, &r.ContentIDs, &r.RequestParams, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
