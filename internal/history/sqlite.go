package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generations (
	metadata_id     TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	interaction_id  TEXT NOT NULL,
	task_id         TEXT NOT NULL,
	provider        TEXT NOT NULL,
	prompt_id       TEXT NOT NULL,
	action_type     TEXT NOT NULL,
	content_kind    TEXT NOT NULL,
	urls_json       TEXT NOT NULL,
	content_ids_json TEXT NOT NULL,
	params_json     TEXT,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS generations_session ON generations (session_id, interaction_id, content_kind, created_at);
`

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a store at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history: sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	urls, ids, params, err := encodeJSON(r)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generations
		(metadata_id, session_id, interaction_id, task_id, provider, prompt_id, action_type, content_kind,
		 urls_json, content_ids_json, params_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (metadata_id) DO NOTHING
	`, r.MetadataID, r.SessionID, r.InteractionID, r.TaskID, r.Provider, r.PromptID, r.ActionType, r.ContentKind,
		urls, ids, params, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metadata_id, session_id, interaction_id, task_id, provider, prompt_id, action_type, content_kind,
		       urls_json, content_ids_json, params_json, created_at
		FROM generations
		WHERE session_id = ?
		  AND (? = '' OR interaction_id = ?)
		  AND (? = '' OR content_kind = ?)
		ORDER BY created_at, rowid
	`, q.SessionID, q.InteractionID, q.InteractionID, q.ContentKind, q.ContentKind)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			urls, ids string
			params    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&r.MetadataID, &r.SessionID, &r.InteractionID, &r.TaskID, &r.Provider, &r.PromptID,
			&r.ActionType, &r.ContentKind, &urls, &ids, &params, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if err := decodeJSON(&r, urls, ids, params.String); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func encodeJSON(r Record) (urls, ids string, params *string, err error) {
	u, err := json.Marshal(nonNil(r.URLs))
	if err != nil {
		return "", "", nil, fmt.Errorf("history: encode urls: %w", err)
	}
	c, err := json.Marshal(nonNil(r.ContentIDs))
	if err != nil {
		return "", "", nil, fmt.Errorf("history: encode content ids: %w", err)
	}
	if r.RequestParams != nil {
		p, err := json.Marshal(r.RequestParams)
		if err != nil {
			return "", "", nil, fmt.Errorf("history: encode params: %w", err)
		}
		s := string(p)
		params = &s
	}
	return string(u), string(c), params, nil
}

func decodeJSON(r *Record, urls, ids, params string) error {
	if err := json.Unmarshal([]byte(urls), &r.URLs); err != nil {
		return fmt.Errorf("history: decode urls: %w", err)
	}
	if err := json.Unmarshal([]byte(ids), &r.ContentIDs); err != nil {
		return fmt.Errorf("history: decode content ids: %w", err)
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &r.RequestParams); err != nil {
			return fmt.Errorf("history: decode params: %w", err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
