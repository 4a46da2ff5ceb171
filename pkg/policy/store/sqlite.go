package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kagehq/echos-sub001/pkg/chaos"
)

// sqliteSchema holds the role assignment table. Rule lists and chaos config
// are stored as JSON columns; the flat record shape does not justify
// normalized tables.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS role_assignments (
    agent_id    TEXT PRIMARY KEY,
    template_id TEXT NOT NULL,
    allow_rules TEXT NOT NULL,
    ask_rules   TEXT NOT NULL,
    block_rules TEXT NOT NULL,
    limits      TEXT,
    chaos       TEXT,
    applied_at  TIMESTAMP NOT NULL
);
`

// SQLiteStore persists role assignments in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if necessary) a SQLite role store at the
// given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Operation: "open", Message: "failed to open " + path, Cause: err}
	}

	// One writer at a time keeps SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &StoreError{Backend: "sqlite", Operation: "open", Message: "failed to create schema", Cause: err}
	}

	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces the record for its agent.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	allow, err := json.Marshal(rec.Allow)
	if err != nil {
		return &StoreError{Backend: "sqlite", Operation: "save", Message: "failed to encode allow rules", Cause: err}
	}
	ask, err := json.Marshal(rec.Ask)
	if err != nil {
		return &StoreError{Backend: "sqlite", Operation: "save", Message: "failed to encode ask rules", Cause: err}
	}
	block, err := json.Marshal(rec.Block)
	if err != nil {
		return &StoreError{Backend: "sqlite", Operation: "save", Message: "failed to encode block rules", Cause: err}
	}

	var limits, chaosCfg []byte
	if rec.Limits != nil {
		if limits, err = json.Marshal(rec.Limits); err != nil {
			return &StoreError{Backend: "sqlite", Operation: "save", Message: "failed to encode limits", Cause: err}
		}
	}
	if rec.Chaos != nil {
		if chaosCfg, err = json.Marshal(rec.Chaos); err != nil {
			return &StoreError{Backend: "sqlite", Operation: "save", Message: "failed to encode chaos config", Cause: err}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO role_assignments
			(agent_id, template_id, allow_rules, ask_rules, block_rules, limits, chaos, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			template_id = excluded.template_id,
			allow_rules = excluded.allow_rules,
			ask_rules   = excluded.ask_rules,
			block_rules = excluded.block_rules,
			limits      = excluded.limits,
			chaos       = excluded.chaos,
			applied_at  = excluded.applied_at`,
		rec.AgentID, rec.TemplateID, string(allow), string(ask), string(block),
		nullableText(limits), nullableText(chaosCfg), rec.AppliedAt.UTC(),
	)
	if err != nil {
		return &StoreError{Backend: "sqlite", Operation: "save", Message: "failed to upsert " + rec.AgentID, Cause: err}
	}

	return nil
}

// Load returns all persisted records ordered by agent id.
func (s *SQLiteStore) Load(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, template_id, allow_rules, ask_rules, block_rules, limits, chaos, applied_at
		FROM role_assignments ORDER BY agent_id`)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "query failed", Cause: err}
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			rec              Record
			allow, ask, blk  string
			limits, chaosCfg sql.NullString
			appliedAt        time.Time
		)

		if err := rows.Scan(&rec.AgentID, &rec.TemplateID, &allow, &ask, &blk, &limits, &chaosCfg, &appliedAt); err != nil {
			return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "scan failed", Cause: err}
		}

		if err := json.Unmarshal([]byte(allow), &rec.Allow); err != nil {
			return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "failed to decode allow rules for " + rec.AgentID, Cause: err}
		}
		if err := json.Unmarshal([]byte(ask), &rec.Ask); err != nil {
			return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "failed to decode ask rules for " + rec.AgentID, Cause: err}
		}
		if err := json.Unmarshal([]byte(blk), &rec.Block); err != nil {
			return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "failed to decode block rules for " + rec.AgentID, Cause: err}
		}
		if limits.Valid && limits.String != "" {
			if err := json.Unmarshal([]byte(limits.String), &rec.Limits); err != nil {
				return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "failed to decode limits for " + rec.AgentID, Cause: err}
			}
		}
		if chaosCfg.Valid && chaosCfg.String != "" {
			rec.Chaos = &chaos.Config{}
			if err := json.Unmarshal([]byte(chaosCfg.String), rec.Chaos); err != nil {
				return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "failed to decode chaos config for " + rec.AgentID, Cause: err}
			}
		}
		rec.AppliedAt = appliedAt

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, &StoreError{Backend: "sqlite", Operation: "load", Message: "row iteration failed", Cause: err}
	}

	return records, nil
}

// Delete removes the record for an agent.
func (s *SQLiteStore) Delete(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_assignments WHERE agent_id = ?`, agentID); err != nil {
		return &StoreError{Backend: "sqlite", Operation: "delete", Message: "failed to delete " + agentID, Cause: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullableText maps empty JSON to NULL.
func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
