package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Store is the subset of DB's persistence operations App depends on. DB
// (Postgres) and SQLiteStore both satisfy it, so App can run against either
// backend without knowing which one it was built with.
type Store interface {
	UpsertFlowConfig(ctx context.Context, doc FlowConfigDoc) error
	LoadFlowConfig(ctx context.Context, tenantID, flowName string) (FlowConfigDoc, error)
	WatchFlowConfig(ctx context.Context, tenantID, flowName string) (<-chan FlowConfigDoc, error)
	SaveTurnTrace(ctx context.Context, t TurnTrace) error
	LoadTurnTraces(ctx context.Context, dialogID string, limit int) ([]TurnTrace, error)
	Close(ctx context.Context)
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// SQLiteStore is the standalone, no-Postgres alternative to DB: the same
// flow-config and turn-trace persistence backed by a single embedded sqlite
// file, for tests and single-tenant deploys that don't want to run
// Postgres. It has no LISTEN/NOTIFY equivalent, so WatchFlowConfig polls on
// pollInterval instead of blocking on a notification channel.
type SQLiteStore struct {
	db           *sql.DB
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewSQLiteStore opens (creating if necessary) a sqlite database at path and
// ensures its schema exists. pollInterval governs how often WatchFlowConfig
// re-checks for a new version; values <= 0 default to 5 seconds.
func NewSQLiteStore(ctx context.Context, path string, pollInterval time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes; avoid SQLITE_BUSY under concurrent access

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: sqlite schema: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &SQLiteStore{db: db, logger: logger, pollInterval: pollInterval}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flow_configs (
	tenant_id  TEXT NOT NULL,
	flow_name  TEXT NOT NULL,
	version    INTEGER NOT NULL,
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (tenant_id, flow_name, version)
);

CREATE TABLE IF NOT EXISTS turn_traces (
	id               TEXT PRIMARY KEY,
	dialog_id        TEXT NOT NULL,
	turn_number      INTEGER NOT NULL,
	decision         TEXT NOT NULL,
	resolution_trace TEXT NOT NULL,
	event_ids        TEXT NOT NULL,
	committed_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS turn_traces_dialog_id_idx ON turn_traces (dialog_id, turn_number DESC);
`

// Close closes the underlying sqlite connection.
func (s *SQLiteStore) Close(ctx context.Context) {
	if err := s.db.Close(); err != nil && s.logger != nil {
		s.logger.Error("sqlite close failed", "error", err)
	}
}

// UpsertFlowConfig stores a new version of a flow's configuration document.
func (s *SQLiteStore) UpsertFlowConfig(ctx context.Context, doc FlowConfigDoc) error {
	row := flowConfigRow{
		States:     doc.States,
		Priority:   doc.Priority,
		Constants:  doc.Constants,
		Phases:     doc.Phases,
		Entries:    doc.Entries,
		Categories: doc.Categories,
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("storage: marshal flow config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_configs (tenant_id, flow_name, version, document, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, flow_name, version)
		DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, doc.TenantID, doc.FlowName, doc.Version, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage: upsert flow config: %w", err)
	}
	return nil
}

// LoadFlowConfig loads the highest-version document for (tenantID, flowName).
func (s *SQLiteStore) LoadFlowConfig(ctx context.Context, tenantID, flowName string) (FlowConfigDoc, error) {
	var (
		version      int
		payload      string
		updatedAtRaw string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, document, updated_at
		FROM flow_configs
		WHERE tenant_id = ? AND flow_name = ?
		ORDER BY version DESC
		LIMIT 1
	`, tenantID, flowName).Scan(&version, &payload, &updatedAtRaw)
	if err != nil {
		return FlowConfigDoc{}, fmt.Errorf("storage: load flow config: %w", err)
	}

	var row flowConfigRow
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		return FlowConfigDoc{}, fmt.Errorf("storage: unmarshal flow config: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtRaw)
	if err != nil {
		return FlowConfigDoc{}, fmt.Errorf("storage: parse flow config updated_at: %w", err)
	}

	return FlowConfigDoc{
		TenantID:   tenantID,
		FlowName:   flowName,
		Version:    version,
		States:     row.States,
		Priority:   row.Priority,
		Constants:  row.Constants,
		Phases:     row.Phases,
		Entries:    row.Entries,
		Categories: row.Categories,
		UpdatedAt:  updatedAt,
	}, nil
}

// WatchFlowConfig polls for changes to (tenantID, flowName) every
// pollInterval, pushing a freshly loaded FlowConfigDoc whenever its version
// advances. The returned channel closes when ctx is cancelled.
func (s *SQLiteStore) WatchFlowConfig(ctx context.Context, tenantID, flowName string) (<-chan FlowConfigDoc, error) {
	out := make(chan FlowConfigDoc, 1)
	go func() {
		defer close(out)
		lastVersion := -1
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				doc, err := s.LoadFlowConfig(ctx, tenantID, flowName)
				if err != nil {
					continue
				}
				if doc.Version == lastVersion {
					continue
				}
				lastVersion = doc.Version
				select {
				case out <- doc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// SaveTurnTrace persists one turn's trace record.
func (s *SQLiteStore) SaveTurnTrace(ctx context.Context, t TurnTrace) error {
	eventIDs, err := json.Marshal(t.EventIDs)
	if err != nil {
		return fmt.Errorf("storage: marshal event ids: %w", err)
	}
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	committedAt := t.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turn_traces (id, dialog_id, turn_number, decision, resolution_trace, event_ids, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), t.DialogID, t.TurnNumber, string(t.Decision), string(t.ResolutionTrace), string(eventIDs), committedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage: save turn trace: %w", err)
	}
	return nil
}

// LoadTurnTraces loads the most recent turn traces for a dialog, newest first.
func (s *SQLiteStore) LoadTurnTraces(ctx context.Context, dialogID string, limit int) ([]TurnTrace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dialog_id, turn_number, decision, resolution_trace, event_ids, committed_at
		FROM turn_traces
		WHERE dialog_id = ?
		ORDER BY turn_number DESC
		LIMIT ?
	`, dialogID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: load turn traces: %w", err)
	}
	defer rows.Close()

	var out []TurnTrace
	for rows.Next() {
		var (
			idRaw, decision, resolutionTrace, eventIDsRaw, committedAtRaw string
			t                                                             TurnTrace
		)
		if err := rows.Scan(&idRaw, &t.DialogID, &t.TurnNumber, &decision, &resolutionTrace, &eventIDsRaw, &committedAtRaw); err != nil {
			return nil, fmt.Errorf("storage: scan turn trace: %w", err)
		}
		id, err := uuid.Parse(idRaw)
		if err != nil {
			return nil, fmt.Errorf("storage: parse turn trace id: %w", err)
		}
		committedAt, err := time.Parse(time.RFC3339Nano, committedAtRaw)
		if err != nil {
			return nil, fmt.Errorf("storage: parse turn trace committed_at: %w", err)
		}
		if err := json.Unmarshal([]byte(eventIDsRaw), &t.EventIDs); err != nil {
			return nil, fmt.Errorf("storage: unmarshal event ids: %w", err)
		}
		t.ID = id
		t.Decision = json.RawMessage(decision)
		t.ResolutionTrace = json.RawMessage(resolutionTrace)
		t.CommittedAt = committedAt
		out = append(out, t)
	}
	return out, rows.Err()
}
