package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnTrace is a per-turn trace record: the committed decision, its
// resolution trace, and the IDs of every event emitted while producing it.
// Persisted as jsonb columns via pgx's native []byte support rather than a
// generated schema, so callers decode with the same blackboard types used
// in-process.
type TurnTrace struct {
	ID              uuid.UUID
	DialogID        string
	TurnNumber      int
	Decision        json.RawMessage // encoded blackboard.ResolvedDecision
	ResolutionTrace json.RawMessage
	EventIDs        []string
	CommittedAt     time.Time
}

// SaveTurnTrace persists one turn's trace record. Side-effect application
// happens in-process before this call; this is a write-behind record for
// audit/replay/debugging, not part of the per-turn commit path.
func (db *DB) SaveTurnTrace(ctx context.Context, t TurnTrace) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	eventIDs, err := json.Marshal(t.EventIDs)
	if err != nil {
		return fmt.Errorf("storage: marshal event ids: %w", err)
	}

	return WithRetry(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := db.pool.Exec(ctx, `
			INSERT INTO turn_traces (id, dialog_id, turn_number, decision, resolution_trace, event_ids, committed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.DialogID, t.TurnNumber, []byte(t.Decision), []byte(t.ResolutionTrace), eventIDs, t.CommittedAt)
		return execErr
	})
}

// LoadTurnTraces returns the most recent turn traces for a dialog, newest first.
func (db *DB) LoadTurnTraces(ctx context.Context, dialogID string, limit int) ([]TurnTrace, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, dialog_id, turn_number, decision, resolution_trace, event_ids, committed_at
		FROM turn_traces
		WHERE dialog_id = $1
		ORDER BY turn_number DESC
		LIMIT $2
	`, dialogID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: load turn traces: %w", err)
	}
	defer rows.Close()

	var out []TurnTrace
	for rows.Next() {
		var (
			t        TurnTrace
			eventIDs []byte
		)
		if err := rows.Scan(&t.ID, &t.DialogID, &t.TurnNumber, &t.Decision, &t.ResolutionTrace, &eventIDs, &t.CommittedAt); err != nil {
			return nil, fmt.Errorf("storage: scan turn trace: %w", err)
		}
		if err := json.Unmarshal(eventIDs, &t.EventIDs); err != nil {
			return nil, fmt.Errorf("storage: unmarshal event ids: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
