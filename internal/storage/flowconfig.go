package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

// FlowConfigDoc is the stored representation of a ports.FlowConfig: a
// versioned JSON document keyed by (tenantID, flowName, version), letting
// operators update priority definitions and state tables without
// redeploying a process that would otherwise load flow configuration once
// from a static file at startup.
type FlowConfigDoc struct {
	TenantID   string
	FlowName   string
	Version    int
	States     map[string]ports.StateConfig
	Priority   []ports.PriorityDefinition
	Constants  map[string]any
	Phases     map[string]string   // state -> phase
	Entries    map[string]string   // entry point name -> state
	Categories map[string][]string // intent category name -> member intents
	UpdatedAt  time.Time
}

// flowConfigRow is the JSON-serializable shape persisted in the jsonb column;
// FlowConfigDoc's StateConfig/PriorityDefinition are flattened here because
// the ports types have unexported zero-value defaults that round-trip fine
// through encoding/json without custom marshalers.
type flowConfigRow struct {
	States     map[string]ports.StateConfig `json:"states"`
	Priority   []ports.PriorityDefinition   `json:"priority"`
	Constants  map[string]any               `json:"constants"`
	Phases     map[string]string            `json:"phases"`
	Entries    map[string]string            `json:"entries"`
	Categories map[string][]string          `json:"categories"`
}

// UpsertFlowConfig stores a new version of a flow's configuration document
// and notifies listeners via ChannelFlowConfigUpdated.
func (db *DB) UpsertFlowConfig(ctx context.Context, doc FlowConfigDoc) error {
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

	err = WithRetry(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := db.pool.Exec(ctx, `
			INSERT INTO flow_configs (tenant_id, flow_name, version, document, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (tenant_id, flow_name, version)
			DO UPDATE SET document = EXCLUDED.document, updated_at = now()
		`, doc.TenantID, doc.FlowName, doc.Version, payload)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("storage: upsert flow config: %w", err)
	}

	notifyPayload, _ := json.Marshal(map[string]any{
		"tenant_id": doc.TenantID,
		"flow_name": doc.FlowName,
		"version":   doc.Version,
	})
	if err := db.Notify(ctx, ChannelFlowConfigUpdated, string(notifyPayload)); err != nil {
		db.logger.Warn("storage: flow config notify failed", "error", err)
	}
	return nil
}

// LoadFlowConfig loads the highest-version document for (tenantID, flowName).
func (db *DB) LoadFlowConfig(ctx context.Context, tenantID, flowName string) (FlowConfigDoc, error) {
	var (
		version   int
		payload   []byte
		updatedAt time.Time
	)
	err := db.pool.QueryRow(ctx, `
		SELECT version, document, updated_at
		FROM flow_configs
		WHERE tenant_id = $1 AND flow_name = $2
		ORDER BY version DESC
		LIMIT 1
	`, tenantID, flowName).Scan(&version, &payload, &updatedAt)
	if err != nil {
		return FlowConfigDoc{}, fmt.Errorf("storage: load flow config: %w", err)
	}

	var row flowConfigRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return FlowConfigDoc{}, fmt.Errorf("storage: unmarshal flow config: %w", err)
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

// WatchFlowConfig listens for flow_config_updated notifications scoped to
// (tenantID, flowName) and pushes a freshly loaded FlowConfigDoc on each
// change. The returned channel is closed when ctx is cancelled.
func (db *DB) WatchFlowConfig(ctx context.Context, tenantID, flowName string) (<-chan FlowConfigDoc, error) {
	if err := db.Listen(ctx, ChannelFlowConfigUpdated); err != nil {
		return nil, err
	}

	out := make(chan FlowConfigDoc, 1)
	go func() {
		defer close(out)
		for {
			channel, payload, err := db.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				db.logger.Warn("storage: flow config watch notification error", "error", err)
				continue
			}
			if channel != ChannelFlowConfigUpdated || payload == "" {
				continue
			}
			var evt struct {
				TenantID string `json:"tenant_id"`
				FlowName string `json:"flow_name"`
			}
			if err := json.Unmarshal([]byte(payload), &evt); err != nil {
				continue
			}
			if evt.TenantID != tenantID || evt.FlowName != flowName {
				continue
			}
			doc, err := db.LoadFlowConfig(ctx, tenantID, flowName)
			if err != nil {
				db.logger.Warn("storage: flow config reload failed", "error", err)
				continue
			}
			select {
			case out <- doc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
