package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

// FlowConfigView adapts a loaded FlowConfigDoc to ports.FlowConfig. A
// separate type is needed because FlowConfigDoc's exported fields (States,
// Constants) already occupy the names the interface's methods would need.
type FlowConfigView struct {
	Doc FlowConfigDoc
}

var _ ports.FlowConfig = FlowConfigView{}

func (v FlowConfigView) States() map[string]ports.StateConfig { return v.Doc.States }

func (v FlowConfigView) StateConfig(state string) (ports.StateConfig, bool) {
	sc, ok := v.Doc.States[state]
	return sc, ok
}

func (v FlowConfigView) Priorities() []ports.PriorityDefinition { return v.Doc.Priority }

func (v FlowConfigView) Constants() map[string]any { return v.Doc.Constants }

func (v FlowConfigView) PhaseForState(state string) (string, bool) {
	p, ok := v.Doc.Phases[state]
	return p, ok
}

func (v FlowConfigView) IsPhaseState(state string) bool {
	_, ok := v.Doc.Phases[state]
	return ok
}

func (v FlowConfigView) StateOnEnterFlags(state string) map[string]any {
	sc, ok := v.Doc.States[state]
	if !ok || sc.Parameters == nil {
		return nil
	}
	flags, _ := sc.Parameters["on_enter_flags"].(map[string]any)
	return flags
}

func (v FlowConfigView) IntentCategory(category string) []string { return v.Doc.Categories[category] }

func (v FlowConfigView) EntryPoint(name string) (string, bool) {
	s, ok := v.Doc.Entries[name]
	return s, ok
}

// ImportBatchConcurrency bounds how many FlowConfigDoc upserts (or corpus
// embedding upserts, via the caller's own errgroup) run at once during
// startup import, mirroring the teacher's errgroup.WithContext + SetLimit
// backfill pattern.
const ImportBatchConcurrency = 8

// ImportFlowConfigs upserts a batch of flow configuration documents
// concurrently, bounded by ImportBatchConcurrency. The first error cancels
// the remaining imports and is returned; already-committed upserts are not
// rolled back.
func (db *DB) ImportFlowConfigs(ctx context.Context, docs []FlowConfigDoc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ImportBatchConcurrency)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := db.UpsertFlowConfig(gctx, doc); err != nil {
				return fmt.Errorf("storage: import flow config %s/%s: %w", doc.TenantID, doc.FlowName, err)
			}
			return nil
		})
	}

	return g.Wait()
}
