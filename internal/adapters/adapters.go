// Package adapters exports normalized tables to downstream targets.
// Every adapter degrades to a skipped or error result instead of
// failing the parse that produced the table.
package adapters

import (
	"context"

	"github.com/ignite/table-engine/internal/normalize"
)

// Artifact describes one file an adapter produced.
type Artifact struct {
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Result is the outcome of one adapter run.
type Result struct {
	Adapter   string         `json:"adapter"`
	Status    string         `json:"status"`
	Mode      string         `json:"mode,omitempty"`
	Table     string         `json:"table,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Notes     []string       `json:"notes,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Export carries everything an adapter may need from a finished parse.
type Export struct {
	ClientID  string
	Filename  string
	SheetName string
	Rows      []map[string]any
	Schema    normalize.Schema
	Notes     []string
	Source    any
	Envelope  any

	// rule-provided export hints
	PrimaryKey string
	SheetsMode string
	Table      string
}

// Registry holds the configured adapters. A nil entry means the
// adapter is disabled.
type Registry struct {
	JSON      *JSONAdapter
	Sheets    *SheetsAdapter
	Warehouse *WarehouseAdapter
}

// Run dispatches the export to the adapter named by tag. The tags
// "" and "none" run nothing.
func (r *Registry) Run(ctx context.Context, tag string, exp *Export) []Result {
	switch tag {
	case "", "none":
		return nil
	case "json":
		if r.JSON == nil {
			return []Result{{Adapter: "json", Status: StatusSkipped, Reason: "disabled"}}
		}
		return r.JSON.Export(exp)
	case "sheets":
		if r.Sheets == nil {
			return []Result{{Adapter: "sheets", Status: StatusSkipped, Reason: "disabled"}}
		}
		return []Result{r.Sheets.Export(exp)}
	case "warehouse":
		if r.Warehouse == nil {
			return []Result{{Adapter: "warehouse", Status: StatusSkipped, Reason: "disabled"}}
		}
		return []Result{r.Warehouse.Export(ctx, exp)}
	default:
		return []Result{{Adapter: tag, Status: StatusSkipped, Reason: "unknown_adapter"}}
	}
}
