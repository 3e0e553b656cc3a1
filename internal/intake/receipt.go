// Package intake receives webhook deliveries, guards them with
// idempotency keys and signatures, and tracks every intake through a
// file-backed receipt store.
package intake

import (
	"strings"
	"time"

	"github.com/ignite/table-engine/internal/engine"
)

// Receipt is the durable record of one intake and its outcome.
type Receipt struct {
	IntakeID       string                `json:"intake_id"`
	ClientID       string                `json:"client_id"`
	PresetID       string                `json:"preset_id,omitempty"`
	IdempotencyKey string                `json:"idempotency_key"`
	Status         string                `json:"status"`
	Processing     bool                  `json:"processing"`
	Duplicate      bool                  `json:"duplicate"`
	Sync           bool                  `json:"sync"`
	ReceivedAt     time.Time             `json:"received_at"`
	Filename       string                `json:"filename,omitempty"`
	Notes          []string              `json:"notes"`
	Parse          *engine.ParseResponse `json:"parse,omitempty"`
	Artifacts      map[string]string     `json:"artifacts,omitempty"`
	ResultsURL     string                `json:"results_url,omitempty"`
}

// DeliverySummary is the index view of one receipt.
type DeliverySummary struct {
	IntakeID    string    `json:"intake_id"`
	ClientID    string    `json:"client_id"`
	PresetID    string    `json:"preset_id,omitempty"`
	Status      string    `json:"status"`
	Confidence  *float64  `json:"confidence,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	Filename    string    `json:"filename,omitempty"`
	RuleApplied string    `json:"rule_applied,omitempty"`
	Notes       []string  `json:"notes"`
}

func ruleFromNotes(notes []string) string {
	for _, note := range notes {
		if name, ok := strings.CutPrefix(note, "rule_applied="); ok {
			return name
		}
	}
	return ""
}
