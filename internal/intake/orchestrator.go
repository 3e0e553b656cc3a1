package intake

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/table-engine/internal/engine"
	"github.com/ignite/table-engine/internal/pkg/logger"
	"github.com/ignite/table-engine/internal/presets"
)

// Submission is one delivery handed to the orchestrator after the HTTP
// layer has authenticated it and resolved preset defaults.
type Submission struct {
	ClientID       string
	PresetID       string
	Filename       string
	FileBytes      []byte
	Metadata       any
	IdempotencyKey string
	Options        presets.Options
	Sync           bool
}

// Orchestrator turns submissions into receipts: it suppresses
// duplicates, persists the source payload, and runs the parse either
// inline or on the worker pool.
type Orchestrator struct {
	store *Store
	eng   *engine.Engine
	pool  *Pool
}

func NewOrchestrator(store *Store, eng *engine.Engine, pool *Pool) *Orchestrator {
	return &Orchestrator{store: store, eng: eng, pool: pool}
}

// GenerateIdempotencyKey derives the default key for a delivery that
// did not supply one: the client id plus the md5 of the payload, so
// re-sending identical bytes collapses into one intake.
func GenerateIdempotencyKey(clientID string, fileBytes []byte) string {
	digest := md5.Sum(fileBytes)
	return clientOrDefault(clientID) + ":" + hex.EncodeToString(digest[:])
}

func newIntakeID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Submit processes one delivery and returns its receipt. A repeated
// idempotency key short-circuits to the stored receipt with the
// duplicate flag set; nothing is re-run and no new artifacts appear.
// The key is claimed before any artifact is written, so concurrent
// submissions of the same key all resolve to one intake id.
func (o *Orchestrator) Submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	intakeID := newIntakeID()
	receipt := &Receipt{
		IntakeID:       intakeID,
		ClientID:       clientOrDefault(sub.ClientID),
		PresetID:       sub.PresetID,
		IdempotencyKey: sub.IdempotencyKey,
		Status:         "queued",
		Processing:     true,
		Sync:           sub.Sync,
		ReceivedAt:     time.Now().UTC(),
		Filename:       sub.Filename,
		Notes:          []string{"queued"},
		ResultsURL:     "/admin/deliveries/" + intakeID,
	}

	existing, reserved := o.store.ReserveIdempotency(sub.ClientID, sub.IdempotencyKey, receipt)
	if !reserved {
		dup := *existing
		dup.Duplicate = true
		logger.Info("duplicate intake suppressed",
			"client_id", clientOrDefault(sub.ClientID),
			"intake_id", existing.IntakeID,
			"idempotency_key", sub.IdempotencyKey)
		return &dup, nil
	}

	artifacts, err := o.store.StoreSource(sub.ClientID, intakeID, sub.Filename, sub.FileBytes, sub.Metadata)
	if err != nil {
		o.store.ReleaseIdempotency(sub.ClientID, sub.IdempotencyKey, intakeID)
		return nil, err
	}
	artifacts["receipt"] = o.store.ReceiptPath(sub.ClientID, intakeID)
	receipt.Artifacts = artifacts

	if sub.Sync {
		receipt.Status = ""
		receipt.Processing = false
		receipt.Notes = []string{}
		o.execute(ctx, receipt, sub)
		if err := o.store.SaveReceipt(receipt); err != nil {
			o.store.ReleaseIdempotency(sub.ClientID, sub.IdempotencyKey, intakeID)
			return nil, err
		}
		return receipt, nil
	}

	if err := o.store.SaveReceipt(receipt); err != nil {
		o.store.ReleaseIdempotency(sub.ClientID, sub.IdempotencyKey, intakeID)
		return nil, err
	}

	queued := *receipt
	o.pool.Submit(func() {
		final := queued
		o.execute(context.Background(), &final, sub)
		if err := o.store.SaveReceipt(&final); err != nil {
			logger.Error("failed to persist async receipt",
				"intake_id", final.IntakeID, "error", err.Error())
		}
	})
	return receipt, nil
}

// execute runs the parse and folds the outcome into the receipt. A
// parse failure becomes a persisted "failed" receipt instead of an
// HTTP error, so the delivery log keeps a trace of bad payloads.
func (o *Orchestrator) execute(ctx context.Context, receipt *Receipt, sub *Submission) {
	receipt.Processing = false

	exec, err := o.eng.Parse(ctx, buildRequest(sub))
	if err != nil {
		receipt.Status = "failed"
		receipt.Notes = append(receipt.Notes, "error:"+err.Error())
		logger.Warn("intake parse failed",
			"intake_id", receipt.IntakeID,
			"client_id", receipt.ClientID,
			"error", err.Error())
		return
	}

	receipt.Status = exec.Response.Status
	receipt.Notes = append(receipt.Notes, exec.Notes...)
	receipt.Parse = exec.Response
	if len(exec.AdapterResults) > 0 {
		if raw, err := json.Marshal(exec.AdapterResults); err == nil {
			receipt.Artifacts["adapter_results"] = string(raw)
		}
	}
	logger.Info("intake processed",
		"intake_id", receipt.IntakeID,
		"client_id", receipt.ClientID,
		"status", receipt.Status,
		"rows", exec.Rows,
		"duration_ms", exec.DurationMS)
}

func buildRequest(sub *Submission) *engine.Request {
	opts := sub.Options
	req := &engine.Request{
		FileBytes: sub.FileBytes,
		Filename:  sub.Filename,
		ClientID:  clientOrDefault(sub.ClientID),
		EnableLLM: opts.EnableLLM,
		HeaderRow: opts.HeaderRow,
		DayFirst:  opts.DayFirst,
	}
	if opts.Adapter != nil {
		req.Adapter = *opts.Adapter
	}
	if opts.SourceHint != nil {
		req.SourceHint = *opts.SourceHint
	}
	if opts.SheetName != nil {
		req.SheetName = *opts.SheetName
	}
	if opts.DecimalStyle != nil {
		req.DecimalStyle = *opts.DecimalStyle
	}
	if opts.DryRun != nil {
		req.DryRun = *opts.DryRun
	}
	return req
}

// Replay re-runs a stored intake against the current rules and
// adapters. The source bytes come from the original intake directory;
// the replay gets its own intake id and a derived idempotency key so
// it never collides with the original delivery.
func (o *Orchestrator) Replay(ctx context.Context, intakeID, clientID string, overrides presets.Options) (*Receipt, *Error) {
	original := o.store.GetReceipt(intakeID, clientID)
	if original == nil {
		return nil, notFound("intake_not_found", "no receipt for intake "+intakeID)
	}

	sourcePath := original.Artifacts["source"]
	if sourcePath == "" {
		return nil, notFound("source_missing", "intake has no stored source payload")
	}
	fileBytes, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, notFound("source_missing", "stored source payload is gone: "+err.Error())
	}

	sub := &Submission{
		ClientID: original.ClientID,
		PresetID: original.PresetID,
		Filename: original.Filename,
		FileBytes: fileBytes,
		Metadata: map[string]any{
			"replay_of": original.IntakeID,
			"overrides": overrides,
		},
		IdempotencyKey: GenerateIdempotencyKey(original.ClientID, fileBytes) + ":replay",
		Options:        overrides,
		Sync:           true,
	}

	replayID := newIntakeID()
	artifacts, storeErr := o.store.StoreSource(sub.ClientID, replayID, sub.Filename, sub.FileBytes, sub.Metadata)
	if storeErr != nil {
		return nil, &Error{Status: 500, Code: "storage_error", Message: storeErr.Error()}
	}
	artifacts["receipt"] = o.store.ReceiptPath(sub.ClientID, replayID)

	receipt := &Receipt{
		IntakeID:       replayID,
		ClientID:       clientOrDefault(sub.ClientID),
		PresetID:       sub.PresetID,
		IdempotencyKey: sub.IdempotencyKey,
		Sync:           true,
		ReceivedAt:     time.Now().UTC(),
		Filename:       sub.Filename,
		Notes:          []string{"replay_of=" + original.IntakeID},
		Artifacts:      artifacts,
		ResultsURL:     "/admin/deliveries/" + replayID,
	}
	o.execute(ctx, receipt, sub)
	if err := o.store.SaveReceipt(receipt); err != nil {
		return nil, &Error{Status: 500, Code: "storage_error", Message: err.Error()}
	}
	return receipt, nil
}
