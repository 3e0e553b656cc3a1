// Package engine runs the full parse pipeline: sample the upload,
// find the header, match a rule, normalize, then hand the table to the
// configured export adapter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ignite/table-engine/internal/adapters"
	"github.com/ignite/table-engine/internal/coerce"
	"github.com/ignite/table-engine/internal/header"
	"github.com/ignite/table-engine/internal/normalize"
	"github.com/ignite/table-engine/internal/pkg/logger"
	"github.com/ignite/table-engine/internal/predict"
	"github.com/ignite/table-engine/internal/rules"
	"github.com/ignite/table-engine/internal/tabular"
)

var (
	ErrEmptyFile           = errors.New("empty file uploaded")
	ErrHeaderRowOutOfRange = errors.New("header_row outside sampled range")
)

// Request is one parse invocation. Pointer fields distinguish "not
// provided" from an explicit false or zero.
type Request struct {
	FileBytes    []byte
	Filename     string
	ClientID     string
	Adapter      string
	SourceHint   string
	SheetName    string
	EnableLLM    *bool
	HeaderRow    *int
	DayFirst     *bool
	DecimalStyle string
	DryRun       bool
}

// SourceMeta identifies what was parsed.
type SourceMeta struct {
	Filename       string `json:"filename"`
	ClientID       string `json:"client_id,omitempty"`
	DetectedFormat string `json:"detected_format"`
	Sheet          string `json:"sheet,omitempty"`
}

// ParseResponse is the wire shape of a finished parse.
type ParseResponse struct {
	Status         string             `json:"status"`
	Confidence     float64            `json:"confidence"`
	Source         SourceMeta         `json:"source"`
	Schema         normalize.Schema   `json:"schema"`
	Data           []map[string]any   `json:"data"`
	Notes          []string           `json:"notes"`
	PIIDetected    normalize.PIIFlags `json:"pii_detected"`
	AdapterResults []adapters.Result  `json:"adapter_results,omitempty"`
}

// Execution wraps a response with bookkeeping the intake layer records.
type Execution struct {
	Response       *ParseResponse
	AdapterResults []adapters.Result
	Notes          []string
	RuleApplied    string
	DetectedFormat string
	DurationMS     float64
	Rows           int
	Cols           int
}

// Config tunes the pipeline.
type Config struct {
	RulesDir        string
	SampleLimit     int
	HeaderSearchMax int
	MaxSizeBytes    int
	DefaultAdapter  string
	MaskPII         bool
	DefaultDayFirst bool
}

// Engine owns the pipeline dependencies.
type Engine struct {
	cfg       Config
	predictor *predict.Client
	registry  *adapters.Registry
}

func New(cfg Config, predictor *predict.Client, registry *adapters.Registry) *Engine {
	if cfg.DefaultAdapter == "" {
		cfg.DefaultAdapter = "json"
	}
	if registry == nil {
		registry = &adapters.Registry{}
	}
	return &Engine{cfg: cfg, predictor: predictor, registry: registry}
}

// Parse runs the pipeline end to end. Errors are returned raw; callers
// decide whether to degrade into a low-confidence response.
func (e *Engine) Parse(ctx context.Context, req *Request) (*Execution, error) {
	started := time.Now()

	if len(req.FileBytes) == 0 {
		return nil, ErrEmptyFile
	}

	sample, err := tabular.Load(req.FileBytes, req.Filename, tabular.Options{
		SheetName:    req.SheetName,
		SampleLimit:  e.cfg.SampleLimit,
		MaxSizeBytes: e.cfg.MaxSizeBytes,
	})
	if err != nil {
		return nil, err
	}

	notes := []string{"detected_format=" + string(sample.DetectedFormat)}
	if sample.Sheet != nil {
		notes = append(notes, "sheet_selected="+sample.Sheet.Name)
	}

	predictor := e.activePredictor(req.EnableLLM)

	var headerResult header.Result
	if req.HeaderRow != nil {
		if *req.HeaderRow < 0 || *req.HeaderRow >= len(sample.SampleRows) {
			return nil, ErrHeaderRowOutOfRange
		}
		headerResult = header.Override(sample.SampleRows, *req.HeaderRow)
	} else {
		opts := header.Options{MaxRows: e.cfg.HeaderSearchMax}
		if predictor != nil {
			opts.Predictor = predictor.HeaderFunc(ctx)
		}
		headerResult = header.Detect(sample.SampleRows, opts)
	}

	rule, ruleNotes := rules.LoadMatching(e.cfg.RulesDir, req.Filename, req.SourceHint, headerResult.Columns)
	notes = append(notes, ruleNotes...)
	if rule != nil {
		notes = append(notes, "rule_applied="+rule.Name)
	}

	var predictedAliases map[string]string
	if predictor != nil && len(headerResult.Columns) > 0 {
		samples := aliasSamples(headerResult.HeaderRow, headerResult.Columns, sample.SampleRows, 5)
		if len(samples) > 0 {
			predictedAliases = predictor.PredictAliases(ctx, headerResult.Columns, samples)
		}
	}

	allRows, err := sample.AllRows()
	if err != nil {
		return nil, err
	}

	dayFirst := e.cfg.DefaultDayFirst
	if req.DayFirst != nil {
		dayFirst = *req.DayFirst
	}

	normalization, err := normalize.Table(allRows, headerResult.HeaderRow, normalize.Options{
		DecimalStyle:     coerce.ParseDecimalStyle(req.DecimalStyle),
		DayFirst:         dayFirst,
		MaskPII:          e.cfg.MaskPII,
		Rule:             rule,
		PredictedAliases: predictedAliases,
	})
	if err != nil {
		return nil, err
	}

	status := normalization.StatusHint
	overall := (headerResult.Confidence + normalization.Confidence) / 2
	overall = math.Max(0, math.Min(1, overall))
	if status == "ok" && overall < 0.6 {
		status = "parsed_with_low_confidence"
	}
	if rule == nil && status != "ok" {
		status = "needs_rulefile"
	}

	notes = append(notes, headerResult.Notes...)
	notes = append(notes, normalization.Notes...)
	notes = dedupe(notes)

	source := SourceMeta{
		Filename:       req.Filename,
		ClientID:       req.ClientID,
		DetectedFormat: string(sample.DetectedFormat),
	}
	if sample.Sheet != nil {
		source.Sheet = sample.Sheet.Name
	}

	response := &ParseResponse{
		Status:      status,
		Confidence:  math.Round(overall*1000) / 1000,
		Source:      source,
		Schema:      normalization.Schema,
		Data:        normalization.Rows,
		Notes:       notes,
		PIIDetected: normalization.PII,
	}

	var adapterResults []adapters.Result
	if !req.DryRun {
		tag := strings.ToLower(req.Adapter)
		if tag == "" {
			tag = e.cfg.DefaultAdapter
		}
		adapterResults = e.registry.Run(ctx, tag, e.buildExport(req, rule, response))
		for _, result := range adapterResults {
			if result.Status == adapters.StatusError {
				logger.Warn("adapter_failed", "adapter", result.Adapter, "reason", result.Reason, "filename", req.Filename)
			}
		}
	}
	response.AdapterResults = adapterResults

	return &Execution{
		Response:       response,
		AdapterResults: adapterResults,
		Notes:          notes,
		RuleApplied:    ruleApplied(notes),
		DetectedFormat: string(sample.DetectedFormat),
		DurationMS:     math.Round(float64(time.Since(started).Microseconds())/10) / 100,
		Rows:           len(normalization.Rows),
		Cols:           len(normalization.Schema.Columns),
	}, nil
}

func (e *Engine) buildExport(req *Request, rule *rules.Rule, response *ParseResponse) *adapters.Export {
	exp := &adapters.Export{
		ClientID:  req.ClientID,
		Filename:  req.Filename,
		SheetName: req.SheetName,
		Rows:      response.Data,
		Schema:    response.Schema,
		Notes:     response.Notes,
		Source:    response.Source,
		Envelope:  response,
	}
	if rule != nil {
		exp.PrimaryKey = rule.PrimaryKey
		exp.SheetsMode = rule.SheetsMode
		exp.Table = rule.WarehouseTable
	}
	return exp
}

// activePredictor resolves the per-request LLM switch against the
// globally configured client.
func (e *Engine) activePredictor(enable *bool) *predict.Client {
	if e.predictor == nil {
		return nil
	}
	if enable != nil && !*enable {
		return nil
	}
	return e.predictor
}

func aliasSamples(headerRow int, columns []string, rows [][]string, limit int) []map[string]string {
	var samples []map[string]string
	for i := headerRow + 1; i < len(rows) && len(samples) < limit; i++ {
		record := make(map[string]string, len(columns))
		for j, column := range columns {
			if j < len(rows[i]) {
				record[column] = strings.TrimSpace(rows[i][j])
			} else {
				record[column] = ""
			}
		}
		samples = append(samples, record)
	}
	return samples
}

func ruleApplied(notes []string) string {
	for _, note := range notes {
		if name, ok := strings.CutPrefix(note, "rule_applied="); ok {
			return name
		}
	}
	return ""
}

func dedupe(notes []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(notes))
	for _, note := range notes {
		if !seen[note] {
			seen[note] = true
			out = append(out, note)
		}
	}
	return out
}

// Fallback builds the degraded response used when the pipeline cannot
// run at all. The parse surface never hard-fails on bad input.
func Fallback(req *Request, err error) *ParseResponse {
	return &ParseResponse{
		Status:     "parsed_with_low_confidence",
		Confidence: 0.2,
		Source: SourceMeta{
			Filename:       req.Filename,
			ClientID:       req.ClientID,
			DetectedFormat: "csv",
		},
		Schema: normalize.Schema{
			Columns:     []string{},
			Types:       map[string]string{},
			Aliases:     map[string]string{},
			DatasetType: "unknown",
		},
		Data:  []map[string]any{},
		Notes: []string{fmt.Sprintf("error:%v", err)},
	}
}
