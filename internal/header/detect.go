// Package header scores candidate header rows in a sampled table and
// optionally defers to an external predictor.
package header

import (
	"fmt"
	"strings"
	"unicode"
)

var headerKeywords = []string{
	"date", "data", "order", "invoice", "numar", "valoare", "tva",
	"client", "email", "total", "amount", "qty", "quantity", "method", "status",
}

// Prediction is an external predictor's answer for the header question.
type Prediction struct {
	HeaderRow  int
	Columns    []string
	Confidence float64
}

// PredictFunc produces a header prediction for the sampled rows, or nil
// when no prediction is available. Implementations must never panic and
// should swallow their own transport failures.
type PredictFunc func(rows [][]string) *Prediction

// Result is the outcome of header detection for one request.
type Result struct {
	HeaderRow     int
	Columns       []string
	Confidence    float64
	Notes         []string
	UsedPredictor bool
}

const (
	defaultMaxRows          = 50
	defaultPredictThreshold = 0.7
)

// Options tune detection; zero values select the defaults.
type Options struct {
	Predictor        PredictFunc
	MaxRows          int
	PredictThreshold float64
}

// Override builds the short-circuit result for an explicit caller-supplied
// header row. The caller validates the index against the sample bounds.
func Override(rows [][]string, headerRow int) Result {
	columns := make([]string, 0)
	if headerRow >= 0 && headerRow < len(rows) {
		for _, cell := range rows[headerRow] {
			columns = append(columns, strings.TrimSpace(cell))
		}
	}
	return Result{
		HeaderRow:  headerRow,
		Columns:    columns,
		Confidence: 1.0,
		Notes:      []string{fmt.Sprintf("manual_header_row=%d", headerRow)},
	}
}

// Detect chooses the most header-like row from the sample. When a
// predictor is configured and confident enough, its answer replaces the
// heuristic one entirely; a low-confidence prediction only lifts the
// reported confidence as an observability signal.
func Detect(sampleRows [][]string, opts Options) Result {
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	threshold := opts.PredictThreshold
	if threshold <= 0 {
		threshold = defaultPredictThreshold
	}

	rows := sampleRows
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	best := heuristicDetect(rows)
	notes := append([]string{}, best.notes...)
	confidence := clamp(best.score, 0.2, 0.95)

	if opts.Predictor != nil {
		if prediction := opts.Predictor(rows); prediction != nil {
			notes = append(notes, "llm_header_prediction_available")
			if prediction.Confidence >= threshold {
				notes = append(notes, "llm_header_selected")
				return Result{
					HeaderRow:     prediction.HeaderRow,
					Columns:       prediction.Columns,
					Confidence:    prediction.Confidence,
					Notes:         notes,
					UsedPredictor: true,
				}
			}
			if blended := prediction.Confidence * 0.8; blended > confidence {
				confidence = blended
			}
			notes = append(notes, "llm_confidence_low_using_heuristic")
		}
	}

	return Result{
		HeaderRow:  best.row,
		Columns:    best.columns,
		Confidence: confidence,
		Notes:      notes,
	}
}

type heuristic struct {
	row     int
	columns []string
	score   float64
	notes   []string
}

func heuristicDetect(rows [][]string) heuristic {
	best := heuristic{row: 0, score: -1}

	for idx, row := range rows {
		if len(row) == 0 {
			continue
		}
		nonEmpty := 0
		alphaCells := 0
		keywordHits := 0
		for _, cell := range row {
			trimmed := strings.TrimSpace(cell)
			if trimmed != "" {
				nonEmpty++
			}
			if containsLetter(cell) {
				alphaCells++
			}
			if containsKeyword(cell) {
				keywordHits++
			}
		}
		density := float64(nonEmpty) / float64(len(row))
		alphaRatio := float64(alphaCells) / float64(len(row))

		score := density*0.45 + alphaRatio*0.35 + float64(keywordHits)*0.05 + float64(nonEmpty)*0.02
		if nonEmpty == 0 {
			score = 0
		}
		if score > best.score {
			columns := make([]string, len(row))
			for i, cell := range row {
				columns[i] = strings.TrimSpace(cell)
			}
			best = heuristic{row: idx, columns: columns, score: score}
		}
	}

	if best.score < 0.3 {
		best.notes = append(best.notes, "low_heuristic_confidence_header")
	}
	best.notes = append(best.notes, fmt.Sprintf("heuristic_header_row=%d", best.row))
	return best
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func containsKeyword(s string) bool {
	lowered := strings.ToLower(s)
	for _, keyword := range headerKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
