// Package normalize converts a sampled table into typed, aliased rows.
package normalize

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ignite/table-engine/internal/coerce"
	"github.com/ignite/table-engine/internal/pii"
	"github.com/ignite/table-engine/internal/rules"
	"github.com/ignite/table-engine/internal/textutil"
)

var booleanTrue = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true, "da": true, "ok": true, "igen": true,
}

var booleanFalse = map[string]bool{
	"false": true, "no": true, "n": true, "0": true, "nu": true, "nem": true,
}

var dateHints = []string{"date", "data", "issued", "invoice_date", "created", "created_at"}

var numberHints = []string{"amount", "total", "valoare", "price", "pret", "vat", "tva", "qty", "quantity"}

// ErrNoRows is returned when nothing survives normalization.
var ErrNoRows = errors.New("dataset contains no rows after normalization")

// Schema describes the normalized table layout.
type Schema struct {
	Columns     []string          `json:"columns"`
	Types       map[string]string `json:"types"`
	Aliases     map[string]string `json:"aliases"`
	DatasetType string            `json:"dataset_type"`
}

// PIIFlags reports whether any text column carried emails or phone numbers.
type PIIFlags struct {
	Email bool `json:"email"`
	Phone bool `json:"phone"`
}

// Result is the outcome of normalizing one table.
type Result struct {
	Rows       []map[string]any
	Schema     Schema
	Notes      []string
	Confidence float64
	PII        PIIFlags
	StatusHint string
}

// Options tune a single normalization run.
type Options struct {
	DecimalStyle     coerce.DecimalStyle
	DayFirst         bool
	MaskPII          bool
	Rule             *rules.Rule
	PredictedAliases map[string]string
}

// Table normalizes the rows below headerRow into typed records. Ragged rows
// are padded or clipped to the header width, fully empty columns are dropped,
// and every surviving column is coerced through the bool/date/number ladder.
func Table(allRows [][]string, headerRow int, opts Options) (*Result, error) {
	if headerRow < 0 || headerRow >= len(allRows) {
		return nil, ErrNoRows
	}

	rawColumns := allRows[headerRow]
	originalCount := len(rawColumns)
	dataRows := squareRows(allRows[headerRow+1:], len(rawColumns))

	rawColumns, dataRows = dropEmptyColumns(rawColumns, dataRows)

	columns, columnNotes := cleanColumns(rawColumns)
	typed, typeLabels, typeConfidences, typeNotes := convertColumns(columns, dataRows, opts)

	flags := detectPII(columns, typeLabels, typed)
	if opts.MaskPII {
		maskCells(typed)
	}

	aliases, aliasNotes := buildAliases(columns, opts.Rule, opts.PredictedAliases)
	datasetType := inferDatasetType(aliases, opts.Rule)

	notes := append(columnNotes, typeNotes...)
	notes = append(notes, aliasNotes...)
	if originalCount != len(columns) {
		notes = append(notes, "columns_count_adjusted")
	}
	notes = append(notes, "header_assumed_row="+strconv.Itoa(headerRow))

	if len(dataRows) < 1 {
		return nil, ErrNoRows
	}

	var sum float64
	for _, c := range typeConfidences {
		sum += c
	}
	confidence := sum / float64(max(len(typeConfidences), 1))

	statusHint := "ok"
	if confidence < 0.65 {
		statusHint = "parsed_with_low_confidence"
	}

	records := make([]map[string]any, len(dataRows))
	for i := range dataRows {
		record := make(map[string]any, len(columns))
		for j, col := range columns {
			record[col] = typed[j][i]
		}
		records[i] = record
	}

	return &Result{
		Rows:       records,
		Schema:     Schema{Columns: columns, Types: typeLabels, Aliases: aliases, DatasetType: datasetType},
		Notes:      dedupeNotes(notes),
		Confidence: confidence,
		PII:        flags,
		StatusHint: statusHint,
	}, nil
}

func squareRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		squared := make([]string, width)
		copy(squared, row)
		out = append(out, squared)
	}
	return out
}

func dropEmptyColumns(columns []string, rows [][]string) ([]string, [][]string) {
	if len(rows) == 0 {
		return columns, rows
	}
	keep := make([]int, 0, len(columns))
	for j := range columns {
		for _, row := range rows {
			if strings.TrimSpace(row[j]) != "" {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == len(columns) {
		return columns, rows
	}
	outCols := make([]string, 0, len(keep))
	for _, j := range keep {
		outCols = append(outCols, columns[j])
	}
	outRows := make([][]string, len(rows))
	for i, row := range rows {
		picked := make([]string, 0, len(keep))
		for _, j := range keep {
			picked = append(picked, row[j])
		}
		outRows[i] = picked
	}
	return outCols, outRows
}

func cleanColumns(raw []string) ([]string, []string) {
	normalized := make([]string, len(raw))
	for i, name := range raw {
		normalized[i] = textutil.NormalizeColumnName(name)
	}
	deduped := textutil.DedupeNames(normalized)

	var notes []string
	for i := range deduped {
		if deduped[i] != normalized[i] {
			notes = append(notes, "columns_deduped")
			break
		}
	}
	for i := range deduped {
		if deduped[i] != raw[i] {
			notes = append(notes, "columns_normalized")
			break
		}
	}
	return deduped, notes
}

// convertColumns runs the type ladder over every column. The returned typed
// matrix is column-major: typed[j][i] is row i of column j.
func convertColumns(columns []string, rows [][]string, opts Options) ([][]any, map[string]string, map[string]float64, []string) {
	typed := make([][]any, len(columns))
	labels := make(map[string]string, len(columns))
	confidences := make(map[string]float64, len(columns))
	var notes []string

	for j, col := range columns {
		values := make([]string, len(rows))
		for i, row := range rows {
			values[i] = row[j]
		}
		cells, label, confidence, colNotes := convertColumn(col, values, opts)
		typed[j] = cells
		labels[col] = label
		confidences[col] = confidence
		notes = append(notes, colNotes...)
	}
	return typed, labels, confidences, notes
}

func convertColumn(name string, values []string, opts Options) ([]any, string, float64, []string) {
	stripped := make([]string, len(values))
	nonEmpty := 0
	for i, v := range values {
		stripped[i] = strings.TrimSpace(v)
		if stripped[i] != "" {
			nonEmpty++
		}
	}

	if nonEmpty == 0 {
		return stringCells(values, stripped), "string", 0.3, nil
	}

	if cells, conf, ok := attemptBool(stripped); ok {
		return cells, "boolean", conf, []string{"boolean_normalized"}
	}

	lower := strings.ToLower(name)
	dateHinted := containsAny(lower, dateHints)
	numberHinted := containsAny(lower, numberHints)

	if dateHinted {
		cells, success := dateCells(values, opts.DayFirst)
		if success > 0 {
			conf := float64(success) / float64(nonEmpty)
			return cells, "date", maxf(conf, 0.7), []string{"dates_normalized"}
		}
	}

	if numberHinted {
		cells, success := numberCells(values, opts.DecimalStyle)
		if success > 0 {
			conf := float64(success) / float64(nonEmpty)
			return cells, "number", maxf(conf, 0.7), []string{numberNote(stripped)}
		}
	}

	numericCells, numericSuccess := numberCells(values, opts.DecimalStyle)
	numericConf := float64(numericSuccess) / float64(nonEmpty)
	if numericConf >= 0.6 {
		return numericCells, "number", numericConf, []string{numberNote(stripped)}
	}

	dated, dateSuccess := dateCells(values, opts.DayFirst)
	dateConf := float64(dateSuccess) / float64(nonEmpty)
	if dateConf >= 0.5 {
		return dated, "date", maxf(dateConf, 0.5), []string{"dates_normalized"}
	}

	return stringCells(values, stripped), "string", 0.5, nil
}

func attemptBool(stripped []string) ([]any, float64, bool) {
	cells := make([]any, len(stripped))
	filtered, success := 0, 0
	for i, v := range stripped {
		key := strings.ToLower(v)
		if key != "" {
			filtered++
		}
		switch {
		case booleanTrue[key]:
			cells[i] = true
			success++
		case booleanFalse[key]:
			cells[i] = false
			success++
		default:
			cells[i] = nil
		}
	}
	if filtered == 0 {
		return nil, 0, false
	}
	conf := float64(success) / float64(filtered)
	if conf < 0.7 {
		return nil, 0, false
	}
	return cells, conf, true
}

func dateCells(values []string, dayFirst bool) ([]any, int) {
	cells := make([]any, len(values))
	success := 0
	for i, v := range values {
		if ts, ok := coerce.ParseDate(strings.TrimSpace(v), dayFirst); ok {
			cells[i] = coerce.FormatDate(ts)
			success++
		}
	}
	return cells, success
}

func numberCells(values []string, style coerce.DecimalStyle) ([]any, int) {
	cells := make([]any, len(values))
	success := 0
	for i, v := range values {
		if n, ok := coerce.ParseNumber(v, style); ok {
			cells[i] = n
			success++
		}
	}
	return cells, success
}

func stringCells(values, stripped []string) []any {
	cells := make([]any, len(values))
	for i := range values {
		if stripped[i] == "" {
			cells[i] = nil
		} else {
			cells[i] = values[i]
		}
	}
	return cells
}

// numberNote distinguishes locale-comma decimals from plain numerics.
func numberNote(stripped []string) string {
	for _, v := range stripped {
		if v != "" && strings.Contains(v, ",") && !strings.Contains(v, ".") {
			return "decimal_comma_normalized"
		}
	}
	return "numbers_normalized"
}

// detectPII scans only string-typed columns; dates and numbers cannot carry PII.
func detectPII(columns []string, labels map[string]string, typed [][]any) PIIFlags {
	var flags PIIFlags
	for j, col := range columns {
		if labels[col] != "string" {
			continue
		}
		values := make([]string, 0, len(typed[j]))
		for _, cell := range typed[j] {
			if s, ok := cell.(string); ok {
				values = append(values, s)
			}
		}
		email, phone := pii.ScanColumn(values)
		flags.Email = flags.Email || email
		flags.Phone = flags.Phone || phone
		if flags.Email && flags.Phone {
			break
		}
	}
	return flags
}

func maskCells(typed [][]any) {
	for j := range typed {
		for i, cell := range typed[j] {
			if s, ok := cell.(string); ok {
				typed[j][i] = pii.MaybeMask(s, true, true)
			}
		}
	}
}

func buildAliases(columns []string, rule *rules.Rule, predicted map[string]string) (map[string]string, []string) {
	var notes []string
	mapping := map[string]string{}

	heuristic := heuristicAliases(columns)
	if len(heuristic) > 0 {
		notes = append(notes, "aliases_from_heuristic")
	}
	for k, v := range heuristic {
		mapping[k] = v
	}

	if len(predicted) > 0 {
		notes = append(notes, "aliases_from_llm")
		for k, v := range predicted {
			mapping[k] = v
		}
	}

	if rule != nil && len(rule.ColumnAliases) > 0 {
		notes = append(notes, "aliases_from_rules")
		for k, v := range rule.ColumnAliases {
			mapping[textutil.NormalizeColumnName(k)] = v
		}
	}

	cleaned := make(map[string]string, len(columns))
	for _, col := range columns {
		if alias, ok := mapping[col]; ok {
			cleaned[col] = alias
		} else {
			cleaned[col] = col
		}
	}
	return cleaned, notes
}

func heuristicAliases(columns []string) map[string]string {
	result := map[string]string{}
	for _, col := range columns {
		lowered := strings.ToLower(col)
		switch {
		case containsAny(lowered, []string{"amount", "total", "value", "sum"}):
			result[col] = "amount"
		case containsAny(lowered, []string{"date", "data"}):
			result[col] = "date"
		case strings.Contains(lowered, "invoice"):
			result[col] = "invoice_number"
		case strings.Contains(lowered, "order"):
			result[col] = "order_id"
		case strings.Contains(lowered, "email"):
			result[col] = "customer_email"
		case containsAny(lowered, []string{"client", "customer"}):
			result[col] = "customer_name"
		case strings.Contains(lowered, "vat"):
			result[col] = "vat"
		case containsAny(lowered, []string{"qty", "quantity", "cantitate"}):
			result[col] = "quantity"
		case strings.Contains(lowered, "region"):
			result[col] = "region"
		case strings.Contains(lowered, "payment"):
			result[col] = "payment_method"
		case strings.Contains(lowered, "status"):
			result[col] = "status"
		}
	}
	return result
}

func inferDatasetType(aliases map[string]string, rule *rules.Rule) string {
	if rule != nil && rule.DatasetType != "" {
		return rule.DatasetType
	}
	values := map[string]bool{}
	for _, v := range aliases {
		values[v] = true
	}
	if values["amount"] || values["vat"] || values["invoice_number"] {
		return "financial"
	}
	if values["order_id"] || values["quantity"] {
		return "orders"
	}
	if values["customer_email"] && values["customer_name"] {
		return "marketing"
	}
	return "unknown"
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func dedupeNotes(notes []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
