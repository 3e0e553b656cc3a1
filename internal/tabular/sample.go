// Package tabular decodes raw uploads into a two-dimensional cell grid.
// It detects the file format, encoding and delimiter, picks the densest
// spreadsheet sheet, and exposes a bounded sample plus full-table reads.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrUnsupportedType = errors.New("unsupported_type")
	ErrSizeExceeded    = errors.New("size_exceeded")
)

// Format identifies the decoded container type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetChoice records which sheet of a workbook was selected and why.
type SheetChoice struct {
	Name          string
	NonEmptyCells int
}

// FileSample is the decoded view of one upload: metadata plus a bounded
// ordered sample of raw cell rows. Immutable once produced.
type FileSample struct {
	Filename       string
	RawBytes       []byte
	DetectedFormat Format
	Encoding       string
	Delimiter      rune
	SampleRows     [][]string
	Sheet          *SheetChoice
	SizeBytes      int
}

// Options bound and steer decoding.
type Options struct {
	SheetName    string
	SampleLimit  int
	MaxSizeBytes int
}

const defaultSampleLimit = 50

// Load decodes raw bytes into a FileSample. Only CSV-like text and XLSX
// workbooks are accepted; anything else fails with ErrUnsupportedType.
func Load(fileBytes []byte, filename string, opts Options) (*FileSample, error) {
	size := len(fileBytes)
	if opts.MaxSizeBytes > 0 && size > opts.MaxSizeBytes {
		return nil, ErrSizeExceeded
	}
	limit := opts.SampleLimit
	if limit <= 0 {
		limit = defaultSampleLimit
	}

	format, err := detectFormat(filename, fileBytes)
	if err != nil {
		return nil, err
	}

	sample := &FileSample{
		Filename:       filename,
		RawBytes:       fileBytes,
		DetectedFormat: format,
		SizeBytes:      size,
	}

	switch format {
	case FormatCSV:
		text, encoding := decodeText(fileBytes)
		sample.Encoding = encoding
		sample.Delimiter = sniffDelimiter(head(text, 5000))
		rows, err := readCSVRows(text, sample.Delimiter, limit)
		if err != nil {
			return nil, err
		}
		sample.SampleRows = rows
	case FormatXLSX:
		choice, rows, err := pickSheet(fileBytes, opts.SheetName, limit)
		if err != nil {
			return nil, err
		}
		sample.Sheet = choice
		sample.SampleRows = rows
	}
	return sample, nil
}

// AllRows reads the complete cell grid, not just the bounded sample.
func (s *FileSample) AllRows() ([][]string, error) {
	switch s.DetectedFormat {
	case FormatCSV:
		text, _ := decodeText(s.RawBytes)
		return readCSVRows(text, s.Delimiter, 0)
	case FormatXLSX:
		sheet := ""
		if s.Sheet != nil {
			sheet = s.Sheet.Name
		}
		return readSheetRows(s.RawBytes, sheet, 0)
	}
	return nil, ErrUnsupportedType
}

var (
	xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04} // zip container
	xlsMagic  = []byte{0xD0, 0xCF, 0x11, 0xE0} // legacy OLE container
)

func detectFormat(filename string, fileBytes []byte) (Format, error) {
	lowered := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lowered, ".csv"), strings.HasSuffix(lowered, ".tsv"), strings.HasSuffix(lowered, ".txt"):
		return FormatCSV, nil
	case strings.HasSuffix(lowered, ".xlsx"):
		return FormatXLSX, nil
	case strings.HasSuffix(lowered, ".xls"):
		// legacy binary workbooks are not decodable here
		return "", ErrUnsupportedType
	}
	if bytes.HasPrefix(fileBytes, xlsxMagic) {
		return FormatXLSX, nil
	}
	if bytes.HasPrefix(fileBytes, xlsMagic) {
		return "", ErrUnsupportedType
	}
	if looksLikeText(fileBytes) {
		return FormatCSV, nil
	}
	return "", ErrUnsupportedType
}

func looksLikeText(fileBytes []byte) bool {
	probe := fileBytes
	if len(probe) > 4096 {
		probe = probe[:4096]
	}
	return !bytes.ContainsRune(probe, 0x00)
}

// decodeText returns the upload as a string, falling back to
// Windows-1252 when the bytes are not valid UTF-8.
func decodeText(fileBytes []byte) (string, string) {
	trimmed := bytes.TrimPrefix(fileBytes, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(trimmed) {
		return string(trimmed), "utf-8"
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(trimmed)
	if err != nil {
		return string(trimmed), "utf-8"
	}
	return string(decoded), "windows-1252"
}

func head(text string, n int) string {
	if len(text) > n {
		return text[:n]
	}
	return text
}

var delimiterCandidates = []rune{',', ';', '\t', '|', ':'}

// sniffDelimiter counts candidate separators on the first non-empty
// lines and picks the most frequent; comma wins ties.
func sniffDelimiter(probe string) rune {
	counts := make(map[rune]int, len(delimiterCandidates))
	lines := strings.Split(probe, "\n")
	examined := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, candidate := range delimiterCandidates {
			counts[candidate] += strings.Count(line, string(candidate))
		}
		examined++
		if examined >= 10 {
			break
		}
	}
	best := ','
	bestCount := counts[',']
	for _, candidate := range delimiterCandidates[1:] {
		if counts[candidate] > bestCount {
			best = candidate
			bestCount = counts[candidate]
		}
	}
	return best
}

// readCSVRows parses up to limit rows (0 = unlimited), tolerating ragged
// records and stray quotes.
func readCSVRows(text string, delimiter rune, limit int) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		if limit > 0 && len(rows) >= limit {
			break
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(rows) > 0 {
				break
			}
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// pickSheet selects the named sheet if present, otherwise the sheet with
// the most non-empty cells across its first 200 rows.
func pickSheet(fileBytes []byte, sheetName string, sampleLimit int) (*SheetChoice, [][]string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, nil, ErrUnsupportedType
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook contains no sheets")
	}

	if sheetName != "" {
		for _, name := range sheets {
			if name == sheetName {
				rows, err := workbook.GetRows(name)
				if err != nil {
					return nil, nil, err
				}
				choice := &SheetChoice{Name: name, NonEmptyCells: countNonEmpty(rows, 200)}
				return choice, clipRows(rows, sampleLimit), nil
			}
		}
	}

	var best *SheetChoice
	var bestRows [][]string
	for _, name := range sheets {
		rows, err := workbook.GetRows(name)
		if err != nil {
			continue
		}
		score := countNonEmpty(rows, 200)
		if best == nil || score > best.NonEmptyCells {
			best = &SheetChoice{Name: name, NonEmptyCells: score}
			bestRows = rows
		}
	}
	if best == nil {
		return nil, nil, errors.New("workbook sheets are unreadable")
	}
	return best, clipRows(bestRows, sampleLimit), nil
}

func readSheetRows(fileBytes []byte, sheetName string, limit int) ([][]string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, ErrUnsupportedType
	}
	defer workbook.Close()
	if sheetName == "" {
		sheetName = workbook.GetSheetName(0)
	}
	rows, err := workbook.GetRows(sheetName)
	if err != nil {
		return nil, err
	}
	return clipRows(rows, limit), nil
}

func countNonEmpty(rows [][]string, maxRows int) int {
	total := 0
	for i, row := range rows {
		if maxRows > 0 && i >= maxRows {
			break
		}
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				total++
			}
		}
	}
	return total
}

func clipRows(rows [][]string, limit int) [][]string {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
