package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetsAdapter maintains a local XLSX workbook with one worksheet per
// client. Append mode can dedupe on a primary-key column; replace mode
// rewrites the worksheet from scratch.
type SheetsAdapter struct {
	WorkbookPath string
	DefaultMode  string // "append" or "replace"
}

func (a *SheetsAdapter) Export(exp *Export) Result {
	if a.WorkbookPath == "" {
		return Result{Adapter: "sheets", Status: StatusSkipped, Reason: "missing_configuration"}
	}

	name := exp.SheetName
	if name == "" {
		name = exp.ClientID
	}
	if name == "" {
		name = "default"
	}

	book, err := a.openWorkbook()
	if err != nil {
		return Result{Adapter: "sheets", Status: StatusError, Reason: err.Error()}
	}
	defer book.Close()

	mode := strings.ToLower(exp.SheetsMode)
	if mode == "" {
		mode = a.DefaultMode
	}
	if mode != "replace" {
		mode = "append"
	}

	var appended int
	if mode == "replace" {
		appended, err = a.replaceSheet(book, name, exp)
	} else {
		appended, err = a.appendSheet(book, name, exp)
	}
	if err != nil {
		return Result{Adapter: "sheets", Status: StatusError, Reason: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(a.WorkbookPath), 0o755); err != nil {
		return Result{Adapter: "sheets", Status: StatusError, Reason: err.Error()}
	}
	if err := book.SaveAs(a.WorkbookPath); err != nil {
		return Result{Adapter: "sheets", Status: StatusError, Reason: err.Error()}
	}

	return Result{
		Adapter: "sheets",
		Status:  StatusOK,
		Mode:    "file",
		Notes:   []string{fmt.Sprintf("sheets_mode=%s", mode), fmt.Sprintf("rows_written=%d", appended)},
		Details: map[string]any{"worksheet": name, "workbook": a.WorkbookPath},
	}
}

func (a *SheetsAdapter) openWorkbook() (*excelize.File, error) {
	if _, err := os.Stat(a.WorkbookPath); err == nil {
		return excelize.OpenFile(a.WorkbookPath)
	}
	return excelize.NewFile(), nil
}

func (a *SheetsAdapter) replaceSheet(book *excelize.File, name string, exp *Export) (int, error) {
	if index, _ := book.GetSheetIndex(name); index >= 0 {
		// DeleteSheet refuses to drop the last worksheet, so park a
		// scratch sheet around the rebuild.
		scratch := name + "__rebuild"
		if _, err := book.NewSheet(scratch); err != nil {
			return 0, err
		}
		if err := book.DeleteSheet(name); err != nil {
			return 0, err
		}
		if _, err := book.NewSheet(name); err != nil {
			return 0, err
		}
		if err := book.DeleteSheet(scratch); err != nil {
			return 0, err
		}
	} else if _, err := book.NewSheet(name); err != nil {
		return 0, err
	}

	header := make([]any, len(exp.Schema.Columns))
	for i, col := range exp.Schema.Columns {
		header[i] = col
	}
	if err := setRow(book, name, 1, header); err != nil {
		return 0, err
	}
	for i, row := range exp.Rows {
		if err := setRow(book, name, i+2, rowValues(exp.Schema.Columns, row)); err != nil {
			return 0, err
		}
	}
	return len(exp.Rows), nil
}

func (a *SheetsAdapter) appendSheet(book *excelize.File, name string, exp *Export) (int, error) {
	index, err := book.GetSheetIndex(name)
	if err != nil {
		return 0, err
	}
	if index < 0 {
		return a.replaceSheet(book, name, exp)
	}

	existing, err := book.GetRows(name)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return a.replaceSheet(book, name, exp)
	}

	existingKeys := map[string]bool{}
	if exp.PrimaryKey != "" {
		keyIdx := -1
		for i, cell := range existing[0] {
			if cell == exp.PrimaryKey {
				keyIdx = i
				break
			}
		}
		if keyIdx >= 0 {
			for _, row := range existing[1:] {
				if keyIdx < len(row) && row[keyIdx] != "" {
					existingKeys[row[keyIdx]] = true
				}
			}
		}
	}

	next := len(existing) + 1
	appended := 0
	for _, row := range exp.Rows {
		if exp.PrimaryKey != "" {
			if key, ok := row[exp.PrimaryKey]; ok && key != nil {
				if existingKeys[fmt.Sprintf("%v", key)] {
					continue
				}
			}
		}
		if err := setRow(book, name, next, rowValues(exp.Schema.Columns, row)); err != nil {
			return appended, err
		}
		next++
		appended++
	}
	return appended, nil
}

func setRow(book *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return book.SetSheetRow(sheet, cell, &values)
}

func rowValues(columns []string, row map[string]any) []any {
	values := make([]any, len(columns))
	for i, col := range columns {
		values[i] = row[col]
	}
	return values
}
