package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// WarehouseAdapter copies normalized rows into a Postgres table. The
// table is created on first use from the inferred schema; subsequent
// exports append inside a single transaction.
type WarehouseAdapter struct {
	DB           *sql.DB
	DefaultTable string
}

var warehouseColumnTypes = map[string]string{
	"number":  "double precision",
	"date":    "timestamp",
	"boolean": "boolean",
	"string":  "text",
}

func (a *WarehouseAdapter) Export(ctx context.Context, exp *Export) Result {
	table := exp.Table
	if table == "" {
		table = a.DefaultTable
	}
	if a.DB == nil || table == "" {
		return Result{Adapter: "warehouse", Status: StatusSkipped, Reason: "missing_configuration"}
	}
	if len(exp.Schema.Columns) == 0 {
		return Result{Adapter: "warehouse", Status: StatusSkipped, Reason: "empty_schema"}
	}

	fieldMap := BuildFieldMap(exp.Schema.Columns)
	if err := a.ensureTable(ctx, table, exp, fieldMap); err != nil {
		return Result{Adapter: "warehouse", Status: StatusError, Reason: err.Error()}
	}

	inserted, err := a.insertRows(ctx, table, exp, fieldMap)
	if err != nil {
		return Result{Adapter: "warehouse", Status: StatusError, Reason: err.Error()}
	}

	return Result{
		Adapter: "warehouse",
		Status:  StatusOK,
		Mode:    "stream",
		Table:   table,
		Notes:   []string{fmt.Sprintf("rows_inserted=%d", inserted)},
	}
}

func (a *WarehouseAdapter) ensureTable(ctx context.Context, table string, exp *Export, fieldMap map[string]string) error {
	defs := make([]string, 0, len(exp.Schema.Columns))
	for _, column := range exp.Schema.Columns {
		columnType, ok := warehouseColumnTypes[exp.Schema.Types[column]]
		if !ok {
			columnType = "text"
		}
		defs = append(defs, fmt.Sprintf("%s %s", pq.QuoteIdentifier(fieldMap[column]), columnType))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(table), strings.Join(defs, ", "))
	_, err := a.DB.ExecContext(ctx, stmt)
	return err
}

func (a *WarehouseAdapter) insertRows(ctx context.Context, table string, exp *Export, fieldMap map[string]string) (int, error) {
	columns := exp.Schema.Columns
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = pq.QuoteIdentifier(fieldMap[column])
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer prepared.Close()

	inserted := 0
	for _, row := range exp.Rows {
		args := make([]any, len(columns))
		for i, column := range columns {
			args[i] = row[column]
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return inserted, err
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}
