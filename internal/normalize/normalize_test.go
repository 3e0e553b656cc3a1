package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/table-engine/internal/coerce"
	"github.com/ignite/table-engine/internal/rules"
)

func TestTableFinancial(t *testing.T) {
	rows := [][]string{
		{"Data emiterii", "Valoare totala", "Client", "Platit", ""},
		{"12.01.2024", "1234,56", "Ana Pop", "da", ""},
		{"05.02.2024", "2000,00", "Ion Ionescu", "nu", ""},
	}

	result, err := Table(rows, 0, Options{DecimalStyle: coerce.DecimalAuto, DayFirst: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"data_emiterii", "valoare_totala", "client", "platit"}, result.Schema.Columns)
	assert.Equal(t, "date", result.Schema.Types["data_emiterii"])
	assert.Equal(t, "number", result.Schema.Types["valoare_totala"])
	assert.Equal(t, "string", result.Schema.Types["client"])
	assert.Equal(t, "boolean", result.Schema.Types["platit"])

	require.Len(t, result.Rows, 2)
	assert.Equal(t, "2024-01-12T00:00:00", result.Rows[0]["data_emiterii"])
	assert.Equal(t, 1234.56, result.Rows[0]["valoare_totala"])
	assert.Equal(t, true, result.Rows[0]["platit"])
	assert.Equal(t, false, result.Rows[1]["platit"])

	assert.Contains(t, result.Notes, "columns_normalized")
	assert.Contains(t, result.Notes, "dates_normalized")
	assert.Contains(t, result.Notes, "decimal_comma_normalized")
	assert.Contains(t, result.Notes, "boolean_normalized")
	assert.Contains(t, result.Notes, "columns_count_adjusted")
	assert.Contains(t, result.Notes, "header_assumed_row=0")

	assert.Equal(t, "amount", result.Schema.Aliases["valoare_totala"])
	assert.Equal(t, "date", result.Schema.Aliases["data_emiterii"])
	assert.Equal(t, "customer_name", result.Schema.Aliases["client"])
	assert.Contains(t, result.Notes, "aliases_from_heuristic")
	assert.Equal(t, "financial", result.Schema.DatasetType)

	assert.Equal(t, "ok", result.StatusHint)
	assert.GreaterOrEqual(t, result.Confidence, 0.65)
}

func TestTablePIIDetectionAndMasking(t *testing.T) {
	rows := [][]string{
		{"Customer Email", "Contact"},
		{"ana@example.com", "reach Ana at +40 721 123 456"},
		{"ion@example.com", "ask reception"},
		{"maria@example.com", "see front desk"},
	}

	detected, err := Table(rows, 0, Options{DecimalStyle: coerce.DecimalAuto})
	require.NoError(t, err)
	assert.True(t, detected.PII.Email)
	assert.True(t, detected.PII.Phone)
	assert.Equal(t, "ana@example.com", detected.Rows[0]["customer_email"])

	masked, err := Table(rows, 0, Options{DecimalStyle: coerce.DecimalAuto, MaskPII: true})
	require.NoError(t, err)
	assert.Equal(t, "a*a@example.com", masked.Rows[0]["customer_email"])
	assert.Equal(t, "reach Ana at *********56", masked.Rows[0]["contact"])
	// flags reflect what the source carried, not the masked output
	assert.True(t, masked.PII.Email)
}

func TestTableAliasPrecedence(t *testing.T) {
	rows := [][]string{
		{"Suma"},
		{"10"},
		{"20"},
	}

	rule := &rules.Rule{
		Name:          "acme",
		ColumnAliases: map[string]string{"Suma": "grand_total"},
		DatasetType:   "orders",
	}
	predicted := map[string]string{"suma": "predicted_total"}

	result, err := Table(rows, 0, Options{
		DecimalStyle:     coerce.DecimalAuto,
		Rule:             rule,
		PredictedAliases: predicted,
	})
	require.NoError(t, err)

	assert.Equal(t, "grand_total", result.Schema.Aliases["suma"])
	assert.Equal(t, "orders", result.Schema.DatasetType)
	assert.Contains(t, result.Notes, "aliases_from_heuristic")
	assert.Contains(t, result.Notes, "aliases_from_llm")
	assert.Contains(t, result.Notes, "aliases_from_rules")
}

func TestTableNoRows(t *testing.T) {
	_, err := Table([][]string{{"a", "b"}}, 0, Options{})
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = Table(nil, 0, Options{})
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestTableLowConfidenceHint(t *testing.T) {
	rows := [][]string{
		{"col_a", "col_b"},
		{"alpha", "beta"},
		{"gamma", "delta"},
	}

	result, err := Table(rows, 0, Options{DecimalStyle: coerce.DecimalAuto})
	require.NoError(t, err)
	assert.Equal(t, "parsed_with_low_confidence", result.StatusHint)
	assert.Equal(t, 0.5, result.Confidence)
}
