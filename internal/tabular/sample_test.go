package tabular

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoadCSVSniffsSemicolon(t *testing.T) {
	raw := []byte("date;client;amount\n2024-01-01;Acme;10,5\n2024-01-02;Globex;11,0\n")
	sample, err := Load(raw, "invoices.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, sample.DetectedFormat)
	assert.Equal(t, ';', sample.Delimiter)
	assert.Equal(t, "utf-8", sample.Encoding)
	require.Len(t, sample.SampleRows, 3)
	assert.Equal(t, []string{"date", "client", "amount"}, sample.SampleRows[0])
}

func TestLoadRespectsSampleLimit(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("a,b\n")
	for i := 0; i < 100; i++ {
		buf.WriteString("1,2\n")
	}
	sample, err := Load(buf.Bytes(), "big.csv", Options{SampleLimit: 10})
	require.NoError(t, err)
	assert.Len(t, sample.SampleRows, 10)

	rows, err := sample.AllRows()
	require.NoError(t, err)
	assert.Len(t, rows, 101)
}

func TestLoadRejectsOversized(t *testing.T) {
	_, err := Load([]byte("a,b\n1,2\n"), "x.csv", Options{MaxSizeBytes: 3})
	assert.ErrorIs(t, err, ErrSizeExceeded)
}

func TestLoadRejectsUnsupported(t *testing.T) {
	_, err := Load([]byte{0xD0, 0xCF, 0x11, 0xE0, 0x00}, "legacy.xls", Options{})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Load([]byte{0x00, 0x01, 0x02}, "mystery.bin", Options{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestLoadXLSXPicksDensestSheet(t *testing.T) {
	wb := excelize.NewFile()
	sparse, err := wb.NewSheet("Sparse")
	require.NoError(t, err)
	_ = sparse
	require.NoError(t, wb.SetCellValue("Sparse", "A1", "x"))

	_, err = wb.NewSheet("Data")
	require.NoError(t, err)
	require.NoError(t, wb.SetSheetRow("Data", "A1", &[]interface{}{"date", "client", "amount"}))
	require.NoError(t, wb.SetSheetRow("Data", "A2", &[]interface{}{"2024-01-01", "Acme", 10.5}))
	require.NoError(t, wb.SetSheetRow("Data", "A3", &[]interface{}{"2024-01-02", "Globex", 11.0}))

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	sample, err := Load(buf.Bytes(), "report.xlsx", Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, sample.DetectedFormat)
	require.NotNil(t, sample.Sheet)
	assert.Equal(t, "Data", sample.Sheet.Name)
	require.NotEmpty(t, sample.SampleRows)
	assert.Equal(t, "date", sample.SampleRows[0][0])
}

func TestLoadXLSXExplicitSheet(t *testing.T) {
	wb := excelize.NewFile()
	_, err := wb.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, wb.SetCellValue("Other", "A1", "only"))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]interface{}{"a", "b", "c"}))

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	sample, err := Load(buf.Bytes(), "report.xlsx", Options{SheetName: "Other"})
	require.NoError(t, err)
	require.NotNil(t, sample.Sheet)
	assert.Equal(t, "Other", sample.Sheet.Name)
}

func TestDecodeTextWindows1252Fallback(t *testing.T) {
	raw := []byte("client,amount\nM\xfcnchen,5\n") // ü in latin-1
	sample, err := Load(raw, "latin.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", sample.Encoding)
	assert.Equal(t, "München", sample.SampleRows[1][0])
}
