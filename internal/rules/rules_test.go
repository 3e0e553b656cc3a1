package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRule(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadMatchingPicksHighestScore(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "invoices.yaml", `
match:
  filenames: [invoice, factura]
  columns: [invoice_number, total]
column_aliases:
  valoare_totala: amount
dataset_type: financial
`)
	writeRule(t, dir, "orders.yaml", `
match:
  filenames: [order]
dataset_type: orders
`)

	rule, notes := LoadMatching(dir, "factura_2024.csv", "", []string{"invoice_number", "client"})
	require.NotNil(t, rule)
	assert.Equal(t, "invoices", rule.Name)
	assert.Equal(t, "financial", rule.DatasetType)
	assert.Equal(t, "amount", rule.ColumnAliases["valoare_totala"])
	assert.Contains(t, notes, "rule_selected:invoices")
}

func TestLoadMatchingHintToken(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "erp.yaml", `
match:
  hints: [erp-export]
dataset_type: orders
`)

	rule, _ := LoadMatching(dir, "data.csv", "monthly erp-export feed", nil)
	require.NotNil(t, rule)
	assert.Equal(t, "erp", rule.Name)
}

func TestLoadMatchingDefaultFallback(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "default.yaml", `
dataset_type: unknown
`)
	writeRule(t, dir, "invoices.yaml", `
match:
  filenames: [invoice]
`)

	rule, notes := LoadMatching(dir, "mystery.csv", "", nil)
	require.NotNil(t, rule)
	assert.Equal(t, DefaultName, rule.Name)
	assert.Contains(t, notes, "default_rule_applied")
}

func TestLoadMatchingNoRule(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "invoices.yaml", `
match:
  filenames: [invoice]
`)

	rule, _ := LoadMatching(dir, "mystery.csv", "", nil)
	assert.Nil(t, rule)
}

func TestLoadMatchingMissingDirectory(t *testing.T) {
	rule, notes := LoadMatching(filepath.Join(t.TempDir(), "absent"), "x.csv", "", nil)
	assert.Nil(t, rule)
	assert.Contains(t, notes, "rules_directory_missing")
}

func TestLoadMatchingInvalidFileNoted(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "broken.yaml", "match: [не yaml map")
	writeRule(t, dir, "good.yaml", `
match:
  filenames: [good]
`)

	rule, notes := LoadMatching(dir, "good_data.csv", "", nil)
	require.NotNil(t, rule)
	assert.Equal(t, "good", rule.Name)
	assert.Contains(t, notes, "rule_invalid:broken.yaml")
}

func TestColumnOverlapCapped(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "wide.yaml", `
match:
  columns: [c1, c2, c3, c4, c5, c6]
`)

	rule, _ := LoadMatching(dir, "x.csv", "", []string{"c1", "c2", "c3", "c4", "c5", "c6"})
	require.NotNil(t, rule)
}

func TestListNames(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "b.yaml", "dataset_type: orders\n")
	writeRule(t, dir, "a.yml", "dataset_type: financial\n")

	assert.Equal(t, []string{"a", "b"}, ListNames(dir))
	assert.Nil(t, ListNames(filepath.Join(dir, "absent")))
}
