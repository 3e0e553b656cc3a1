package coerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumberCurrencyThousandsPercent(t *testing.T) {
	cases := []struct {
		input string
		want  float64
	}{
		{"1.234,56 lei", 1234.56},
		{"12,345.67", 12345.67},
		{"10%", 0.10},
		{"€ 1 234,50", 1234.50},
		{"1'234.5", 1234.5},
		{"-42", -42},
		{"+3.14", 3.14},
		{"7", 7},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.input, DecimalAuto)
		assert.True(t, ok, "input %q", tc.input)
		assert.InDelta(t, tc.want, got, 1e-6, "input %q", tc.input)
	}
}

func TestParseNumberRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", ".", "+", "-", "lei", "%"} {
		_, ok := ParseNumber(input, DecimalAuto)
		assert.False(t, ok, "input %q", input)
	}
}

func TestParseNumberLoneCommaIsDecimal(t *testing.T) {
	got, ok := ParseNumber("1,234", DecimalAuto)
	assert.True(t, ok)
	assert.InDelta(t, 1.234, got, 1e-6)
}

func TestParseNumberDecimalHintOverridesInference(t *testing.T) {
	got, ok := ParseNumber("1.234,50", DecimalComma)
	assert.True(t, ok)
	assert.InDelta(t, 1234.50, got, 1e-6)

	got, ok = ParseNumber("1.234", DecimalDot)
	assert.True(t, ok)
	assert.InDelta(t, 1.234, got, 1e-6)

	got, ok = ParseNumber("1,234", DecimalDot)
	assert.True(t, ok)
	assert.InDelta(t, 1234, got, 1e-6)
}

