package quadra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	rates := RateTable{InputPer1K: 0.003, OutputPer1K: 0.015}

	tests := []struct {
		name     string
		usage    Usage
		expected float64
	}{
		{
			name:     "one thousand tokens each side",
			usage:    Usage{InputTokens: 1000, OutputTokens: 1000},
			expected: 0.018,
		},
		{
			name:     "zero usage costs nothing",
			usage:    Usage{},
			expected: 0,
		},
		{
			name:     "input only",
			usage:    Usage{InputTokens: 500},
			expected: 0.0015,
		},
		{
			name:     "negative counts are treated as zero",
			usage:    Usage{InputTokens: -100, OutputTokens: 1000},
			expected: 0.015,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, EstimateCost(tc.usage, rates), 1e-12)
		})
	}
}

func TestDefaultRateTable(t *testing.T) {
	rates := DefaultRateTable()
	assert.Equal(t, 0.003, rates.InputPer1K)
	assert.Equal(t, 0.015, rates.OutputPer1K)
}
