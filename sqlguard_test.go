package quadra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureRowLimit(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		maxRows   int
		expected  string
		rewritten bool
	}{
		{
			name:      "select without limit gets one appended",
			query:     "SELECT * FROM vendite",
			maxRows:   1000,
			expected:  "SELECT * FROM vendite LIMIT 1000",
			rewritten: true,
		},
		{
			name:      "trailing semicolon is stripped before appending",
			query:     "SELECT regione FROM vendite;",
			maxRows:   50,
			expected:  "SELECT regione FROM vendite LIMIT 50",
			rewritten: true,
		},
		{
			name:      "existing limit left alone",
			query:     "SELECT * FROM vendite LIMIT 10",
			maxRows:   1000,
			expected:  "SELECT * FROM vendite LIMIT 10",
			rewritten: false,
		},
		{
			name:      "non-select left alone",
			query:     "PRAGMA table_info(vendite)",
			maxRows:   1000,
			expected:  "PRAGMA table_info(vendite)",
			rewritten: false,
		},
		{
			name:      "zero max rows disables the rewrite",
			query:     "SELECT * FROM vendite",
			maxRows:   0,
			expected:  "SELECT * FROM vendite",
			rewritten: false,
		},
		{
			name:      "lowercase select is recognized",
			query:     "select 1",
			maxRows:   5,
			expected:  "select 1 LIMIT 5",
			rewritten: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, rewritten := EnsureRowLimit(tc.query, tc.maxRows)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, tc.rewritten, rewritten)
		})
	}
}
