package quadra

import (
	"fmt"
	"strings"
)

// EnsureRowLimit appends "LIMIT maxRows" to a SELECT query that lacks a
// row cap. It returns the (possibly rewritten) query and whether a
// rewrite happened.
//
// This is the tool-local auto-remediation policy: a last line of defense
// inside the query-execution tool. It is independent from
// [LimitPolicy.ValidateSQL] — when the loop is configured to require a
// LIMIT, its hard rejection fires before the tool ever runs, and this
// function only matters for callers that invoke the tool directly.
func EnsureRowLimit(query string, maxRows int) (string, bool) {
	if maxRows <= 0 {
		return query, false
	}
	tokens := sqlTokens(query)
	if tokens["LIMIT"] || !tokens["SELECT"] {
		return query, false
	}
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	trimmed = strings.TrimRight(trimmed, " \t\r\n")
	return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows), true
}
