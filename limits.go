package quadra

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// LimitKind identifies which threshold a [Violation] refers to.
type LimitKind string

const (
	LimitIterations        LimitKind = "iterations"
	LimitModelCalls        LimitKind = "model_calls"
	LimitCost              LimitKind = "cost"
	LimitTimeout           LimitKind = "timeout"
	LimitToolQuota         LimitKind = "tool_quota"
	LimitSQLBlockedKeyword LimitKind = "sql_blocked_keyword"
	LimitSQLMissingLimit   LimitKind = "sql_missing_limit"
)

// Violation describes a crossed threshold. The check functions on
// [LimitPolicy] return a *Violation (nil means within budget) rather than
// panicking, so the loop's branching stays explicit.
type Violation struct {
	// Kind identifies the limit that was crossed.
	Kind LimitKind

	// Tool is the tool name, set when Kind is LimitToolQuota.
	Tool string

	// Keyword is the offending SQL keyword, set when Kind is
	// LimitSQLBlockedKeyword.
	Keyword string

	// Message is a human-readable explanation.
	Message string
}

// Error implements the error interface so a Violation can be wrapped or
// logged like any other error.
func (v *Violation) Error() string {
	return v.Message
}

// LimitPolicy is the immutable safety configuration for one run.
//
// Use [DefaultLimitPolicy] as a starting point. A zero or negative
// threshold disables that limit, except MaxIterations: zero aborts the
// run immediately (a run that may not iterate performs no work) and a
// negative value disables the check.
type LimitPolicy struct {
	// MaxIterations bounds loop iterations.
	MaxIterations int

	// MaxModelCalls bounds calls to the model backend.
	MaxModelCalls int

	// MaxTotalCost bounds the estimated spend in dollars.
	MaxTotalCost float64

	// MaxElapsed bounds wall-clock time for the whole run.
	MaxElapsed time.Duration

	// ToolCallLimits maps tool name to its per-run call quota.
	// Tools absent from the map are unbounded; rely on MaxIterations
	// and MaxTotalCost to contain them.
	ToolCallLimits map[string]int

	// SQLMaxRows is the row cap appended by [EnsureRowLimit].
	SQLMaxRows int

	// SQLRequireRowLimit rejects queries without a LIMIT clause.
	SQLRequireRowLimit bool

	// SQLBlockedKeywords lists mutating keywords that reject a query
	// outright. Matched case-insensitively as whole tokens.
	SQLBlockedKeywords []string
}

// DefaultLimitPolicy returns the production defaults: a short, cheap
// investigation with tight quotas on the expensive tools.
func DefaultLimitPolicy() LimitPolicy {
	return LimitPolicy{
		MaxIterations: 15,
		MaxModelCalls: 20,
		MaxTotalCost:  2.0,
		MaxElapsed:    120 * time.Second,
		ToolCallLimits: map[string]int{
			"execute_sql_query":       5,
			"execute_code":            3,
			"read_sql_code":           2,
			"read_brb_requirements":   2,
			"read_quadratura_results": 2,
		},
		SQLMaxRows:         10000,
		SQLRequireRowLimit: true,
		SQLBlockedKeywords: []string{
			"DELETE", "DROP", "TRUNCATE", "UPDATE", "INSERT", "ALTER",
		},
	}
}

// CheckGlobal verifies the run-wide limits against a stats snapshot.
// Checks run in a fixed order (iterations, model calls, cost, elapsed
// time) and the first crossed threshold wins. Pure: the same snapshot
// always yields the same verdict.
func (p LimitPolicy) CheckGlobal(snap StatsSnapshot) *Violation {
	if p.MaxIterations >= 0 && snap.Iterations >= p.MaxIterations {
		return &Violation{
			Kind: LimitIterations,
			Message: fmt.Sprintf(
				"max iterations reached (%d/%d)",
				snap.Iterations, p.MaxIterations,
			),
		}
	}
	if p.MaxModelCalls > 0 && snap.ModelCalls >= p.MaxModelCalls {
		return &Violation{
			Kind: LimitModelCalls,
			Message: fmt.Sprintf(
				"max model calls reached (%d/%d)",
				snap.ModelCalls, p.MaxModelCalls,
			),
		}
	}
	if p.MaxTotalCost > 0 && snap.TotalCost >= p.MaxTotalCost {
		return &Violation{
			Kind: LimitCost,
			Message: fmt.Sprintf(
				"cost budget exceeded ($%.4f/$%.2f)",
				snap.TotalCost, p.MaxTotalCost,
			),
		}
	}
	if p.MaxElapsed > 0 && snap.Elapsed >= p.MaxElapsed {
		return &Violation{
			Kind: LimitTimeout,
			Message: fmt.Sprintf(
				"time budget exceeded (%.0fs/%.0fs)",
				snap.Elapsed.Seconds(), p.MaxElapsed.Seconds(),
			),
		}
	}
	return nil
}

// CheckTool verifies the per-tool quota for one tool against a stats
// snapshot. Tools without a configured quota are unbounded.
func (p LimitPolicy) CheckTool(name string, snap StatsSnapshot) *Violation {
	limit, ok := p.ToolCallLimits[name]
	if !ok {
		return nil
	}
	if current := snap.ToolCallCount(name); current >= limit {
		return &Violation{
			Kind: LimitToolQuota,
			Tool: name,
			Message: fmt.Sprintf(
				"tool %q call limit reached (%d/%d)",
				name, current, limit,
			),
		}
	}
	return nil
}

// ValidateSQL inspects a candidate query before the execute-query tool is
// invoked. It rejects queries containing a blocked keyword as a token,
// then queries missing a LIMIT clause when SQLRequireRowLimit is set.
//
// This is a keyword scan, not a SQL parser. It blocks the obvious
// mutating statements; it is not a guarantee against obfuscated
// injection. The auto-remediation in [EnsureRowLimit] is a separate,
// tool-local policy; this loop-level rejection runs first.
func (p LimitPolicy) ValidateSQL(query string) *Violation {
	tokens := sqlTokens(query)
	for _, kw := range p.SQLBlockedKeywords {
		if tokens[strings.ToUpper(kw)] {
			return &Violation{
				Kind:    LimitSQLBlockedKeyword,
				Keyword: strings.ToUpper(kw),
				Message: fmt.Sprintf(
					"query contains blocked keyword %s", strings.ToUpper(kw),
				),
			}
		}
	}
	if p.SQLRequireRowLimit && !tokens["LIMIT"] {
		return &Violation{
			Kind: LimitSQLMissingLimit,
			Message: fmt.Sprintf(
				"query must include a LIMIT clause (max %d rows)", p.SQLMaxRows,
			),
		}
	}
	return nil
}

// sqlTokens splits a query into uppercased word tokens. Identifiers keep
// letters, digits and underscores; everything else separates.
func sqlTokens(query string) map[string]bool {
	tokens := make(map[string]bool)
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			tokens[strings.ToUpper(sb.String())] = true
			sb.Reset()
		}
	}
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
