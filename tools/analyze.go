package tools

import (
	"fmt"
	"strings"
)

// AnalyzeCodeSection produces quick static observations about a SQL
// fragment: concatenations, unrounded numeric math, filters and joins.
// Heuristics only; the model draws the conclusions.
func AnalyzeCodeSection(codeSection, context string) string {
	upper := strings.ToUpper(codeSection)
	lines := strings.Split(codeSection, "\n")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Detailed analysis of the code section:\nContext: %s\nLines of code: %d\n\nObservations:\n",
		context, len(lines))

	if strings.Contains(upper, "CONCAT") {
		sb.WriteString("- String concatenation found (CONCAT)\n")
	}
	if !strings.Contains(upper, "ROUND") &&
		(strings.Contains(codeSection, "*") || strings.Contains(codeSection, "/")) {
		sb.WriteString("- Numeric calculations without explicit rounding\n")
	}
	if strings.Contains(upper, "WHERE") {
		sb.WriteString("- WHERE clause present (filter)\n")
	}
	if strings.Contains(upper, "JOIN") {
		sb.WriteString("- JOIN present\n")
	}

	fmt.Fprintf(&sb, "\n--- ANALYZED CODE ---\n%s\n--- END ---", codeSection)
	return sb.String()
}

// ValidateSQLSyntax runs a shallow syntax sanity check over proposed SQL:
// balanced parentheses, a recognizable main keyword, trailing semicolon.
// It does not parse the grammar.
func ValidateSQLSyntax(sqlCode string) string {
	var issues []string

	if strings.Count(sqlCode, "(") != strings.Count(sqlCode, ")") {
		issues = append(issues, "Unbalanced parentheses")
	}

	upper := strings.ToUpper(sqlCode)
	if !strings.Contains(upper, "SELECT") &&
		!strings.Contains(upper, "CREATE") &&
		!strings.Contains(upper, "INSERT") {
		issues = append(issues, "No main SQL keyword found")
	}

	if !strings.HasSuffix(strings.TrimSpace(sqlCode), ";") {
		issues = append(issues, "Missing trailing semicolon (recommended)")
	}

	if len(issues) == 0 {
		return "SQL syntax looks valid (basic validation)"
	}

	var sb strings.Builder
	sb.WriteString("Syntax problems detected:\n")
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s\n", issue)
	}
	return sb.String()
}
