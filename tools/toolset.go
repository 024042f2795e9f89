package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/quadralab/quadra"
	"github.com/quadralab/quadra/schema"
)

// Config assembles the standard toolset for one run.
type Config struct {
	// WorkspaceRoot is the directory holding Codice/, BRB/ and
	// Quadrature/ subtrees.
	WorkspaceRoot string

	// Runner executes model-written code. Nil disables the
	// execute_code tool's backend (the tool still exists and returns a
	// structured error, so the model learns it is unavailable).
	Runner Runner

	// SQLMaxRows is the row cap the query tool appends to uncapped
	// SELECTs. Zero disables the auto-fix.
	SQLMaxRows int
}

// NewToolset builds the fixed registry of diagnostic tools, in the order
// the model sees them. The returned registry and the Workspace cache
// behind the read tools are scoped to one run.
func NewToolset(cfg Config) *quadra.Registry {
	ws := NewWorkspace(cfg.WorkspaceRoot)
	runner := cfg.Runner
	if runner == nil {
		runner = DisabledRunner{}
	}

	registry := quadra.NewRegistry()

	registry.Register(quadra.NewToolFunc(
		"read_sql_code",
		"Reads the SQL code of a specific ETL. Use this when you need to see the code under analysis.",
		schema.Object(map[string]*schema.Property{
			"etl_name": schema.String("Name of the ETL (e.g. 'etl_vendite', 'etl_ordini')"),
		}, "etl_name"),
		func(ctx context.Context, args map[string]any) (any, error) {
			return ws.ReadSQL(stringArg(args, "etl_name"))
		},
	))

	registry.Register(quadra.NewToolFunc(
		"read_brb_requirements",
		"Reads the Business Requirements Baseline (BRB) of an ETL. Contains business rules, KPIs, sources and targets. Use this when you need to understand the requirements.",
		schema.Object(map[string]*schema.Property{
			"etl_name": schema.String("Name of the ETL"),
		}, "etl_name"),
		func(ctx context.Context, args map[string]any) (any, error) {
			return ws.ReadBRB(stringArg(args, "etl_name"))
		},
	))

	registry.Register(quadra.NewToolFunc(
		"read_quadratura_results",
		"Reads the quadratura results (old vs new workflow comparison). Shows match %, squadrature and fields with differences. Use this to understand which problems exist.",
		schema.Object(map[string]*schema.Property{
			"etl_name": schema.String("Name of the ETL"),
		}, "etl_name"),
		func(ctx context.Context, args map[string]any) (any, error) {
			return ws.ReadQuadratura(stringArg(args, "etl_name"))
		},
	))

	registry.Register(quadra.NewToolFunc(
		"list_available_etls",
		"Lists all ETLs available for analysis. Use this if you don't know which ETL to analyze or want to see what is available.",
		nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			etls, err := ws.ListETLs()
			if err != nil {
				return nil, err
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "ETLs available for analysis (%d):\n", len(etls))
			for _, etl := range etls {
				fmt.Fprintf(&sb, "- %s\n", etl)
			}
			return sb.String(), nil
		},
	))

	registry.Register(quadra.NewToolFunc(
		"analyze_code_section",
		"Analyzes a specific section of SQL code in detail. Use this when you have identified a problematic area and want a closer look.",
		schema.Object(map[string]*schema.Property{
			"code_section": schema.String("Section of code to analyze"),
			"context":      schema.String("Context or what to look for (e.g. 'quantity validation', 'amount calculation')"),
		}, "code_section", "context"),
		func(ctx context.Context, args map[string]any) (any, error) {
			return AnalyzeCodeSection(
				stringArg(args, "code_section"),
				stringArg(args, "context"),
			), nil
		},
	))

	registry.Register(quadra.NewToolFunc(
		"validate_sql_syntax",
		"Validates the syntax of proposed SQL code. Use this to check that corrected code is syntactically plausible.",
		schema.Object(map[string]*schema.Property{
			"sql_code": schema.String("SQL code to validate"),
		}, "sql_code"),
		func(ctx context.Context, args map[string]any) (any, error) {
			return ValidateSQLSyntax(stringArg(args, "sql_code")), nil
		},
	))

	registry.Register(quadra.NewToolFunc(
		"execute_code",
		"Executes custom code in a sandbox when the predefined tools are not enough. IMPORTANT: use only when necessary. Returns the program's output as text.",
		schema.Object(map[string]*schema.Property{
			"code":    schema.String("Code to execute in the sandbox"),
			"purpose": schema.String("Short description of what the code does (for logging)"),
		}, "code", "purpose"),
		func(ctx context.Context, args map[string]any) (any, error) {
			out, err := runner.Run(ctx, stringArg(args, "code"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf(
				"Execution completed: %s\n\nOutput:\n%s",
				stringArg(args, "purpose"), emptyAs(out, "(no output)"),
			), nil
		},
	))

	registry.Register(quadra.NewToolFunc(
		"execute_sql_query",
		"Executes a SQL query against an in-memory test database (SQLite) with simulated sample data. Use this to test queries, validate hypotheses about the data, or verify proposed changes. IMPORTANT: queries must be READ-ONLY (SELECT only) and MUST include LIMIT (e.g. LIMIT 100); queries without LIMIT are rejected.",
		schema.Object(map[string]*schema.Property{
			"query":              schema.String("SQL query to execute (SELECT only, MUST include LIMIT)"),
			"purpose":            schema.String("What you want to test or verify with this query"),
			"create_sample_data": schema.Boolean("If true, creates sample data before running the query").Default(true),
		}, "query", "purpose"),
		func(ctx context.Context, args map[string]any) (any, error) {
			createSample := true
			if v, ok := args["create_sample_data"].(bool); ok {
				createSample = v
			}
			return ExecuteSQLQuery(
				ctx,
				stringArg(args, "query"),
				stringArg(args, "purpose"),
				createSample,
				cfg.SQLMaxRows,
			)
		},
	))

	return registry
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func emptyAs(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
