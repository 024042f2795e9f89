package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/quadralab/quadra"
)

// displayRowCap bounds how many result rows are rendered for the model.
const displayRowCap = 20

// sampleSchema mirrors the simulated sales data the original pipeline
// reconciles. Each query runs against a fresh in-memory database, so no
// state leaks between calls or runs.
const sampleSchema = `
CREATE TABLE vendite (
    id_vendita INTEGER PRIMARY KEY,
    data_vendita TEXT,
    id_cliente INTEGER,
    nome_cliente TEXT,
    cognome_cliente TEXT,
    regione TEXT,
    id_prodotto INTEGER,
    nome_prodotto TEXT,
    categoria TEXT,
    quantita INTEGER,
    prezzo_unitario REAL,
    sconto INTEGER
)`

var sampleRows = [][]any{
	{1, "2025-01-15", 101, "Mario", "Rossi", "Lombardia", 201, "Prodotto A", "Cat1", 5, 100.00, 10},
	{2, "2025-01-15", 102, "Luigi", "Verdi", "Lazio", 202, "Prodotto B", "Cat2", 3, 150.50, 5},
	{3, "2025-01-15", 103, "Anna", "Bianchi", "Piemonte", 203, "Prodotto C", "Cat1", 10, 75.25, 15},
	{4, "2025-01-15", 101, "Mario", "Rossi", "Lombardia", 204, "Prodotto D", "Cat3", 2, 200.00, 0},
}

// ExecuteSQLQuery runs a read-only query against an in-memory SQLite
// database seeded with sample sales data. A SELECT without a row cap
// gets one appended (the tool-local auto-remediation; the loop-level
// rejection for the declared execute-query tool fires before this code
// ever runs). Results are rendered as an aligned text table capped at
// displayRowCap rows.
func ExecuteSQLQuery(
	ctx context.Context,
	query, purpose string,
	createSampleData bool,
	maxRows int,
) (string, error) {
	query, autoLimited := quadra.EnsureRowLimit(query, maxRows)

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return "", fmt.Errorf("open in-memory database: %w", err)
	}
	defer db.Close()

	if createSampleData {
		if err := seedSampleData(ctx, db); err != nil {
			return "", err
		}
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("SQL error for %q: %w", purpose, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("read result columns: %w", err)
	}

	var rendered [][]string
	for rows.Next() {
		values := make([]any, len(columns))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return "", fmt.Errorf("scan result row: %w", err)
		}
		cells := make([]string, len(columns))
		for i, v := range values {
			cells[i] = renderCell(*(v.(*any)))
		}
		rendered = append(rendered, cells)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate result rows: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query executed: %s\n", purpose)
	if autoLimited {
		fmt.Fprintf(&sb, "(LIMIT %d appended automatically for safety)\n", maxRows)
	}
	fmt.Fprintf(&sb, "\nSQL query:\n%s\n\nResults (%d rows):\n", query, len(rendered))

	if len(columns) > 0 {
		header := strings.Join(columns, " | ")
		sb.WriteString("\n" + header + "\n")
		sb.WriteString(strings.Repeat("-", len(header)) + "\n")
		limit := len(rendered)
		if limit > displayRowCap {
			limit = displayRowCap
		}
		for _, cells := range rendered[:limit] {
			sb.WriteString(strings.Join(cells, " | ") + "\n")
		}
		if len(rendered) > displayRowCap {
			fmt.Fprintf(&sb, "\n... and %d more rows", len(rendered)-displayRowCap)
		}
	} else {
		sb.WriteString("(no results)")
	}

	return sb.String(), nil
}

func seedSampleData(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sampleSchema); err != nil {
		return fmt.Errorf("create sample table: %w", err)
	}
	const insert = `INSERT INTO vendite VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
	for _, row := range sampleRows {
		if _, err := db.ExecContext(ctx, insert, row...); err != nil {
			return fmt.Errorf("insert sample row: %w", err)
		}
	}
	return nil
}

func renderCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		// Trim trailing zeros so 100.00 renders as 100 consistently.
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", x), "0"), ".")
	default:
		return fmt.Sprintf("%v", x)
	}
}
