package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureSQL = `CREATE TABLE clean_vendite AS
SELECT
    id_vendita,
    CONCAT(nome_cliente, ' ', cognome_cliente) AS cliente,
    quantita * prezzo_unitario AS importo_lordo
FROM vendite
WHERE quantita > 0;
`

const fixtureBRB = `etl: etl_vendite
version: "2.1"
owner: Team Vendite
frequency: daily
objective: Clean and enrich raw sales records
business_rules:
  - id: BR001
    criticality: CRITICAL
    description: Gross amount is quantity times unit price
    formula: importo_lordo = quantita * prezzo_unitario
  - id: BR002
    criticality: HIGH
    description: Customer name is first plus last name
kpis:
  - id: KPI001
    description: Record match rate against the old workflow
    metric: match_percentage
    threshold: ">= 99.5%"
`

const fixtureQuadratura = `etl: etl_vendite
match_percentage: 97.2
total_old: 1000
total_new: 998
records_match: 972
records_only_old: 2
records_only_new: 0
different_fields:
  - id: "15"
    field: importo_lordo
    old_value: "500.00"
    new_value: "500"
    difference_type: rounding
  - id: "33"
    field: importo_lordo
    old_value: "451.50"
    new_value: "452"
    difference_type: rounding
  - id: "77"
    field: cliente
    old_value: "Mario Rossi"
    new_value: "Mario  Rossi"
    difference_type: formatting
squadrature:
  - type: missing_in_new
    id: "421"
    description: Record present only in the old workflow
  - type: missing_in_new
    id: "856"
    description: Record present only in the old workflow
`

// newFixtureWorkspace lays out the directory tree the readers expect.
func newFixtureWorkspace(t *testing.T) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()

	write := func(parts []string, content string) {
		path := filepath.Join(append([]string{root}, parts...)...)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write([]string{"Codice", "etl_vendite", "etl_vendite.sql"}, fixtureSQL)
	write([]string{"Codice", "etl_ordini", "etl_ordini.sql"}, "SELECT 1;")
	write([]string{"BRB", "etl_vendite", "brb.yaml"}, fixtureBRB)
	write([]string{"Quadrature", "etl_vendite", "quadratura.yaml"}, fixtureQuadratura)

	return NewWorkspace(root), root
}

func TestListETLs(t *testing.T) {
	ws, _ := newFixtureWorkspace(t)

	etls, err := ws.ListETLs()
	require.NoError(t, err)
	assert.Equal(t, []string{"etl_ordini", "etl_vendite"}, etls)
}

func TestListETLsMissingRoot(t *testing.T) {
	ws := NewWorkspace(filepath.Join(t.TempDir(), "nope"))
	_, err := ws.ListETLs()
	assert.Error(t, err)
}

func TestReadSQL(t *testing.T) {
	ws, _ := newFixtureWorkspace(t)

	out, err := ws.ReadSQL("etl_vendite")
	require.NoError(t, err)
	assert.Contains(t, out, "SQL code for etl_vendite")
	assert.Contains(t, out, "CONCAT(nome_cliente")
	assert.Contains(t, out, "--- END CODE ---")

	_, err = ws.ReadSQL("etl_inesistente")
	assert.Error(t, err)
}

func TestReadSQLCaches(t *testing.T) {
	ws, root := newFixtureWorkspace(t)

	first, err := ws.ReadSQL("etl_vendite")
	require.NoError(t, err)

	// Removing the file proves the second read comes from the cache.
	require.NoError(t, os.Remove(
		filepath.Join(root, "Codice", "etl_vendite", "etl_vendite.sql")))

	second, err := ws.ReadSQL("etl_vendite")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReadBRB(t *testing.T) {
	ws, _ := newFixtureWorkspace(t)

	out, err := ws.ReadBRB("etl_vendite")
	require.NoError(t, err)
	assert.Contains(t, out, "Business Requirements Baseline for etl_vendite")
	assert.Contains(t, out, "Owner: Team Vendite")
	assert.Contains(t, out, "BUSINESS RULES (2 rules):")
	assert.Contains(t, out, "BR001 [CRITICAL]: Gross amount is quantity times unit price")
	assert.Contains(t, out, "Formula: importo_lordo = quantita * prezzo_unitario")
	assert.Contains(t, out, "KPIS AND THRESHOLDS (1 KPIs):")
	assert.Contains(t, out, "Threshold: >= 99.5%")

	// BR002 has no formula; the line must not appear empty.
	assert.NotContains(t, out, "Formula: \n")
}

func TestReadBRBErrors(t *testing.T) {
	ws, root := newFixtureWorkspace(t)

	_, err := ws.ReadBRB("etl_inesistente")
	assert.Error(t, err)

	broken := filepath.Join(root, "BRB", "etl_rotto", "brb.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(broken), 0o755))
	require.NoError(t, os.WriteFile(broken, []byte("etl: [unclosed"), 0o644))
	_, err = ws.ReadBRB("etl_rotto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse BRB")
}

func TestReadQuadratura(t *testing.T) {
	ws, _ := newFixtureWorkspace(t)

	out, err := ws.ReadQuadratura("etl_vendite")
	require.NoError(t, err)

	assert.Contains(t, out, "Quadratura results for etl_vendite")
	assert.Contains(t, out, "- Match: 97.2%")
	assert.Contains(t, out, "- Total records old: 1000")
	assert.Contains(t, out, "IDENTIFIED PROBLEMS (3 fields with differences):")

	// Differences are grouped by type, in first-seen order.
	assert.Contains(t, out, "- rounding (2 cases):")
	assert.Contains(t, out, "- formatting (1 cases):")
	assert.Contains(t, out, `Old: "500.00" -> New: "500"`)

	// difflib unified diff of the changed values.
	assert.Contains(t, out, "OLD VS NEW VALUES (unified diff):")
	assert.Contains(t, out, "--- old_workflow")
	assert.Contains(t, out, "+++ new_workflow")
	assert.Contains(t, out, "-15.importo_lordo: 500.00")
	assert.Contains(t, out, "+15.importo_lordo: 500")

	assert.Contains(t, out, "SQUADRATURE (2):")
	assert.Contains(t, out, "- missing_in_new: 421 - Record present only in the old workflow")
}

func TestReadQuadraturaCapsRenderedDiffs(t *testing.T) {
	root := t.TempDir()
	doc := "etl: etl_big\nmatch_percentage: 90\ndifferent_fields:\n"
	for i := 0; i < 8; i++ {
		doc += "  - id: \"" + string(rune('a'+i)) + "\"\n" +
			"    field: f\n    old_value: \"1\"\n    new_value: \"2\"\n" +
			"    difference_type: rounding\n"
	}
	path := filepath.Join(root, "Quadrature", "etl_big", "quadratura.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := NewWorkspace(root).ReadQuadratura("etl_big")
	require.NoError(t, err)

	assert.Contains(t, out, "- rounding (8 cases):")
	// Only the first 5 cases are listed per type.
	assert.Contains(t, out, "ID: e,")
	assert.NotContains(t, out, "ID: f,")
}
