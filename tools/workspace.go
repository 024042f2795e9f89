// Package tools implements the concrete diagnostic tools the agent may
// invoke: workspace readers for ETL code, requirements and quadratura
// reports, static SQL analysis, sandboxed code execution and an
// in-memory SQL playground.
//
// Everything here satisfies the tool contract consumed by the
// dispatcher: deterministic, JSON-serializable string results, errors
// returned as values. All caching is scoped to one [Workspace], which is
// built per run and discarded with it.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// Workspace reads investigation material from a local directory tree:
//
//	<root>/Codice/<etl>/<etl>.sql          ETL source code
//	<root>/BRB/<etl>/brb.yaml              business requirements baseline
//	<root>/Quadrature/<etl>/quadratura.yaml reconciliation report
//
// Reads are cached per Workspace so the model can re-request a document
// within a run without paying the read twice.
type Workspace struct {
	root string

	mu    sync.Mutex
	cache map[string]string
}

// NewWorkspace creates a Workspace rooted at dir.
func NewWorkspace(dir string) *Workspace {
	return &Workspace{
		root:  dir,
		cache: make(map[string]string),
	}
}

// cached returns the memoized value for key, computing it on a miss.
func (w *Workspace) cached(key string, compute func() (string, error)) (string, error) {
	w.mu.Lock()
	if v, ok := w.cache[key]; ok {
		w.mu.Unlock()
		return v, nil
	}
	w.mu.Unlock()

	v, err := compute()
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	w.cache[key] = v
	w.mu.Unlock()
	return v, nil
}

// ListETLs returns the ETL names that have source code in the workspace.
func (w *Workspace) ListETLs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, "Codice"))
	if err != nil {
		return nil, fmt.Errorf("list ETLs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadSQL returns a rendered view of the ETL's SQL source.
func (w *Workspace) ReadSQL(etlName string) (string, error) {
	return w.cached("sql:"+etlName, func() (string, error) {
		path := filepath.Join(w.root, "Codice", etlName, etlName+".sql")
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("SQL source for %q not found: %w", etlName, err)
		}
		return fmt.Sprintf(
			"SQL code for %s\nPath: %s\nLength: %d characters\n\n--- SQL CODE ---\n%s\n--- END CODE ---\n",
			etlName, path, len(b), string(b),
		), nil
	})
}

// BRBDocument is the business requirements baseline for one ETL.
type BRBDocument struct {
	ETL           string         `yaml:"etl"`
	Version       string         `yaml:"version"`
	Owner         string         `yaml:"owner"`
	Frequency     string         `yaml:"frequency"`
	Objective     string         `yaml:"objective"`
	BusinessRules []BusinessRule `yaml:"business_rules"`
	KPIs          []KPI          `yaml:"kpis"`
}

// BusinessRule is a single requirement with its criticality.
type BusinessRule struct {
	ID          string `yaml:"id"`
	Criticality string `yaml:"criticality"`
	Description string `yaml:"description"`
	Formula     string `yaml:"formula"`
}

// KPI is a monitored metric with its acceptance threshold.
type KPI struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Metric      string `yaml:"metric"`
	Threshold   string `yaml:"threshold"`
}

// ReadBRB parses and renders the requirements baseline for the ETL.
func (w *Workspace) ReadBRB(etlName string) (string, error) {
	return w.cached("brb:"+etlName, func() (string, error) {
		path := filepath.Join(w.root, "BRB", etlName, "brb.yaml")
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("BRB for %q not found: %w", etlName, err)
		}
		var doc BRBDocument
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return "", fmt.Errorf("parse BRB for %q: %w", etlName, err)
		}
		return renderBRB(&doc, path), nil
	})
}

func renderBRB(doc *BRBDocument, path string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business Requirements Baseline for %s\nPath: %s\n\n", doc.ETL, path)
	fmt.Fprintf(&sb, "ETL: %s\nVersion: %s\nOwner: %s\nFrequency: %s\nObjective: %s\n",
		doc.ETL, doc.Version, doc.Owner, doc.Frequency, doc.Objective)

	fmt.Fprintf(&sb, "\nBUSINESS RULES (%d rules):\n", len(doc.BusinessRules))
	for _, rule := range doc.BusinessRules {
		fmt.Fprintf(&sb, "\n%s [%s]: %s", rule.ID, rule.Criticality, rule.Description)
		if rule.Formula != "" {
			fmt.Fprintf(&sb, "\n  Formula: %s", rule.Formula)
		}
	}

	fmt.Fprintf(&sb, "\n\nKPIS AND THRESHOLDS (%d KPIs):\n", len(doc.KPIs))
	for _, kpi := range doc.KPIs {
		fmt.Fprintf(&sb, "\n%s: %s\n  Metric: %s\n  Threshold: %s",
			kpi.ID, kpi.Description, kpi.Metric, kpi.Threshold)
	}
	sb.WriteString("\n")
	return sb.String()
}

// QuadraturaReport compares the old and new pipeline outputs for one ETL.
type QuadraturaReport struct {
	ETL             string           `yaml:"etl"`
	MatchPercentage float64          `yaml:"match_percentage"`
	TotalOld        int              `yaml:"total_old"`
	TotalNew        int              `yaml:"total_new"`
	RecordsMatch    int              `yaml:"records_match"`
	RecordsOnlyOld  int              `yaml:"records_only_old"`
	RecordsOnlyNew  int              `yaml:"records_only_new"`
	DifferentFields []FieldDiff      `yaml:"different_fields"`
	Squadrature     []Reconciliation `yaml:"squadrature"`
}

// FieldDiff is one field whose value differs between old and new output.
type FieldDiff struct {
	ID             string `yaml:"id"`
	Field          string `yaml:"field"`
	OldValue       string `yaml:"old_value"`
	NewValue       string `yaml:"new_value"`
	DifferenceType string `yaml:"difference_type"`
}

// Reconciliation is a record present in only one of the two outputs.
type Reconciliation struct {
	Type        string `yaml:"type"`
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

// ReadQuadratura parses and renders the reconciliation report, including
// a unified diff of the changed values grouped by difference type.
func (w *Workspace) ReadQuadratura(etlName string) (string, error) {
	return w.cached("quadratura:"+etlName, func() (string, error) {
		path := filepath.Join(w.root, "Quadrature", etlName, "quadratura.yaml")
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("quadratura for %q not found: %w", etlName, err)
		}
		var report QuadraturaReport
		if err := yaml.Unmarshal(b, &report); err != nil {
			return "", fmt.Errorf("parse quadratura for %q: %w", etlName, err)
		}
		return renderQuadratura(&report, path)
	})
}

func renderQuadratura(report *QuadraturaReport, path string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quadratura results for %s\nPath: %s\n\n", report.ETL, path)
	fmt.Fprintf(&sb, "SUMMARY:\n")
	fmt.Fprintf(&sb, "- Match: %.1f%%\n", report.MatchPercentage)
	fmt.Fprintf(&sb, "- Total records old: %d\n", report.TotalOld)
	fmt.Fprintf(&sb, "- Total records new: %d\n", report.TotalNew)
	fmt.Fprintf(&sb, "- Records in match: %d\n", report.RecordsMatch)
	fmt.Fprintf(&sb, "- Records only in old: %d\n", report.RecordsOnlyOld)
	fmt.Fprintf(&sb, "- Records only in new: %d\n", report.RecordsOnlyNew)

	fmt.Fprintf(&sb, "\nIDENTIFIED PROBLEMS (%d fields with differences):\n",
		len(report.DifferentFields))

	byType := map[string][]FieldDiff{}
	var typeOrder []string
	for _, diff := range report.DifferentFields {
		if _, seen := byType[diff.DifferenceType]; !seen {
			typeOrder = append(typeOrder, diff.DifferenceType)
		}
		byType[diff.DifferenceType] = append(byType[diff.DifferenceType], diff)
	}
	for _, typ := range typeOrder {
		diffs := byType[typ]
		fmt.Fprintf(&sb, "\n- %s (%d cases):\n", typ, len(diffs))
		limit := len(diffs)
		if limit > 5 {
			limit = 5
		}
		for _, diff := range diffs[:limit] {
			fmt.Fprintf(&sb, "  - ID: %s, Field: %s\n    Old: %q -> New: %q\n",
				diff.ID, diff.Field, diff.OldValue, diff.NewValue)
		}
	}

	if len(report.DifferentFields) > 0 {
		diffText, err := valueDiff(report.DifferentFields)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "\nOLD VS NEW VALUES (unified diff):\n%s", diffText)
	}

	if len(report.Squadrature) > 0 {
		fmt.Fprintf(&sb, "\nSQUADRATURE (%d):\n", len(report.Squadrature))
		limit := len(report.Squadrature)
		if limit > 10 {
			limit = 10
		}
		for _, sq := range report.Squadrature[:limit] {
			fmt.Fprintf(&sb, "- %s: %s - %s\n", sq.Type, sq.ID, sq.Description)
		}
	}

	return sb.String(), nil
}

// valueDiff renders the changed values as a unified diff, one
// "id.field: value" line per record on each side.
func valueDiff(diffs []FieldDiff) (string, error) {
	oldLines := make([]string, 0, len(diffs))
	newLines := make([]string, 0, len(diffs))
	for _, d := range diffs {
		oldLines = append(oldLines, fmt.Sprintf("%s.%s: %s\n", d.ID, d.Field, d.OldValue))
		newLines = append(newLines, fmt.Sprintf("%s.%s: %s\n", d.ID, d.Field, d.NewValue))
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        oldLines,
		B:        newLines,
		FromFile: "old_workflow",
		ToFile:   "new_workflow",
		Context:  1,
	})
	if err != nil {
		return "", fmt.Errorf("render value diff: %w", err)
	}
	return text, nil
}
