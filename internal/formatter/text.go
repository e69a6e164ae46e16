package formatter

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/tordrt/schemamap/internal/schema"
)

// TextFormatter prints a compact run summary
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// FormatStructure summarizes a structure dump: tables, views and failed
// lookups per schema
func (f *TextFormatter) FormatStructure(dump *schema.StructureDump, paths ...string) {
	for _, name := range sortedKeys(dump.Schemas) {
		tables := dump.Schemas[name]

		var baseTables, views, failed int
		for _, t := range tables {
			if t.Type == schema.KindView {
				views++
			} else {
				baseTables++
			}
			if len(t.LookupErrors) > 0 {
				failed++
			}
		}

		_, _ = fmt.Fprintf(f.writer, "SCHEMA %s: %d tables, %d views", name, baseTables, views)
		if failed > 0 {
			_, _ = fmt.Fprintf(f.writer, " (%d with failed lookups)", failed)
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	f.formatFailures(dump.Failures)
	f.formatPaths(paths)
}

// FormatRelationships summarizes a relationship report per schema
func (f *TextFormatter) FormatRelationships(report *schema.RelationshipReport, paths ...string) {
	// A schema that failed midway has only some of the three entries.
	seen := map[string]bool{}
	for name := range report.ForeignKeys {
		seen[name] = true
	}
	for name := range report.Inferred {
		seen[name] = true
	}
	for name := range report.Stats {
		seen[name] = true
	}

	for _, name := range sortedKeys(seen) {
		inferred := report.Inferred[name]
		var high int
		for _, e := range inferred {
			if e.Confidence == schema.ConfidenceHigh {
				high++
			}
		}

		_, _ = fmt.Fprintf(f.writer, "SCHEMA %s: %d foreign keys, %d inferred (%d high), %d tables with stats\n",
			name, len(report.ForeignKeys[name]), len(inferred), high, len(report.Stats[name]))
	}

	f.formatFailures(report.Failures)
	f.formatPaths(paths)
}

func (f *TextFormatter) formatFailures(failures map[string]string) {
	if len(failures) == 0 {
		return
	}
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintln(f.writer, "FAILED SCHEMAS:")
	for _, name := range sortedKeys(failures) {
		_, _ = fmt.Fprintf(f.writer, "  %s: %s\n", name, failures[name])
	}
}

func (f *TextFormatter) formatPaths(paths []string) {
	if len(paths) == 0 {
		return
	}
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintln(f.writer, "WROTE:")
	for _, p := range paths {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", p)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
