package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// table renders rows as aligned columns.
type table struct {
	headers []string
	rows    [][]string
	w       io.Writer
}

func (o *rootOptions) newTable(headers ...string) *table {
	return &table{headers: headers, w: o.stdout}
}

func (t *table) AddRow(cols ...string) {
	t.rows = append(t.rows, cols)
}

func (t *table) Render() {
	w := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.headers, "\t"))
	sep := make([]string, len(t.headers))
	for i, h := range t.headers {
		sep[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(sep, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// printOutput writes data as JSON or YAML depending on --output.
func (o *rootOptions) printOutput(data interface{}) error {
	switch o.output {
	case "yaml":
		enc := yaml.NewEncoder(o.stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case "json":
		enc := json.NewEncoder(o.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	default:
		return fmt.Errorf("unsupported output format %q", o.output)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
