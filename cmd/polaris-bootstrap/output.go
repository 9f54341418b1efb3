package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// outputFormat specifies how to render listings.
type outputFormat string

const (
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
	outputTable outputFormat = "table"
)

var (
	catalogHeaders = []string{"Name", "Type", "Base Location", "Storage"}
	roleHeaders    = []string{"Name"}
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return outputJSON, nil
	case "yaml":
		return outputYAML, nil
	case "table":
		return outputTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (supported: json, yaml, table)", s)
	}
}

// printOutput renders data in the requested format.
// For table output, headers and rows must be provided.
func printOutput(w io.Writer, format outputFormat, data any, headers []string, rows [][]string) error {
	switch format {
	case outputYAML:
		return printYAML(w, data)
	case outputTable:
		return printTable(w, headers, rows)
	default:
		return printJSON(w, data)
	}
}

func printJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(data)
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, strings.ToUpper(h))
	}
	fmt.Fprintln(tw)

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

// catalogRows flattens a catalogs listing into table rows.
func catalogRows(doc map[string]any) [][]string {
	var rows [][]string
	for _, item := range items(doc, "catalogs") {
		rows = append(rows, []string{
			extractValue(item, "name"),
			extractValue(item, "type"),
			extractValue(item, "properties.default-base-location"),
			extractValue(item, "storageConfigInfo.storageType"),
		})
	}
	return rows
}

// roleRows flattens a principal roles listing into table rows.
func roleRows(doc map[string]any) [][]string {
	var rows [][]string
	for _, item := range items(doc, "roles") {
		rows = append(rows, []string{extractValue(item, "name")})
	}
	return rows
}

func items(doc map[string]any, key string) []map[string]any {
	list, _ := doc[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// extractValue walks a dot-separated path through nested maps and renders
// the leaf as a table cell.
func extractValue(data map[string]any, path string) string {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case []any:
		strs := make([]string, 0, len(v))
		for _, item := range v {
			strs = append(strs, fmt.Sprintf("%v", item))
		}
		return strings.Join(strs, ",")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
