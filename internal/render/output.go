package render

import (
	"encoding/json"
	"fmt"
	"io"

	"charm.land/lipgloss/v2"
	"gopkg.in/yaml.v3"
)

// Format selects how command results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an --output value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Write emits v in the structured formats, or the pre-rendered text for
// tables. The text goes through lipgloss so colors are downsampled to what w
// supports.
func Write(w io.Writer, f Format, v any, text string) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		if text == "" {
			return nil
		}
		_, err := lipgloss.Fprintln(w, text)
		return err
	}
}
