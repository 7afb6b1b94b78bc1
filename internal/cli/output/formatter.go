package output

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// Format names an output encoding selected with --output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var formats = []Format{FormatTable, FormatJSON, FormatYAML}

// ParseFormat accepts a format name in any case. An empty name means
// FormatTable.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatTable, nil
	}
	f := Format(strings.ToLower(name))
	if !slices.Contains(formats, f) {
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", name)
	}
	return f, nil
}

// Structured reports whether f is meant for scripts rather than people.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Formatter writes a command result.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for f. Wide adds the table columns
// tagged `table:"wide"`; structured formats always carry every field.
func NewFormatter(f Format, wide bool) Formatter {
	switch f {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{Wide: wide}
	}
}
