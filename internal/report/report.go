// Package report renders enrichment results and run summaries as JSON or
// YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bookshelf-tools/bookenrich/internal/record"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
)

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unsupported output format %q (supported: json, yaml)", s)
}

// SourceStatus is what one source contributed to a lookup.
type SourceStatus struct {
	Name  string `json:"name" yaml:"name"`
	Found bool   `json:"found" yaml:"found"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Lookup is the single-shot output: the merged record and where it came
// from.
type Lookup struct {
	Input   string         `json:"input" yaml:"input"`
	Record  record.Partial `json:"record" yaml:"record"`
	Sources []SourceStatus `json:"sources" yaml:"sources"`
}

// NewLookup builds a Lookup from a merged record and the per-source results.
func NewLookup(input string, rec record.Partial, results []sources.Result) Lookup {
	l := Lookup{Input: input, Record: rec, Sources: make([]SourceStatus, 0, len(results))}
	for _, r := range results {
		s := SourceStatus{Name: r.Source, Found: r.Found()}
		if !s.Found && r.Err != nil {
			s.Error = r.Err.Error()
		}
		l.Sources = append(l.Sources, s)
	}
	return l
}

// Reason summarises why no source produced data.
func (l Lookup) Reason() string {
	var reasons []string
	for _, s := range l.Sources {
		if s.Error != "" {
			reasons = append(reasons, s.Name+": "+s.Error)
		}
	}
	if len(reasons) == 0 {
		return "no data"
	}
	return strings.Join(reasons, "; ")
}

// Write renders v in the given format.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return nil
	}
}
