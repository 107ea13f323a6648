// Package emit writes resolved binding models, diagnostics and ownership graphs.
package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bindforge/bindforge/pkg/engine"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat parses a --format value. The empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML, FormatText:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want json, yaml or text)", s)
	}
}

// FormatForPath picks the format from a file extension, falling back to def.
func FormatForPath(path string, def Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return def
	}
}

// Document is the generated artifact handed to language backends.
type Document struct {
	Generator   string               `json:"generator" yaml:"generator"`
	Version     string               `json:"version" yaml:"version"`
	Plan        string               `json:"plan,omitempty" yaml:"plan,omitempty"`
	Model       *engine.BindingModel `json:"model" yaml:"model"`
	Diagnostics []DiagnosticEntry    `json:"diagnostics" yaml:"diagnostics"`
}

// DiagnosticEntry is a diagnostic as written to documents.
type DiagnosticEntry struct {
	Entry     string `json:"entry" yaml:"entry"`
	Kind      string `json:"kind" yaml:"kind"`
	Severity  string `json:"severity" yaml:"severity"`
	Message   string `json:"message" yaml:"message"`
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// NewDocument wraps a successful generation result.
func NewDocument(plan, version string, result *engine.Result) *Document {
	doc := &Document{
		Generator: "bindforge",
		Version:   version,
		Plan:      plan,
	}
	if result != nil {
		doc.Model = result.Model
		doc.Diagnostics = entries(result.Diagnostics)
	}
	if doc.Diagnostics == nil {
		doc.Diagnostics = []DiagnosticEntry{}
	}
	return doc
}

func entries(diags engine.Diagnostics) []DiagnosticEntry {
	out := make([]DiagnosticEntry, 0, len(diags))
	for _, d := range diags {
		out = append(out, DiagnosticEntry{
			Entry:     d.Entry,
			Kind:      string(d.Kind),
			Severity:  string(d.Severity),
			Message:   d.Message,
			Reference: d.Reference,
		})
	}
	return out
}

// WriteDocument encodes doc in format. Text output is not defined for documents.
func WriteDocument(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatYAML:
		return writeYAML(w, doc)
	default:
		return fmt.Errorf("cannot write a model document as %s", format)
	}
}

// WriteDiagnostics writes diagnostics, one per line for text.
func WriteDiagnostics(w io.Writer, diags engine.Diagnostics, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, entries(diags))
	case FormatYAML:
		return writeYAML(w, entries(diags))
	case FormatText:
		for _, d := range diags {
			if _, err := fmt.Fprintln(w, d.String()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteDOT writes the ownership graph in Graphviz DOT.
func WriteDOT(w io.Writer, g *engine.OwnershipGraph) error {
	if g == nil {
		return fmt.Errorf("model has no ownership graph")
	}
	_, err := io.WriteString(w, g.ToDOT())
	return err
}

// WriteDisposalOrder lists resources in the order their instances are released.
func WriteDisposalOrder(w io.Writer, g *engine.OwnershipGraph) error {
	if g == nil {
		return fmt.Errorf("model has no ownership graph")
	}
	for i, idx := range g.DisposalOrder {
		n := g.Nodes[idx]
		var notes []string
		if n.Root {
			notes = append(notes, "root")
		}
		if n.Borrowed {
			notes = append(notes, "borrowed")
		}
		if len(n.Owners) > 0 {
			owners := make([]string, len(n.Owners))
			for j, o := range n.Owners {
				owners[j] = g.Nodes[o].Name
			}
			notes = append(notes, "owned by "+strings.Join(owners, ", "))
		}
		line := fmt.Sprintf("%d. %s", i+1, n.Name)
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, "; ") + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the output of fn to path through a temporary file, so readers never
// see a partial artifact. The directory is created if needed.
func WriteFile(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
