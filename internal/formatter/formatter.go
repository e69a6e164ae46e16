// Package formatter serializes analysis results and writes them to disk.
package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is an output serialization
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXML  Format = "xml"
)

// ParseFormat resolves a configured format name. Unrecognized names fall back to JSON.
func ParseFormat(name string) Format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yaml", "yml":
		return FormatYAML
	case "xml":
		return FormatXML
	default:
		return FormatJSON
	}
}

// Known reports whether name is a recognized format, so callers can warn
// before falling back to JSON
func Known(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "yaml", "yml", "xml":
		return true
	default:
		return false
	}
}

// Extension returns the file extension for the format, without the dot
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatXML:
		return "xml"
	default:
		return "json"
	}
}

// Encode writes v to w. YAML and XML are rendered from the JSON form of v,
// so field names and order match across formats.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case FormatYAML:
		node, err := toNode(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatXML:
		node, err := toNode(v)
		if err != nil {
			return err
		}
		return encodeXML(w, node)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}

// toNode converts v to a yaml.Node tree through its JSON encoding. Styles
// inherited from the JSON text (flow collections, double quotes) are cleared.
func toNode(v any) (*yaml.Node, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert json to yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("failed to convert json to yaml: unexpected document shape")
	}

	root := doc.Content[0]
	clearStyle(root)
	return root, nil
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
