package formatter

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	xmlRoot = "database"
	xmlItem = "item"
	xmlKey  = "key"
)

// encodeXML renders a node tree as XML under a <database> root. Mapping keys
// become elements, sequence entries become <item> elements and null scalars
// become empty elements. Keys that are not valid element names are written
// as <key name="...">.
func encodeXML(w io.Writer, root *yaml.Node) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := writeElement(enc, xmlRoot, root); err != nil {
		return fmt.Errorf("failed to encode xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode xml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeElement(enc *xml.Encoder, name string, n *yaml.Node) error {
	start := startElement(name)
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if err := writeElement(enc, n.Content[i].Value, n.Content[i+1]); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if err := writeElement(enc, xmlItem, item); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if n.ShortTag() != "!!null" {
			if err := enc.EncodeToken(xml.CharData(n.Value)); err != nil {
				return err
			}
		}
	}

	return enc.EncodeToken(start.End())
}

func startElement(name string) xml.StartElement {
	if validElementName(name) {
		return xml.StartElement{Name: xml.Name{Local: name}}
	}
	return xml.StartElement{
		Name: xml.Name{Local: xmlKey},
		Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}},
	}
}

// validElementName accepts unprefixed XML names that do not start with "xml"
func validElementName(name string) bool {
	if name == "" || strings.HasPrefix(strings.ToLower(name), "xml") {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
