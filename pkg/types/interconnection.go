package types

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Interconnection is one entry of technology_interconnections or
// resource_to_tech_connections. It is written as a YAML list:
//
//	[source, dest, item, transport]     transport component between the two
//	[source, dest, param]               direct connection of param
//	[source, dest, [srcParam, dstParam]] direct connection of differently named params
type Interconnection struct {
	Fields []string
	// Pair is set when the third element was a two element list.
	Pair *[2]string
}

// Len returns the number of elements in the entry.
func (c Interconnection) Len() int {
	return len(c.Fields)
}

// Source is the first element.
func (c Interconnection) Source() string {
	return c.field(0)
}

// Dest is the second element.
func (c Interconnection) Dest() string {
	return c.field(1)
}

// Item is the transported commodity of a 4 element entry, or the connected
// parameter of a 3 element entry.
func (c Interconnection) Item() string {
	return c.field(2)
}

// Transport is the transport model of a 4 element entry.
func (c Interconnection) Transport() string {
	return c.field(3)
}

// Params returns the source and destination parameter names of a 3 element
// entry.
func (c Interconnection) Params() (string, string) {
	if c.Pair != nil {
		return c.Pair[0], c.Pair[1]
	}
	return c.Item(), c.Item()
}

func (c Interconnection) field(i int) string {
	if i < len(c.Fields) {
		return c.Fields[i]
	}
	return ""
}

func (c Interconnection) String() string {
	parts := append([]string(nil), c.Fields...)
	if c.Pair != nil && len(parts) > 2 {
		parts[2] = "[" + c.Pair[0] + ", " + c.Pair[1] + "]"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// NewInterconnection builds an entry from plain fields.
func NewInterconnection(fields ...string) Interconnection {
	return Interconnection{Fields: fields}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Interconnection) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: connection must be a list", n.Line)
	}
	c.Fields = nil
	c.Pair = nil
	for i, e := range n.Content {
		switch e.Kind {
		case yaml.ScalarNode:
			c.Fields = append(c.Fields, e.Value)
		case yaml.SequenceNode:
			if i != 2 || len(e.Content) != 2 {
				return fmt.Errorf("line %d: only the third element may be a [source, dest] parameter pair", e.Line)
			}
			c.Pair = &[2]string{e.Content[0].Value, e.Content[1].Value}
			c.Fields = append(c.Fields, e.Content[0].Value)
		default:
			return fmt.Errorf("line %d: unexpected connection element", e.Line)
		}
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Interconnection) MarshalYAML() (any, error) {
	out := make([]any, 0, len(c.Fields))
	for i, f := range c.Fields {
		if i == 2 && c.Pair != nil {
			out = append(out, []string{c.Pair[0], c.Pair[1]})
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
