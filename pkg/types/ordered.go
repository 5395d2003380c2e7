package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Ordered is a YAML mapping that remembers the order its keys were written in.
// Technology and subgroup order decides component naming and build order, so
// plain Go maps cannot be used for those sections.
type Ordered[T any] struct {
	Keys   []string
	Values map[string]T
}

// NewOrdered returns an empty Ordered.
func NewOrdered[T any]() Ordered[T] {
	return Ordered[T]{Values: map[string]T{}}
}

// Set adds or replaces key, keeping the original position of existing keys.
func (o *Ordered[T]) Set(key string, v T) {
	if o.Values == nil {
		o.Values = map[string]T{}
	}
	if _, ok := o.Values[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = v
}

// Get returns the value for key.
func (o Ordered[T]) Get(key string) (T, bool) {
	v, ok := o.Values[key]
	return v, ok
}

// Has reports whether key is present.
func (o Ordered[T]) Has(key string) bool {
	_, ok := o.Values[key]
	return ok
}

// Len returns the number of keys.
func (o Ordered[T]) Len() int {
	return len(o.Keys)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Ordered[T]) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	o.Keys = nil
	o.Values = make(map[string]T, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if _, ok := o.Values[key]; ok {
			return fmt.Errorf("line %d: duplicate key %q", n.Content[i].Line, key)
		}
		var v T
		if err := n.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("failed to decode %q: %w", key, err)
		}
		o.Keys = append(o.Keys, key)
		o.Values[key] = v
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (o Ordered[T]) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range o.Keys {
		var v yaml.Node
		if err := v.Encode(o.Values[k]); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &v)
	}
	return n, nil
}
