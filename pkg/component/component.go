// Package component is the execution graph that technology, resource and
// finance models run in. Components declare named input and output ports;
// a Problem wires them together, checks units, orders them and runs them,
// iterating on any cycles until their outputs stop changing.
package component

import (
	"context"
)

// Port declares one input or output of a component.
type Port struct {
	Name  string
	Units string
	// Size is the number of values, 1 for a scalar.
	Size int
	// Default is broadcast to every value unless Values is set.
	Default float64
	Values  []float64
	Desc    string
}

func (p Port) size() int {
	if p.Size <= 0 {
		return 1
	}
	return p.Size
}

func (p Port) initial() []float64 {
	v := make([]float64, p.size())
	if len(p.Values) == len(v) {
		copy(v, p.Values)
		return v
	}
	for i := range v {
		v[i] = p.Default
	}
	return v
}

// Scalar declares a size 1 port.
func Scalar(name, units string, def float64, desc string) Port {
	return Port{Name: name, Units: units, Size: 1, Default: def, Desc: desc}
}

// Series declares a port of n values.
func Series(name, units string, n int, desc string) Port {
	return Port{Name: name, Units: units, Size: n, Desc: desc}
}

// Component is one model in the graph.
type Component interface {
	Inputs() []Port
	Outputs() []Port
	// Compute reads in and writes every output into out.
	Compute(ctx context.Context, in, out Vector) error
}

// Vector holds the values of a component's ports by name.
type Vector map[string][]float64

// Get returns the values of name, nil when unknown.
func (v Vector) Get(name string) []float64 {
	return v[name]
}

// Scalar returns the first value of name, 0 when unknown.
func (v Vector) Scalar(name string) float64 {
	if vals := v[name]; len(vals) > 0 {
		return vals[0]
	}
	return 0
}

// Set copies vals into name. A slot of a different length is replaced.
func (v Vector) Set(name string, vals []float64) {
	if cur, ok := v[name]; ok && len(cur) == len(vals) {
		copy(cur, vals)
		return
	}
	v[name] = append([]float64(nil), vals...)
}

// SetScalar sets name to the single value x.
func (v Vector) SetScalar(name string, x float64) {
	v.Set(name, []float64{x})
}

// Has reports whether name is present.
func (v Vector) Has(name string) bool {
	_, ok := v[name]
	return ok
}
