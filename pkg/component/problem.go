package component

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/units"
)

var (
	ErrInvalidConnection = errors.New("invalid connection")
	ErrNotFound          = errors.New("variable not found")
	ErrNotSetup          = errors.New("problem is not set up")
)

const (
	DefaultMaxIter = 10
	DefaultTol     = 1e-10
)

// Problem is the root of the execution graph.
type Problem struct {
	// MaxIter and Tol control the fixed point iteration on cycles.
	MaxIter int
	Tol     float64

	groups  map[string]*Group
	order   []*Group
	conns   []connection
	members []*member

	setup    bool
	graph    *graph
	schedule [][]*member
}

type connection struct {
	src, dst string
}

// Group holds members that share a namespace. Promoted members expose their
// variables as group.var, and promoted inputs are fed by promoted outputs of
// the same name inside the group.
type Group struct {
	name    string
	root    bool
	members []*member
	p       *Problem
}

type member struct {
	name    string
	path    string
	comp    Component
	promote bool
	group   *Group

	inputs  []*variable
	outputs []*variable
	byName  map[string]*variable
}

type variable struct {
	name  string
	port  Port
	owner *member
	input bool
	val   []float64

	// src and factor are set for connected inputs.
	src    *variable
	factor float64
	auto   bool
}

func (v *variable) path() string {
	return v.owner.path + "." + v.name
}

// promotedPath is the shortest path that names v.
func (v *variable) promotedPath() string {
	if v.owner.promote {
		return v.owner.group.name + "." + v.name
	}
	return v.path()
}

// NewProblem returns an empty Problem.
func NewProblem() *Problem {
	return &Problem{
		MaxIter: DefaultMaxIter,
		Tol:     DefaultTol,
		groups:  make(map[string]*Group),
	}
}

// AddGroup adds a named group.
func (p *Problem) AddGroup(name string) (*Group, error) {
	if p.setup {
		return nil, errors.New("cannot add a group after setup")
	}
	if name == "" || strings.Contains(name, ".") {
		return nil, fmt.Errorf("invalid group name %q", name)
	}
	if _, ok := p.groups[name]; ok {
		return nil, fmt.Errorf("duplicate component name %q", name)
	}
	g := &Group{name: name, p: p}
	p.groups[name] = g
	p.order = append(p.order, g)
	return g, nil
}

// Add adds a component at the root. Its variables are name.var.
func (p *Problem) Add(name string, c Component) error {
	g, err := p.AddGroup(name)
	if err != nil {
		return err
	}
	g.root = true
	return g.add(name, c, true)
}

// Has reports whether a root component or group called name exists.
func (p *Problem) Has(name string) bool {
	_, ok := p.groups[name]
	return ok
}

// Group returns the named group.
func (p *Problem) Group(name string) (*Group, bool) {
	g, ok := p.groups[name]
	if !ok || g.root {
		return nil, false
	}
	return g, true
}

// Name returns the group name.
func (g *Group) Name() string {
	return g.name
}

// Add adds member to the group. When promote is set the member's variables
// are also reachable as group.var.
func (g *Group) Add(name string, c Component, promote bool) error {
	if g.p.setup {
		return errors.New("cannot add a component after setup")
	}
	if g.root {
		return fmt.Errorf("cannot add %q to root component %q", name, g.name)
	}
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("invalid component name %q", name)
	}
	for _, m := range g.members {
		if m.name == name {
			return fmt.Errorf("duplicate component name %q in %s", name, g.name)
		}
	}
	return g.add(name, c, promote)
}

// Has reports whether the group has a member called name.
func (g *Group) Has(name string) bool {
	for _, m := range g.members {
		if m.name == name {
			return true
		}
	}
	return false
}

func (g *Group) add(name string, c Component, promote bool) error {
	path := g.name + "." + name
	if g.root {
		path = g.name
	}
	m := &member{
		name:    name,
		path:    path,
		comp:    c,
		promote: promote,
		group:   g,
		byName:  make(map[string]*variable),
	}
	g.members = append(g.members, m)
	g.p.members = append(g.p.members, m)
	return nil
}

// Connect records a connection from the output at src to the input(s) at dst.
// Paths are resolved in Setup.
func (p *Problem) Connect(src, dst string) error {
	if p.setup {
		return errors.New("cannot connect after setup")
	}
	p.conns = append(p.conns, connection{src: src, dst: dst})
	return nil
}

func splitPath(path string) (string, string, bool) {
	i := strings.LastIndex(path, ".")
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

// resolve returns the variables named by path. A member path names one
// variable, a group path names every promoted variable with that name.
func (p *Problem) resolve(path string, input bool) ([]*variable, error) {
	prefix, name, ok := splitPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	var out []*variable
	for _, m := range p.members {
		if m.path == prefix {
			if v, ok := m.byName[name]; ok && v.input == input {
				return []*variable{v}, nil
			}
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
	}
	g, ok := p.groups[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	for _, m := range g.members {
		if !m.promote {
			continue
		}
		if v, ok := m.byName[name]; ok && v.input == input {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	return out, nil
}

// Setup instantiates variables, resolves connections and orders the graph.
func (p *Problem) Setup(ctx context.Context) error {
	if p.setup {
		return nil
	}
	for _, m := range p.members {
		if err := m.declare(); err != nil {
			return err
		}
	}
	for _, g := range p.order {
		if err := g.autoConnect(); err != nil {
			return err
		}
	}
	for _, c := range p.conns {
		if err := p.connect(c); err != nil {
			return err
		}
	}

	p.graph = newGraph()
	for _, m := range p.members {
		if err := p.graph.addNode(m); err != nil {
			return err
		}
	}
	for _, m := range p.members {
		for _, in := range m.inputs {
			if in.src == nil {
				continue
			}
			if err := p.graph.addDirectedEdge(in.src.owner, m); err != nil {
				return err
			}
		}
	}
	p.schedule = p.graph.components()
	p.setup = true

	for _, scc := range p.schedule {
		if len(scc) > 1 || p.graph.selfLoop(scc[0]) {
			paths := make([]string, 0, len(scc))
			for _, m := range scc {
				paths = append(paths, m.path)
			}
			log.Ctx(ctx).DebugContext(ctx, "cycle found", slog.Any("components", paths))
		}
	}
	return nil
}

func (m *member) declare() error {
	add := func(ports []Port, input bool) ([]*variable, error) {
		vars := make([]*variable, 0, len(ports))
		for _, port := range ports {
			if _, ok := m.byName[port.Name]; ok {
				return nil, fmt.Errorf("%s: duplicate variable %q", m.path, port.Name)
			}
			if _, err := units.Parse(port.Units); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.path, port.Name, err)
			}
			v := &variable{
				name:  port.Name,
				port:  port,
				owner: m,
				input: input,
				val:   port.initial(),
			}
			m.byName[port.Name] = v
			vars = append(vars, v)
		}
		return vars, nil
	}
	var err error
	if m.inputs, err = add(m.comp.Inputs(), true); err != nil {
		return err
	}
	if m.outputs, err = add(m.comp.Outputs(), false); err != nil {
		return err
	}
	return nil
}

func (g *Group) autoConnect() error {
	if g.root {
		return nil
	}
	outputs := map[string]*variable{}
	for _, m := range g.members {
		if !m.promote {
			continue
		}
		for _, o := range m.outputs {
			if prev, ok := outputs[o.name]; ok {
				return fmt.Errorf(
					"%w: %s and %s are both promoted as %s.%s",
					ErrInvalidConnection, prev.path(), o.path(), g.name, o.name,
				)
			}
			outputs[o.name] = o
		}
	}
	for _, m := range g.members {
		if !m.promote {
			continue
		}
		for _, in := range m.inputs {
			src, ok := outputs[in.name]
			if !ok || src.owner == m {
				continue
			}
			if err := link(src, in); err != nil {
				return err
			}
			in.auto = true
		}
	}
	return nil
}

func (p *Problem) connect(c connection) error {
	srcs, err := p.resolve(c.src, false)
	if err != nil {
		return fmt.Errorf("%w: source %s: %w", ErrInvalidConnection, c.src, err)
	}
	if len(srcs) != 1 {
		return fmt.Errorf("%w: source %s resolves to %d outputs", ErrInvalidConnection, c.src, len(srcs))
	}
	dsts, err := p.resolve(c.dst, true)
	if err != nil {
		return fmt.Errorf("%w: destination %s: %w", ErrInvalidConnection, c.dst, err)
	}
	for _, dst := range dsts {
		if err := link(srcs[0], dst); err != nil {
			return err
		}
	}
	return nil
}

func link(src, dst *variable) error {
	if dst.src != nil {
		return fmt.Errorf(
			"%w: input %s is connected to both %s and %s",
			ErrInvalidConnection, dst.path(), dst.src.path(), src.path(),
		)
	}
	if src.port.size() != dst.port.size() {
		return fmt.Errorf(
			"%w: %s has size %d but %s has size %d",
			ErrInvalidConnection, src.path(), src.port.size(), dst.path(), dst.port.size(),
		)
	}
	factor, err := units.Factor(src.port.Units, dst.port.Units)
	if err != nil {
		return fmt.Errorf("%w: %s (%s) to %s (%s): %w",
			ErrInvalidConnection, src.path(), src.port.Units, dst.path(), dst.port.Units, err)
	}
	dst.src = src
	dst.factor = factor
	return nil
}

// Run executes every component once in order, iterating on cycles.
func (p *Problem) Run(ctx context.Context) error {
	if !p.setup {
		return ErrNotSetup
	}
	for _, scc := range p.schedule {
		if len(scc) == 1 && !p.graph.selfLoop(scc[0]) {
			if err := p.compute(ctx, scc[0]); err != nil {
				return err
			}
			continue
		}
		if err := p.iterate(ctx, scc); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs a cycle with nonlinear block Gauss-Seidel until the change in
// its outputs between sweeps falls below Tol, absolute or relative.
func (p *Problem) iterate(ctx context.Context, scc []*member) error {
	prev := snapshot(scc)
	var norm, change float64
	for iter := 1; iter <= p.MaxIter; iter++ {
		for _, m := range scc {
			if err := p.compute(ctx, m); err != nil {
				return err
			}
		}
		cur := snapshot(scc)
		norm, change = 0, 0
		for i := range cur {
			d := cur[i] - prev[i]
			change += d * d
			norm += cur[i] * cur[i]
		}
		change = math.Sqrt(change)
		norm = math.Sqrt(norm)
		prev = cur
		if iter > 1 && (change < p.Tol || (norm > 0 && change/norm < p.Tol)) {
			log.Ctx(ctx).DebugContext(
				ctx,
				"cycle converged",
				slog.String("first", scc[0].path),
				slog.Int("iterations", iter),
			)
			return nil
		}
	}
	log.Ctx(ctx).WarnContext(
		ctx,
		"cycle did not converge",
		slog.String("first", scc[0].path),
		slog.Int("maxIter", p.MaxIter),
		slog.Float64("change", change),
		slog.Float64("norm", norm),
	)
	return nil
}

func snapshot(scc []*member) []float64 {
	var out []float64
	for _, m := range scc {
		for _, o := range m.outputs {
			out = append(out, o.val...)
		}
	}
	return out
}

func (p *Problem) compute(ctx context.Context, m *member) error {
	in := make(Vector, len(m.inputs))
	for _, v := range m.inputs {
		if v.src != nil {
			for i, x := range v.src.val {
				v.val[i] = x * v.factor
			}
		}
		in[v.name] = append([]float64(nil), v.val...)
	}
	out := make(Vector, len(m.outputs))
	for _, v := range m.outputs {
		out[v.name] = append([]float64(nil), v.val...)
	}

	if err := m.comp.Compute(log.WithComponent(ctx, m.path), in, out); err != nil {
		return fmt.Errorf("failed to compute %s: %w", m.path, err)
	}

	for _, v := range m.outputs {
		vals := out[v.name]
		if len(vals) != len(v.val) {
			return fmt.Errorf("%s.%s: expected %d values but got %d", m.path, v.name, len(v.val), len(vals))
		}
		copy(v.val, vals)
	}
	return nil
}

// Set overrides the value of the unconnected input(s) at path. A single
// value is broadcast.
func (p *Problem) Set(path string, vals []float64) error {
	if !p.setup {
		return ErrNotSetup
	}
	vars, err := p.resolve(path, true)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if v.src != nil {
			return fmt.Errorf("cannot set %s: it is connected to %s", v.path(), v.src.path())
		}
		switch len(vals) {
		case len(v.val):
			copy(v.val, vals)
		case 1:
			for i := range v.val {
				v.val[i] = vals[0]
			}
		default:
			return fmt.Errorf("cannot set %s: expected %d values but got %d", v.path(), len(v.val), len(vals))
		}
	}
	return nil
}

// Get returns a copy of the value at path. Outputs are preferred over inputs
// of the same name.
func (p *Problem) Get(path string) ([]float64, error) {
	if !p.setup {
		return nil, ErrNotSetup
	}
	vars, err := p.resolve(path, false)
	if err != nil {
		vars, err = p.resolve(path, true)
		if err != nil {
			return nil, err
		}
	}
	return append([]float64(nil), vars[0].val...), nil
}

// Units returns the units of the variable at path.
func (p *Problem) Units(path string) (string, error) {
	if !p.setup {
		return "", ErrNotSetup
	}
	vars, err := p.resolve(path, false)
	if err != nil {
		vars, err = p.resolve(path, true)
		if err != nil {
			return "", err
		}
	}
	return vars[0].port.Units, nil
}

// IsConnected reports whether every input at path has a source.
func (p *Problem) IsConnected(path string) bool {
	vars, err := p.resolve(path, true)
	if err != nil {
		return false
	}
	for _, v := range vars {
		if v.src == nil {
			return false
		}
	}
	return true
}

// HasOutput reports whether path names an output.
func (p *Problem) HasOutput(path string) bool {
	_, err := p.resolve(path, false)
	return err == nil
}

// Var describes one variable for listing.
type Var struct {
	Path   string
	Units  string
	Input  bool
	Source string
	Value  []float64
}

// Variables lists every variable in order: each member's inputs then outputs.
func (p *Problem) Variables() []Var {
	var out []Var
	for _, m := range p.members {
		for _, list := range [][]*variable{m.inputs, m.outputs} {
			for _, v := range list {
				var src string
				if v.src != nil {
					src = v.src.promotedPath()
				}
				out = append(out, Var{
					Path:   v.path(),
					Units:  v.port.Units,
					Input:  v.input,
					Source: src,
					Value:  append([]float64(nil), v.val...),
				})
			}
		}
	}
	return out
}

// Scalars returns every size 1 output keyed by its promoted path.
func (p *Problem) Scalars() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range p.members {
		for _, v := range m.outputs {
			if len(v.val) == 1 {
				out[v.promotedPath()] = v.val[0]
			}
		}
	}
	return out
}

// Series returns every output with more than one value keyed by its promoted
// path.
func (p *Problem) Series() map[string][]float64 {
	out := make(map[string][]float64)
	for _, m := range p.members {
		for _, v := range m.outputs {
			if len(v.val) > 1 {
				out[v.promotedPath()] = append([]float64(nil), v.val...)
			}
		}
	}
	return out
}

// Order returns the member paths in execution order.
func (p *Problem) Order() []string {
	var out []string
	for _, scc := range p.schedule {
		for _, m := range scc {
			out = append(out, m.path)
		}
	}
	return out
}
