// Package driver runs a built plant once, under an optimizer, or over a
// design of experiments, and records every evaluated case.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/plant"
	"github.com/h2integrate/h2integrate/pkg/storage"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
	"github.com/h2integrate/h2integrate/pkg/units"
)

const (
	KindAnalysis            = "analysis"
	KindOptimization        = "optimization"
	KindDesignOfExperiments = "design_of_experiments"
)

// Options change how the driver builds and evaluates models.
type Options struct {
	Plant plant.Options
	// Parallelism limits the design of experiments cases evaluated at once.
	Parallelism int
}

// Configured registers the -parallelism and -cache-dir flags.
func Configured() *Options {
	parallelism := lflag.Int("parallelism", runtime.GOMAXPROCS(0), "Number of design of experiments cases to evaluate at once")
	cacheDir := lflag.String("cache-dir", "", "Overrides the cache_dir of every model with caching enabled")

	var o Options
	lflag.Do(func() {
		o.Parallelism = *parallelism
		o.Plant.CacheDir = *cacheDir
	})
	return &o
}

// Driver evaluates the plant described by a config.
type Driver struct {
	cfg  *types.Config
	reg  *technology.Map
	db   storage.Database
	opts Options

	vars        []designVar
	constraints []constraint
}

// Result is the outcome of a run.
type Result struct {
	Run   types.Run
	Cases []types.Case
	// Best is the feasible case with the lowest objective, or nil when the
	// run has no objective.
	Best *types.Case
	// Objective is the objective of Best.
	Objective float64
	// Model holds the state of the best case, or of the only case.
	Model *plant.Model
}

type designVar struct {
	path         string
	lower, upper float64
	units        string
}

type constraint struct {
	path string
	types.Constraint
}

// New validates the driver config. db may be nil to skip recording.
func New(cfg *types.Config, reg *technology.Map, db storage.Database, opts Options) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	d := &Driver{cfg: cfg, reg: reg, db: db, opts: opts}

	dc := cfg.Driver
	if dc.Driver.Optimization.Flag && dc.Driver.DesignOfExperiments.Flag {
		return nil, errors.New("only one of optimization and design_of_experiments may be enabled")
	}
	for _, tech := range dc.DesignVariables.Keys {
		vars := dc.DesignVariables.Values[tech]
		for _, name := range vars.Keys {
			dv := vars.Values[name]
			if !dv.Flag {
				continue
			}
			path := tech + "." + name
			if dv.Upper < dv.Lower {
				return nil, fmt.Errorf("design variable %s: upper bound %v is below lower bound %v", path, dv.Upper, dv.Lower)
			}
			d.vars = append(d.vars, designVar{path: path, lower: dv.Lower, upper: dv.Upper, units: dv.Units})
		}
	}
	for _, tech := range dc.Constraints.Keys {
		cons := dc.Constraints.Values[tech]
		for _, name := range cons.Keys {
			c := cons.Values[name]
			if !c.Flag {
				continue
			}
			if c.Lower == nil && c.Upper == nil && c.Equals == nil {
				return nil, fmt.Errorf("constraint %s.%s needs lower, upper or equals", tech, name)
			}
			d.constraints = append(d.constraints, constraint{path: tech + "." + name, Constraint: c})
		}
	}
	if d.Kind() != KindAnalysis && dc.Objective == nil {
		return nil, fmt.Errorf("%s requires an objective", d.Kind())
	}
	if d.Kind() != KindAnalysis && len(d.vars) == 0 {
		return nil, fmt.Errorf("%s requires at least one design variable", d.Kind())
	}
	return d, nil
}

// Kind returns which driver the config selects.
func (d *Driver) Kind() string {
	switch {
	case d.cfg.Driver.Driver.Optimization.Flag:
		return KindOptimization
	case d.cfg.Driver.Driver.DesignOfExperiments.Flag:
		return KindDesignOfExperiments
	}
	return KindAnalysis
}

// Run evaluates the plant as the driver config asks.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	switch d.Kind() {
	case KindOptimization:
		return d.optimize(ctx)
	case KindDesignOfExperiments:
		return d.designOfExperiments(ctx)
	}
	return d.Analyze(ctx, nil)
}

// Analyze builds and runs the plant once with the inputs in overrides set,
// keyed by promoted path. Design variable units apply to overrides of design
// variables.
func (d *Driver) Analyze(ctx context.Context, overrides map[string]float64) (*Result, error) {
	r, ctx, err := d.start(ctx, KindAnalysis)
	if err != nil {
		return nil, err
	}
	m, err := d.build(ctx)
	if err != nil {
		return nil, d.fail(ctx, r, err)
	}
	for path, v := range overrides {
		if err := d.set(m, path, v, d.unitsOf(path)); err != nil {
			return nil, d.fail(ctx, r, err)
		}
	}
	c, err := d.evaluate(ctx, m, r.Run.ID, 0, d.current(m))
	if err != nil {
		return nil, d.fail(ctx, r, err)
	}
	for path, v := range overrides {
		c.DesignVariables[path] = v
	}
	if err := d.record(ctx, c); err != nil {
		return nil, d.fail(ctx, r, err)
	}
	r.Cases = []types.Case{c}
	r.Model = m
	return d.finish(ctx, r)
}

func (d *Driver) build(ctx context.Context) (*plant.Model, error) {
	return plant.Build(ctx, d.cfg, d.reg, d.opts.Plant)
}

// start creates the run record.
func (d *Driver) start(ctx context.Context, kind string) (*Result, context.Context, error) {
	id := uuid.NewString()
	ctx = log.WithRun(ctx, id)
	r := &Result{Run: types.Run{
		ID:            id,
		Name:          d.cfg.Name,
		Driver:        kind,
		StartedAt:     time.Now(),
		BestIteration: -1,
	}}
	if d.db != nil {
		if err := d.db.CreateRun(ctx, r.Run); err != nil {
			return nil, ctx, fmt.Errorf("failed to create run: %w", err)
		}
	}
	log.Ctx(ctx).InfoContext(ctx, "starting run", slog.String("driver", kind), slog.String("name", d.cfg.Name))
	return r, ctx, nil
}

// fail marks the run failed and returns err.
func (d *Driver) fail(ctx context.Context, r *Result, err error) error {
	r.Run.Error = err.Error()
	r.Run.CompletedAt = time.Now()
	r.Run.Cases = len(r.Cases)
	if d.db != nil {
		if serr := d.db.CreateRun(ctx, r.Run); serr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to save failed run", slog.Any("error", serr))
		}
	}
	return err
}

// finish picks the best case and saves the completed run.
func (d *Driver) finish(ctx context.Context, r *Result) (*Result, error) {
	if obj := d.cfg.Driver.Objective; obj != nil {
		if i := best(r.Cases, obj.Name); i >= 0 {
			r.Best = &r.Cases[i]
			r.Objective = r.Cases[i].Objectives[obj.Name]
			r.Run.BestIteration = r.Cases[i].Iteration
		}
	}
	r.Run.Cases = len(r.Cases)
	r.Run.CompletedAt = time.Now()
	if d.db != nil {
		if err := d.db.CreateRun(ctx, r.Run); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"finished run",
		slog.Int("cases", r.Run.Cases),
		slog.Int("bestIteration", r.Run.BestIteration),
		slog.Duration("elapsed", r.Run.CompletedAt.Sub(r.Run.StartedAt)),
	)
	return r, nil
}

func (d *Driver) record(ctx context.Context, c types.Case) error {
	if d.db == nil {
		return nil
	}
	if err := d.db.RecordCase(ctx, c); err != nil {
		return fmt.Errorf("failed to record case %d: %w", c.Iteration, err)
	}
	return nil
}

// best returns the index of the case with the lowest objective, preferring
// feasible cases. It returns -1 if no case has the objective.
func best(cases []types.Case, objective string) int {
	idx := -1
	for i, c := range cases {
		v, ok := c.Objectives[objective]
		if !ok || c.Error != "" || math.IsNaN(v) {
			continue
		}
		if idx < 0 {
			idx = i
			continue
		}
		b := cases[idx]
		if c.Feasible != b.Feasible {
			if c.Feasible {
				idx = i
			}
			continue
		}
		if v < b.Objectives[objective] {
			idx = i
		}
	}
	return idx
}

func (d *Driver) unitsOf(path string) string {
	for _, dv := range d.vars {
		if dv.path == path {
			return dv.units
		}
	}
	return ""
}

// set writes v, given in from units, to the input at path.
func (d *Driver) set(m *plant.Model, path string, v float64, from string) error {
	if from != "" {
		to, err := m.Problem.Units(path)
		if err != nil {
			return fmt.Errorf("design variable %s: %w", path, err)
		}
		if v, err = units.Convert(v, from, to); err != nil {
			return fmt.Errorf("design variable %s: %w", path, err)
		}
	}
	if err := m.Problem.Set(path, []float64{v}); err != nil {
		return fmt.Errorf("failed to set design variable %s: %w", path, err)
	}
	return nil
}

// apply sets every design variable from x.
func (d *Driver) apply(m *plant.Model, x []float64) error {
	for i, dv := range d.vars {
		if err := d.set(m, dv.path, x[i], dv.units); err != nil {
			return err
		}
	}
	return nil
}

// current reads the design variables of m in their configured units.
func (d *Driver) current(m *plant.Model) []float64 {
	x := make([]float64, len(d.vars))
	for i, dv := range d.vars {
		vals, err := m.Problem.Get(dv.path)
		if err != nil || len(vals) == 0 {
			x[i] = dv.lower
			continue
		}
		x[i] = vals[0]
		if dv.units == "" {
			continue
		}
		if from, err := m.Problem.Units(dv.path); err == nil {
			if v, err := units.Convert(vals[0], from, dv.units); err == nil {
				x[i] = v
			}
		}
	}
	return x
}

// evaluate runs m at x and collects the case. Model failures are recorded
// in the case; a missing objective or constraint is returned as an error.
func (d *Driver) evaluate(ctx context.Context, m *plant.Model, runID string, iter int, x []float64) (types.Case, error) {
	c := types.Case{
		RunID:           runID,
		Iteration:       iter,
		Timestamp:       time.Now(),
		DesignVariables: make(map[string]float64, len(d.vars)),
		Feasible:        true,
	}
	for i, dv := range d.vars {
		c.DesignVariables[dv.path] = x[i]
	}
	if err := d.apply(m, x); err != nil {
		return c, err
	}
	if err := m.Run(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "case failed", slog.Int("iteration", iter), slog.Any("error", err))
		c.Error = err.Error()
		c.Feasible = false
		return c, nil
	}

	if obj := d.cfg.Driver.Objective; obj != nil {
		v, err := scalar(m, obj.Name)
		if err != nil {
			return c, fmt.Errorf("objective: %w", err)
		}
		c.Objectives = map[string]float64{obj.Name: v}
	}
	if len(d.constraints) > 0 {
		c.Constraints = make(map[string]float64, len(d.constraints))
	}
	for _, con := range d.constraints {
		v, err := scalar(m, con.path)
		if err != nil {
			return c, fmt.Errorf("constraint: %w", err)
		}
		if con.Units != "" {
			from, err := m.Problem.Units(con.path)
			if err != nil {
				return c, fmt.Errorf("constraint %s: %w", con.path, err)
			}
			if v, err = units.Convert(v, from, con.Units); err != nil {
				return c, fmt.Errorf("constraint %s: %w", con.path, err)
			}
		}
		c.Constraints[con.path] = v
		if violation(con.Constraint, v) > 0 {
			c.Feasible = false
		}
	}
	c.Outputs = m.Problem.Scalars()
	if rec := d.cfg.Driver.Recorder; rec != nil && rec.RecordTimeseries {
		c.Timeseries = m.Problem.Series()
	}
	return c, nil
}

func scalar(m *plant.Model, path string) (float64, error) {
	vals, err := m.Problem.Get(path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("%s has %d values, expected a scalar", path, len(vals))
	}
	return vals[0], nil
}

// violation is how far v lies outside the bounds of c.
func violation(c types.Constraint, v float64) float64 {
	var out float64
	if c.Equals != nil {
		tol := 1e-6 * math.Max(1, math.Abs(*c.Equals))
		if diff := math.Abs(v - *c.Equals); diff > tol {
			out += diff
		}
	}
	if c.Lower != nil && v < *c.Lower {
		out += *c.Lower - v
	}
	if c.Upper != nil && v > *c.Upper {
		out += v - *c.Upper
	}
	return out
}
