package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/types"
)

const (
	defaultMaxIter = 200
	defaultTol     = 1e-6
	penaltyWeight  = 1e3
)

// method returns the gonum method for solver. Only gradient free methods
// are offered since models do not provide derivatives.
func method(solver string) (optimize.Method, error) {
	switch solver {
	case "", "NelderMead", "nelder-mead", "COBYLA", "SLSQP":
		return &optimize.NelderMead{SimplexSize: 0.25}, nil
	case "CmaEsChol", "cmaes":
		return &optimize.CmaEsChol{}, nil
	}
	return nil, fmt.Errorf("unknown optimization solver %q", solver)
}

// scale maps a physical value into [0, 1].
func (dv designVar) scale(v float64) float64 {
	if dv.upper == dv.lower {
		return 0
	}
	return (v - dv.lower) / (dv.upper - dv.lower)
}

// unscale maps u back to the physical range, clamping it to the bounds.
func (dv designVar) unscale(u float64) float64 {
	u = math.Min(1, math.Max(0, u))
	return dv.lower + u*(dv.upper-dv.lower)
}

// penalized is the objective plus a quadratic penalty on every constraint
// violation.
func (d *Driver) penalized(c types.Case) float64 {
	if c.Error != "" {
		return math.Inf(1)
	}
	obj := d.cfg.Driver.Objective
	ref := math.Abs(obj.Ref)
	if ref == 0 {
		ref = 1
	}
	f := c.Objectives[obj.Name]
	for _, con := range d.constraints {
		v := violation(con.Constraint, c.Constraints[con.path])
		f += penaltyWeight * ref * v * v
	}
	return f
}

func (d *Driver) optimize(ctx context.Context) (*Result, error) {
	settings := d.cfg.Driver.Driver.Optimization
	meth, err := method(settings.Solver)
	if err != nil {
		return nil, err
	}
	r, ctx, err := d.start(ctx, KindOptimization)
	if err != nil {
		return nil, err
	}
	m, err := d.build(ctx)
	if err != nil {
		return nil, d.fail(ctx, r, err)
	}

	x0 := d.current(m)
	u0 := make([]float64, len(d.vars))
	for i, dv := range d.vars {
		u0[i] = math.Min(1, math.Max(0, dv.scale(x0[i])))
	}

	var evalErr error
	p := optimize.Problem{
		Func: func(u []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			x := make([]float64, len(u))
			for i, dv := range d.vars {
				x[i] = dv.unscale(u[i])
			}
			c, err := d.evaluate(ctx, m, r.Run.ID, len(r.Cases), x)
			if err == nil {
				err = d.record(ctx, c)
			}
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			r.Cases = append(r.Cases, c)
			f := d.penalized(c)
			log.Ctx(ctx).DebugContext(ctx, "evaluated case", slog.Int("iteration", c.Iteration), slog.Float64("f", f))
			return f
		},
		Status: func() (optimize.Status, error) {
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	maxIter := settings.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}
	tol := settings.Tol
	if tol <= 0 {
		tol = defaultTol
	}
	res, err := optimize.Minimize(p, u0, &optimize.Settings{
		FuncEvaluations: maxIter,
		Concurrent:      1,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol,
			Iterations: 2 * (len(d.vars) + 1),
		},
	}, meth)
	if evalErr != nil {
		return nil, d.fail(ctx, r, evalErr)
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, d.fail(ctx, r, cerr)
	}
	if err != nil {
		if res == nil {
			return nil, d.fail(ctx, r, fmt.Errorf("optimization failed: %w", err))
		}
		log.Ctx(ctx).WarnContext(ctx, "optimizer stopped", slog.String("status", res.Status.String()), slog.Any("error", err))
	}

	if i := best(r.Cases, d.cfg.Driver.Objective.Name); i >= 0 {
		x := make([]float64, len(d.vars))
		for j, dv := range d.vars {
			x[j] = r.Cases[i].DesignVariables[dv.path]
		}
		if err := d.apply(m, x); err != nil {
			return nil, d.fail(ctx, r, err)
		}
		if err := m.Run(ctx); err != nil {
			return nil, d.fail(ctx, r, fmt.Errorf("failed to rerun best case: %w", err))
		}
	}
	r.Model = m
	return d.finish(ctx, r)
}
