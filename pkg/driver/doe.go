package driver

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/plant"
	"github.com/h2integrate/h2integrate/pkg/types"
)

const (
	GeneratorFullFactorial = "fullfact"
	GeneratorCSV           = "csvgen"
)

// fullFactorial returns every combination of levels evenly spaced values of
// each variable. The first variable changes fastest.
func fullFactorial(vars []designVar, levels int) [][]float64 {
	if levels < 1 {
		levels = 2
	}
	n := 1
	for range vars {
		n *= levels
	}
	points := make([][]float64, n)
	for i := range points {
		x := make([]float64, len(vars))
		rest := i
		for j, dv := range vars {
			k := rest % levels
			rest /= levels
			if levels == 1 {
				x[j] = dv.lower
				continue
			}
			x[j] = dv.lower + (dv.upper-dv.lower)*float64(k)/float64(levels-1)
		}
		points[i] = x
	}
	return points
}

// readCases reads one case per row of a CSV whose header names every design
// variable by path. Extra columns are an error.
func readCases(r io.Reader, vars []designVar) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read case header: %w", err)
	}
	cols := make([]int, len(vars))
	for i, dv := range vars {
		cols[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == dv.path {
				cols[i] = j
			}
		}
		if cols[i] < 0 {
			return nil, fmt.Errorf("cases file has no column for design variable %s", dv.path)
		}
	}
	if len(header) != len(vars) {
		return nil, fmt.Errorf("cases file has %d columns but there are %d design variables", len(header), len(vars))
	}

	var points [][]float64
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read cases: %w", err)
		}
		x := make([]float64, len(vars))
		for i, col := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q for %s on row %d", rec[col], vars[i].path, row)
			}
			x[i] = v
		}
		points = append(points, x)
	}
	if len(points) == 0 {
		return nil, errors.New("cases file has no cases")
	}
	return points, nil
}

func (d *Driver) doePoints() ([][]float64, error) {
	settings := d.cfg.Driver.Driver.DesignOfExperiments
	switch settings.Generator {
	case "", GeneratorFullFactorial:
		return fullFactorial(d.vars, settings.Levels), nil
	case GeneratorCSV:
		if settings.Filename == "" {
			return nil, errors.New("csvgen requires a filename")
		}
		path := settings.Filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(d.cfg.BaseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open cases file: %w", err)
		}
		defer f.Close()
		return readCases(f, d.vars)
	}
	return nil, fmt.Errorf("unknown design of experiments generator %q", settings.Generator)
}

func (d *Driver) designOfExperiments(ctx context.Context) (*Result, error) {
	points, err := d.doePoints()
	if err != nil {
		return nil, err
	}
	r, ctx, err := d.start(ctx, KindDesignOfExperiments)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).InfoContext(ctx, "evaluating cases", slog.Int("cases", len(points)), slog.Int("parallelism", d.opts.Parallelism))

	cases := make([]types.Case, len(points))
	models := make([]*plant.Model, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallelism)
	for i, x := range points {
		g.Go(func() error {
			m, err := d.build(gctx)
			if err != nil {
				return fmt.Errorf("case %d: %w", i, err)
			}
			c, err := d.evaluate(gctx, m, r.Run.ID, i, x)
			if err != nil {
				return fmt.Errorf("case %d: %w", i, err)
			}
			cases[i] = c
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, d.fail(ctx, r, err)
	}

	for _, c := range cases {
		if err := d.record(ctx, c); err != nil {
			return nil, d.fail(ctx, r, err)
		}
		r.Cases = append(r.Cases, c)
	}
	if i := best(r.Cases, d.cfg.Driver.Objective.Name); i >= 0 {
		r.Model = models[i]
	}
	return d.finish(ctx, r)
}
