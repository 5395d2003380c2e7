package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

type demandConfig struct {
	Demand    Profile `yaml:"demand" required:"true"`
	Units     string  `yaml:"units" required:"true"`
	Commodity string  `yaml:"commodity" required:"true"`
}

// Demand compares what is supplied against a demand profile and reports the
// load left unmet and the supply curtailed.
type Demand struct {
	cfg    demandConfig
	demand []float64
	n      int
}

// NewDemand builds demand_performance.
func NewDemand(cfg technology.Config) (component.Component, error) {
	var c demandConfig
	if err := cfg.Decode(technology.RolePerformance, &c); err != nil {
		return nil, err
	}
	c.Units = strings.TrimSpace(c.Units)
	c.Commodity = strings.ToLower(strings.TrimSpace(c.Commodity))
	if _, err := units.Parse(c.Units); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	n := cfg.NTimesteps()
	demand, err := c.Demand.Series("demand", n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return &Demand{cfg: c, demand: demand, n: n}, nil
}

// Inputs implements component.Component.
func (d *Demand) Inputs() []component.Port {
	c := d.cfg.Commodity
	return []component.Port{
		{Name: c + "_demand_profile", Units: d.cfg.Units, Size: d.n, Values: d.demand, Desc: "Demand profile of " + c},
		component.Series(c+"_in", d.cfg.Units, d.n, "Supply already delivered"),
	}
}

// Outputs implements component.Component.
func (d *Demand) Outputs() []component.Port {
	c := d.cfg.Commodity
	return []component.Port{
		component.Series(c+"_missed_load", d.cfg.Units, d.n, "Remaining demand"),
		component.Series(c+"_curtailed", d.cfg.Units, d.n, "Excess supply"),
		component.Series(c+"_out", d.cfg.Units, d.n, "Supply used by the demand"),
	}
}

// Compute implements component.Component.
func (d *Demand) Compute(ctx context.Context, in, out component.Vector) error {
	c := d.cfg.Commodity
	demand, supply := in.Get(c+"_demand_profile"), in.Get(c+"_in")
	missed := make([]float64, len(supply))
	curtailed := make([]float64, len(supply))
	used := make([]float64, len(supply))
	for i := range supply {
		remaining := demand[i] - supply[i]
		missed[i] = max(remaining, 0)
		curtailed[i] = max(-remaining, 0)
		used[i] = supply[i] - curtailed[i]
	}
	out.Set(c+"_missed_load", missed)
	out.Set(c+"_curtailed", curtailed)
	out.Set(c+"_out", used)
	return nil
}
