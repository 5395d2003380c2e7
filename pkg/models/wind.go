package models

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type windPerformanceConfig struct {
	NumTurbines     int     `yaml:"num_turbines" required:"true"`
	TurbineRatingKW float64 `yaml:"turbine_rating_kw" required:"true"`
	CutInWindSpeed  float64 `yaml:"cut_in_wind_speed"`
	RatedWindSpeed  float64 `yaml:"rated_wind_speed"`
	CutOutWindSpeed float64 `yaml:"cut_out_wind_speed"`
	// Losses is the fraction of gross energy lost to wakes, availability
	// and electrical losses.
	Losses float64 `yaml:"losses"`

	technology.Caching `yaml:",inline"`
}

// WindPerformance turns hub height wind speeds into plant output through a
// generic turbine power curve.
type WindPerformance struct {
	cfg windPerformanceConfig
	n   int
}

// NewWindPerformance builds wind_plant_performance.
func NewWindPerformance(cfg technology.Config) (component.Component, error) {
	var c windPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.CutInWindSpeed == 0 {
		c.CutInWindSpeed = 3
	}
	if c.RatedWindSpeed == 0 {
		c.RatedWindSpeed = 12
	}
	if c.CutOutWindSpeed == 0 {
		c.CutOutWindSpeed = 25
	}
	switch {
	case c.NumTurbines <= 0 || c.TurbineRatingKW <= 0:
		return nil, fmt.Errorf("%s: num_turbines and turbine_rating_kw must be positive", cfg.Name)
	case c.CutInWindSpeed >= c.RatedWindSpeed || c.RatedWindSpeed >= c.CutOutWindSpeed:
		return nil, fmt.Errorf("%s: wind speeds must satisfy cut_in < rated < cut_out", cfg.Name)
	case c.Losses < 0 || c.Losses >= 1:
		return nil, fmt.Errorf("%s: losses must be in [0, 1)", cfg.Name)
	}
	return c.Wrap(&WindPerformance{cfg: c, n: cfg.NTimesteps()}, cfg, "wind_plant_performance", c)
}

// Inputs implements component.Component.
func (w *WindPerformance) Inputs() []component.Port {
	return []component.Port{
		component.Series("wind_speed", "m/s", w.n, "Hub height wind speed"),
	}
}

// Outputs implements component.Component.
func (w *WindPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("electricity_out", "kW", w.n, "Net plant power"),
		component.Scalar("total_electricity_produced", "kW*h/year", 0, "Annual energy"),
		component.Scalar("capacity_factor", "unitless", 0, ""),
		component.Scalar("total_capacity", "kW", 0, "Rated plant capacity"),
	}
}

// turbinePower is the output of one turbine at wind speed v.
func (w *WindPerformance) turbinePower(v float64) float64 {
	c := w.cfg
	switch {
	case v < c.CutInWindSpeed || v >= c.CutOutWindSpeed:
		return 0
	case v >= c.RatedWindSpeed:
		return c.TurbineRatingKW
	}
	ci3 := c.CutInWindSpeed * c.CutInWindSpeed * c.CutInWindSpeed
	r3 := c.RatedWindSpeed * c.RatedWindSpeed * c.RatedWindSpeed
	return c.TurbineRatingKW * (v*v*v - ci3) / (r3 - ci3)
}

// Compute implements component.Component.
func (w *WindPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	speeds := in.Get("wind_speed")
	rated := float64(w.cfg.NumTurbines) * w.cfg.TurbineRatingKW
	power := make([]float64, len(speeds))
	for i, v := range speeds {
		power[i] = w.turbinePower(v) * float64(w.cfg.NumTurbines) * (1 - w.cfg.Losses)
	}
	out.Set("electricity_out", power)
	out.SetScalar("total_electricity_produced", annualTotal(power))
	out.SetScalar("capacity_factor", capacityFactor(power, rated))
	out.SetScalar("total_capacity", rated)
	return nil
}

type windCostConfig struct {
	CapexPerKW       float64 `yaml:"capex_per_kW" required:"true"`
	OpexPerKWPerYear float64 `yaml:"opex_per_kW_per_year" required:"true"`

	technology.CostYear `yaml:",inline"`
}

// WindCost prices a wind plant per kW of rated capacity.
type WindCost struct {
	cfg       windCostConfig
	plantLife int
}

// NewWindCost builds wind_plant_cost and atb_wind_cost.
func NewWindCost(cfg technology.Config) (component.Component, error) {
	var c windCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.CapexPerKW < 0 || c.OpexPerKWPerYear < 0 {
		return nil, fmt.Errorf("%s: wind costs must not be negative", cfg.Name)
	}
	return &WindCost{cfg: c, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (w *WindCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("total_capacity", "kW", 0, "Rated plant capacity"),
	}
}

// Outputs implements component.Component.
func (w *WindCost) Outputs() []component.Port {
	return technology.CostOutputs(w.plantLife)
}

// Compute implements component.Component.
func (w *WindCost) Compute(ctx context.Context, in, out component.Vector) error {
	capacity := in.Scalar("total_capacity")
	technology.SetCosts(out, w.cfg.CapexPerKW*capacity, w.cfg.OpexPerKWPerYear*capacity, 0, w.cfg.Year(2022))
	return nil
}
