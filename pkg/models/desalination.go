package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type desalinationPerformanceConfig struct {
	FreshwaterKgPerHour float64 `yaml:"freshwater_kg_per_hour" required:"true"`
	FreshwaterDensity   float64 `yaml:"freshwater_density"`
	// EnergyKWhPerM3 is the electricity needed per m**3 of product water.
	EnergyKWhPerM3 float64 `yaml:"energy_kWh_per_m3"`
	// RecoveryRatio is product water over feed water.
	RecoveryRatio float64 `yaml:"water_recovery_ratio"`
}

// DesalinationPerformance is a reverse osmosis plant producing fresh water
// at its rated capacity, limited by the electricity it is given when
// electricity_in is connected.
type DesalinationPerformance struct {
	cfg desalinationPerformanceConfig
	n   int
}

// NewDesalinationPerformance builds reverse_osmosis_desalination_performance.
func NewDesalinationPerformance(cfg technology.Config) (component.Component, error) {
	var c desalinationPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.FreshwaterDensity == 0 {
		c.FreshwaterDensity = 997
	}
	if c.EnergyKWhPerM3 == 0 {
		c.EnergyKWhPerM3 = 4.0
	}
	if c.RecoveryRatio == 0 {
		c.RecoveryRatio = 0.5
	}
	switch {
	case c.FreshwaterKgPerHour <= 0:
		return nil, fmt.Errorf("%s: freshwater_kg_per_hour must be positive", cfg.Name)
	case c.RecoveryRatio < 0 || c.RecoveryRatio > 1:
		return nil, fmt.Errorf("%s: water_recovery_ratio must be in (0, 1]", cfg.Name)
	}
	return &DesalinationPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (d *DesalinationPerformance) Inputs() []component.Port {
	return []component.Port{
		component.Series("electricity_in", "kW", d.n, ""),
	}
}

// Outputs implements component.Component.
func (d *DesalinationPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("water_out", "m**3/h", d.n, "Product water"),
		component.Series("feedwater_consumed", "m**3/h", d.n, ""),
		component.Series("electricity_consumed", "kW", d.n, ""),
		component.Scalar("freshwater_capacity_m3_per_hour", "m**3/h", 0, ""),
		component.Scalar("total_water_produced", "m**3/year", 0, ""),
	}
}

// Compute implements component.Component.
func (d *DesalinationPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	capacity := d.cfg.FreshwaterKgPerHour / d.cfg.FreshwaterDensity
	elec := in.Get("electricity_in")
	limited := floats.Max(elec) > 0

	water := make([]float64, d.n)
	feed := make([]float64, d.n)
	used := make([]float64, d.n)
	for i := range water {
		w := capacity
		if limited {
			w = math.Min(w, max(elec[i], 0)/d.cfg.EnergyKWhPerM3)
		}
		water[i] = w
		feed[i] = w / d.cfg.RecoveryRatio
		used[i] = w * d.cfg.EnergyKWhPerM3
	}
	out.Set("water_out", water)
	out.Set("feedwater_consumed", feed)
	out.Set("electricity_consumed", used)
	out.SetScalar("freshwater_capacity_m3_per_hour", capacity)
	out.SetScalar("total_water_produced", annualTotal(water))
	return nil
}

type desalinationCostConfig struct {
	// Costs per m**3/day of capacity.
	CapexPerM3PerDay       float64 `yaml:"capex_per_m3_per_day"`
	OpexPerM3PerDayPerYear float64 `yaml:"opex_per_m3_per_day_per_year"`

	technology.CostYear `yaml:",inline"`
}

// DesalinationCost prices the plant per daily m**3 of capacity.
type DesalinationCost struct {
	cfg       desalinationCostConfig
	plantLife int
}

// NewDesalinationCost builds reverse_osmosis_desalination_cost.
func NewDesalinationCost(cfg technology.Config) (component.Component, error) {
	var c desalinationCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.CapexPerM3PerDay == 0 {
		c.CapexPerM3PerDay = 32894
	}
	if c.OpexPerM3PerDayPerYear == 0 {
		c.OpexPerM3PerDayPerYear = 4841
	}
	return &DesalinationCost{cfg: c, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (d *DesalinationCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("freshwater_capacity_m3_per_hour", "m**3/day", 0, ""),
	}
}

// Outputs implements component.Component.
func (d *DesalinationCost) Outputs() []component.Port {
	return technology.CostOutputs(d.plantLife)
}

// Compute implements component.Component.
func (d *DesalinationCost) Compute(ctx context.Context, in, out component.Vector) error {
	// declared in m**3/day so the connection converts it
	perDay := in.Scalar("freshwater_capacity_m3_per_hour")
	technology.SetCosts(out, d.cfg.CapexPerM3PerDay*perDay, d.cfg.OpexPerM3PerDayPerYear*perDay, 0, d.cfg.Year(2013))
	return nil
}
