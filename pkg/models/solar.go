package models

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type solarPerformanceConfig struct {
	SystemCapacityKWdc float64 `yaml:"pv_capacity_kWdc" required:"true"`
	DCACRatio          float64 `yaml:"dc_ac_ratio"`
	// Losses is the fraction of DC energy lost before the inverter.
	Losses float64 `yaml:"losses"`

	technology.Caching `yaml:",inline"`
}

// SolarPerformance converts global horizontal irradiance to AC power with
// inverter clipping.
type SolarPerformance struct {
	cfg solarPerformanceConfig
	n   int
}

// NewSolarPerformance builds solar_pv_performance.
func NewSolarPerformance(cfg technology.Config) (component.Component, error) {
	var c solarPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.DCACRatio == 0 {
		c.DCACRatio = 1.3
	}
	if c.Losses == 0 {
		c.Losses = 0.14
	}
	switch {
	case c.SystemCapacityKWdc <= 0:
		return nil, fmt.Errorf("%s: pv_capacity_kWdc must be positive", cfg.Name)
	case c.DCACRatio < 0:
		return nil, fmt.Errorf("%s: dc_ac_ratio must be positive", cfg.Name)
	case c.Losses < 0 || c.Losses >= 1:
		return nil, fmt.Errorf("%s: losses must be in [0, 1)", cfg.Name)
	}
	return c.Wrap(&SolarPerformance{cfg: c, n: cfg.NTimesteps()}, cfg, "solar_pv_performance", c)
}

// Inputs implements component.Component.
func (s *SolarPerformance) Inputs() []component.Port {
	return []component.Port{
		component.Series("ghi", "W/m**2", s.n, "Global horizontal irradiance"),
	}
}

// Outputs implements component.Component.
func (s *SolarPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("electricity_out", "kW", s.n, "AC power"),
		component.Scalar("total_electricity_produced", "kW*h/year", 0, "Annual energy"),
		component.Scalar("capacity_factor", "unitless", 0, "AC capacity factor"),
		component.Scalar("capacity_kWdc", "kW", 0, ""),
		component.Scalar("capacity_kWac", "kW", 0, ""),
	}
}

// Compute implements component.Component.
func (s *SolarPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	ghi := in.Get("ghi")
	ac := s.cfg.SystemCapacityKWdc / s.cfg.DCACRatio
	power := make([]float64, len(ghi))
	for i, g := range ghi {
		dc := s.cfg.SystemCapacityKWdc * max(g, 0) / 1000 * (1 - s.cfg.Losses)
		power[i] = min(dc, ac)
	}
	out.Set("electricity_out", power)
	out.SetScalar("total_electricity_produced", annualTotal(power))
	out.SetScalar("capacity_factor", capacityFactor(power, ac))
	out.SetScalar("capacity_kWdc", s.cfg.SystemCapacityKWdc)
	out.SetScalar("capacity_kWac", ac)
	return nil
}

type solarCostConfig struct {
	CapexPerKWac       float64 `yaml:"capex_per_kWac"`
	OpexPerKWacPerYear float64 `yaml:"opex_per_kWac_per_year"`
	CapexPerKWdc       float64 `yaml:"capex_per_kWdc"`
	OpexPerKWdcPerYear float64 `yaml:"opex_per_kWdc_per_year"`

	technology.CostYear `yaml:",inline"`
}

// SolarCost prices a PV plant per kW of AC or DC capacity.
type SolarCost struct {
	cfg       solarCostConfig
	plantLife int
}

// NewSolarCost builds atb_utility_pv_cost. Costs may be given per kWac, per
// kWdc or both.
func NewSolarCost(cfg technology.Config) (component.Component, error) {
	var c solarCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.CapexPerKWac == 0 && c.CapexPerKWdc == 0 {
		return nil, fmt.Errorf("%s: one of capex_per_kWac or capex_per_kWdc is required", cfg.Name)
	}
	return &SolarCost{cfg: c, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (s *SolarCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("capacity_kWac", "kW", 0, ""),
		component.Scalar("capacity_kWdc", "kW", 0, ""),
	}
}

// Outputs implements component.Component.
func (s *SolarCost) Outputs() []component.Port {
	return technology.CostOutputs(s.plantLife)
}

// Compute implements component.Component.
func (s *SolarCost) Compute(ctx context.Context, in, out component.Vector) error {
	ac, dc := in.Scalar("capacity_kWac"), in.Scalar("capacity_kWdc")
	capex := s.cfg.CapexPerKWac*ac + s.cfg.CapexPerKWdc*dc
	opex := s.cfg.OpexPerKWacPerYear*ac + s.cfg.OpexPerKWdcPerYear*dc
	technology.SetCosts(out, capex, opex, 0, s.cfg.Year(2022))
	return nil
}
