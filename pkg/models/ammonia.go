package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

type ammoniaPerformanceConfig struct {
	// PlantCapacityKgpy is the nameplate ammonia output in kg/year.
	PlantCapacityKgpy float64 `yaml:"plant_capacity_kgpy"`
	CapacityFactor    float64 `yaml:"capacity_factor"`
	EnergyKWhPerKg    float64 `yaml:"energy_kWh_per_kg"`
	HydrogenPerKg     float64 `yaml:"hydrogen_kg_per_kg_ammonia"`
	NitrogenPerKg     float64 `yaml:"nitrogen_kg_per_kg_ammonia"`

	technology.Sizing `yaml:",inline"`
}

// AmmoniaPerformance is a Haber-Bosch synthesis loop. Output is limited by
// the plant capacity and by each feedstock that is supplied; a feedstock
// whose input is zero for every timestep is treated as unconstrained.
type AmmoniaPerformance struct {
	cfg ammoniaPerformanceConfig
	n   int
}

// NewAmmoniaPerformance builds ammonia_performance.
func NewAmmoniaPerformance(cfg technology.Config) (component.Component, error) {
	var c ammoniaPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if err := c.Sizing.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	if c.SizeMode == technology.SizeByMaxCommodity {
		return nil, fmt.Errorf("%s: size_mode %s is not supported", cfg.Name, c.SizeMode)
	}
	if c.SizeMode == technology.SizeNormal && c.PlantCapacityKgpy <= 0 {
		return nil, fmt.Errorf("%s: plant_capacity_kgpy must be positive", cfg.Name)
	}
	if c.CapacityFactor == 0 {
		c.CapacityFactor = 0.9
	}
	if c.EnergyKWhPerKg == 0 {
		c.EnergyKWhPerKg = 0.12
	}
	if c.HydrogenPerKg == 0 {
		c.HydrogenPerKg = 0.197284
	}
	if c.NitrogenPerKg == 0 {
		c.NitrogenPerKg = 0.822706
	}
	if c.CapacityFactor < 0 || c.CapacityFactor > 1 {
		return nil, fmt.Errorf("%s: capacity_factor must be in [0, 1]", cfg.Name)
	}
	return &AmmoniaPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (a *AmmoniaPerformance) Inputs() []component.Port {
	return append([]component.Port{
		component.Series("hydrogen_in", "kg/h", a.n, ""),
		component.Series("nitrogen_in", "kg/h", a.n, ""),
		component.Series("electricity_in", "kW", a.n, ""),
	}, a.cfg.Sizing.Inputs()...)
}

// Outputs implements component.Component.
func (a *AmmoniaPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("ammonia_out", "kg/h", a.n, ""),
		component.Series("hydrogen_consumed", "kg/h", a.n, ""),
		component.Series("nitrogen_consumed", "kg/h", a.n, ""),
		component.Series("electricity_consumed", "kW", a.n, ""),
		component.Scalar("total_ammonia_produced", "kg/year", 0, ""),
		component.Scalar("plant_capacity_kgpy", "kg/year", 0, "Nameplate ammonia capacity"),
		component.Scalar("max_hydrogen_capacity", "kg/h", 0, "Hydrogen needed at nameplate output"),
		component.Scalar("capacity_factor", "unitless", 0, ""),
	}
}

// Compute implements component.Component.
func (a *AmmoniaPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	h2, n2, elec := in.Get("hydrogen_in"), in.Get("nitrogen_in"), in.Get("electricity_in")

	var ratedKgph float64
	if a.cfg.SizeMode == technology.SizeByMaxFeedstock {
		ratedKgph = floats.Max(h2) / a.cfg.HydrogenPerKg * in.Scalar("max_feedstock_ratio")
	} else {
		ratedKgph = a.cfg.PlantCapacityKgpy / units.HoursPerYear
	}
	limit := ratedKgph * a.cfg.CapacityFactor

	supplied := func(s []float64) bool { return floats.Max(s) > 0 }
	useH2, useN2, useElec := supplied(h2), supplied(n2), supplied(elec)

	nh3 := make([]float64, a.n)
	for i := range nh3 {
		v := limit
		if useH2 {
			v = math.Min(v, max(h2[i], 0)/a.cfg.HydrogenPerKg)
		}
		if useN2 {
			v = math.Min(v, max(n2[i], 0)/a.cfg.NitrogenPerKg)
		}
		if useElec {
			v = math.Min(v, max(elec[i], 0)/a.cfg.EnergyKWhPerKg)
		}
		nh3[i] = v
	}

	scaled := func(k float64) []float64 {
		s := make([]float64, len(nh3))
		floats.ScaleTo(s, k, nh3)
		return s
	}
	out.Set("ammonia_out", nh3)
	out.Set("hydrogen_consumed", scaled(a.cfg.HydrogenPerKg))
	out.Set("nitrogen_consumed", scaled(a.cfg.NitrogenPerKg))
	out.Set("electricity_consumed", scaled(a.cfg.EnergyKWhPerKg))
	out.SetScalar("total_ammonia_produced", annualTotal(nh3))
	out.SetScalar("plant_capacity_kgpy", ratedKgph*units.HoursPerYear)
	out.SetScalar("max_hydrogen_capacity", ratedKgph*a.cfg.HydrogenPerKg)
	out.SetScalar("capacity_factor", capacityFactor(nh3, ratedKgph))
	return nil
}

type ammoniaCostConfig struct {
	// CapexPerKgpy is the installed cost per kg/year of capacity.
	CapexPerKgpy      float64 `yaml:"capex_per_kgpy" required:"true"`
	FixedOpexFraction float64 `yaml:"fixed_opex_fraction"`
	// ElectricityPrice in USD/kWh is charged on electricity_consumed.
	ElectricityPrice float64 `yaml:"electricity_price"`

	technology.CostYear `yaml:",inline"`
}

// AmmoniaCost prices the ammonia plant and buys its hydrogen at the levelized
// cost of hydrogen given as an input.
type AmmoniaCost struct {
	cfg       ammoniaCostConfig
	n         int
	plantLife int
}

// NewAmmoniaCost builds ammonia_cost.
func NewAmmoniaCost(cfg technology.Config) (component.Component, error) {
	var c ammoniaCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.FixedOpexFraction == 0 {
		c.FixedOpexFraction = 0.05
	}
	return &AmmoniaCost{cfg: c, n: cfg.NTimesteps(), plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (a *AmmoniaCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("plant_capacity_kgpy", "kg/year", 0, ""),
		component.Scalar("LCOH", "USD/kg", 0, "Price paid for hydrogen"),
		component.Series("hydrogen_consumed", "kg/h", a.n, ""),
		component.Series("electricity_consumed", "kW", a.n, ""),
	}
}

// Outputs implements component.Component.
func (a *AmmoniaCost) Outputs() []component.Port {
	return technology.CostOutputs(a.plantLife)
}

// Compute implements component.Component.
func (a *AmmoniaCost) Compute(ctx context.Context, in, out component.Vector) error {
	capex := a.cfg.CapexPerKgpy * in.Scalar("plant_capacity_kgpy")
	feedstock := in.Scalar("LCOH")*annualTotal(in.Get("hydrogen_consumed")) +
		a.cfg.ElectricityPrice*annualTotal(in.Get("electricity_consumed"))
	technology.SetCosts(out, capex, capex*a.cfg.FixedOpexFraction, feedstock, a.cfg.Year(2022))
	return nil
}
