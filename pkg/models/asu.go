package models

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// molar masses in g/mol
const (
	n2MolarMass = 28.0134
	o2MolarMass = 31.998
	arMolarMass = 39.948
)

type asuPerformanceConfig struct {
	SizeFromN2Demand bool     `yaml:"size_from_N2_demand"`
	RatedN2KgPrHr    *float64 `yaml:"rated_N2_kg_pr_hr"`
	ASURatedPowerKW  *float64 `yaml:"ASU_rated_power_kW"`
	// Air composition in mole percent.
	N2FractionInAir float64 `yaml:"N2_fraction_in_air"`
	O2FractionInAir float64 `yaml:"O2_fraction_in_air"`
	ArFractionInAir float64 `yaml:"Ar_fraction_in_air"`

	EfficiencyKWhPrKgN2 float64 `yaml:"efficiency_kWh_pr_kg_N2"`
}

// ASUPerformance is a cryogenic air separation unit producing nitrogen from
// electricity, with oxygen and argon as by-products. When sized from demand
// it takes the nitrogen demand as input and reports the electricity it needs.
type ASUPerformance struct {
	cfg asuPerformanceConfig
	n   int
}

// NewASUPerformance builds simple_ASU_performance.
func NewASUPerformance(cfg technology.Config) (component.Component, error) {
	var c asuPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.N2FractionInAir == 0 {
		c.N2FractionInAir = 78.11
	}
	if c.O2FractionInAir == 0 {
		c.O2FractionInAir = 20.96
	}
	if c.ArFractionInAir == 0 {
		c.ArFractionInAir = 0.93
	}
	if c.EfficiencyKWhPrKgN2 == 0 {
		c.EfficiencyKWhPrKgN2 = 0.29
	}
	if c.EfficiencyKWhPrKgN2 < 0.119 || c.EfficiencyKWhPrKgN2 > 0.30 {
		return nil, fmt.Errorf("%s: efficiency_kWh_pr_kg_N2 must be in [0.119, 0.30]", cfg.Name)
	}
	if !c.SizeFromN2Demand {
		switch {
		case c.RatedN2KgPrHr == nil && c.ASURatedPowerKW == nil:
			return nil, fmt.Errorf(
				"%s: either rated_N2_kg_pr_hr or ASU_rated_power_kW must be input if size_from_N2_demand is false",
				cfg.Name,
			)
		case c.RatedN2KgPrHr != nil && c.ASURatedPowerKW != nil:
			eff := *c.ASURatedPowerKW / *c.RatedN2KgPrHr
			if math.Abs(eff-c.EfficiencyKWhPrKgN2) > 1e-9 {
				return nil, fmt.Errorf(
					"%s: ASU size of %g kW at %g kg N2/hour has an efficiency of %g kWh/kg-N2, which does not match efficiency_kWh_pr_kg_N2 of %g",
					cfg.Name, *c.ASURatedPowerKW, *c.RatedN2KgPrHr, eff, c.EfficiencyKWhPrKgN2,
				)
			}
		}
	}
	return &ASUPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (a *ASUPerformance) Inputs() []component.Port {
	if a.cfg.SizeFromN2Demand {
		return []component.Port{component.Series("nitrogen_in", "kg/h", a.n, "Nitrogen demand")}
	}
	return []component.Port{component.Series("electricity_in", "kW", a.n, "")}
}

// Outputs implements component.Component.
func (a *ASUPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("nitrogen_out", "kg/h", a.n, ""),
		component.Series("oxygen_out", "kg/h", a.n, ""),
		component.Series("argon_out", "kg/h", a.n, ""),
		component.Series("air_in", "kg/h", a.n, "Air drawn in"),
		component.Series("electricity_consumed", "kW", a.n, ""),
		component.Scalar("ASU_capacity_kW", "kW", 0, ""),
		component.Scalar("rated_N2_kg_pr_hr", "kg/h", 0, ""),
		component.Scalar("annual_electricity_consumption", "kW*h/year", 0, ""),
		component.Scalar("total_nitrogen_produced", "kg/year", 0, ""),
		component.Scalar("annual_max_nitrogen_production", "kg/year", 0, ""),
		component.Scalar("nitrogen_production_capacity_factor", "unitless", 0, ""),
	}
}

func (a *ASUPerformance) rating(in component.Vector) (kgph, kw float64) {
	eff := a.cfg.EfficiencyKWhPrKgN2
	switch {
	case a.cfg.SizeFromN2Demand:
		kgph = floats.Max(in.Get("nitrogen_in"))
		return kgph, kgph * eff
	case a.cfg.RatedN2KgPrHr != nil && a.cfg.ASURatedPowerKW != nil:
		return *a.cfg.RatedN2KgPrHr, *a.cfg.ASURatedPowerKW
	case a.cfg.RatedN2KgPrHr != nil:
		return *a.cfg.RatedN2KgPrHr, *a.cfg.RatedN2KgPrHr * eff
	}
	return *a.cfg.ASURatedPowerKW / eff, *a.cfg.ASURatedPowerKW
}

// Compute implements component.Component.
func (a *ASUPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	eff := a.cfg.EfficiencyKWhPrKgN2
	ratedKgph, ratedKW := a.rating(in)

	var want []float64
	if a.cfg.SizeFromN2Demand {
		want = in.Get("nitrogen_in")
	} else {
		elec := in.Get("electricity_in")
		want = make([]float64, len(elec))
		floats.ScaleTo(want, 1/eff, elec)
	}

	xN2, xO2, xAr := a.cfg.N2FractionInAir/100, a.cfg.O2FractionInAir/100, a.cfg.ArFractionInAir/100
	airMolarMass := n2MolarMass*xN2 + o2MolarMass*xO2 + arMolarMass*xAr

	n2 := make([]float64, len(want))
	o2 := make([]float64, len(want))
	ar := make([]float64, len(want))
	air := make([]float64, len(want))
	elec := make([]float64, len(want))
	for i, w := range want {
		n2[i] = clip(w, 0, ratedKgph)
		airMol := n2[i] * 1e3 / n2MolarMass / xN2
		o2[i] = airMol * xO2 * o2MolarMass / 1e3
		ar[i] = airMol * xAr * arMolarMass / 1e3
		air[i] = airMol * airMolarMass / 1e3
		elec[i] = n2[i] * eff
	}

	out.Set("nitrogen_out", n2)
	out.Set("oxygen_out", o2)
	out.Set("argon_out", ar)
	out.Set("air_in", air)
	out.Set("electricity_consumed", elec)
	out.SetScalar("ASU_capacity_kW", ratedKW)
	out.SetScalar("rated_N2_kg_pr_hr", ratedKgph)
	out.SetScalar("annual_electricity_consumption", annualTotal(elec))
	out.SetScalar("total_nitrogen_produced", annualTotal(n2))
	out.SetScalar("annual_max_nitrogen_production", ratedKgph*units.HoursPerYear)
	out.SetScalar("nitrogen_production_capacity_factor", capacityFactor(n2, ratedKgph))
	return nil
}

var asuCostUnits = map[string]string{
	"kg/hour":    "kg/h",
	"tonne/hour": "tonne/h",
	"kg/day":     "kg/day",
	"tonne/day":  "tonne/day",
	"kw":         "kW",
	"mw":         "MW",
}

type asuCostConfig struct {
	CapexUSDPerUnit       float64 `yaml:"capex_usd_per_unit" required:"true"`
	CapexUnit             string  `yaml:"capex_unit" required:"true"`
	OpexUSDPerUnitPerYear float64 `yaml:"opex_usd_per_unit_per_year"`
	OpexUnit              string  `yaml:"opex_unit"`

	technology.CostYear `yaml:",inline"`
}

// ASUCost prices the ASU per unit of rated power or of rated nitrogen flow,
// whichever unit the costs are quoted in.
type ASUCost struct {
	cfg       asuCostConfig
	capexUnit string
	opexUnit  string
	plantLife int
}

func normalizeASUUnit(u string) (string, bool) {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" || u == "none" {
		return "", true
	}
	out, ok := asuCostUnits[u]
	return out, ok
}

// NewASUCost builds simple_ASU_cost.
func NewASUCost(cfg technology.Config) (component.Component, error) {
	var c asuCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	capexUnit, ok := normalizeASUUnit(c.CapexUnit)
	if !ok || capexUnit == "" {
		return nil, fmt.Errorf("%s: capex_unit %q must be one of kg/hour, kw, mw, tonne/hour, kg/day, tonne/day", cfg.Name, c.CapexUnit)
	}
	opexUnit, ok := normalizeASUUnit(c.OpexUnit)
	if !ok {
		return nil, fmt.Errorf("%s: opex_unit %q must be one of kg/hour, kw, mw, tonne/hour, kg/day, tonne/day, none", cfg.Name, c.OpexUnit)
	}
	if c.OpexUSDPerUnitPerYear > 0 && opexUnit == "" {
		return nil, fmt.Errorf("%s: opex_usd_per_unit_per_year is set but opex_unit is not", cfg.Name)
	}
	return &ASUCost{cfg: c, capexUnit: capexUnit, opexUnit: opexUnit, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (a *ASUCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("ASU_capacity_kW", "kW", 0, ""),
		component.Scalar("rated_N2_kg_pr_hr", "kg/h", 0, ""),
	}
}

// Outputs implements component.Component.
func (a *ASUCost) Outputs() []component.Port {
	return technology.CostOutputs(a.plantLife)
}

// size returns the ASU rating expressed in unit.
func (a *ASUCost) size(in component.Vector, unit string) (float64, error) {
	if unit == "" {
		return 0, nil
	}
	if v, err := units.Convert(in.Scalar("ASU_capacity_kW"), "kW", unit); err == nil {
		return v, nil
	}
	return units.Convert(in.Scalar("rated_N2_kg_pr_hr"), "kg/h", unit)
}

// Compute implements component.Component.
func (a *ASUCost) Compute(ctx context.Context, in, out component.Vector) error {
	capexSize, err := a.size(in, a.capexUnit)
	if err != nil {
		return err
	}
	opexSize, err := a.size(in, a.opexUnit)
	if err != nil {
		return err
	}
	technology.SetCosts(
		out,
		a.cfg.CapexUSDPerUnit*capexSize,
		a.cfg.OpexUSDPerUnitPerYear*opexSize,
		0,
		a.cfg.Year(2022),
	)
	return nil
}
