package models

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

// mmbtuPerMCF is the energy in a thousand cubic feet of pipeline gas.
const mmbtuPerMCF = 1.036

type naturalGasPerformanceConfig struct {
	// HeatRate is in MMBtu/MWh.
	HeatRate float64 `yaml:"heat_rate" required:"true"`
	// SystemCapacityKW is the nameplate; the peak output is used when unset.
	SystemCapacityKW float64 `yaml:"system_capacity_kw"`
}

// NaturalGasPerformance is a combustion turbine or combined cycle plant
// converting fuel energy to electricity at a fixed heat rate.
type NaturalGasPerformance struct {
	cfg naturalGasPerformanceConfig
	n   int
}

// NewNaturalGasPerformance builds natural_gas_performance.
func NewNaturalGasPerformance(cfg technology.Config) (component.Component, error) {
	var c naturalGasPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.HeatRate <= 0 {
		return nil, fmt.Errorf("%s: heat_rate must be positive", cfg.Name)
	}
	return &NaturalGasPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (g *NaturalGasPerformance) Inputs() []component.Port {
	return []component.Port{
		component.Series("natural_gas_in", "MMBtu/h", g.n, "Fuel energy"),
	}
}

// Outputs implements component.Component.
func (g *NaturalGasPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("electricity_out", "kW", g.n, ""),
		component.Scalar("total_electricity_produced", "kW*h/year", 0, ""),
		component.Scalar("plant_capacity_kW", "kW", 0, ""),
		component.Scalar("capacity_factor", "unitless", 0, ""),
	}
}

// Compute implements component.Component.
func (g *NaturalGasPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	fuel := in.Get("natural_gas_in")
	elec := make([]float64, len(fuel))
	for i, f := range fuel {
		// MMBtu/h over MMBtu/MWh gives MW
		elec[i] = max(f, 0) / g.cfg.HeatRate * 1000
	}
	capacity := g.cfg.SystemCapacityKW
	if capacity <= 0 {
		capacity = floats.Max(elec)
	}
	out.Set("electricity_out", elec)
	out.SetScalar("total_electricity_produced", annualTotal(elec))
	out.SetScalar("plant_capacity_kW", capacity)
	out.SetScalar("capacity_factor", capacityFactor(elec, capacity))
	return nil
}

// fuelPrice is a price or the word "variable" when fuel is bought elsewhere.
type fuelPrice struct {
	Value    float64
	Variable bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *fuelPrice) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Value == "variable" {
		*p = fuelPrice{Variable: true}
		return nil
	}
	var v float64
	if err := n.Decode(&v); err != nil {
		return fmt.Errorf("line %d: ng_price must be a number or \"variable\"", n.Line)
	}
	*p = fuelPrice{Value: v}
	return nil
}

type naturalGasCostConfig struct {
	// Capex in USD/kW, fopex in USD/kW/year and vopex in USD/MWh.
	Capex    float64 `yaml:"capex" required:"true"`
	Fopex    float64 `yaml:"fopex" required:"true"`
	Vopex    float64 `yaml:"vopex" required:"true"`
	HeatRate float64 `yaml:"heat_rate" required:"true"`
	// NGPrice is in USD/MCF.
	NGPrice fuelPrice `yaml:"ng_price" required:"true"`

	technology.CostYear `yaml:",inline"`
}

// NaturalGasCost prices the plant, its O&M and the fuel it burns.
type NaturalGasCost struct {
	cfg       naturalGasCostConfig
	plantLife int
}

// NewNaturalGasCost builds natural_gas_cost.
func NewNaturalGasCost(cfg technology.Config) (component.Component, error) {
	var c naturalGasCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.Capex <= 0 || c.Fopex <= 0 || c.Vopex <= 0 || c.HeatRate <= 0 {
		return nil, fmt.Errorf("%s: capex, fopex, vopex and heat_rate must be positive", cfg.Name)
	}
	return &NaturalGasCost{cfg: c, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (g *NaturalGasCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("plant_capacity_kW", "kW", 0, ""),
		component.Scalar("total_electricity_produced", "MW*h/year", 0, ""),
	}
}

// Outputs implements component.Component.
func (g *NaturalGasCost) Outputs() []component.Port {
	return technology.CostOutputs(g.plantLife)
}

// Compute implements component.Component.
func (g *NaturalGasCost) Compute(ctx context.Context, in, out component.Vector) error {
	capacity := in.Scalar("plant_capacity_kW")
	mwh := in.Scalar("total_electricity_produced")
	var fuel float64
	if !g.cfg.NGPrice.Variable {
		fuel = g.cfg.NGPrice.Value * g.cfg.HeatRate * mwh / mmbtuPerMCF
	}
	technology.SetCosts(
		out,
		g.cfg.Capex*capacity,
		g.cfg.Fopex*capacity,
		g.cfg.Vopex*mwh+fuel,
		g.cfg.Year(2023),
	)
	return nil
}
