// Package models holds the built-in technology models: converters, storage,
// feedstocks, controllers and the transports between them. The physics is
// first order; each model turns its configured size and hourly inputs into
// hourly outputs and the standard cost ports.
package models

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// RegisterAll adds every built-in technology and transport model to m.
func RegisterAll(m *technology.Map) {
	m.Register("wind_plant_performance", NewWindPerformance)
	m.Register("wind_plant_cost", NewWindCost)
	m.Register("atb_wind_cost", NewWindCost)
	m.Register("solar_pv_performance", NewSolarPerformance)
	m.Register("atb_utility_pv_cost", NewSolarCost)

	m.Register("pem_electrolyzer_performance", NewElectrolyzerPerformance)
	m.Register("pem_electrolyzer_cost", NewElectrolyzerCost)
	m.Register("basic_electrolyzer_cost", NewBasicElectrolyzerCost)
	m.Register("ammonia_performance", NewAmmoniaPerformance)
	m.Register("ammonia_cost", NewAmmoniaCost)
	m.Register("smr_methanol_performance", NewMethanolSMRPerformance)
	m.Register("smr_methanol_cost", NewMethanolSMRCost)
	m.Register("ng_iron_dri_performance", NewIronDRIPerformance)
	m.Register("ng_iron_dri_cost", NewIronDRICost)
	m.Register("simple_ASU_performance", NewASUPerformance)
	m.Register("simple_ASU_cost", NewASUCost)
	m.Register("natural_gas_performance", NewNaturalGasPerformance)
	m.Register("natural_gas_cost", NewNaturalGasCost)
	m.Register("reverse_osmosis_desalination_performance", NewDesalinationPerformance)
	m.Register("reverse_osmosis_desalination_cost", NewDesalinationCost)

	m.Register("grid_performance", NewGridPerformance)
	m.Register("grid_cost", NewGridCost)
	m.Register("feedstock", NewFeedstock)
	m.Register("simple_feedstock_performance", NewSimpleFeedstockPerformance)
	m.Register("simple_feedstock_cost", NewSimpleFeedstockCost)
	m.Register("demand_performance", NewDemand)

	m.Register("demand_openloop_controller", NewOpenLoopController)
	m.Register("pass_through_controller", NewPassThroughController)
	m.Register("battery_performance", NewBatteryPerformance)
	m.Register("battery_cost", NewBatteryCost)
	m.Register("h2_storage_autosizing", NewH2StorageAutoSizing)
	m.Register("hydrogen_tank_cost", NewHydrogenTankCost)

	m.Register("combiner_performance", NewCombiner)
	m.Register("splitter_performance", NewSplitter)
	m.Register("generic_summer", NewSummer)

	m.RegisterTransport("cable", NewTransport)
	m.RegisterTransport("pipe", NewTransport)
}

// annualTotal scales the sum of an hourly series to one year.
func annualTotal(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Sum(s) * units.HoursPerYear / float64(len(s))
}

// capacityFactor is the mean of s over the rated value.
func capacityFactor(s []float64, rated float64) float64 {
	if len(s) == 0 || rated <= 0 {
		return 0
	}
	return floats.Sum(s) / (rated * float64(len(s)))
}

func nTimesteps(p types.PlantConfig) int {
	if n := p.Plant.Simulation.NTimesteps; n > 0 {
		return n
	}
	return types.DefaultTimesteps
}

// Profile is a config value given either as one number or as one value per
// timestep.
type Profile []float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Profile) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		*p = Profile{v}
		return nil
	case yaml.SequenceNode:
		var vals []float64
		if err := n.Decode(&vals); err != nil {
			return err
		}
		*p = vals
		return nil
	}
	return fmt.Errorf("line %d: expected a number or a list of numbers", n.Line)
}

// Series broadcasts a single value to n timesteps. Any other length than 1 or
// n is an error.
func (p Profile) Series(name string, n int) ([]float64, error) {
	out := make([]float64, n)
	switch len(p) {
	case 0:
	case 1:
		for i := range out {
			out[i] = p[0]
		}
	case n:
		copy(out, p)
	default:
		return nil, fmt.Errorf("%s has %d values but the simulation has %d timesteps", name, len(p), n)
	}
	return out, nil
}

func clip(x, lo, hi float64) float64 {
	return min(max(x, lo), hi)
}
