package models

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

type gridPerformanceConfig struct {
	InterconnectionSize float64 `yaml:"interconnection_size" required:"true"`
}

// GridPerformance buys electricity to meet electricity_demand and takes any
// electricity_in as sold, both within the interconnection limit.
type GridPerformance struct {
	cfg gridPerformanceConfig
	n   int
}

// NewGridPerformance builds grid_performance.
func NewGridPerformance(cfg technology.Config) (component.Component, error) {
	var c gridPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.InterconnectionSize < 0 {
		return nil, fmt.Errorf("%s: interconnection_size must not be negative", cfg.Name)
	}
	return &GridPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (g *GridPerformance) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("interconnection_size", "kW", g.cfg.InterconnectionSize, ""),
		component.Series("electricity_in", "kW", g.n, "Electricity sold to the grid"),
		component.Series("electricity_demand", "kW", g.n, "Electricity wanted from the grid"),
	}
}

// Outputs implements component.Component.
func (g *GridPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("electricity_out", "kW", g.n, "Electricity bought from the grid"),
		component.Series("electricity_sold", "kW", g.n, ""),
		component.Scalar("total_electricity_produced", "kW*h/year", 0, "Electricity bought per year"),
	}
}

// Compute implements component.Component.
func (g *GridPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	size := in.Scalar("interconnection_size")
	demand, sell := in.Get("electricity_demand"), in.Get("electricity_in")
	bought := make([]float64, len(demand))
	sold := make([]float64, len(sell))
	for i := range bought {
		bought[i] = clip(demand[i], 0, size)
		sold[i] = clip(sell[i], 0, size)
	}
	out.Set("electricity_out", bought)
	out.Set("electricity_sold", sold)
	out.SetScalar("total_electricity_produced", annualTotal(bought))
	return nil
}

type gridCostConfig struct {
	InterconnectionSize       float64 `yaml:"interconnection_size" required:"true"`
	InterconnectionCapexPerKW float64 `yaml:"interconnection_capex_per_kw"`
	InterconnectionOpexPerKW  float64 `yaml:"interconnection_opex_per_kw"`
	FixedInterconnectionCost  float64 `yaml:"fixed_interconnection_cost"`
	// Prices in USD/kWh, one value or one per timestep.
	ElectricityBuyPrice  Profile `yaml:"electricity_buy_price"`
	ElectricitySellPrice Profile `yaml:"electricity_sell_price"`

	technology.CostYear `yaml:",inline"`
}

// GridCost prices the interconnection and the net electricity bought.
type GridCost struct {
	cfg       gridCostConfig
	buy, sell []float64
	n         int
	plantLife int
}

// NewGridCost builds grid_cost.
func NewGridCost(cfg technology.Config) (component.Component, error) {
	var c gridCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	n := cfg.NTimesteps()
	buy, err := c.ElectricityBuyPrice.Series("electricity_buy_price", n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	sell, err := c.ElectricitySellPrice.Series("electricity_sell_price", n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return &GridCost{cfg: c, buy: buy, sell: sell, n: n, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (g *GridCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("interconnection_size", "kW", g.cfg.InterconnectionSize, ""),
		component.Series("electricity_out", "kW", g.n, "Electricity bought"),
		component.Series("electricity_sold", "kW", g.n, "Electricity sold"),
		{Name: "electricity_buy_price", Units: "USD/(kW*h)", Size: g.n, Values: g.buy},
		{Name: "electricity_sell_price", Units: "USD/(kW*h)", Size: g.n, Values: g.sell},
	}
}

// Outputs implements component.Component.
func (g *GridCost) Outputs() []component.Port {
	return technology.CostOutputs(g.plantLife)
}

// Compute implements component.Component.
func (g *GridCost) Compute(ctx context.Context, in, out component.Vector) error {
	size := in.Scalar("interconnection_size")
	bought, sold := in.Get("electricity_out"), in.Get("electricity_sold")
	buy, sell := in.Get("electricity_buy_price"), in.Get("electricity_sell_price")

	var net float64
	for i := range bought {
		net += bought[i]*buy[i] - sold[i]*sell[i]
	}
	if len(bought) > 0 {
		net *= units.HoursPerYear / float64(len(bought))
	}
	capex := size*g.cfg.InterconnectionCapexPerKW + g.cfg.FixedInterconnectionCost
	technology.SetCosts(out, capex, size*g.cfg.InterconnectionOpexPerKW, net, g.cfg.Year(2023))
	return nil
}
