package models

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

// BatteryPerformance is an electricity store dispatched open loop against a
// demand profile. Capacity is in kW*h and rates in kW.
type BatteryPerformance struct {
	*storage
}

// NewBatteryPerformance builds battery_performance.
func NewBatteryPerformance(cfg technology.Config) (component.Component, error) {
	s, err := newStorage(cfg, technology.RolePerformance, storageConfig{
		CommodityName:  "electricity",
		CommodityUnits: "kW",
	})
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxDischargeRate == 0 {
		s.cfg.MaxDischargeRate = s.cfg.MaxChargeRate
	}
	return &BatteryPerformance{s}, nil
}

// Inputs implements component.Component.
func (b *BatteryPerformance) Inputs() []component.Port {
	return b.inputs()
}

// Outputs implements component.Component.
func (b *BatteryPerformance) Outputs() []component.Port {
	return append(b.outputs(),
		component.Scalar("total_electricity_produced", "kW*h/year", 0, "Electricity delivered per year"),
	)
}

// Compute implements component.Component.
func (b *BatteryPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	b.compute(in, out)
	out.SetScalar("total_electricity_produced", annualTotal(out.Get(b.name("_out"))))
	return nil
}

type batteryCostConfig struct {
	MaxCapacity   float64 `yaml:"max_capacity" required:"true"`
	MaxChargeRate float64 `yaml:"max_charge_rate" required:"true"`
	// EnergyCapex is USD/kWh and PowerCapex USD/kW.
	EnergyCapex       float64 `yaml:"energy_capex" required:"true"`
	PowerCapex        float64 `yaml:"power_capex" required:"true"`
	FixedOpexFraction float64 `yaml:"opex_fraction"`

	technology.CostYear `yaml:",inline"`
}

// BatteryCost prices a battery per kW of power and kWh of energy.
type BatteryCost struct {
	cfg       batteryCostConfig
	plantLife int
}

// NewBatteryCost builds battery_cost.
func NewBatteryCost(cfg technology.Config) (component.Component, error) {
	var c batteryCostConfig
	if err := cfg.Decode(technology.RoleCost, &c); err != nil {
		return nil, err
	}
	if c.FixedOpexFraction < 0 || c.FixedOpexFraction > 1 {
		return nil, fmt.Errorf("%s: opex_fraction must be in [0, 1]", cfg.Name)
	}
	return &BatteryCost{cfg: c, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (b *BatteryCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("max_capacity", "kW*h", b.cfg.MaxCapacity, ""),
		component.Scalar("max_charge_rate", "kW", b.cfg.MaxChargeRate, ""),
	}
}

// Outputs implements component.Component.
func (b *BatteryCost) Outputs() []component.Port {
	return technology.CostOutputs(b.plantLife)
}

// Compute implements component.Component.
func (b *BatteryCost) Compute(ctx context.Context, in, out component.Vector) error {
	capex := in.Scalar("max_capacity")*b.cfg.EnergyCapex + in.Scalar("max_charge_rate")*b.cfg.PowerCapex
	technology.SetCosts(out, capex, capex*b.cfg.FixedOpexFraction, 0, b.cfg.Year(2022))
	return nil
}
