package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

type storageConfig struct {
	CommodityName  string `yaml:"commodity_name"`
	CommodityUnits string `yaml:"commodity_units"`
	// MaxCapacity is in commodity_units*h; rates are in commodity_units.
	MaxCapacity      float64 `yaml:"max_capacity"`
	MaxChargeRate    float64 `yaml:"max_charge_rate"`
	MaxDischargeRate float64 `yaml:"max_discharge_rate"`
	// Charge levels are fractions of MaxCapacity.
	MaxChargePercent  float64  `yaml:"max_charge_percent"`
	MinChargePercent  float64  `yaml:"min_charge_percent"`
	InitChargePercent float64  `yaml:"init_charge_percent"`
	DemandProfile     Profile  `yaml:"demand_profile" required:"true"`
	ChargeEfficiency  *float64 `yaml:"charge_efficiency"`
	// DischargeEfficiency is required with ChargeEfficiency; the two
	// together are an alternative to RoundTripEfficiency.
	DischargeEfficiency *float64 `yaml:"discharge_efficiency"`
	RoundTripEfficiency *float64 `yaml:"round_trip_efficiency"`
}

// efficiencies returns the one-way charge and discharge efficiencies. A
// round trip efficiency is split evenly as its square root.
func (c storageConfig) efficiencies() (float64, float64, error) {
	oneWay := c.ChargeEfficiency != nil || c.DischargeEfficiency != nil
	switch {
	case oneWay && c.RoundTripEfficiency != nil:
		return 0, 0, errors.New(
			"exactly one of round_trip_efficiency or charge_efficiency and discharge_efficiency must be given, not both",
		)
	case c.RoundTripEfficiency != nil:
		rte := *c.RoundTripEfficiency
		if rte <= 0 || rte > 1 {
			return 0, 0, errors.New("round_trip_efficiency must be in (0, 1]")
		}
		return math.Sqrt(rte), math.Sqrt(rte), nil
	case c.ChargeEfficiency != nil && c.DischargeEfficiency != nil:
		ce, de := *c.ChargeEfficiency, *c.DischargeEfficiency
		if ce <= 0 || ce > 1 || de <= 0 || de > 1 {
			return 0, 0, errors.New("charge_efficiency and discharge_efficiency must be in (0, 1]")
		}
		return ce, de, nil
	}
	return 0, 0, errors.New(
		"exactly one of round_trip_efficiency or charge_efficiency and discharge_efficiency must be given",
	)
}

func (c storageConfig) validate() error {
	if c.CommodityName == "" || c.CommodityUnits == "" {
		return errors.New("commodity_name and commodity_units are required")
	}
	if _, err := units.Parse(c.CommodityUnits); err != nil {
		return err
	}
	switch {
	case c.MinChargePercent < 0 || c.MinChargePercent > 1 || c.MaxChargePercent > 1:
		return errors.New("charge percents must be in [0, 1]")
	case c.MinChargePercent > c.MaxChargePercent:
		return errors.New("min_charge_percent must not exceed max_charge_percent")
	case c.InitChargePercent < c.MinChargePercent || c.InitChargePercent > c.MaxChargePercent:
		return errors.New("init_charge_percent must be between min_charge_percent and max_charge_percent")
	case c.MaxCapacity < 0 || c.MaxChargeRate < 0 || c.MaxDischargeRate < 0:
		return errors.New("capacity and rates must not be negative")
	}
	_, _, err := c.efficiencies()
	return err
}

// storage is the open loop dispatch shared by the storage controllers:
// surplus over demand charges, deficits discharge, both within rate and
// charge level limits.
type storage struct {
	cfg       storageConfig
	chargeEff float64
	dischEff  float64
	demand    []float64
	n         int
}

func newStorage(cfg technology.Config, kind string, c storageConfig) (*storage, error) {
	if err := cfg.Decode(kind, &c); err != nil {
		return nil, err
	}
	if c.MaxChargePercent == 0 {
		c.MaxChargePercent = 1
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	ce, de, err := c.efficiencies()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	n := cfg.NTimesteps()
	demand, err := c.DemandProfile.Series("demand_profile", n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return &storage{cfg: c, chargeEff: ce, dischEff: de, demand: demand, n: n}, nil
}

func (s *storage) name(suffix string) string {
	return s.cfg.CommodityName + suffix
}

func (s *storage) inputs() []component.Port {
	u := s.cfg.CommodityUnits
	return []component.Port{
		component.Series(s.name("_in"), u, s.n, "Flow into storage"),
		{Name: s.name("_demand_profile"), Units: u, Size: s.n, Values: s.demand},
		component.Scalar("max_capacity", "("+u+")*h", s.cfg.MaxCapacity, "Storage capacity"),
		component.Scalar("max_charge_rate", u, s.cfg.MaxChargeRate, ""),
		component.Scalar("max_discharge_rate", u, s.cfg.MaxDischargeRate, ""),
	}
}

func (s *storage) outputs() []component.Port {
	u := s.cfg.CommodityUnits
	return []component.Port{
		component.Series(s.name("_out"), u, s.n, "Flow delivered after storage"),
		component.Series(s.name("_soc"), "unitless", s.n, "State of charge"),
		component.Series(s.name("_unused_commodity"), u, s.n, "Surplus that could not be stored"),
		component.Series(s.name("_unmet_demand"), u, s.n, ""),
	}
}

func (s *storage) compute(in, out component.Vector) {
	flow, demand := in.Get(s.name("_in")), in.Get(s.name("_demand_profile"))
	capacity := in.Scalar("max_capacity")
	maxCharge, maxDischarge := in.Scalar("max_charge_rate"), in.Scalar("max_discharge_rate")
	ce, de := s.chargeEff, s.dischEff
	hi, lo := s.cfg.MaxChargePercent, s.cfg.MinChargePercent

	delivered := make([]float64, len(flow))
	socs := make([]float64, len(flow))
	unused := make([]float64, len(flow))
	unmet := make([]float64, len(flow))

	soc := s.cfg.InitChargePercent
	for t := range flow {
		availCharge := (hi - soc) * capacity
		availDischarge := (soc - lo) * capacity
		var surplus, charge float64
		if demand[t] > flow[t] {
			need := (demand[t] - flow[t]) / de
			discharge := math.Min(need, math.Min(availDischarge, maxDischarge/de))
			if capacity > 0 {
				soc -= discharge / capacity
			}
			delivered[t] = flow[t] + discharge*de
		} else {
			surplus = flow[t] - demand[t]
			charge = math.Min(surplus, math.Min(availCharge/ce, maxCharge)) * ce
			if capacity > 0 {
				soc += charge / capacity
			}
			delivered[t] = demand[t]
		}
		soc = clip(soc, lo, hi)
		socs[t] = soc
		unused[t] = max(0, surplus-charge/ce)
		unmet[t] = max(0, demand[t]-delivered[t])
	}

	out.Set(s.name("_out"), delivered)
	out.Set(s.name("_soc"), socs)
	out.Set(s.name("_unused_commodity"), unused)
	out.Set(s.name("_unmet_demand"), unmet)
}

// OpenLoopController dispatches a storage technology against a fixed demand
// profile.
type OpenLoopController struct {
	*storage
}

// NewOpenLoopController builds demand_openloop_controller.
func NewOpenLoopController(cfg technology.Config) (component.Component, error) {
	s, err := newStorage(cfg, technology.RoleControl, storageConfig{})
	if err != nil {
		return nil, err
	}
	return &OpenLoopController{s}, nil
}

// Inputs implements component.Component.
func (c *OpenLoopController) Inputs() []component.Port {
	return c.inputs()
}

// Outputs implements component.Component.
func (c *OpenLoopController) Outputs() []component.Port {
	return c.outputs()
}

// Compute implements component.Component.
func (c *OpenLoopController) Compute(ctx context.Context, in, out component.Vector) error {
	c.compute(in, out)
	return nil
}

type passThroughConfig struct {
	CommodityName  string `yaml:"commodity_name" required:"true"`
	CommodityUnits string `yaml:"commodity_units" required:"true"`
}

// PassThroughController delivers its input unchanged.
type PassThroughController struct {
	cfg passThroughConfig
	n   int
}

// NewPassThroughController builds pass_through_controller.
func NewPassThroughController(cfg technology.Config) (component.Component, error) {
	var c passThroughConfig
	if err := cfg.Decode(technology.RoleControl, &c); err != nil {
		return nil, err
	}
	if _, err := units.Parse(c.CommodityUnits); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return &PassThroughController{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (p *PassThroughController) Inputs() []component.Port {
	return []component.Port{
		component.Series(p.cfg.CommodityName+"_in", p.cfg.CommodityUnits, p.n, ""),
	}
}

// Outputs implements component.Component.
func (p *PassThroughController) Outputs() []component.Port {
	return []component.Port{
		component.Series(p.cfg.CommodityName+"_out", p.cfg.CommodityUnits, p.n, ""),
	}
}

// Compute implements component.Component.
func (p *PassThroughController) Compute(ctx context.Context, in, out component.Vector) error {
	out.Set(p.cfg.CommodityName+"_out", in.Get(p.cfg.CommodityName+"_in"))
	return nil
}
