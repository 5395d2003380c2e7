package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

// h2LHVMJ is the lower heating value of hydrogen in MJ/kg.
const h2LHVMJ = 119.96

type sizeFromDemand struct {
	Flag bool `yaml:"flag"`
}

type h2StorageSizingConfig struct {
	CommodityName  string `yaml:"commodity_name"`
	CommodityUnits string `yaml:"commodity_units"`
	// ElectrolyzerRatingMW is needed to report storage duration when sizing
	// from demand.
	ElectrolyzerRatingMW   *float64       `yaml:"electrolyzer_rating_mw_for_h2_storage_sizing"`
	SizeCapacityFromDemand sizeFromDemand `yaml:"size_capacity_from_demand"`
	Days                   int            `yaml:"days"`
	DemandProfile          Profile        `yaml:"demand_profile"`
	// accepted for compatibility, has no effect
	CapacityFromMaxOnTurbineStorage bool `yaml:"capacity_from_max_on_turbine_storage"`
}

// H2StorageAutoSizing sizes hydrogen storage from the hydrogen produced.
// Sizing from demand makes the capacity the swing of the cumulative surplus
// of production over demand; otherwise it holds days of the peak fill rate.
type H2StorageAutoSizing struct {
	cfg    h2StorageSizingConfig
	demand []float64
	n      int
}

// NewH2StorageAutoSizing builds h2_storage_autosizing.
func NewH2StorageAutoSizing(cfg technology.Config) (component.Component, error) {
	c := h2StorageSizingConfig{
		CommodityName:          "hydrogen",
		CommodityUnits:         "kg",
		SizeCapacityFromDemand: sizeFromDemand{Flag: true},
	}
	if err := cfg.Decode(technology.RolePerformance, &c); err != nil {
		return nil, err
	}
	if c.SizeCapacityFromDemand.Flag && c.ElectrolyzerRatingMW == nil {
		return nil, fmt.Errorf(
			"%s: electrolyzer_rating_mw_for_h2_storage_sizing must be specified when size_capacity_from_demand is true",
			cfg.Name,
		)
	}
	if c.Days < 0 {
		return nil, fmt.Errorf("%s: days must not be negative", cfg.Name)
	}
	n := cfg.NTimesteps()
	demand, err := c.DemandProfile.Series("demand_profile", n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return &H2StorageAutoSizing{cfg: c, demand: demand, n: n}, nil
}

// Inputs implements component.Component.
func (h *H2StorageAutoSizing) Inputs() []component.Port {
	return []component.Port{
		component.Series("hydrogen_in", "kg/h", h.n, ""),
		{Name: "hydrogen_demand_profile", Units: "kg/h", Size: h.n, Values: h.demand},
		component.Scalar("efficiency", "unitless", 0, "Average electrolyzer efficiency, HHV"),
	}
}

// Outputs implements component.Component.
func (h *H2StorageAutoSizing) Outputs() []component.Port {
	return []component.Port{
		component.Scalar("max_capacity", "kg", 0, ""),
		component.Scalar("max_charge_rate", "kg/h", 0, ""),
		component.Scalar("storage_duration", "h", 0, "Capacity in hours of electrolyzer output"),
	}
}

// Compute implements component.Component.
func (h *H2StorageAutoSizing) Compute(ctx context.Context, in, out component.Vector) error {
	produced := in.Get("hydrogen_in")
	if len(produced) == 0 {
		return errors.New("hydrogen_in is empty")
	}
	fillRate := floats.Max(produced)

	var capacity, duration float64
	if h.cfg.SizeCapacityFromDemand.Flag {
		capacity = demandSizedCapacity(produced, in.Get("hydrogen_demand_profile"))
		eff := in.Scalar("efficiency")
		if rating := *h.cfg.ElectrolyzerRatingMW; rating > 0 && eff > 0 {
			duration = capacity * h2LHVMJ / 3600 / rating / eff
		}
	} else {
		capacity = math.Round(float64(h.cfg.Days*24) * fillRate)
	}

	out.SetScalar("max_capacity", capacity)
	out.SetScalar("max_charge_rate", fillRate)
	out.SetScalar("storage_duration", duration)
	return nil
}

// demandSizedCapacity returns the range of the cumulative surplus of
// production over demand. Demand never falls below the mean production and
// an all-zero demand is taken as the mean production.
func demandSizedCapacity(produced, demand []float64) float64 {
	mean := stat.Mean(produced, nil)
	useDemand := len(demand) == len(produced) && floats.Sum(demand) > 0

	var level, lo, hi float64
	for i, p := range produced {
		d := mean
		if useDemand {
			d = math.Max(demand[i], mean)
		}
		level += p - d
		if i == 0 {
			lo, hi = level, level
			continue
		}
		lo, hi = math.Min(lo, level), math.Max(hi, level)
	}
	return hi - lo
}

type hydrogenTankCostConfig struct {
	MaxCapacity   float64 `yaml:"max_capacity"`
	MaxChargeRate float64 `yaml:"max_charge_rate"`
	// CapexPerKg is USD per kg of capacity.
	CapexPerKg        float64 `yaml:"capex_per_kg"`
	FixedOpexFraction float64 `yaml:"opex_fraction"`

	technology.CostYear `yaml:",inline"`
}

// HydrogenTankCost prices hydrogen storage by capacity.
type HydrogenTankCost struct {
	cfg       hydrogenTankCostConfig
	plantLife int
}

// NewHydrogenTankCost builds hydrogen_tank_cost.
func NewHydrogenTankCost(cfg technology.Config) (component.Component, error) {
	c := hydrogenTankCostConfig{CapexPerKg: 0.1, FixedOpexFraction: 0.1}
	if err := cfg.Decode(technology.RoleCost, &c); err != nil {
		return nil, err
	}
	if c.CapexPerKg < 0 || c.FixedOpexFraction < 0 {
		return nil, fmt.Errorf("%s: capex_per_kg and opex_fraction must not be negative", cfg.Name)
	}
	return &HydrogenTankCost{cfg: c, plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (h *HydrogenTankCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("max_capacity", "kg", h.cfg.MaxCapacity, ""),
		component.Scalar("max_charge_rate", "kg/h", h.cfg.MaxChargeRate, ""),
	}
}

// Outputs implements component.Component.
func (h *HydrogenTankCost) Outputs() []component.Port {
	return technology.CostOutputs(h.plantLife)
}

// Compute implements component.Component.
func (h *HydrogenTankCost) Compute(ctx context.Context, in, out component.Vector) error {
	capex := in.Scalar("max_capacity") * h.cfg.CapexPerKg
	technology.SetCosts(out, capex, capex*h.cfg.FixedOpexFraction, 0, h.cfg.Year(2018))
	return nil
}
