package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// transportUnits are the flow units carried for each item. Anything else is
// a mass flow.
var transportUnits = map[string]string{
	"electricity": "kW",
	"water":       "m**3/h",
	"natural_gas": "MMBtu/h",
}

// Transport carries an item between two technologies without losses.
type Transport struct {
	item  string
	units string
	n     int
}

// NewTransport builds a cable or pipe carrying item.
func NewTransport(item string, cfg types.PlantConfig) (component.Component, error) {
	if item == "" {
		return nil, errors.New("transport item is required")
	}
	u, ok := transportUnits[item]
	if !ok {
		u = "kg/h"
	}
	return &Transport{item: item, units: u, n: nTimesteps(cfg)}, nil
}

// Inputs implements component.Component.
func (t *Transport) Inputs() []component.Port {
	return []component.Port{component.Series(t.item+"_in", t.units, t.n, "")}
}

// Outputs implements component.Component.
func (t *Transport) Outputs() []component.Port {
	return []component.Port{component.Series(t.item+"_out", t.units, t.n, "")}
}

// Compute implements component.Component.
func (t *Transport) Compute(ctx context.Context, in, out component.Vector) error {
	out.Set(t.item+"_out", in.Get(t.item+"_in"))
	return nil
}

type combinerConfig struct {
	InStreams int `yaml:"in_streams"`
}

// Combiner sums electricity_in1..N into electricity_out.
type Combiner struct {
	streams int
	n       int
}

// NewCombiner builds combiner_performance.
func NewCombiner(cfg technology.Config) (component.Component, error) {
	c := combinerConfig{InStreams: 2}
	if err := cfg.Decode(technology.RolePerformance, &c); err != nil {
		return nil, err
	}
	if c.InStreams < 1 {
		return nil, fmt.Errorf("%s: in_streams must be at least 1", cfg.Name)
	}
	return &Combiner{streams: c.InStreams, n: cfg.NTimesteps()}, nil
}

func streamName(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}

// Inputs implements component.Component.
func (c *Combiner) Inputs() []component.Port {
	ports := make([]component.Port, c.streams)
	for i := range ports {
		ports[i] = component.Series(streamName("electricity_in", i+1), "kW", c.n, "")
	}
	return ports
}

// Outputs implements component.Component.
func (c *Combiner) Outputs() []component.Port {
	return []component.Port{component.Series("electricity_out", "kW", c.n, "")}
}

// Compute implements component.Component.
func (c *Combiner) Compute(ctx context.Context, in, out component.Vector) error {
	total := make([]float64, c.n)
	for i := 1; i <= c.streams; i++ {
		floats.Add(total, in.Get(streamName("electricity_in", i)))
	}
	out.Set("electricity_out", total)
	return nil
}

const (
	splitFraction   = "fraction"
	splitPrescribed = "prescribed_electricity"
)

type splitterConfig struct {
	SplitMode string   `yaml:"split_mode" required:"true"`
	Fraction  *float64 `yaml:"fraction_of_electricity_to_first_tech"`
	// Prescribed is kW, one value or one per timestep.
	Prescribed Profile `yaml:"prescribed_electricity_to_first_tech"`
}

// Splitter divides electricity_in between electricity_out1 and
// electricity_out2, either by a fraction or by sending a prescribed amount
// to the first output.
type Splitter struct {
	cfg        splitterConfig
	prescribed []float64
	n          int
}

// NewSplitter builds splitter_performance.
func NewSplitter(cfg technology.Config) (component.Component, error) {
	var c splitterConfig
	if err := cfg.Decode(technology.RolePerformance, &c); err != nil {
		return nil, err
	}
	s := &Splitter{cfg: c, n: cfg.NTimesteps()}
	switch c.SplitMode {
	case splitFraction:
		if c.Fraction == nil {
			return nil, fmt.Errorf("%s: fraction_of_electricity_to_first_tech is required when split_mode is %q", cfg.Name, splitFraction)
		}
	case splitPrescribed:
		if c.Prescribed == nil {
			return nil, fmt.Errorf("%s: prescribed_electricity_to_first_tech is required when split_mode is %q", cfg.Name, splitPrescribed)
		}
		var err error
		if s.prescribed, err = c.Prescribed.Series("prescribed_electricity_to_first_tech", s.n); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}
	default:
		return nil, fmt.Errorf("%s: invalid split_mode %q, must be %q or %q", cfg.Name, c.SplitMode, splitFraction, splitPrescribed)
	}
	return s, nil
}

// Inputs implements component.Component.
func (s *Splitter) Inputs() []component.Port {
	ports := []component.Port{component.Series("electricity_in", "kW", s.n, "")}
	if s.cfg.SplitMode == splitFraction {
		return append(ports, component.Scalar("fraction_of_electricity_to_first_tech", "unitless", *s.cfg.Fraction, ""))
	}
	return append(ports, component.Port{
		Name:   "prescribed_electricity_to_first_tech",
		Units:  "kW",
		Size:   s.n,
		Values: s.prescribed,
	})
}

// Outputs implements component.Component.
func (s *Splitter) Outputs() []component.Port {
	return []component.Port{
		component.Series("electricity_out1", "kW", s.n, "Electricity to the first technology"),
		component.Series("electricity_out2", "kW", s.n, "Remainder to the second technology"),
	}
}

// Compute implements component.Component.
func (s *Splitter) Compute(ctx context.Context, in, out component.Vector) error {
	elec := in.Get("electricity_in")
	first := make([]float64, len(elec))
	second := make([]float64, len(elec))
	if s.cfg.SplitMode == splitFraction {
		f := clip(in.Scalar("fraction_of_electricity_to_first_tech"), 0, 1)
		for i, e := range elec {
			first[i] = e * f
			second[i] = e * (1 - f)
		}
	} else {
		req := in.Get("prescribed_electricity_to_first_tech")
		for i, e := range elec {
			first[i] = min(max(req[i], 0), max(e, 0))
			second[i] = e - first[i]
		}
	}
	out.Set("electricity_out1", first)
	out.Set("electricity_out2", second)
	return nil
}

type summerConfig struct {
	Commodity      string `yaml:"commodity" required:"true"`
	CommodityUnits string `yaml:"commodity_units" required:"true"`
}

// Summer totals a commodity profile over the simulation.
type Summer struct {
	commodity string
	units     string
	total     string
	n         int
}

// NewSummer builds generic_summer.
func NewSummer(cfg technology.Config) (component.Component, error) {
	var c summerConfig
	if err := cfg.Decode(technology.RolePerformance, &c); err != nil {
		return nil, err
	}
	c.Commodity = strings.ToLower(strings.TrimSpace(c.Commodity))
	if _, err := units.Parse(c.CommodityUnits); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	total := c.CommodityUnits
	if c.Commodity == "electricity" {
		total = "(" + c.CommodityUnits + ")*h"
	}
	return &Summer{commodity: c.Commodity, units: c.CommodityUnits, total: total, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (s *Summer) Inputs() []component.Port {
	return []component.Port{component.Series(s.commodity+"_in", s.units, s.n, "")}
}

// Outputs implements component.Component.
func (s *Summer) Outputs() []component.Port {
	return []component.Port{component.Scalar("total_"+s.commodity+"_produced", s.total, 0, "")}
}

// Compute implements component.Component.
func (s *Summer) Compute(ctx context.Context, in, out component.Vector) error {
	out.SetScalar("total_"+s.commodity+"_produced", floats.Sum(in.Get(s.commodity+"_in")))
	return nil
}
