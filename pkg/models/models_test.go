package models

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// testConfig returns a technology config whose role parameters are params.
func testConfig(n int, role string, params map[string]any) technology.Config {
	return technology.Config{
		Name: "test",
		Role: role,
		Tech: types.TechConfig{
			ModelInputs: map[string]map[string]any{role + "_parameters": params},
		},
		Plant: types.PlantConfig{
			Plant: types.PlantParameters{
				PlantLife:  2,
				Simulation: types.SimulationParameters{NTimesteps: n},
			},
		},
	}
}

// run computes c with the given inputs on top of the port defaults.
func run(t *testing.T, c component.Component, inputs map[string][]float64) component.Vector {
	t.Helper()
	in := component.Vector{}
	for _, p := range c.Inputs() {
		size := max(p.Size, 1)
		vals := make([]float64, size)
		if len(p.Values) == size {
			copy(vals, p.Values)
		} else {
			for i := range vals {
				vals[i] = p.Default
			}
		}
		in[p.Name] = vals
	}
	for name, vals := range inputs {
		require.Contains(t, in, name, "unknown input")
		in.Set(name, vals)
	}
	out := component.Vector{}
	for _, p := range c.Outputs() {
		out[p.Name] = make([]float64, max(p.Size, 1))
	}
	require.NoError(t, c.Compute(context.Background(), in, out))
	return out
}

func assertSeries(t *testing.T, expected, actual []float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], 1e-9, "index %d", i)
	}
}

func TestProfile(t *testing.T) {
	var cfg struct {
		One  Profile `yaml:"one"`
		Many Profile `yaml:"many"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("one: 2.5\nmany: [1, 2, 3]\n"), &cfg))
	assert.Equal(t, Profile{2.5}, cfg.One)
	assert.Equal(t, Profile{1, 2, 3}, cfg.Many)

	s, err := cfg.One.Series("one", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 2.5, 2.5}, s)

	s, err = cfg.Many.Series("many", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, s)

	s, err = Profile(nil).Series("none", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, s)

	_, err = cfg.Many.Series("many", 4)
	assert.ErrorContains(t, err, "many has 3 values but the simulation has 4 timesteps")

	assert.Error(t, yaml.Unmarshal([]byte("one: {a: 1}\n"), &cfg))
}

func TestRegisterAll(t *testing.T) {
	m := technology.NewMap()
	RegisterAll(m)
	for _, name := range []string{
		"wind_plant_performance",
		"pem_electrolyzer_performance",
		"demand_openloop_controller",
		"h2_storage_autosizing",
		"splitter_performance",
		"smr_methanol_performance",
		"smr_methanol_cost",
		"ng_iron_dri_performance",
		"ng_iron_dri_cost",
	} {
		_, err := m.Lookup(name)
		assert.NoError(t, err, name)
	}
	_, err := m.LookupTransport("pipe")
	assert.NoError(t, err)
}

func TestOpenLoopController(t *testing.T) {
	t.Run("dispatch", func(t *testing.T) {
		c, err := NewOpenLoopController(testConfig(4, technology.RoleControl, map[string]any{
			"commodity_name":       "hydrogen",
			"commodity_units":      "kg/h",
			"max_capacity":         10.0,
			"max_charge_rate":      5.0,
			"max_discharge_rate":   5.0,
			"max_charge_percent":   0.9,
			"min_charge_percent":   0.1,
			"init_charge_percent":  0.5,
			"demand_profile":       5.0,
			"charge_efficiency":    1.0,
			"discharge_efficiency": 1.0,
		}))
		require.NoError(t, err)

		out := run(t, c, map[string][]float64{"hydrogen_in": {10, 0, 8, 3}})
		assertSeries(t, []float64{5, 5, 5, 5}, out.Get("hydrogen_out"))
		assertSeries(t, []float64{0.9, 0.4, 0.7, 0.5}, out.Get("hydrogen_soc"))
		assertSeries(t, []float64{1, 0, 0, 0}, out.Get("hydrogen_unused_commodity"))
		assertSeries(t, []float64{0, 0, 0, 0}, out.Get("hydrogen_unmet_demand"))
	})

	t.Run("round trip efficiency", func(t *testing.T) {
		c, err := NewOpenLoopController(testConfig(2, technology.RoleControl, map[string]any{
			"commodity_name":        "hydrogen",
			"commodity_units":       "kg/h",
			"max_capacity":          10.0,
			"max_charge_rate":       100.0,
			"max_discharge_rate":    100.0,
			"init_charge_percent":   1.0,
			"demand_profile":        []float64{0.9, 20},
			"round_trip_efficiency": 0.81,
		}))
		require.NoError(t, err)

		out := run(t, c, map[string][]float64{"hydrogen_in": {0, 0}})
		// 1 kg leaves storage to deliver 0.9, then the remaining 9 kg
		// deliver 8.1 of the 20 asked for
		assertSeries(t, []float64{0.9, 8.1}, out.Get("hydrogen_out"))
		assertSeries(t, []float64{0.9, 0}, out.Get("hydrogen_soc"))
		assertSeries(t, []float64{0, 11.9}, out.Get("hydrogen_unmet_demand"))
	})

	t.Run("capacity from input", func(t *testing.T) {
		c, err := NewOpenLoopController(testConfig(1, technology.RoleControl, map[string]any{
			"commodity_name":        "hydrogen",
			"commodity_units":       "kg/h",
			"demand_profile":        0.0,
			"round_trip_efficiency": 1.0,
		}))
		require.NoError(t, err)

		out := run(t, c, map[string][]float64{
			"hydrogen_in":     {4},
			"max_capacity":    {8},
			"max_charge_rate": {10},
		})
		assertSeries(t, []float64{0.5}, out.Get("hydrogen_soc"))
		assertSeries(t, []float64{0}, out.Get("hydrogen_unused_commodity"))
	})

	t.Run("efficiency forms", func(t *testing.T) {
		base := func() map[string]any {
			return map[string]any{
				"commodity_name":  "hydrogen",
				"commodity_units": "kg/h",
				"demand_profile":  1.0,
			}
		}
		_, err := NewOpenLoopController(testConfig(1, technology.RoleControl, base()))
		assert.ErrorContains(t, err, "must be given")

		both := base()
		both["round_trip_efficiency"] = 0.9
		both["charge_efficiency"] = 0.9
		both["discharge_efficiency"] = 0.9
		_, err = NewOpenLoopController(testConfig(1, technology.RoleControl, both))
		assert.ErrorContains(t, err, "not both")
	})

	t.Run("charge limits", func(t *testing.T) {
		_, err := NewOpenLoopController(testConfig(1, technology.RoleControl, map[string]any{
			"commodity_name":        "hydrogen",
			"commodity_units":       "kg/h",
			"demand_profile":        1.0,
			"round_trip_efficiency": 0.9,
			"min_charge_percent":    0.5,
			"init_charge_percent":   0.2,
		}))
		assert.ErrorContains(t, err, "init_charge_percent")
	})
}

func TestPassThroughController(t *testing.T) {
	c, err := NewPassThroughController(testConfig(2, technology.RoleControl, map[string]any{
		"commodity_name":  "hydrogen",
		"commodity_units": "kg/h",
	}))
	require.NoError(t, err)
	out := run(t, c, map[string][]float64{"hydrogen_in": {1, 2}})
	assertSeries(t, []float64{1, 2}, out.Get("hydrogen_out"))
}

func TestBattery(t *testing.T) {
	b, err := NewBatteryPerformance(testConfig(2, technology.RolePerformance, map[string]any{
		"max_capacity":          100.0,
		"max_charge_rate":       10.0,
		"init_charge_percent":   0.5,
		"demand_profile":        5.0,
		"round_trip_efficiency": 1.0,
	}))
	require.NoError(t, err)
	out := run(t, b, map[string][]float64{"electricity_in": {20, 0}})
	assertSeries(t, []float64{5, 5}, out.Get("electricity_out"))
	// the discharge rate defaults to the charge rate
	assertSeries(t, []float64{0.6, 0.55}, out.Get("electricity_soc"))
	assertSeries(t, []float64{5, 0}, out.Get("electricity_unused_commodity"))
	assert.InDelta(t, 5*8760.0, out.Scalar("total_electricity_produced"), 1e-6)

	c, err := NewBatteryCost(testConfig(2, technology.RoleCost, map[string]any{
		"max_capacity":    100.0,
		"max_charge_rate": 10.0,
		"energy_capex":    300.0,
		"power_capex":     200.0,
		"opex_fraction":   0.02,
	}))
	require.NoError(t, err)
	out = run(t, c, nil)
	assert.InDelta(t, 32000, out.Scalar("CapEx"), 1e-9)
	assert.InDelta(t, 640, out.Scalar("OpEx"), 1e-9)
	assert.Len(t, out.Get("VarOpEx"), 2)
	assert.Equal(t, 2022.0, out.Scalar("cost_year"))
}

func TestH2StorageAutoSizing(t *testing.T) {
	t.Run("days", func(t *testing.T) {
		c, err := NewH2StorageAutoSizing(testConfig(3, technology.RolePerformance, map[string]any{
			"size_capacity_from_demand": map[string]any{"flag": false},
			"days":                      1,
		}))
		require.NoError(t, err)
		out := run(t, c, map[string][]float64{"hydrogen_in": {1, 2, 3}})
		assert.InDelta(t, 72, out.Scalar("max_capacity"), 1e-9)
		assert.InDelta(t, 3, out.Scalar("max_charge_rate"), 1e-9)
	})

	t.Run("demand", func(t *testing.T) {
		c, err := NewH2StorageAutoSizing(testConfig(3, technology.RolePerformance, map[string]any{
			"electrolyzer_rating_mw_for_h2_storage_sizing": 1.0,
		}))
		require.NoError(t, err)
		// no demand so the mean production of 2 is drawn each hour
		out := run(t, c, map[string][]float64{"hydrogen_in": {4, 0, 2}, "efficiency": {0.5}})
		assert.InDelta(t, 2, out.Scalar("max_capacity"), 1e-9)
		assert.InDelta(t, 2*h2LHVMJ/3600/0.5, out.Scalar("storage_duration"), 1e-9)
	})

	t.Run("demand needs rating", func(t *testing.T) {
		_, err := NewH2StorageAutoSizing(testConfig(3, technology.RolePerformance, map[string]any{}))
		assert.ErrorContains(t, err, "electrolyzer_rating_mw_for_h2_storage_sizing")
	})

	t.Run("tank cost", func(t *testing.T) {
		c, err := NewHydrogenTankCost(testConfig(3, technology.RoleCost, map[string]any{}))
		require.NoError(t, err)
		out := run(t, c, map[string][]float64{"max_capacity": {1000}})
		assert.InDelta(t, 100, out.Scalar("CapEx"), 1e-9)
		assert.InDelta(t, 10, out.Scalar("OpEx"), 1e-9)
		assert.Equal(t, 2018.0, out.Scalar("cost_year"))
	})
}

func TestDemand(t *testing.T) {
	d, err := NewDemand(testConfig(3, technology.RolePerformance, map[string]any{
		"demand":    5.0,
		"units":     "kg/h",
		"commodity": "Hydrogen",
	}))
	require.NoError(t, err)
	out := run(t, d, map[string][]float64{"hydrogen_in": {3, 5, 8}})
	assertSeries(t, []float64{2, 0, 0}, out.Get("hydrogen_missed_load"))
	assertSeries(t, []float64{0, 0, 3}, out.Get("hydrogen_curtailed"))
	assertSeries(t, []float64{3, 5, 5}, out.Get("hydrogen_out"))
}

func TestGrid(t *testing.T) {
	g, err := NewGridPerformance(testConfig(2, technology.RolePerformance, map[string]any{
		"interconnection_size": 10.0,
	}))
	require.NoError(t, err)
	out := run(t, g, map[string][]float64{
		"electricity_demand": {5, 15},
		"electricity_in":     {20, 2},
	})
	assertSeries(t, []float64{5, 10}, out.Get("electricity_out"))
	assertSeries(t, []float64{10, 2}, out.Get("electricity_sold"))
	assert.InDelta(t, 15*8760.0/2, out.Scalar("total_electricity_produced"), 1e-6)

	c, err := NewGridCost(testConfig(2, technology.RoleCost, map[string]any{
		"interconnection_size":         10.0,
		"interconnection_capex_per_kw": 100.0,
		"electricity_buy_price":        0.1,
		"electricity_sell_price":       []float64{0.05, 0.0},
	}))
	require.NoError(t, err)
	out = run(t, c, map[string][]float64{
		"electricity_out":  {5, 10},
		"electricity_sold": {10, 2},
	})
	assert.InDelta(t, 1000, out.Scalar("CapEx"), 1e-9)
	// (0.5 - 0.5) + (1.0 - 0) over two hours scaled to a year
	assertSeries(t, []float64{4380, 4380}, out.Get("VarOpEx"))

	_, err = NewGridCost(testConfig(2, technology.RoleCost, map[string]any{
		"interconnection_size":  10.0,
		"electricity_buy_price": []float64{1, 2, 3},
	}))
	assert.ErrorContains(t, err, "electricity_buy_price has 3 values")
}

func TestSplitter(t *testing.T) {
	t.Run("fraction", func(t *testing.T) {
		s, err := NewSplitter(testConfig(2, technology.RolePerformance, map[string]any{
			"split_mode":                            "fraction",
			"fraction_of_electricity_to_first_tech": 0.25,
		}))
		require.NoError(t, err)
		out := run(t, s, map[string][]float64{"electricity_in": {4, 8}})
		assertSeries(t, []float64{1, 2}, out.Get("electricity_out1"))
		assertSeries(t, []float64{3, 6}, out.Get("electricity_out2"))

		out = run(t, s, map[string][]float64{
			"electricity_in":                        {4, 8},
			"fraction_of_electricity_to_first_tech": {1.5},
		})
		assertSeries(t, []float64{4, 8}, out.Get("electricity_out1"))
		assertSeries(t, []float64{0, 0}, out.Get("electricity_out2"))
	})

	t.Run("prescribed", func(t *testing.T) {
		s, err := NewSplitter(testConfig(3, technology.RolePerformance, map[string]any{
			"split_mode":                           "prescribed_electricity",
			"prescribed_electricity_to_first_tech": 3.0,
		}))
		require.NoError(t, err)
		out := run(t, s, map[string][]float64{"electricity_in": {2, 5, -1}})
		assertSeries(t, []float64{2, 3, 0}, out.Get("electricity_out1"))
		assertSeries(t, []float64{0, 2, -1}, out.Get("electricity_out2"))
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := NewSplitter(testConfig(1, technology.RolePerformance, map[string]any{
			"split_mode": "prescribed_electricity",
		}))
		assert.ErrorContains(t, err, "prescribed_electricity_to_first_tech is required")

		_, err = NewSplitter(testConfig(1, technology.RolePerformance, map[string]any{
			"split_mode": "halves",
		}))
		assert.ErrorContains(t, err, "invalid split_mode")
	})
}

func TestCombinerSummerTransport(t *testing.T) {
	c, err := NewCombiner(testConfig(2, technology.RolePerformance, map[string]any{"in_streams": 3}))
	require.NoError(t, err)
	out := run(t, c, map[string][]float64{
		"electricity_in1": {1, 2},
		"electricity_in2": {3, 4},
		"electricity_in3": {5, 6},
	})
	assertSeries(t, []float64{9, 12}, out.Get("electricity_out"))

	s, err := NewSummer(testConfig(2, technology.RolePerformance, map[string]any{
		"commodity":       "electricity",
		"commodity_units": "kW",
	}))
	require.NoError(t, err)
	require.Len(t, s.Outputs(), 1)
	assert.Equal(t, "(kW)*h", s.Outputs()[0].Units)
	out = run(t, s, map[string][]float64{"electricity_in": {1, 2}})
	assert.Equal(t, 3.0, out.Scalar("total_electricity_produced"))

	tr, err := NewTransport("hydrogen", types.PlantConfig{})
	require.NoError(t, err)
	assert.Equal(t, "kg/h", tr.Inputs()[0].Units)
	assert.Equal(t, types.DefaultTimesteps, tr.Inputs()[0].Size)
	tr, err = NewTransport("electricity", types.PlantConfig{})
	require.NoError(t, err)
	assert.Equal(t, "electricity_out", tr.Outputs()[0].Name)
}

func TestWindPerformance(t *testing.T) {
	w, err := NewWindPerformance(testConfig(5, technology.RolePerformance, map[string]any{
		"num_turbines":      2,
		"turbine_rating_kw": 1000.0,
	}))
	require.NoError(t, err)
	out := run(t, w, map[string][]float64{"wind_speed": {2, 3, 12, 30, 7.5}})
	assertSeries(t, []float64{0, 0, 2000, 0, 2000 * (7.5*7.5*7.5 - 27) / (1728 - 27)}, out.Get("electricity_out"))
	assert.Equal(t, 2000.0, out.Scalar("total_capacity"))

	_, err = NewWindPerformance(testConfig(1, technology.RolePerformance, map[string]any{
		"num_turbines":      2,
		"turbine_rating_kw": 1000.0,
		"rated_wind_speed":  30.0,
	}))
	assert.ErrorContains(t, err, "cut_in < rated < cut_out")
}

func TestElectrolyzerPerformance(t *testing.T) {
	e, err := NewElectrolyzerPerformance(testConfig(4, technology.RolePerformance, map[string]any{
		"n_clusters":                 1,
		"cluster_rating_MW":          1.0,
		"turndown_ratio":             0.1,
		"specific_energy_kWh_per_kg": 50.0,
	}))
	require.NoError(t, err)
	out := run(t, e, map[string][]float64{"electricity_in": {50, 500, 2000, 0}})
	assertSeries(t, []float64{0, 10, 20, 0}, out.Get("hydrogen_out"))
	assertSeries(t, []float64{0, 500, 1000, 0}, out.Get("electricity_consumed"))
	assert.InDelta(t, 160000, out.Scalar("time_until_replacement"), 1e-6)
	assert.InDelta(t, 30*h2HHV/1500, out.Scalar("efficiency"), 1e-9)
	assert.InDelta(t, 1, out.Scalar("electrolyzer_size_mw"), 1e-9)

	t.Run("sized from feedstock", func(t *testing.T) {
		e, err := NewElectrolyzerPerformance(testConfig(2, technology.RolePerformance, map[string]any{
			"n_clusters":           1,
			"cluster_rating_MW":    1.0,
			"size_mode":            "resize_by_max_feedstock",
			"flow_used_for_sizing": "electricity",
		}))
		require.NoError(t, err)
		out := run(t, e, map[string][]float64{"electricity_in": {2500, 100}})
		assert.InDelta(t, 3, out.Scalar("electrolyzer_size_mw"), 1e-9)
	})

	t.Run("control type", func(t *testing.T) {
		_, err := NewElectrolyzerPerformance(testConfig(1, technology.RolePerformance, map[string]any{
			"n_clusters":        1,
			"cluster_rating_MW": 1.0,
			"pem_control_type":  "smart",
		}))
		assert.ErrorContains(t, err, "not supported")
	})
}

func TestMethanolSMR(t *testing.T) {
	p, err := NewMethanolSMRPerformance(testConfig(2, technology.RolePerformance, map[string]any{
		"plant_capacity_kgpy":        87600.0,
		"capacity_factor":            0.5,
		"h2_consume_ratio":           0.2,
		"lng_consume_ratio":          0.5,
		"elec_produce_ratio":         0.1,
		"meoh_syn_cat_consume_ratio": 0.001,
	}))
	require.NoError(t, err)
	out := run(t, p, nil)
	assertSeries(t, []float64{5, 5}, out.Get("methanol_out"))
	assertSeries(t, []float64{1, 1}, out.Get("hydrogen_consumed"))
	assertSeries(t, []float64{2.5, 2.5}, out.Get("natural_gas_consumed"))
	assertSeries(t, []float64{0.5, 0.5}, out.Get("electricity_out"))
	assertSeries(t, []float64{0, 0}, out.Get("co2_consumed"))
	assert.InDelta(t, 43800, out.Scalar("total_methanol_produced"), 1e-6)
	assert.InDelta(t, 43.8, out.Scalar("meoh_syn_cat_consumption"), 1e-9)
	assert.InDelta(t, 0.5, out.Scalar("capacity_factor"), 1e-9)

	c, err := NewMethanolSMRCost(testConfig(2, technology.RoleCost, map[string]any{
		"toc_kg_y":           2.0,
		"foc_kg_y2":          0.1,
		"voc_kg":             0.05,
		"meoh_syn_cat_price": 10.0,
		"lng_price":          4.0,
		"elec_sales_price":   0.1,
	}))
	require.NoError(t, err)
	out = run(t, c, map[string][]float64{
		"plant_capacity_kgpy":      {87600},
		"methanol_out":             {5, 5},
		"natural_gas_consumed":     {2.5, 2.5},
		"electricity_out":          {0.5, 0.5},
		"meoh_syn_cat_consumption": {43.8},
	})
	lng := 21900 * methanolLHV / gjPerMMBtu * 4
	assert.InDelta(t, 175200, out.Scalar("CapEx"), 1e-6)
	assert.InDelta(t, 8760, out.Scalar("OpEx"), 1e-6)
	assert.InDelta(t, 2190, out.Scalar("Variable_OpEx"), 1e-6)
	assert.InDelta(t, 438, out.Scalar("meoh_syn_cat_cost"), 1e-9)
	assert.InDelta(t, lng, out.Scalar("lng_cost"), 1e-6)
	assert.InDelta(t, 438, out.Scalar("elec_revenue"), 1e-6)
	assertSeries(t, []float64{2190 + lng - 438, 2190 + lng - 438}, out.Get("VarOpEx"))
	assert.Equal(t, 2022.0, out.Scalar("cost_year"))

	t.Run("defaults", func(t *testing.T) {
		p, err := NewMethanolSMRPerformance(testConfig(1, technology.RolePerformance, map[string]any{}))
		require.NoError(t, err)
		out := run(t, p, nil)
		assert.InDelta(t, 1e8*0.85/8760, out.Get("methanol_out")[0], 1e-6)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewMethanolSMRPerformance(testConfig(1, technology.RolePerformance, map[string]any{
			"capacity_factor": 1.5,
		}))
		assert.ErrorContains(t, err, "capacity_factor")

		_, err = NewMethanolSMRPerformance(testConfig(1, technology.RolePerformance, map[string]any{
			"h2_consume_ratio": -1.0,
		}))
		assert.ErrorContains(t, err, "h2_consume_ratio must not be negative")

		_, err = NewMethanolSMRCost(testConfig(1, technology.RoleCost, map[string]any{"toc_kg_y": 1.0}))
		assert.ErrorContains(t, err, "missing required parameters")
	})
}

func TestIronDRI(t *testing.T) {
	params := func() map[string]any {
		return map[string]any{
			"pig_iron_production_rate_tonnes_per_hr": 10.0,
			"natural_gas_MMBtu_per_t":                2.0,
			"water_galUS_per_t":                      100.0,
			"iron_ore_t_per_t":                       1.5,
			"electricity_kWh_per_t":                  50.0,
		}
	}

	t.Run("feedstock limited", func(t *testing.T) {
		p, err := NewIronDRIPerformance(testConfig(3, technology.RolePerformance, params()))
		require.NoError(t, err)
		out := run(t, p, map[string][]float64{
			"pig_iron_demand": {5, 20, 10},
			"natural_gas_in":  {100, 100, 10},
		})
		assertSeries(t, []float64{5, 10, 5}, out.Get("pig_iron_out"))
		assertSeries(t, []float64{10, 20, 10}, out.Get("natural_gas_consumed"))
		assertSeries(t, []float64{7.5, 15, 7.5}, out.Get("iron_ore_consumed"))
		assertSeries(t, []float64{0, 0, 0}, out.Get("reformer_catalyst_consumed"))
		assert.InDelta(t, 20.0/3*8760, out.Scalar("total_pig_iron_produced"), 1e-6)
		assert.InDelta(t, 87600, out.Scalar("plant_capacity_tpy"), 1e-9)
		assert.InDelta(t, 20.0/30, out.Scalar("capacity_factor"), 1e-9)
	})

	t.Run("unconnected feedstocks run at rating", func(t *testing.T) {
		p, err := NewIronDRIPerformance(testConfig(2, technology.RolePerformance, params()))
		require.NoError(t, err)
		out := run(t, p, nil)
		assertSeries(t, []float64{10, 10}, out.Get("pig_iron_out"))
		assertSeries(t, []float64{500, 500}, out.Get("electricity_consumed"))
	})

	t.Run("invalid", func(t *testing.T) {
		bad := params()
		bad["water_galUS_per_t"] = -1.0
		_, err := NewIronDRIPerformance(testConfig(1, technology.RolePerformance, bad))
		assert.ErrorContains(t, err, "water rate must not be negative")

		missing := params()
		delete(missing, "iron_ore_t_per_t")
		_, err = NewIronDRIPerformance(testConfig(1, technology.RolePerformance, missing))
		assert.ErrorContains(t, err, "missing required parameters")
	})

	t.Run("cost", func(t *testing.T) {
		c, err := NewIronDRICost(testConfig(2, technology.RoleCost, map[string]any{
			"capex_coeff":           100.0,
			"capex_exponent":        0.5,
			"property_tax_fraction": 0.02,
			"skilled_labor_cost":    30.0,
			"unskilled_labor_cost":  20.0,
			"labor_hours_per_tonne": 0.1,
			"varom_per_tonne":       5.0,
		}))
		require.NoError(t, err)
		out := run(t, c, map[string][]float64{
			"plant_capacity_tpy": {10000},
			"pig_iron_out":       {1, 1},
		})
		assert.InDelta(t, 10000, out.Scalar("CapEx"), 1e-9)
		assert.InDelta(t, 25200, out.Scalar("OpEx"), 1e-9)
		assertSeries(t, []float64{43800, 43800}, out.Get("VarOpEx"))
		assert.Equal(t, 2022.0, out.Scalar("cost_year"))
	})
}
