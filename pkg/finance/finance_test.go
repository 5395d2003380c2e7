package finance

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func financeConfig(commodity string, life int, inputs map[string]any, techs map[string]map[string]any) technology.FinanceConfig {
	cfg := technology.FinanceConfig{
		Commodity:   commodity,
		Techs:       types.NewOrdered[types.TechConfig](),
		ModelInputs: inputs,
	}
	cfg.Plant.Plant.PlantLife = life
	for _, name := range []string{"wind", "electrolyzer", "storage"} {
		fp, ok := techs[name]
		if !ok {
			continue
		}
		tc := types.TechConfig{}
		if fp != nil {
			tc.ModelInputs = map[string]map[string]any{"financial_parameters": fp}
		}
		cfg.Techs.Set(name, tc)
	}
	return cfg
}

func inputVector(t *testing.T, c component.Component, inputs map[string][]float64) component.Vector {
	t.Helper()
	in := component.Vector{}
	for _, p := range c.Inputs() {
		n := max(p.Size, 1)
		vals := make([]float64, n)
		if len(p.Values) == n {
			copy(vals, p.Values)
		} else {
			for i := range vals {
				vals[i] = p.Default
			}
		}
		in.Set(p.Name, vals)
	}
	for k, v := range inputs {
		require.True(t, in.Has(k), "unknown input %s", k)
		in.Set(k, v)
	}
	return in
}

func run(t *testing.T, c component.Component, inputs map[string][]float64) component.Vector {
	t.Helper()
	in := inputVector(t, c, inputs)
	out := component.Vector{}
	for _, p := range c.Outputs() {
		out.Set(p.Name, make([]float64, max(p.Size, 1)))
	}
	require.NoError(t, c.Compute(context.Background(), in, out))
	return out
}

func TestNames(t *testing.T) {
	assert.Equal(t, "LCOH", MetricName("hydrogen", ""))
	assert.Equal(t, "LCOE_grid", MetricName("electricity", "grid"))
	assert.Equal(t, "LCOA_x", MetricName("ammonia", "_(x)-"))

	assert.Equal(t, "hydrogen_NPV", NPVName("hydrogen", ""))
	assert.Equal(t, "hydrogen_NPV", NPVName("hydrogen", "hydrogen"))
	assert.Equal(t, "hydrogen_green_NPV", NPVName("hydrogen", "green_hydrogen"))

	assert.Equal(t, "kW*h/year", ProductionUnits("electricity"))
	assert.Equal(t, "USD/kg", PriceUnits("ammonia"))
}

func TestIncludedTechs(t *testing.T) {
	techs := []string{"wind", "electrolyzer", "storage"}
	got, err := IncludedTechs(techs, nil, "LCOH")
	require.NoError(t, err)
	assert.Equal(t, techs, got)

	fp := &types.FinanceParameters{TechnologiesIncludedInMetrics: map[string][]string{
		"LCOH": {"wind", "electrolyzer"},
		"LCOE": {"solar"},
	}}
	got, err = IncludedTechs(techs, fp, "LCOH")
	require.NoError(t, err)
	assert.Equal(t, []string{"wind", "electrolyzer"}, got)

	got, err = IncludedTechs(techs, fp, "LCOA")
	require.NoError(t, err)
	assert.Equal(t, techs, got)

	_, err = IncludedTechs(techs, fp, "LCOE")
	assert.ErrorContains(t, err, `unknown technology "solar"`)
}

func TestRefurbSchedule(t *testing.T) {
	pct := 0.5
	period := 3
	item := capitalItem{ReplacementCostPercent: &pct, RefurbishmentPeriodYears: &period}
	assert.Equal(t, []float64{0, 0, 0, 0.5, 0, 0, 0.5, 0, 0, 0.5}, item.refurbSchedule(10, 0))

	t.Run("from hours", func(t *testing.T) {
		item := capitalItem{ReplacementCostPercent: &pct}
		sched := item.refurbSchedule(10, 80000)
		assert.Equal(t, 0.5, sched[9])
		assert.Equal(t, 0.0, sched[0]+sched[1]+sched[8])
		assert.Equal(t, make([]float64, 10), item.refurbSchedule(10, 0))
	})

	t.Run("no percent", func(t *testing.T) {
		assert.Equal(t, make([]float64, 4), capitalItem{}.refurbSchedule(4, 80000))
	})
}

func TestAdjustedCapexOpex(t *testing.T) {
	a := NewAdjustedCapexOpex([]string{"wind", "electrolyzer"}, 2022, 0.1, 2)
	out := run(t, a, map[string][]float64{
		"capex_wind":             {100},
		"opex_wind":              {10},
		"varopex_wind":           {1, 2},
		"cost_year_wind":         {2020},
		"capex_electrolyzer":     {50},
		"opex_electrolyzer":      {5},
		"cost_year_electrolyzer": {0},
	})
	assert.InDelta(t, 121, out.Scalar("capex_adjusted_wind"), 1e-9)
	assert.InDelta(t, 12.1, out.Scalar("opex_adjusted_wind"), 1e-9)
	assert.InDeltaSlice(t, []float64{1.21, 2.42}, out.Get("varopex_adjusted_wind"), 1e-9)
	assert.InDelta(t, 50, out.Scalar("capex_adjusted_electrolyzer"), 1e-9)
	assert.InDelta(t, 171, out.Scalar("total_capex_adjusted"), 1e-9)
	assert.InDelta(t, 17.1, out.Scalar("total_opex_adjusted"), 1e-9)
}

func TestElectricitySum(t *testing.T) {
	e := NewElectricitySum([]string{"wind", "solar"}, 2)
	out := run(t, e, map[string][]float64{
		"electricity_wind":  {1, 2},
		"electricity_solar": {3, 4},
	})
	assert.InDelta(t, 10*8760/2, out.Scalar("total_electricity_produced"), 1e-9)
	assert.Equal(t, "kW*h/year", e.Outputs()[0].Units)
}

func TestSimpleLCO(t *testing.T) {
	techs := map[string]map[string]any{"wind": nil, "electrolyzer": nil}
	c, err := NewSimpleLCO(financeConfig("hydrogen", 2, map[string]any{"discount_rate": 0.0}, techs))
	require.NoError(t, err)
	inputs := map[string][]float64{
		"total_hydrogen_produced":     {100},
		"capex_adjusted_wind":         {600},
		"capex_adjusted_electrolyzer": {400},
		"opex_adjusted_wind":          {50},
	}
	out := run(t, c, inputs)
	assert.InDelta(t, 5.5, out.Scalar("LCOH"), 1e-9)
	assert.InDelta(t, 1000, out.Scalar("total_capital_cost_hydrogen"), 1e-9)
	assert.Equal(t, []float64{50, 50}, out.Get("annual_fixed_costs_hydrogen"))

	t.Run("discounted", func(t *testing.T) {
		c, err := NewSimpleLCO(financeConfig("hydrogen", 2, map[string]any{"discount_rate": 0.1}, techs))
		require.NoError(t, err)
		out := run(t, c, inputs)
		assert.InDelta(t, 1000/(100*(1+1/1.1))+0.5, out.Scalar("LCOH"), 1e-9)
	})

	t.Run("replacements", func(t *testing.T) {
		techs := map[string]map[string]any{
			"electrolyzer": {"capital_items": map[string]any{"replacement_cost_percent": 0.5}},
		}
		c, err := NewSimpleLCO(financeConfig("hydrogen", 2, map[string]any{"discount_rate": 0.0}, techs))
		require.NoError(t, err)
		out := run(t, c, map[string][]float64{
			"total_hydrogen_produced":             {100},
			"capex_adjusted_electrolyzer":         {1000},
			"electrolyzer_time_until_replacement": {8760},
		})
		assert.Equal(t, []float64{0, 500}, out.Get("annual_replacement_costs_hydrogen"))
		assert.InDelta(t, 7.5, out.Scalar("LCOH"), 1e-9)
	})

	t.Run("electricity", func(t *testing.T) {
		c, err := NewSimpleLCO(financeConfig("electricity", 2, map[string]any{"discount_rate": 0.0}, techs))
		require.NoError(t, err)
		assert.Equal(t, "LCOE", c.Outputs()[0].Name)
		assert.Equal(t, "USD/kW/h", c.Outputs()[0].Units)
		assert.Equal(t, "kW*h/year", c.Inputs()[0].Units)
	})

	t.Run("nothing produced", func(t *testing.T) {
		out := run(t, c, map[string][]float64{"capex_adjusted_wind": {600}})
		assert.Equal(t, 0.0, out.Scalar("LCOH"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NewSimpleLCO(financeConfig("hydrogen", 2, map[string]any{}, techs))
		assert.Error(t, err)
		_, err = NewSimpleLCO(financeConfig("hydrogen", 2, map[string]any{"discount_rate": 0.1, "plant_life": 30}, techs))
		assert.ErrorContains(t, err, "does not match")
		_, err = NewSimpleLCO(financeConfig("hydrogen", 2, map[string]any{"discount_rate": 0.1}, nil))
		assert.ErrorIs(t, err, errNoTechs)
	})
}

func TestNPV(t *testing.T) {
	techs := map[string]map[string]any{"electrolyzer": nil}
	inputs := map[string][]float64{
		"total_hydrogen_produced":       {100},
		"capex_adjusted_electrolyzer":   {1000},
		"opex_adjusted_electrolyzer":    {50},
		"varopex_adjusted_electrolyzer": {10, 20},
	}
	c, err := NewNPV(financeConfig("hydrogen", 2, map[string]any{
		"discount_rate":        0.0,
		"commodity_sell_price": 3.0,
	}, techs))
	require.NoError(t, err)
	assert.Equal(t, "hydrogen_NPV", c.Outputs()[0].Name)
	out := run(t, c, inputs)
	assert.InDelta(t, -530, out.Scalar("hydrogen_NPV"), 1e-9)

	t.Run("sell price input", func(t *testing.T) {
		in := map[string][]float64{"commodity_sell_price": {10}}
		for k, v := range inputs {
			in[k] = v
		}
		out := run(t, c, in)
		assert.InDelta(t, 870, out.Scalar("hydrogen_NPV"), 1e-9)
	})

	t.Run("replacement and breakdown", func(t *testing.T) {
		dir := t.TempDir()
		techs := map[string]map[string]any{
			"electrolyzer": {"capital_items": map[string]any{
				"replacement_cost_percent":   0.1,
				"refurbishment_period_years": 1,
			}},
		}
		cfg := financeConfig("hydrogen", 2, map[string]any{
			"discount_rate":        0.0,
			"commodity_sell_price": 3.0,
			"save_npv_breakdown":   true,
			"save_cost_breakdown":  true,
		}, techs)
		cfg.OutputDir = dir
		c, err := NewNPV(cfg)
		require.NoError(t, err)
		out := run(t, c, inputs)
		assert.InDelta(t, -630, out.Scalar("hydrogen_NPV"), 1e-9)

		b, err := os.ReadFile(filepath.Join(dir, "default_hydrogen_NPVFinance_NPV_breakdown.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "electrolyzer: replacement cost,-100")
		assert.Contains(t, string(b), "Total,-630")
		_, err = os.Stat(filepath.Join(dir, "default_hydrogen_NPVFinance_cost_breakdown.csv"))
		assert.NoError(t, err)
	})

	t.Run("discount rate range", func(t *testing.T) {
		_, err := NewNPV(financeConfig("hydrogen", 2, map[string]any{"discount_rate": 1.5}, techs))
		assert.ErrorContains(t, err, "between 0 and 1")
	})
}

func cashFlowInputsFor(params map[string]any) map[string]any {
	return map[string]any{"params": params}
}

func TestCashFlowLCO(t *testing.T) {
	techs := map[string]map[string]any{"electrolyzer": nil}
	simple := map[string][]float64{
		"total_hydrogen_produced":     {100},
		"capex_adjusted_electrolyzer": {1000},
	}

	t.Run("undiscounted", func(t *testing.T) {
		c, err := NewCashFlowLCO(financeConfig("hydrogen", 2, cashFlowInputsFor(map[string]any{
			"discount_rate":          0.0,
			"sell_undepreciated_cap": false,
		}), techs))
		require.NoError(t, err)
		out := run(t, c, simple)
		assert.InDelta(t, 5, out.Scalar("LCOH"), 1e-9)
		assert.InDelta(t, 5, out.Scalar("price_hydrogen"), 1e-9)
		assert.InDelta(t, 0, out.Scalar("wacc_hydrogen"), 1e-12)
		assert.InDelta(t, 0.5, out.Scalar("crf_hydrogen"), 1e-12)
		assert.InDelta(t, 2, out.Scalar("investor_payback_period_hydrogen"), 1e-12)
	})

	t.Run("discounted", func(t *testing.T) {
		c, err := NewCashFlowLCO(financeConfig("hydrogen", 2, cashFlowInputsFor(map[string]any{
			"leverage after tax nominal discount rate": 0.1,
			"sell undepreciated cap":                   false,
		}), techs))
		require.NoError(t, err)
		out := run(t, c, simple)
		assert.InDelta(t, 1000/(100*(1/1.1+1/1.21)), out.Scalar("LCOH"), 1e-9)
	})

	full := map[string]any{
		"discount_rate":                    0.0824,
		"debt_equity_ratio":                1.5,
		"debt_interest_rate":               0.05,
		"total_income_tax_rate":            0.257,
		"capital_gains_tax_rate":           0.15,
		"inflation_rate":                   0.025,
		"property_tax_and_insurance":       0.015,
		"admin_expense":                    0.005,
		"sales_tax_rate":                   0.0,
		"cash_onhand_months":               1,
		"installation_time":                36,
		"non_depr_assets":                  250.0,
		"end_of_proj_sale_non_depr_assets": 300.0,
		"analysis_start_year":              2030,
	}
	fullTechs := map[string]map[string]any{
		"wind":         nil,
		"electrolyzer": {"capital_items": map[string]any{
			"replacement_cost_percent": 0.15,
			"depr_type":                "Straight line",
			"depr_period":              5,
		}},
	}
	fullInputs := map[string][]float64{
		"total_hydrogen_produced":             {5e6},
		"capex_adjusted_wind":                 {8e7},
		"opex_adjusted_wind":                  {2e6},
		"capex_adjusted_electrolyzer":         {4e7},
		"opex_adjusted_electrolyzer":          {1e6},
		"electrolyzer_time_until_replacement": {80000},
	}
	t.Run("breaks even", func(t *testing.T) {
		cfg := financeConfig("hydrogen", 20, map[string]any{
			"params":        full,
			"capital_items": map[string]any{"depr_type": "MACRS", "depr_period": 7},
		}, fullTechs)
		c, err := NewCashFlowLCO(cfg)
		require.NoError(t, err)
		out := run(t, c, fullInputs)
		price := out.Scalar("LCOH")
		assert.Greater(t, price, 0.0)

		m := c.(*CashFlowLCO).model
		in := inputVector(t, c, fullInputs)
		assert.InDelta(t, 0, m.npv(price, in, "hydrogen"), 1e-2)
		assert.Less(t, m.npv(price*0.99, in, "hydrogen"), 0.0)
		assert.InDelta(t, 0.6*0.05*(1-0.257)+0.4*0.0824, out.Scalar("wacc_hydrogen"), 1e-12)
	})

	t.Run("losses carried forward", func(t *testing.T) {
		params := map[string]any{"tax_losses_monetized": false, "tax_loss_carry_forward_years": 5}
		for k, v := range full {
			params[k] = v
		}
		c, err := NewCashFlowLCO(financeConfig("hydrogen", 20, cashFlowInputsFor(params), fullTechs))
		require.NoError(t, err)
		out := run(t, c, fullInputs)
		price := out.Scalar("LCOH")
		m := c.(*CashFlowLCO).model
		assert.InDelta(t, 0, m.npv(price, inputVector(t, c, fullInputs), "hydrogen"), 1)
	})

	t.Run("one time loan", func(t *testing.T) {
		params := map[string]any{"debt_type": "One time loan", "loan_period_if_used": 10}
		for k, v := range full {
			params[k] = v
		}
		c, err := NewCashFlowLCO(financeConfig("hydrogen", 20, cashFlowInputsFor(params), fullTechs))
		require.NoError(t, err)
		out := run(t, c, fullInputs)
		assert.Greater(t, out.Scalar("LCOH"), 0.0)
	})

	t.Run("saves results", func(t *testing.T) {
		dir := t.TempDir()
		cfg := financeConfig("hydrogen", 20, map[string]any{
			"params":                     full,
			"save_profast_results":       true,
			"save_profast_config":        true,
			"profast_output_description": "run1",
		}, fullTechs)
		cfg.OutputDir = dir
		c, err := NewCashFlowLCO(cfg)
		require.NoError(t, err)
		run(t, c, fullInputs)

		b, err := os.ReadFile(filepath.Join(dir, "run1_hydrogen_profast_price_breakdown.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "line,2030,2031")
		assert.Contains(t, string(b), "Equity cash flow")
		_, err = os.Stat(filepath.Join(dir, "run1_hydrogen_config.yaml"))
		assert.NoError(t, err)
	})

	t.Run("parameter errors", func(t *testing.T) {
		cases := map[string]map[string]any{
			"conflicting names": {"discount_rate": 0.1, "leverage after tax nominal discount rate": 0.2},
			"plant life":        {"discount_rate": 0.1, "operating life": 30},
			"both debt forms":   {"discount_rate": 0.1, "debt_equity_ratio": 1.0, "debt_equity_split": 50.0},
			"debt type":         {"discount_rate": 0.1, "debt_type": "bonds"},
			"unknown":           {"discount_rate": 0.1, "carbon_price": 30},
			"missing discount":  {"inflation_rate": 0.02},
		}
		for name, params := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := NewCashFlowLCO(financeConfig("hydrogen", 20, cashFlowInputsFor(params), techs))
				assert.Error(t, err)
			})
		}

		_, err := NewCashFlowLCO(financeConfig("hydrogen", 20, cashFlowInputsFor(map[string]any{
			"discount_rate": 0.1,
			"discount rate": 0.1,
		}), techs))
		assert.NoError(t, err)

		_, err = NewCashFlowLCO(financeConfig("hydrogen", 20, map[string]any{
			"params":        map[string]any{"discount_rate": 0.1},
			"capital_items": map[string]any{"depr_period": 4},
		}, techs))
		assert.ErrorContains(t, err, "depr_period 4")
	})
}

func TestCashFlowNPV(t *testing.T) {
	techs := map[string]map[string]any{"electrolyzer": nil}
	inputs := map[string]any{
		"params":               map[string]any{"discount_rate": 0.0, "sell_undepreciated_cap": false},
		"commodity_sell_price": 6.0,
	}
	c, err := NewCashFlowNPV(financeConfig("hydrogen", 2, inputs, techs))
	require.NoError(t, err)
	out := run(t, c, map[string][]float64{
		"total_hydrogen_produced":     {100},
		"capex_adjusted_electrolyzer": {1000},
	})
	assert.InDelta(t, 200, out.Scalar("NPV_hydrogen"), 1e-9)

	_, err = NewCashFlowNPV(financeConfig("hydrogen", 2, cashFlowInputsFor(map[string]any{"discount_rate": 0.0}), techs))
	assert.ErrorContains(t, err, "commodity_sell_price is required")
}

func TestElectrolyzerFinancial(t *testing.T) {
	cfg := technology.Config{
		Name: "electrolyzer",
		Role: technology.RoleFinancial,
		Tech: types.TechConfig{ModelInputs: map[string]map[string]any{
			"financial_parameters": {
				"discount_rate": 0.0,
				"capital_items": map[string]any{"replacement_cost_percent": 0.5},
			},
		}},
	}
	cfg.Plant.Plant.PlantLife = 2
	c, err := NewElectrolyzerFinancial(cfg)
	require.NoError(t, err)
	out := run(t, c, map[string][]float64{
		"CapEx":                   {1000},
		"OpEx":                    {50},
		"total_hydrogen_produced": {100},
	})
	assert.InDelta(t, 5.5, out.Scalar("LCOH"), 1e-9)

	out = run(t, c, map[string][]float64{
		"CapEx":                   {1000},
		"OpEx":                    {50},
		"total_hydrogen_produced": {100},
		"time_until_replacement":  {8760},
	})
	assert.InDelta(t, 8, out.Scalar("LCOH"), 1e-9)

	cfg.Tech.ModelInputs["financial_parameters"] = map[string]any{}
	_, err = NewElectrolyzerFinancial(cfg)
	assert.Error(t, err)
}

func TestRegisterAll(t *testing.T) {
	m := technology.NewMap()
	RegisterAll(m)
	for _, name := range []string{"simple_lco", "npv", "profast_lco", "ProFastComp", "profast_npv", "ProFastNPV"} {
		_, err := m.LookupFinance(name)
		assert.NoError(t, err, name)
	}
	_, err := m.Lookup("pem_electrolyzer_financial")
	assert.NoError(t, err)
	_, err = m.Lookup("smr_methanol_financial")
	assert.NoError(t, err)
}

func TestMethanolFinancial(t *testing.T) {
	cfg := technology.Config{
		Name: "methanol",
		Role: technology.RoleFinancial,
		Tech: types.TechConfig{ModelInputs: map[string]map[string]any{
			"financial_parameters": {"fixed_charge_rate": 0.1, "tasc_toc_multiplier": 1.0},
		}},
	}
	c, err := NewMethanolFinancial(cfg)
	require.NoError(t, err)
	out := run(t, c, map[string][]float64{
		"CapEx":                   {1000},
		"Fixed_OpEx":              {100},
		"Variable_OpEx":           {50},
		"meoh_syn_cat_cost":       {10},
		"lng_cost":                {20},
		"elec_revenue":            {30},
		"total_methanol_produced": {100},
	})
	assert.InDelta(t, 1, out.Scalar("LCOM_meoh_capex"), 1e-9)
	assert.InDelta(t, 1, out.Scalar("LCOM_meoh_fopex"), 1e-9)
	assert.InDelta(t, 0.4, out.Scalar("LCOM_meoh_vopex"), 1e-9)
	assert.InDelta(t, 0.1, out.Scalar("LCOM_meoh_syn_cat"), 1e-9)
	assert.InDelta(t, 0.2, out.Scalar("LCOM_ng"), 1e-9)
	assert.InDelta(t, -0.3, out.Scalar("LCOM_elec"), 1e-9)
	assert.InDelta(t, 2.5, out.Scalar("LCOM_meoh"), 1e-9)
	assert.InDelta(t, 2.4, out.Scalar("LCOM"), 1e-9)

	t.Run("no production", func(t *testing.T) {
		out := run(t, c, map[string][]float64{"CapEx": {1000}})
		assert.Equal(t, 0.0, out.Scalar("LCOM"))
	})

	t.Run("defaults", func(t *testing.T) {
		cfg.Tech.ModelInputs["financial_parameters"] = map[string]any{}
		c, err := NewMethanolFinancial(cfg)
		require.NoError(t, err)
		out := run(t, c, map[string][]float64{"CapEx": {1000}, "total_methanol_produced": {1000}})
		assert.InDelta(t, 0.0707*1.093, out.Scalar("LCOM"), 1e-9)
	})
}
