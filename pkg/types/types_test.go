package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMigratePlantConfig(t *testing.T) {
	t.Run("v0 to v3: defaults", func(t *testing.T) {
		p := PlantConfig{
			Plant: PlantParameters{FinancialAnalysisStartYear: 2030},
			FinanceParameters: &FinanceParameters{
				ProfastGeneralInflation: 0.025,
			},
		}
		p, changed, err := MigratePlantConfig(p, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, CurrentConfigVersion, p.Version)
		assert.Equal(t, DefaultTimesteps, p.Plant.Simulation.NTimesteps)
		assert.Equal(t, 3600, p.Plant.Simulation.Dt)
		assert.Equal(t, 0.025, p.FinanceParameters.CostingGeneralInflation)
		assert.Zero(t, p.FinanceParameters.ProfastGeneralInflation)
		assert.Equal(t, 2030, p.Plant.CostYear)
	})

	t.Run("v2 to v3: explicit cost year kept", func(t *testing.T) {
		p := PlantConfig{Plant: PlantParameters{CostYear: 2022, FinancialAnalysisStartYear: 2030}}
		p, changed, err := MigratePlantConfig(p, 2)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 2022, p.Plant.CostYear)
	})

	t.Run("no change: current version", func(t *testing.T) {
		p := PlantConfig{Version: CurrentConfigVersion, Name: "plant"}
		out, changed, err := MigratePlantConfig(p, CurrentConfigVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, p, out)
	})
}

func TestMigrateCase(t *testing.T) {
	t.Run("v1 to v2: objective keyed by name", func(t *testing.T) {
		v := 4.2
		c, changed, err := MigrateCase(Case{Objective: &v, ObjectiveName: "finance_subgroup_h2.LCOH"}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Nil(t, c.Objective)
		assert.Empty(t, c.ObjectiveName)
		assert.Equal(t, map[string]float64{"finance_subgroup_h2.LCOH": 4.2}, c.Objectives)
	})

	t.Run("v1 to v2: unnamed objective", func(t *testing.T) {
		v := 1.0
		c, _, err := MigrateCase(Case{Objective: &v}, 1)
		require.NoError(t, err)
		assert.Equal(t, 1.0, c.Objectives["objective"])
	})

	t.Run("no change: current version", func(t *testing.T) {
		c := Case{RunID: "r", Iteration: 3}
		out, changed, err := MigrateCase(c, CurrentCaseVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, c, out)
	})
}

func TestOrderedYAML(t *testing.T) {
	var out struct {
		Techs Ordered[int] `yaml:"techs"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("techs:\n  wind: 1\n  electrolyzer: 2\n  ammonia: 3\n"), &out))
	assert.Equal(t, []string{"wind", "electrolyzer", "ammonia"}, out.Techs.Keys)
	v, ok := out.Techs.Get("electrolyzer")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	b, err := yaml.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, "techs:\n    wind: 1\n    electrolyzer: 2\n    ammonia: 3\n", string(b))

	t.Run("duplicate key", func(t *testing.T) {
		var o Ordered[int]
		err := yaml.Unmarshal([]byte("a: 1\na: 2\n"), &o)
		assert.Error(t, err)
	})

	t.Run("not a mapping", func(t *testing.T) {
		var o Ordered[int]
		err := yaml.Unmarshal([]byte("- 1\n"), &o)
		assert.Error(t, err)
	})

	t.Run("set keeps position", func(t *testing.T) {
		o := NewOrdered[string]()
		o.Set("a", "1")
		o.Set("b", "2")
		o.Set("a", "3")
		assert.Equal(t, []string{"a", "b"}, o.Keys)
		assert.Equal(t, 2, o.Len())
		assert.True(t, o.Has("b"))
		v, _ := o.Get("a")
		assert.Equal(t, "3", v)
	})
}

func TestInterconnectionYAML(t *testing.T) {
	var conns []Interconnection
	src := `
- [wind, electrolyzer, electricity, cable]
- [electrolyzer, h2_storage, hydrogen_out]
- [financials_subgroup_h2, ammonia, [LCOH, LCOH_in]]
`
	require.NoError(t, yaml.Unmarshal([]byte(src), &conns))
	require.Len(t, conns, 3)

	assert.Equal(t, 4, conns[0].Len())
	assert.Equal(t, "wind", conns[0].Source())
	assert.Equal(t, "electrolyzer", conns[0].Dest())
	assert.Equal(t, "electricity", conns[0].Item())
	assert.Equal(t, "cable", conns[0].Transport())

	s, d := conns[1].Params()
	assert.Equal(t, "hydrogen_out", s)
	assert.Equal(t, "hydrogen_out", d)

	s, d = conns[2].Params()
	assert.Equal(t, "LCOH", s)
	assert.Equal(t, "LCOH_in", d)
	assert.Equal(t, "[financials_subgroup_h2, ammonia, [LCOH, LCOH_in]]", conns[2].String())

	t.Run("pair only in third position", func(t *testing.T) {
		var c Interconnection
		err := yaml.Unmarshal([]byte("[[a, b], c, d]"), &c)
		assert.Error(t, err)
	})

	t.Run("not a list", func(t *testing.T) {
		var c Interconnection
		err := yaml.Unmarshal([]byte("a: b"), &c)
		assert.Error(t, err)
	})
}

func TestFinanceParametersYAML(t *testing.T) {
	src := `
commodity: hydrogen
finance_model: ProFastComp
model_inputs:
  discount_rate: 0.08
profast_group:
  finance_model: simple_lco
  model_inputs:
    discount_rate: 0.1
subgroups:
  h2:
    commodity: hydrogen
    finance_groups: profast_group
    technologies: [wind, electrolyzer]
  elec:
    commodity: electricity
    finance_groups: [default, profast_group]
    technologies: [wind]
`
	var fp FinanceParameters
	require.NoError(t, yaml.Unmarshal([]byte(src), &fp))
	assert.Equal(t, "hydrogen", fp.Commodity)
	assert.Equal(t, "ProFastComp", fp.FinanceModel)
	assert.Equal(t, 0.08, fp.ModelInputs["discount_rate"])
	require.Contains(t, fp.Groups, "profast_group")
	assert.Equal(t, "simple_lco", fp.Groups["profast_group"].FinanceModel)
	assert.Equal(t, []string{"h2", "elec"}, fp.Subgroups.Keys)

	h2, _ := fp.Subgroups.Get("h2")
	assert.Equal(t, StringOrSlice{"profast_group"}, h2.FinanceGroups)
	elec, _ := fp.Subgroups.Get("elec")
	assert.Equal(t, StringOrSlice{"default", "profast_group"}, elec.FinanceGroups)
}

func TestSimulationStart(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		start, err := SimulationParameters{}.Start()
		require.NoError(t, err)
		assert.Equal(t, 2023, start.Year())
		assert.Equal(t, time.January, start.Month())
		assert.Equal(t, 1, start.Day())
	})

	t.Run("without year", func(t *testing.T) {
		start, err := SimulationParameters{StartTime: "01/01 00:30:00", Timezone: -6}.Start()
		require.NoError(t, err)
		assert.Equal(t, 2023, start.Year())
		assert.Equal(t, 30, start.Minute())
		_, offset := start.Zone()
		assert.Equal(t, -6*3600, offset)
	})

	t.Run("full date", func(t *testing.T) {
		start, err := SimulationParameters{StartTime: "2030-06-01 12:00:00"}.Start()
		require.NoError(t, err)
		assert.Equal(t, 2030, start.Year())
		assert.Equal(t, time.June, start.Month())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := SimulationParameters{StartTime: "tomorrow"}.Start()
		assert.Error(t, err)
	})
}

func TestTechConfigSections(t *testing.T) {
	tc := TechConfig{
		ModelInputs: map[string]map[string]any{
			"financial_parameters": {
				"capital_items": map[string]any{"replacement_cost_percent": 0.15},
			},
		},
	}
	assert.Equal(t, 0.15, tc.CapitalItems()["replacement_cost_percent"])
	assert.Nil(t, tc.FixedCosts())

	var ref *ModelRef
	assert.Equal(t, "", ref.Name())
	assert.False(t, ref.IsCustom())
	assert.True(t, (&ModelRef{Model: "x", ModelClassName: "X"}).IsCustom())
}
