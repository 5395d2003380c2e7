package technology

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopComp struct{}

func (nopComp) Inputs() []component.Port  { return nil }
func (nopComp) Outputs() []component.Port { return nil }
func (nopComp) Compute(context.Context, component.Vector, component.Vector) error {
	return nil
}

func nopFactory(Config) (component.Component, error) {
	return nopComp{}, nil
}

func TestMap(t *testing.T) {
	m := NewMap()
	m.Register("wind_plant_performance", nopFactory)
	m.RegisterFinance("simple_lco", func(FinanceConfig) (component.Component, error) { return nopComp{}, nil })
	m.RegisterTransport("cable", func(string, types.PlantConfig) (component.Component, error) { return nopComp{}, nil })

	_, err := m.Lookup("wind_plant_performance")
	require.NoError(t, err)
	_, err = m.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = m.LookupFinance("simple_lco")
	require.NoError(t, err)
	_, err = m.LookupFinance("ProFastComp")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = m.LookupTransport("cable")
	require.NoError(t, err)
	assert.True(t, m.IsBuiltin("cable"))
	assert.False(t, m.IsBuiltin("nope"))

	t.Run("custom registered class", func(t *testing.T) {
		m.RegisterCustom("MyWind", nopFactory)
		err := m.AddCustom("wind", "performance_model", &types.ModelRef{
			Model:          "my_wind",
			ModelClassName: "MyWind",
			ModelLocation:  "my_wind.so",
		}, t.TempDir())
		require.NoError(t, err)
		_, err = m.Lookup("my_wind")
		require.NoError(t, err)
		assert.False(t, m.IsBuiltin("my_wind"))
	})

	t.Run("custom without location", func(t *testing.T) {
		err := m.AddCustom("wind", "cost_model", &types.ModelRef{Model: "other", ModelClassName: "MyWind"}, "")
		assert.ErrorContains(t, err, "must specify model_class_name and model_location")
	})

	t.Run("custom class on builtin", func(t *testing.T) {
		err := m.AddCustom("wind", "performance_model", &types.ModelRef{
			Model:          "wind_plant_performance",
			ModelClassName: "MyWind",
		}, "")
		assert.ErrorContains(t, err, "built-in")
	})

	t.Run("missing plugin", func(t *testing.T) {
		err := m.AddCustom("wind", "performance_model", &types.ModelRef{
			Model:          "plugin_wind",
			ModelClassName: "PluginWind",
			ModelLocation:  "missing.so",
		}, t.TempDir())
		assert.Error(t, err)
	})

	t.Run("builtin or empty", func(t *testing.T) {
		require.NoError(t, m.AddCustom("wind", "performance_model", &types.ModelRef{Model: "wind_plant_performance"}, ""))
		require.NoError(t, m.AddCustom("wind", "performance_model", nil, ""))
	})
}

func TestConfigInputs(t *testing.T) {
	cfg := Config{
		Name: "splitter",
		Tech: types.TechConfig{
			PerformanceModel: &types.ModelRef{
				Model:  "splitter_performance",
				Config: map[string]any{"split_mode": "fraction"},
			},
			ModelInputs: map[string]map[string]any{
				"cost_parameters": {"capex": 1.0},
			},
		},
	}
	perf, err := cfg.Inputs("performance")
	require.NoError(t, err)
	assert.Equal(t, "fraction", perf["split_mode"])

	cost, err := cfg.Inputs("cost")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cost["capex"])

	var dst struct {
		Capex float64 `yaml:"capex" required:"true"`
	}
	require.NoError(t, cfg.Decode("cost", &dst))
	assert.Equal(t, 1.0, dst.Capex)

	var strict struct {
		Other float64 `yaml:"other"`
	}
	assert.ErrorContains(t, cfg.Decode("cost", &strict), "splitter cost parameters")

	assert.Equal(t, types.DefaultTimesteps, cfg.NTimesteps())
	assert.Equal(t, 1, cfg.PlantLife())
}

func TestSizing(t *testing.T) {
	s := Sizing{}
	require.NoError(t, s.Validate())
	assert.Equal(t, SizeNormal, s.SizeMode)
	assert.Empty(t, s.Inputs())

	s = Sizing{SizeMode: SizeByMaxFeedstock}
	assert.ErrorContains(t, s.Validate(), "flow_used_for_sizing")

	s = Sizing{SizeMode: SizeByMaxCommodity, FlowUsedForSizing: "hydrogen"}
	require.NoError(t, s.Validate())
	assert.Equal(t, 1.0, s.MaxCommodityRatio)
	require.Len(t, s.Inputs(), 1)
	assert.Equal(t, "max_commodity_ratio", s.Inputs()[0].Name)

	s = Sizing{SizeMode: "bigger"}
	assert.ErrorContains(t, s.Validate(), "not a valid sizing mode")
}

func TestSetCosts(t *testing.T) {
	out := component.Vector{}
	for _, p := range CostOutputs(3) {
		out[p.Name] = make([]float64, max(p.Size, 1))
	}
	SetCosts(out, 100, 10, 2, 2022)
	assert.Equal(t, 100.0, out.Scalar("CapEx"))
	assert.Equal(t, 10.0, out.Scalar("OpEx"))
	assert.Equal(t, []float64{2, 2, 2}, out.Get("VarOpEx"))
	assert.Equal(t, 2022.0, out.Scalar("cost_year"))

	assert.Equal(t, 2016, CostYear{}.Year(2016))
	assert.Equal(t, 2020, CostYear{CostYear: 2020}.Year(2016))
}

func TestCachingDir(t *testing.T) {
	ctx := context.Background()
	// cacheFiles computes once through the wrapped component and lists the
	// files written to dir.
	cacheFiles := func(t *testing.T, c Caching, cfg Config, dir string) []string {
		t.Helper()
		comp, err := c.Wrap(nopComp{}, cfg, "nop", map[string]any{"a": 1})
		require.NoError(t, err)
		require.NoError(t, comp.Compute(ctx, component.Vector{}, component.Vector{}))
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		require.NoError(t, err)
		return files
	}

	t.Run("disabled", func(t *testing.T) {
		comp, err := Caching{}.Wrap(nopComp{}, Config{}, "nop", nil)
		require.NoError(t, err)
		assert.Equal(t, nopComp{}, comp)
	})

	t.Run("default is next to the config", func(t *testing.T) {
		dir := t.TempDir()
		files := cacheFiles(t, Caching{EnableCaching: true}, Config{Dir: dir}, filepath.Join(dir, "cache"))
		assert.Len(t, files, 1)
	})

	t.Run("relative cache_dir", func(t *testing.T) {
		dir := t.TempDir()
		c := Caching{EnableCaching: true, CacheDir: "out/cache"}
		files := cacheFiles(t, c, Config{Dir: dir}, filepath.Join(dir, "out", "cache"))
		assert.Len(t, files, 1)
	})

	t.Run("override", func(t *testing.T) {
		dir := t.TempDir()
		override := filepath.Join(t.TempDir(), "flag")
		c := Caching{EnableCaching: true, CacheDir: "out/cache"}
		files := cacheFiles(t, c, Config{Dir: dir, CacheDir: override}, override)
		assert.Len(t, files, 1)
		_, err := os.Stat(filepath.Join(dir, "out"))
		assert.True(t, os.IsNotExist(err))
	})
}
