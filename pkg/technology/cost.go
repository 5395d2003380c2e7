package technology

import (
	"github.com/h2integrate/h2integrate/pkg/component"
)

// CostOutputs are the ports every cost model provides to the finance models.
func CostOutputs(plantLife int) []component.Port {
	return []component.Port{
		component.Scalar("CapEx", "USD", 0, "Capital expenditure"),
		component.Scalar("OpEx", "USD/year", 0, "Fixed operational expenditure"),
		component.Series("VarOpEx", "USD/year", plantLife, "Variable operational expenditure"),
		component.Scalar("cost_year", "", 0, "Dollar year for costs"),
	}
}

// SetCosts writes the standard cost outputs. varOpEx is applied to every
// year of the plant life.
func SetCosts(out component.Vector, capex, opex, varOpEx float64, costYear int) {
	out.SetScalar("CapEx", capex)
	out.SetScalar("OpEx", opex)
	vals := make([]float64, len(out.Get("VarOpEx")))
	for i := range vals {
		vals[i] = varOpEx
	}
	out.Set("VarOpEx", vals)
	out.SetScalar("cost_year", float64(costYear))
}

// CostYear is embedded in every cost model config.
type CostYear struct {
	CostYear int `yaml:"cost_year"`
}

// Year returns the configured cost year or def.
func (c CostYear) Year(def int) int {
	if c.CostYear > 0 {
		return c.CostYear
	}
	return def
}

// Caching is embedded in configs of models that may cache their outputs.
type Caching struct {
	EnableCaching bool   `yaml:"enable_caching"`
	CacheDir      string `yaml:"cache_dir"`
}

// Wrap returns c wrapped in a cache when caching is enabled. The configured
// directory, "cache" by default, is relative to the technology config.
// cfg.CacheDir overrides it as given.
func (c Caching) Wrap(comp component.Component, cfg Config, name string, config any) (component.Component, error) {
	if !c.EnableCaching {
		return comp, nil
	}
	dir := cfg.CacheDir
	if dir == "" {
		dir = c.CacheDir
		if dir == "" {
			dir = "cache"
		}
		dir = cfg.Path(dir)
	}
	return component.Cached(comp, dir, name, config)
}
