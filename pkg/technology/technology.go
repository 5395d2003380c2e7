// Package technology is the registry of model factories and the helpers
// models share: decoding their inputs, the standard cost ports and sizing
// modes.
package technology

import (
	"errors"
	"fmt"
	"path/filepath"
	"plugin"
	"sync"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/types"
)

var ErrUnknownModel = errors.New("unknown model")

// Roles a model can fill for a technology.
const (
	RolePerformance = "performance"
	RoleControl     = "control"
	RoleCost        = "cost"
	RoleFinancial   = "financial"
)

// Config is what a technology model is built from.
type Config struct {
	// Name is the technology name, the key under technologies.
	Name string
	// Role is the slot the model fills, one of the Role constants.
	Role   string
	Tech   types.TechConfig
	Plant  types.PlantConfig
	Driver types.DriverConfig
	// Dir is where relative paths in model inputs are resolved from.
	Dir string
	// CacheDir overrides the cache_dir of models with enable_caching.
	CacheDir string
}

// Inputs returns shared_parameters merged with {kind}_parameters. When neither
// is given the config mapping of the {kind}_model entry is used.
func (c Config) Inputs(kind string) (map[string]any, error) {
	out, err := config.MergeShared(c.Tech.ModelInputs, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	if len(out) > 0 {
		return out, nil
	}
	var ref *types.ModelRef
	switch kind {
	case RolePerformance:
		ref = c.Tech.PerformanceModel
	case RoleCost:
		ref = c.Tech.CostModel
	case RoleControl:
		ref = c.Tech.ControlStrategy
	case RoleFinancial:
		ref = c.Tech.FinancialModel
	}
	if ref != nil && ref.Config != nil {
		return ref.Config, nil
	}
	return out, nil
}

// Decode decodes the {kind} inputs strictly into dst.
func (c Config) Decode(kind string, dst any) error {
	m, err := c.Inputs(kind)
	if err != nil {
		return err
	}
	if err := config.Decode(m, dst); err != nil {
		return fmt.Errorf("%s %s parameters: %w", c.Name, kind, err)
	}
	return nil
}

// NTimesteps returns the simulation length.
func (c Config) NTimesteps() int {
	if n := c.Plant.Plant.Simulation.NTimesteps; n > 0 {
		return n
	}
	return types.DefaultTimesteps
}

// Path resolves a path given in the model inputs.
func (c Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// PlantLife returns the plant life in years, at least 1.
func (c Config) PlantLife() int {
	if c.Plant.Plant.PlantLife > 0 {
		return c.Plant.Plant.PlantLife
	}
	return 1
}

// FinanceConfig is what a plant level finance model is built from.
type FinanceConfig struct {
	// Commodity is e.g. hydrogen, electricity or ammonia.
	Commodity string
	// Description is appended to output names when set.
	Description string
	// Techs are the technologies of the finance subgroup.
	Techs       types.Ordered[types.TechConfig]
	Plant       types.PlantConfig
	ModelInputs map[string]any
	// OutputDir is general.folder_output, where breakdowns are written.
	OutputDir string
}

// PlantLife returns the plant life in years, at least 1.
func (c FinanceConfig) PlantLife() int {
	if c.Plant.Plant.PlantLife > 0 {
		return c.Plant.Plant.PlantLife
	}
	return 1
}

// Factory builds a technology model.
type Factory func(Config) (component.Component, error)

// FinanceFactory builds a plant level finance model.
type FinanceFactory func(FinanceConfig) (component.Component, error)

// TransportFactory builds a transport component carrying item.
type TransportFactory func(item string, cfg types.PlantConfig) (component.Component, error)

// Map holds every known model.
type Map struct {
	mu         sync.Mutex
	models     map[string]Factory
	finance    map[string]FinanceFactory
	transports map[string]TransportFactory
	custom     map[string]Factory
	builtin    map[string]bool
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{
		models:     make(map[string]Factory),
		finance:    make(map[string]FinanceFactory),
		transports: make(map[string]TransportFactory),
		custom:     make(map[string]Factory),
		builtin:    make(map[string]bool),
	}
}

// Register adds a built-in technology model.
func (m *Map) Register(name string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[name] = f
	m.builtin[name] = true
}

// RegisterFinance adds a built-in finance model.
func (m *Map) RegisterFinance(name string, f FinanceFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finance[name] = f
	m.builtin[name] = true
}

// RegisterTransport adds a built-in transport model.
func (m *Map) RegisterTransport(name string, f TransportFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[name] = f
	m.builtin[name] = true
}

// RegisterCustom adds a custom model class that model_class_name can name
// without loading a plugin.
func (m *Map) RegisterCustom(className string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom[className] = f
}

// IsBuiltin reports whether name is a built-in model.
func (m *Map) IsBuiltin(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builtin[name]
}

// Lookup returns the technology model called name.
func (m *Map) Lookup(name string) (Factory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.models[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
}

// LookupFinance returns the finance model called name.
func (m *Map) LookupFinance(name string) (FinanceFactory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.finance[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: financial model %q not found", ErrUnknownModel, name)
}

// LookupTransport returns the transport model called name.
func (m *Map) LookupTransport(name string) (TransportFactory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.transports[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: transport %s", ErrUnknownModel, name)
}

// AddCustom registers the model named by ref for tech. Built-in names may not
// carry model_class_name or model_location. Other names must give both: the
// class is found among RegisterCustom classes or loaded as a symbol from the
// Go plugin at model_location, relative to dir.
func (m *Map) AddCustom(tech, role string, ref *types.ModelRef, dir string) error {
	if ref == nil || ref.Model == "" {
		return nil
	}
	if m.IsBuiltin(ref.Model) {
		if ref.IsCustom() {
			return fmt.Errorf(
				"custom model_class_name or model_location specified for %q, but %q is a built-in model; rename it to use a custom model",
				ref.Model, ref.Model,
			)
		}
		return nil
	}
	if ref.ModelClassName == "" || ref.ModelLocation == "" {
		return fmt.Errorf("custom %s for %s must specify model_class_name and model_location", role, tech)
	}

	m.mu.Lock()
	f, ok := m.custom[ref.ModelClassName]
	m.mu.Unlock()
	if !ok {
		path := ref.ModelLocation
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		var err error
		if f, err = loadPlugin(path, ref.ModelClassName); err != nil {
			return fmt.Errorf("failed to load custom %s for %s: %w", role, tech, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[ref.Model] = f
	return nil
}

func loadPlugin(path, symbol string) (Factory, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	switch f := sym.(type) {
	case func(Config) (component.Component, error):
		return f, nil
	case *Factory:
		return *f, nil
	case *func(Config) (component.Component, error):
		return *f, nil
	}
	return nil, fmt.Errorf("symbol %s in %s is %T, not a technology.Factory", symbol, path, sym)
}
