// Package config loads the top-level input file and the driver, technology
// and plant configs it points at, and decodes model input sections into the
// config structs of individual models.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/types"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateParameter is returned when a key is given in both
// shared_parameters and a model specific section.
var ErrDuplicateParameter = errors.New("duplicate parameter")

// Loader loads the file named by the -config flag.
type Loader struct {
	Path string
}

// Configured registers the -config flag.
func Configured() *Loader {
	path := lflag.String("config", "", "Path to the top-level input YAML file")

	var l Loader
	lflag.Do(func() {
		l.Path = *path
	})
	return &l
}

// Load reads the configured file.
func (l *Loader) Load(ctx context.Context) (*types.Config, error) {
	if l.Path == "" {
		return nil, errors.New("missing -config")
	}
	return Load(ctx, l.Path)
}

type topLevel struct {
	Name             string    `yaml:"name"`
	SystemSummary    string    `yaml:"system_summary"`
	DriverConfig     yaml.Node `yaml:"driver_config"`
	TechnologyConfig yaml.Node `yaml:"technology_config"`
	PlantConfig      yaml.Node `yaml:"plant_config"`
}

// Load reads the top-level file at path. driver_config, technology_config and
// plant_config may each be a path relative to the top-level file or an inline
// mapping.
func Load(ctx context.Context, path string) (*types.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return Parse(ctx, b, dir)
}

// Parse decodes a top-level file whose relative paths resolve against dir.
func Parse(ctx context.Context, b []byte, dir string) (*types.Config, error) {
	var top topLevel
	if err := yaml.Unmarshal(b, &top); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &types.Config{
		Name:          top.Name,
		SystemSummary: top.SystemSummary,
		BaseDir:       dir,
		TechDir:       dir,
	}

	if _, err := decodeSection(&top.DriverConfig, dir, "driver_config", &cfg.Driver); err != nil {
		return nil, err
	}
	techPath, err := decodeSection(&top.TechnologyConfig, dir, "technology_config", &cfg.Technology)
	if err != nil {
		return nil, err
	}
	if techPath != "" {
		cfg.TechDir = filepath.Dir(techPath)
	}
	if _, err := decodeSection(&top.PlantConfig, dir, "plant_config", &cfg.Plant); err != nil {
		return nil, err
	}

	plant, migrated, err := types.MigratePlantConfig(cfg.Plant, cfg.Plant.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate plant config: %w", err)
	}
	if migrated {
		log.Ctx(ctx).InfoContext(
			ctx,
			"migrated plant config",
			slog.Int("from", cfg.Plant.Version),
			slog.Int("to", types.CurrentConfigVersion),
		)
	}
	cfg.Plant = plant

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeSection decodes n into dst. A scalar node is a path that is read and
// decoded instead, and that path is returned.
func decodeSection(n *yaml.Node, dir, name string, dst any) (string, error) {
	switch n.Kind {
	case 0:
		return "", fmt.Errorf("missing %s", name)
	case yaml.MappingNode:
		if err := n.Decode(dst); err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return "", nil
	case yaml.ScalarNode:
		path := n.Value
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(b, dst); err != nil {
			return "", fmt.Errorf("failed to decode %s (%s): %w", name, path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("%s must be a path or a mapping", name)
}

// Validate checks the cross-file rules that can be checked before the model
// is built.
func Validate(cfg *types.Config) error {
	p := cfg.Plant.Plant
	if p.PlantLife < 0 {
		return fmt.Errorf("plant_life must not be negative: %d", p.PlantLife)
	}
	if dt := p.Simulation.Dt; dt != 0 && dt != 3600 {
		return fmt.Errorf("unsupported simulation dt %d: only hourly timesteps are supported", dt)
	}
	for _, name := range cfg.Technology.Technologies.Keys {
		tc := cfg.Technology.Technologies.Values[name]
		if tc.PerformanceModel == nil && tc.CostModel == nil {
			return fmt.Errorf("technology %s: missing performance_model", name)
		}
	}
	for _, c := range cfg.Plant.ResourceToTechConnections {
		if c.Len() != 3 {
			return fmt.Errorf("invalid resource to tech connection: %s", c)
		}
	}
	return nil
}

// MergeShared returns shared_parameters merged with {kind}_parameters. A key
// present in both is an error. When only one of the two sections is present it
// is returned as is.
func MergeShared(inputs map[string]map[string]any, kind string) (map[string]any, error) {
	shared, hasShared := inputs["shared_parameters"]
	specific, hasSpecific := inputs[kind+"_parameters"]
	switch {
	case !hasShared && !hasSpecific:
		return map[string]any{}, nil
	case !hasShared:
		return specific, nil
	case !hasSpecific:
		return shared, nil
	}

	out := make(map[string]any, len(shared)+len(specific))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range specific {
		if _, ok := out[k]; ok {
			return nil, fmt.Errorf("%w: %q in shared_parameters and %s_parameters", ErrDuplicateParameter, k, kind)
		}
		out[k] = v
	}
	return out, nil
}

// Decode decodes m into dst, a pointer to a struct with yaml tags. Unknown keys
// are an error, as are missing keys whose field is tagged required:"true".
func Decode(m map[string]any, dst any) error {
	return decode(m, dst, true)
}

// DecodeLoose is Decode without the unknown key check.
func DecodeLoose(m map[string]any, dst any) error {
	return decode(m, dst, false)
}

func decode(m map[string]any, dst any, strict bool) error {
	if m == nil {
		m = map[string]any{}
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(strict)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode inputs: %w", err)
	}
	if missing := missingRequired(m, dst); len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %v", missing)
	}
	return nil
}
