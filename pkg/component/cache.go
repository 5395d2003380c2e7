package component

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/h2integrate/h2integrate/pkg/log"
)

// CurrentCacheVersion is stored with every cache file. Files of another
// version are ignored.
const CurrentCacheVersion = 1

type cacheFile struct {
	Version int    `json:"version"`
	Outputs Vector `json:"outputs"`
}

// cached computes through the wrapped component only when no cache file
// exists for the same config and inputs.
type cached struct {
	Component
	dir    string
	config []byte
}

// Cached wraps c so its outputs are stored in dir, keyed by a hash of name,
// config and the input values.
func Cached(c Component, dir, name string, config any) (Component, error) {
	if dir == "" {
		return nil, errors.New("missing cache dir")
	}
	b, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache config: %w", err)
	}
	return &cached{
		Component: c,
		dir:       dir,
		config:    append([]byte(name+"\x00"), b...),
	}, nil
}

func (c *cached) key(in Vector) string {
	h := sha256.New()
	h.Write(c.config)

	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	var buf [8]byte
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		for _, x := range in[name] {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *cached) Compute(ctx context.Context, in, out Vector) error {
	path := filepath.Join(c.dir, c.key(in)+".json")

	ok, err := load(path, out)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "ignoring unreadable cache file", slog.String("path", path), slog.Any("error", err))
	}
	if ok {
		log.Ctx(ctx).DebugContext(ctx, "loaded outputs from cache", slog.String("path", path))
		return nil
	}

	if err := c.Component.Compute(ctx, in, out); err != nil {
		return err
	}

	b, err := json.Marshal(cacheFile{Version: CurrentCacheVersion, Outputs: out})
	if err != nil {
		// non-finite outputs cannot be stored as JSON
		log.Ctx(ctx).WarnContext(ctx, "failed to encode cache", slog.Any("error", err))
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	// concurrent cases may share a cache file, so replace it atomically
	tmp, err := os.CreateTemp(c.dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	_, err = tmp.Write(b)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// load fills out from the cache file at path. It reports false when the file
// is missing or does not hold every output.
func load(path string, out Vector) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var f cacheFile
	if err := json.Unmarshal(b, &f); err != nil {
		return false, err
	}
	if f.Version != CurrentCacheVersion {
		return false, nil
	}
	for name := range out {
		if vals, ok := f.Outputs[name]; !ok || len(vals) != len(out[name]) {
			return false, nil
		}
	}
	for name := range out {
		out.Set(name, f.Outputs[name])
	}
	return true, nil
}
