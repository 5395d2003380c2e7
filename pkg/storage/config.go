package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/levenlabs/go-lflag"

	"github.com/h2integrate/h2integrate/pkg/types"
)

// Config selects and configures the case recorder.
type Config struct {
	Provider   string
	SQLitePath string

	firestore *FirestoreProvider
}

// Configured registers the storage flags.
func Configured() *Config {
	provider := lflag.String("storage-provider", "sqlite", "Storage provider to use (available: sqlite, firestore, none)")
	sqlitePath := lflag.String("sqlite-path", "cases.db", "Path of the sqlite case database")

	c := &Config{firestore: configuredFirestore()}

	lflag.Do(func() {
		c.Provider = *provider
		c.SQLitePath = *sqlitePath
	})

	return c
}

// Open opens the configured provider. The provider and file of rec, when
// set, override the flags. A relative file is resolved against dir.
func (c *Config) Open(ctx context.Context, rec *types.RecorderConfig, dir string) (Database, error) {
	provider := c.Provider
	path := c.SQLitePath
	if rec != nil {
		if rec.Provider != "" {
			provider = rec.Provider
		}
		if rec.File != "" {
			path = rec.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
		}
	}

	switch provider {
	case "sqlite":
		return OpenSQLite(ctx, path)
	case "firestore":
		fs := c.firestore
		if fs == nil {
			fs = &FirestoreProvider{}
		}
		if err := fs.Init(ctx); err != nil {
			return nil, fmt.Errorf("firestore init failed: %w", err)
		}
		return fs, nil
	case "none", "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", provider)
	}
}
