// Package convergecfg loads the authority process's configuration from a
// YAML document plus an environment-variable overlay (struct-tag-free
// reflection walking a prefixed env namespace), scoped to what an
// authority process actually needs to start: storage driver selection,
// chunking defaults, retention defaults and logging. HTTP listener, auth,
// middleware and proxy configuration are out of scope, since there is no
// HTTP surface for them to configure.
package convergecfg

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/convergence-vcs/convergence/chunker"
)

// Version is a major/minor pair, kept even though only one version exists
// today so a future breaking layout change has somewhere to branch from.
type Version string

// CurrentVersion is the only Version this release understands.
const CurrentVersion Version = "1.0"

// LogConfig controls the logrus logger convergectx installs into a
// context.Context at process start.
type LogConfig struct {
	Level     string `yaml:"level"`
	Formatter string `yaml:"formatter"`
}

// StorageConfig selects a storagedriver.StorageDriver by name (as
// registered with storagedriver/factory) and carries its backend-specific
// parameters verbatim.
type StorageConfig struct {
	Driver     string                 `yaml:"driver"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// ChunkerConfig mirrors chunker.Config's fields so it round-trips through
// YAML; ToChunkerConfig converts it to the type chunker.Ingest expects.
type ChunkerConfig struct {
	ChunkSize uint64 `yaml:"chunk_size"`
	Threshold uint64 `yaml:"threshold"`
}

// ToChunkerConfig converts c to chunker.Config, falling back to
// chunker.DefaultConfig for any zero field.
func (c ChunkerConfig) ToChunkerConfig() chunker.Config {
	d := chunker.DefaultConfig()
	cfg := chunker.Config{ChunkSize: c.ChunkSize, Threshold: c.Threshold}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = d.ChunkSize
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = d.Threshold
	}
	return cfg
}

// RetentionConfig holds the operator-facing defaults for a scheduled
// retention run; an individual invocation may still override these via
// retention.Options.
type RetentionConfig struct {
	DryRun                bool `yaml:"dry_run"`
	PruneReleasesKeepLast int  `yaml:"prune_releases_keep_last"`
	MaxConcurrency        int  `yaml:"max_concurrency"`
}

// Configuration is the authority process's full static configuration.
type Configuration struct {
	Version   Version         `yaml:"version"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retention RetentionConfig `yaml:"retention"`
}

// Parse reads a YAML configuration document, validates its version, and
// overlays matching environment variables (prefix "CONVERGE", e.g.
// CONVERGE_LOG_LEVEL overrides Log.Level).
func Parse(in []byte, env []string) (*Configuration, error) {
	var versioned struct {
		Version Version `yaml:"version"`
	}
	if err := yaml.Unmarshal(in, &versioned); err != nil {
		return nil, fmt.Errorf("convergecfg: parse version: %w", err)
	}
	if versioned.Version != "" && versioned.Version != CurrentVersion {
		return nil, fmt.Errorf("convergecfg: unsupported version %q", versioned.Version)
	}

	cfg := &Configuration{Version: CurrentVersion}
	if err := yaml.Unmarshal(in, cfg); err != nil {
		return nil, fmt.Errorf("convergecfg: parse document: %w", err)
	}

	if err := newEnvOverlay(env, "CONVERGE").apply(cfg); err != nil {
		return nil, fmt.Errorf("convergecfg: environment overlay: %w", err)
	}
	return cfg, nil
}

// Default returns a Configuration usable out of the box: an in-memory
// store and the chunker's default sizes, suitable for tests and a
// single-process trial run.
func Default() *Configuration {
	return &Configuration{
		Version: CurrentVersion,
		Log:     LogConfig{Level: "info", Formatter: "text"},
		Storage: StorageConfig{Driver: "inmemory"},
		Chunker: ChunkerConfig{
			ChunkSize: chunker.DefaultConfig().ChunkSize,
			Threshold: chunker.DefaultConfig().Threshold,
		},
		Retention: RetentionConfig{PruneReleasesKeepLast: 5, MaxConcurrency: 8},
	}
}
