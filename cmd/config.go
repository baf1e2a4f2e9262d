package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the engine configuration, loaded from loadout.hcl.
type Config struct {
	// StateDir holds the cache and compiled profiles. Default: ~/.loadout.
	StateDir string `hcl:"state_dir,optional"`
	// FetchTimeout bounds each fetch attempt (Go duration string).
	FetchTimeout string `hcl:"fetch_timeout,optional"`
	// FetchRetries is the number of retry attempts after the first failure.
	FetchRetries int    `hcl:"fetch_retries,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	// ProfilePaths are extra profile search directories, highest priority
	// first.
	ProfilePaths []string `hcl:"profile_paths,optional"`
}

// loadConfig reads path, or the first of ./loadout.hcl and
// ~/.loadout/loadout.hcl that exists. No file at all yields defaults.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		for _, candidate := range configCandidates() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".loadout")
	}
	cfg.StateDir = expandHome(cfg.StateDir)
	return cfg, nil
}

func configCandidates() []string {
	candidates := []string{"loadout.hcl"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".loadout", "loadout.hcl"))
	}
	return candidates
}

func (c *Config) fetchTimeout() time.Duration {
	if d, err := time.ParseDuration(c.FetchTimeout); err == nil && d > 0 {
		return d
	}
	return 60 * time.Second
}

func (c *Config) fetchRetries() int {
	if c.FetchRetries > 0 {
		return c.FetchRetries
	}
	return 3
}

// profileSearchPaths returns profile directories in priority order:
// configured extras, the project's .loadout/profiles, then the user's.
func (c *Config) profileSearchPaths() []string {
	paths := append([]string{}, c.ProfilePaths...)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".loadout", "profiles"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".loadout", "profiles"))
	}
	return paths
}

func expandHome(p string) string {
	if len(p) >= 2 && p[0] == '~' && p[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
