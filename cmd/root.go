package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentic-research/loadout/internal/compile"
	"github.com/agentic-research/loadout/internal/profile"
	"github.com/agentic-research/loadout/internal/ref"
)

var (
	cfgPath string
	verbose bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to loadout.hcl")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:           "loadout",
	Short:         "Loadout: profile resolution and mount plan compilation",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// engine bundles the wired services for one command invocation.
type engine struct {
	cfg      *Config
	log      *zap.Logger
	idx      *ref.Index
	resolver *ref.Resolver
	compiler *compile.Compiler
	loader   *profile.Loader
}

func newEngine() (*engine, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Join(cfg.StateDir, ref.CacheDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	stateFS := osfs.New(cfg.StateDir)

	idx, err := ref.OpenIndex(filepath.Join(cfg.StateDir, ref.CacheDir, "refs.db"))
	if err != nil {
		return nil, err
	}
	resolver := ref.NewResolver(stateFS, idx, log, ref.Options{
		Timeout: cfg.fetchTimeout(),
		Retries: cfg.fetchRetries(),
	})

	return &engine{
		cfg:      cfg,
		log:      log,
		idx:      idx,
		resolver: resolver,
		compiler: compile.New(stateFS, resolver, log),
		loader:   profile.NewLoader(cfg.profileSearchPaths(), log),
	}, nil
}

func (e *engine) close() {
	_ = e.idx.Close()
	_ = e.log.Sync()
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose || level == "debug" {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if level == "warn" {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// splitProfileID splits "collection/profile" into its parts.
func splitProfileID(id string) (string, string, error) {
	collection, name, ok := strings.Cut(id, "/")
	if !ok || collection == "" || name == "" {
		return "", "", fmt.Errorf("invalid profile id %q: expected collection/profile", id)
	}
	return collection, name, nil
}
