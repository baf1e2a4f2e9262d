package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/loadout/internal/ref"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <ref>",
	Short: "Resolve a single reference into the cache",
	Long: `Resolve one reference and print the cache location and immutable id.

Useful for debugging profile sources, e.g.:

  loadout resolve git+https://github.com/org/registry@main#subdirectory=providers/provider-anthropic`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := ref.Parse(args[0])
		if err != nil {
			return err
		}
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		dir, id, err := eng.resolver.Resolve(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n  id:   %s\n  path: %s\n", args[0], id, filepath.Join(eng.cfg.StateDir, filepath.FromSlash(dir)))
		return nil
	},
}
