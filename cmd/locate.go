package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/loadout/internal/modsource"
)

func init() {
	rootCmd.AddCommand(locateCmd)
}

var locateCmd = &cobra.Command{
	Use:   "locate <module-id> <collection>/<profile>",
	Short: "Locate a module's compiled source directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		resolver := &modsource.Resolver{StateDir: eng.cfg.StateDir}
		dir, err := resolver.Locate(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil
	},
}
