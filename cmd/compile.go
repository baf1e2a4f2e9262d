package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var compileForce bool

func init() {
	compileCmd.Flags().BoolVarP(&compileForce, "force", "f", false, "Recompile even if the profile is unchanged")
	rootCmd.AddCommand(compileCmd)
}

var compileCmd = &cobra.Command{
	Use:   "compile <collection>/<profile>",
	Short: "Resolve a profile's references and compile it into the state directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, name, err := splitProfileID(args[0])
		if err != nil {
			return err
		}
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		p, err := eng.loader.Load(name)
		if err != nil {
			return err
		}
		dir, err := eng.compiler.Compile(cmd.Context(), collection, p, compileForce)
		if err != nil {
			return err
		}
		fmt.Printf("Compiled %s -> %s\n", args[0], filepath.Join(eng.cfg.StateDir, filepath.FromSlash(dir)))
		return nil
	},
}
