package cmd

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/loadout/internal/mountplan"
)

var planRoot string

func init() {
	planCmd.Flags().StringVar(&planRoot, "root", "", "Working root for mention resolution (default: current directory)")
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan <collection>/<profile>",
	Short: "Generate the mount plan for a compiled profile",
	Long: `Generate the mount plan for a profile and print it as JSON.

The profile is compiled first if needed; an unchanged profile is a no-op
thanks to the lock record.`,
	Args: cobra.ExactArgs(1),
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
		if _, err := eng.compiler.Compile(cmd.Context(), collection, p, false); err != nil {
			return err
		}

		root := planRoot
		if root == "" {
			if root, err = os.Getwd(); err != nil {
				return err
			}
		}
		gen := &mountplan.Generator{StateDir: eng.cfg.StateDir, Log: eng.log}
		plan, err := gen.Generate(collection, p, root)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(plan, &ojg.Options{Sort: true, UseTags: true, OmitNil: true, Indent: 2}))
		return nil
	},
}
