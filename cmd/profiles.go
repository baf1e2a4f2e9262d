package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(profilesCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List discoverable profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		entries := eng.loader.List()
		if len(entries) == 0 {
			fmt.Println("No profiles found.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-24s %s\n", e.Name, e.Path)
		}
		return nil
	},
}
