package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Print the canonical id for a legacy id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		canonical := app.IDs.Resolve(args[0])
		if jsonOutput {
			return printJSON(map[string]string{"id": args[0], "canonical_id": canonical})
		}
		fmt.Println(canonical)
		return nil
	},
}

// map: không có arg → liệt kê, <legacy> <canonical> → ghi mapping
var mapCmd = &cobra.Command{
	Use:   "map [<legacy> <canonical>]",
	Short: "List the legacy id mappings, or record one",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("map takes no arguments or exactly <legacy> <canonical>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			app.IDs.Record(cmd.Context(), args[0], args[1])
			fmt.Printf("%s -> %s\n", args[0], app.IDs.Resolve(args[0]))
			return nil
		}

		entries := app.IDs.Entries()
		if jsonOutput {
			return printJSON(entries)
		}
		for _, e := range entries {
			fmt.Printf("%s -> %s\n", e.LegacyID, e.CanonicalID)
		}
		fmt.Printf("%d mappings\n", len(entries))
		return nil
	},
}
