package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/petstudy/internal/study"
	"github.com/spf13/cobra"
)

var studiesCmd = &cobra.Command{
	Use:   "studies",
	Short: "List built-in studies",
	Args:  cobra.NoArgs,
	RunE:  runListStudies,
}

func init() {
	rootCmd.AddCommand(studiesCmd)
}

func runListStudies(cmd *cobra.Command, args []string) error {
	infos, err := study.Builtins()
	if err != nil {
		return fmt.Errorf("failed to list studies: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDRIVER\tDESCRIPTION")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.Driver, info.Description)
	}
	return w.Flush()
}
