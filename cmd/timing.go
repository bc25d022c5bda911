package main

import (
	"fmt"

	"github.com/cwbudde/petstudy/internal/timing"
	"github.com/spf13/cobra"
)

var markFile string

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Record the current time in the timing file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return timing.Mark(markFile)
	},
}

var elapsedCmd = &cobra.Command{
	Use:   "elapsed",
	Short: "Print seconds since the last mark",
	Long: `Prints the seconds elapsed since the time recorded by mark.
Prints -1 when no mark has been recorded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := timing.Elapsed(markFile)
		if err != nil {
			return err
		}
		fmt.Println(formatFloat(v))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{markCmd, elapsedCmd} {
		c.Flags().StringVar(&markFile, "file", timing.DefaultPath, "Timing marker file")
		rootCmd.AddCommand(c)
	}
}
