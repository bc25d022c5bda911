package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/petstudy/internal/runner"
	"github.com/cwbudde/petstudy/internal/store"
	"github.com/cwbudde/petstudy/internal/study"
	"github.com/spf13/cobra"
)

var (
	workers    int
	levels     int
	noPrint    bool
	timingFile string
	runID      string
)

var runCmd = &cobra.Command{
	Use:   "run <study|file.yaml>",
	Short: "Run a study and print its recorded cases",
	Long: `Runs a built-in study or a study file, records every case under the
data directory and prints each case's unknowns followed by its parameters.`,
	Args: cobra.ExactArgs(1),
	RunE: runStudy,
}

func init() {
	runCmd.Flags().IntVar(&workers, "workers", 0, "Parallel sweep workers (0 = study default)")
	runCmd.Flags().IntVar(&levels, "levels", 0, "Override sweep levels (0 = study default)")
	runCmd.Flags().BoolVar(&noPrint, "no-print", false, "Do not print recorded cases")
	runCmd.Flags().StringVar(&timingFile, "timing-file", "", "Timing marker file (default time.txt)")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run ID (default: random UUID)")

	rootCmd.AddCommand(runCmd)
}

func runStudy(cmd *cobra.Command, args []string) error {
	s, err := study.Resolve(args[0])
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	slog.Info("Starting study", "study", s.Name, "driver", s.DriverName())

	ctx := commandContext(cmd)
	start := time.Now()
	info, err := runner.Run(ctx, st, s, runner.Options{
		RunID: runID,
		Build: study.Options{
			TimingPath: timingFile,
			Workers:    workers,
			Levels:     levels,
		},
	})
	if info == nil {
		return err
	}

	if !noPrint {
		// Print what was recorded even after an interrupt.
		if perr := printRunCases(context.WithoutCancel(ctx), os.Stdout, st, info.ID); perr != nil {
			return errors.Join(err, perr)
		}
	}

	fmt.Printf("\nRun %s %s: %d case(s) in %s\n", info.ID, info.State, info.Cases, time.Since(start).Round(time.Millisecond))
	if info.BestObjective != nil {
		fmt.Printf("Best %s: %s\n", info.Objective, formatFloat(*info.BestObjective))
	}
	return err
}

// printRunCases prints every case recorded for a run.
func printRunCases(ctx context.Context, w io.Writer, st store.Store, id string) error {
	db, err := store.OpenCaseDB(filepath.Join(st.RunDir(id), store.CasesFile))
	if err != nil {
		return err
	}
	defer db.Close()

	cases, err := db.Cases(ctx)
	if err != nil {
		return err
	}
	printCases(w, cases)
	return nil
}

// printCases writes each case as a blank line, its unknowns and its
// parameters.
func printCases(w io.Writer, cases []store.Case) {
	for _, c := range cases {
		fmt.Fprintln(w)
		fmt.Fprintln(w, formatValues(c.Unknowns))
		fmt.Fprintln(w, formatValues(c.Params))
		if !c.Success {
			fmt.Fprintf(w, "failed: %s\n", c.Msg)
		}
	}
}

// formatValues renders a value map as {path: value, ...} sorted by path.
func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, formatFloat(values[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
