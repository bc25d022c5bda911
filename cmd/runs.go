package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/petstudy/internal/store"
	"github.com/spf13/cobra"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	dumpJSON      bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage recorded runs",
	Long:  `Manage recorded runs including listing, dumping and cleaning old runs.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded runs",
	Long:  `Display all runs with study, driver, state, case count, best objective and size on disk.`,
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

var dumpRunCmd = &cobra.Command{
	Use:   "dump <run-id>",
	Short: "Print the recorded cases of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runDumpRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can specify how many runs to keep or delete runs older than N days.`,
	Args: cobra.NoArgs,
	RunE: runCleanRuns,
}

func init() {
	// Add runs command to root
	rootCmd.AddCommand(runsCmd)

	// Add subcommands
	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(dumpRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	dumpRunCmd.Flags().BoolVar(&dumpJSON, "json", false, "Print metadata and cases as JSON lines")

	// Clean command flags
	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := openStore()
	if err != nil {
		return err
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	// Display runs in a table
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTUDY\tDRIVER\tSTATE\tCASES\tBEST\tSTARTED\tSIZE")
	fmt.Fprintln(w, "------\t-----\t------\t-----\t-----\t----\t-------\t----")

	for _, info := range infos {
		size, err := getDirSize(runStore.RunDir(info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		best := "-"
		if info.BestObjective != nil {
			best = formatFloat(*info.BestObjective)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(info.ID),
			info.Study,
			info.Driver,
			info.State,
			info.Cases,
			best,
			info.StartTime.Format("2006-01-02 15:04:05"),
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal runs: %d\n", len(infos))
	return nil
}

func runDumpRun(cmd *cobra.Command, args []string) error {
	runStore, err := openStore()
	if err != nil {
		return err
	}
	return dumpRun(commandContext(cmd), os.Stdout, runStore, args[0], dumpJSON)
}

// dumpRun prints the metadata and cases recorded for a run.
func dumpRun(ctx context.Context, w io.Writer, st store.Store, id string, asJSON bool) error {
	info, err := st.LoadRun(id)
	if err != nil {
		return err
	}

	db, err := store.OpenCaseDB(filepath.Join(st.RunDir(id), store.CasesFile))
	if err != nil {
		return err
	}
	defer db.Close()

	meta, ok, err := db.Metadata(ctx)
	if err != nil {
		return err
	}
	cases, err := db.Cases(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		if ok {
			if err := enc.Encode(meta); err != nil {
				return err
			}
		}
		for _, c := range cases {
			if err := enc.Encode(c); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(w, "Run: %s\n", info.ID)
	fmt.Fprintf(w, "Study: %s\n", info.Study)
	fmt.Fprintf(w, "Driver: %s\n", info.Driver)
	fmt.Fprintf(w, "State: %s\n", info.State)
	if ok {
		if len(meta.DesVars) > 0 {
			fmt.Fprintf(w, "Design variables: %s\n", strings.Join(meta.DesVars, ", "))
		}
		if len(meta.Objectives) > 0 {
			fmt.Fprintf(w, "Objectives: %s\n", strings.Join(meta.Objectives, ", "))
		}
	}
	if info.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", info.Error)
	}
	printCases(w, cases)
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	// Validate flags
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := openStore()
	if err != nil {
		return err
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs to clean.")
		return nil
	}

	// Determine which runs to delete
	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No runs match deletion criteria.")
		return nil
	}

	// Show what will be deleted
	fmt.Printf("Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %d cases, %s)\n",
			shortID(info.ID),
			info.Study,
			info.Cases,
			info.StartTime.Format("2006-01-02 15:04:05"),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.ID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion determines which runs should be deleted based on
// retention policy. Runs older than olderThanDays go, and of the rest only
// the newest keepLast survive.
func selectRunsForDeletion(infos []store.RunInfo, keepLast int, olderThanDays int) []store.RunInfo {
	var toDelete []store.RunInfo
	selected := make(map[string]bool)

	// Apply age-based deletion
	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.StartTime.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	// Apply count-based deletion
	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RunInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime.Before(sorted[j].StartTime) })

		// Delete oldest runs beyond keepLast
		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

// shortID truncates a run ID for display
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
