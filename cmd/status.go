package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("server", "http://localhost:8080", "Server URL")
	cfg.BindPFlag("server", statusCmd.Flags().Lookup("server"))
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Study   string `json:"study"`
		Workers int    `json:"workers"`
		Levels  int    `json:"levels"`
	} `json:"config"`
	Driver        string   `json:"driver"`
	Cases         int      `json:"cases"`
	Objective     string   `json:"objective"`
	BestObjective *float64 `json:"bestObjective"`
	Elapsed       float64  `json:"elapsed"`
	Error         string   `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	serverURL := cfg.GetString("server")

	if len(args) == 0 {
		// List all jobs
		return listJobs(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	// Get specific job status
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(w io.Writer, url string) error {
	var jobs []jobStatus
	if err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Study: %s\n", job.Config.Study)
		fmt.Fprintf(w, "  Cases: %d\n", job.Cases)
		if job.BestObjective != nil {
			fmt.Fprintf(w, "  Best %s: %s\n", job.Objective, formatFloat(*job.BestObjective))
		}
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	var status jobStatus
	if err := getJSON(url, &status); err != nil {
		if errors.Is(err, errNotFound) {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return err
	}

	// Display status
	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Study: %s\n", status.Config.Study)
	if status.Driver != "" {
		fmt.Fprintf(w, "  Driver: %s\n", status.Driver)
	}
	if status.Config.Workers > 0 {
		fmt.Fprintf(w, "  Workers: %d\n", status.Config.Workers)
	}
	if status.Config.Levels > 0 {
		fmt.Fprintf(w, "  Levels: %d\n", status.Config.Levels)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Cases: %d\n", status.Cases)
	if status.BestObjective != nil {
		fmt.Fprintf(w, "  Best %s: %s\n", status.Objective, formatFloat(*status.BestObjective))
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}

var errNotFound = errors.New("not found")

// getJSON fetches url and decodes the JSON body into v.
func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
