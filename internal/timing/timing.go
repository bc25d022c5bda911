package timing

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPath is the marker file used when no path is configured.
const DefaultPath = "time.txt"

// NoMark is returned by Elapsed when no marker file exists.
// It is not distinguishable from a recorded value of -1.0; use IsNoMark
// before the value is recorded if the difference matters.
const NoMark = -1.0

// now is replaced in tests.
var now = time.Now

// Mark writes the current wall-clock time, in seconds since the Unix epoch
// with millisecond precision, to path. Prior content is overwritten.
func Mark(path string) error {
	if path == "" {
		path = DefaultPath
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create marker file: %w", err)
	}

	line := FormatStamp(now())
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write marker file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close marker file: %w", err)
	}

	slog.Debug("Timing mark written", "path", path, "stamp", line)
	return nil
}

// Elapsed returns the seconds elapsed since the time recorded in path.
// A missing file yields NoMark and a nil error.
func Elapsed(path string) (float64, error) {
	if path == "" {
		path = DefaultPath
	}

	recorded, err := Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No timing mark present", "path", path)
		return NoMark, nil
	}
	if err != nil {
		return 0, err
	}

	return float64(now().UnixNano())/1e9 - recorded, nil
}

// Read parses the timestamp stored in path.
func Read(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("failed to read marker file: %w", err)
		}
		return 0, fmt.Errorf("marker file %s is empty", path)
	}

	stamp, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed marker file %s: %w", path, err)
	}
	return stamp, nil
}

// FormatStamp renders t the way Mark stores it. Sub-millisecond digits are
// truncated so a stamp never lies in the future.
func FormatStamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1e3, 'f', 3, 64)
}

// IsNoMark reports whether v is the sentinel returned for a missing mark.
func IsNoMark(v float64) bool {
	return v == NoMark
}
