package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/petstudy/internal/runner"
	"github.com/cwbudde/petstudy/internal/store"
	"github.com/cwbudde/petstudy/internal/study"
	"github.com/cwbudde/petstudy/internal/timing"
)

// useDataDir points the data-dir flag at dir for the duration of the test.
func useDataDir(t *testing.T, dir string) {
	t.Helper()
	f := rootCmd.PersistentFlags().Lookup("data-dir")
	old := f.Value.String()
	if err := f.Value.Set(dir); err != nil {
		t.Fatalf("Failed to set data-dir: %v", err)
	}
	f.Changed = true
	t.Cleanup(func() {
		f.Value.Set(old)
		f.Changed = false
	})
}

// recordRun runs a built-in study into st.
func recordRun(t *testing.T, st store.Store, name, id string) *store.RunInfo {
	t.Helper()
	s, err := study.Builtin(name)
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	info, err := runner.Run(context.Background(), st, s, runner.Options{
		RunID: id,
		Build: study.Options{TimingPath: filepath.Join(t.TempDir(), timing.DefaultPath)},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return info
}

func TestOpenStore_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PETSTUDY_DATA_DIR", dir)

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	if got := st.RunDir("x"); got != filepath.Join(dir, "runs", "x") {
		t.Errorf("Store not rooted at env data dir: %s", got)
	}
}

func TestOpenStore_FlagBeatsEnv(t *testing.T) {
	flagDir := t.TempDir()
	t.Setenv("PETSTUDY_DATA_DIR", t.TempDir())
	useDataDir(t, flagDir)

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	if got := st.RunDir("x"); got != filepath.Join(flagDir, "runs", "x") {
		t.Errorf("Store not rooted at flag data dir: %s", got)
	}
}

func TestInitConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "petstudy.yaml")
	want := filepath.Join(dir, "data")
	if err := os.WriteFile(path, []byte("data-dir: "+want+"\nlog-level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfgFile = path
	t.Cleanup(func() {
		cfgFile = ""
		cfg.SetConfigType("yaml")
		cfg.ReadConfig(bytes.NewReader(nil))
	})

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig failed: %v", err)
	}
	if got := cfg.GetString("data-dir"); got != want {
		t.Errorf("data-dir = %q, want %q", got, want)
	}
	if got := cfg.GetString("log-level"); got != "debug" {
		t.Errorf("log-level = %q, want debug", got)
	}
}

func TestInitConfig_Missing(t *testing.T) {
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { cfgFile = "" })

	if err := initConfig(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestRunStudy(t *testing.T) {
	dir := t.TempDir()
	useDataDir(t, dir)

	timingFile = filepath.Join(dir, timing.DefaultPath)
	runID = "parabola"
	noPrint = true
	t.Cleanup(func() {
		timingFile, runID, noPrint = "", "", false
	})

	if err := runStudy(nil, []string{"constants-parabola"}); err != nil {
		t.Fatalf("runStudy failed: %v", err)
	}

	st, err := openStore()
	if err != nil {
		t.Fatal(err)
	}
	info, err := st.LoadRun("parabola")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if info.State != store.RunCompleted || info.Cases == 0 {
		t.Errorf("Unexpected run %+v", info)
	}
}

func TestRunStudy_File(t *testing.T) {
	dir := t.TempDir()
	useDataDir(t, dir)

	path := filepath.Join(dir, "study.yaml")
	doc := `name: custom
problem:
  components:
    - {name: P, type: paraboloid}
    - name: in
      type: indep
      outputs: [{name: x, value: 3}, {name: y, value: -4}]
  connections:
    - {src: in.x, tgt: P.x}
    - {src: in.y, tgt: P.y}
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	runID = "custom"
	t.Cleanup(func() { runID = "" })

	if err := runStudy(nil, []string{path}); err != nil {
		t.Fatalf("runStudy failed: %v", err)
	}

	st, _ := openStore()
	var buf bytes.Buffer
	if err := printRunCases(context.Background(), &buf, st, "custom"); err != nil {
		t.Fatalf("printRunCases failed: %v", err)
	}
	if !strings.Contains(buf.String(), "P.f_xy: -15") {
		t.Errorf("Expected f_xy of -15 in output:\n%s", buf.String())
	}
}

func TestRunStudy_Unknown(t *testing.T) {
	useDataDir(t, t.TempDir())

	if err := runStudy(nil, []string{"no-such-study"}); err == nil {
		t.Error("Expected error for unknown study")
	}
}

func TestPrintCases(t *testing.T) {
	cases := []store.Case{
		{
			Iteration: 1,
			Unknowns:  map[string]float64{"p.f_xy": -15, "p1.x": 3},
			Params:    map[string]float64{"p.y": -4, "p.x": 3},
			Success:   true,
		},
		{
			Iteration: 2,
			Unknowns:  map[string]float64{},
			Msg:       "boom",
		},
	}

	var buf bytes.Buffer
	printCases(&buf, cases)

	want := "\n{p.f_xy: -15, p1.x: 3}\n{p.x: 3, p.y: -4}\n\n{}\n{}\nfailed: boom\n"
	if buf.String() != want {
		t.Errorf("printCases output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestFormatValues(t *testing.T) {
	tests := []struct {
		in   map[string]float64
		want string
	}{
		{nil, "{}"},
		{map[string]float64{"a": 0.5}, "{a: 0.5}"},
		{map[string]float64{"b": -1, "a": 1e-7}, "{a: 1e-07, b: -1}"},
	}
	for _, tt := range tests {
		if got := formatValues(tt.in); got != tt.want {
			t.Errorf("formatValues(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMarkAndElapsed(t *testing.T) {
	markFile = filepath.Join(t.TempDir(), "time.txt")
	t.Cleanup(func() { markFile = timing.DefaultPath })

	// No mark yet prints the sentinel without failing.
	if err := elapsedCmd.RunE(elapsedCmd, nil); err != nil {
		t.Fatalf("elapsed without mark failed: %v", err)
	}

	if err := markCmd.RunE(markCmd, nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := timing.Read(markFile); err != nil {
		t.Errorf("mark did not write a readable stamp: %v", err)
	}
	if err := elapsedCmd.RunE(elapsedCmd, nil); err != nil {
		t.Errorf("elapsed failed: %v", err)
	}
}

func TestListStudies(t *testing.T) {
	if err := runListStudies(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}
