package study

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Info names a built-in study.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Driver      string `json:"driver"`
}

// Builtin returns the embedded study called name.
func Builtin(name string) (*Study, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid study name %q", name)
	}
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("no built-in study %q", name)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("built-in study %s: %w", name, err)
	}
	return s, nil
}

// Builtins lists the embedded studies sorted by name.
func Builtins() ([]Info, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".yaml")
		if !ok {
			continue
		}
		s, err := Builtin(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{Name: s.Name, Description: s.Description, Driver: s.DriverName()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
