package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	intconfig "github.com/leapstack-labs/leapcalc/internal/config"
)

//go:embed all:templates
var templateFS embed.FS

// copyTemplate copies an embedded template directory to the target path.
// It handles special file renames (e.g., "gitignore" -> ".gitignore").
func copyTemplate(templateName, targetDir string, force bool) error {
	root := path.Join("templates", templateName)

	return fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		targetPath := filepath.Join(targetDir, renameSpecialFiles(relPath))
		if d.IsDir() {
			return os.MkdirAll(targetPath, 0750)
		}

		if !force {
			if _, err := os.Stat(targetPath); err == nil {
				return nil // Skip existing files
			}
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(targetPath, content, 0600)
	})
}

// renameSpecialFiles handles files that need renaming (e.g., dotfiles).
func renameSpecialFiles(p string) string {
	base := filepath.Base(p)
	dir := filepath.Dir(p)

	switch base {
	case "gitignore":
		return filepath.Join(dir, ".gitignore")
	default:
		return p
	}
}

// listTemplateFiles returns all files in a template for display purposes.
func listTemplateFiles(templateName string) ([]string, error) {
	var files []string
	root := path.Join("templates", templateName)

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relPath, _ := filepath.Rel(root, p)
			files = append(files, renameSpecialFiles(relPath))
		}
		return nil
	})

	return files, err
}

func ptr(v float64) *float64 { return &v }

// templateConfig returns the project configuration written next to a
// template's engine.
func templateConfig(templateName, appName string) intconfig.Config {
	cfg := intconfig.Config{
		AppName:    appName,
		FileEnding: intconfig.DefaultFileEnding,
		Engine:     intconfig.EngineConfig{Script: intconfig.DefaultEngineScript},
		Sweep: intconfig.SweepConfig{
			OnFailContinue: true,
			DefaultSteps:   intconfig.DefaultSweepSteps,
		},
		Log: intconfig.LogConfig{
			Level:  intconfig.DefaultLogLevel,
			Format: intconfig.DefaultLogFormat,
		},
	}
	switch templateName {
	case "example":
		cfg.Units = []string{"mm", "cm", "m", "L", "m^3", "degC", "degF", "K", "W", "kW", "kWh", "MJ", "min", "h"}
		cfg.Parameters = []intconfig.ParameterItem{
			{Path: []string{"Tank", "diameter"}, UOM: "cm", Min: ptr(10), Max: ptr(200), Name: "Tank diameter"},
			{Path: []string{"Tank", "height"}, UOM: "cm", Min: ptr(20), Max: ptr(300), Name: "Tank height"},
			{Path: []string{"Insulation", "thickness"}, UOM: "mm", Min: ptr(0), Name: "Insulation thickness"},
			{Path: []string{"Insulation", "conductivity"}, UOM: "W/(m*K)", Min: ptr(0)},
			{Path: []string{"Operation", "T_inlet"}, UOM: "degC", Min: ptr(0), Max: ptr(40), Name: "Inlet temperature"},
			{Path: []string{"Operation", "T_set"}, UOM: "degC", Max: ptr(95), Name: "Set point"},
			{Path: []string{"Operation", "T_ambient"}, UOM: "degC"},
			{Path: []string{"Operation", "power"}, UOM: "kW", Min: ptr(0)},
		}
		cfg.Results = []intconfig.ResultItem{
			{Path: []string{"Tank", "volume"}, UOM: "L"},
			{Path: []string{"Energy", "heat_up_time"}, UOM: "min"},
			{Path: []string{"Energy", "standby_per_day"}, UOM: "kWh"},
		}
	default:
		cfg.Units = []string{"mm", "cm", "m", "cm^2", "m^2"}
		cfg.Parameters = []intconfig.ParameterItem{
			{Path: []string{"a"}, UOM: "cm", Min: ptr(0), Name: "Width"},
			{Path: []string{"b"}, UOM: "cm", Min: ptr(0), Name: "Height"},
		}
		cfg.Results = []intconfig.ResultItem{
			{Path: []string{"A"}, UOM: "cm^2", Name: "Area"},
			{Path: []string{"P"}, UOM: "cm", Name: "Perimeter"},
		}
	}
	return cfg
}

// writeConfig writes cfg as YAML to path.
func writeConfig(path string, cfg intconfig.Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	header := []byte("# leapcalc project configuration\n")
	return os.WriteFile(path, append(header, data...), 0600)
}
