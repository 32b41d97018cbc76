// Package scaffold writes a starter h2o.yml.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/h2o/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ExistsError is returned when the config file is already present and force
// was not requested.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}

// ConfigPath returns where Initialize writes the config for dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, config.DefaultPath)
}

// CheckExisting returns *ExistsError if dir already holds a config file.
func CheckExisting(dir string) error {
	path := ConfigPath(dir)
	if _, err := os.Stat(path); err == nil {
		return &ExistsError{Path: path}
	}
	return nil
}

// Initialize writes the config template into dir and returns its path. An
// existing file is overwritten only when force is set.
func Initialize(dir string, force bool) (string, error) {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return "", err
		}
	}

	content, err := templatesFS.ReadFile("templates/h2o.yml.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to read h2o.yml template: %w", err)
	}

	path := ConfigPath(dir)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template has to load with the same rules a run applies.
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", path, err)
	}

	return path, nil
}
