package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"gopkg.in/yaml.v3"
)

// LoadRunConfig reads a run configuration from a .json, .yaml or .yml file.
// Fields missing from the file keep the values of DefaultRunConfig.
func LoadRunConfig(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorCategoryConfiguration, "run_config", "ReadFile").
			WithContext("path", path)
	}

	cfg := DefaultRunConfig()
	if err := decode(path, raw, cfg); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorCategoryConfiguration, "run_config", "Decode").
			WithContext("path", path)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects keys that do not map to a field, so a misspelled setting
// fails instead of leaving its default in place.
func decode(path string, raw []byte, cfg *RunConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// SaveRunConfig writes cfg next to the reports so a run can be repeated.
func SaveRunConfig(cfg *RunConfig, path string) error {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		out, err = yaml.Marshal(cfg)
	default:
		out, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorCategoryConfiguration, "run_config", "Encode")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pipeerrors.NewPersistenceError("run_config", "MkdirAll", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return pipeerrors.NewPersistenceError("run_config", "WriteFile", err).WithContext("path", path)
	}
	return nil
}
