// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global QuickAWSConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable. The first
// run creates ~/.quickaws/quickaws.yaml with defaults.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".quickaws", "quickaws.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	cfg, err := LoadFile(configPath)
	if err != nil {
		return err
	}
	Global = cfg
	return nil
}

// LoadFile reads and validates a config file. Exposed separately from the
// singleton so tests and --config runs don't fight over Global.
func LoadFile(path string) (QuickAWSConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QuickAWSConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	// Unmarshal over the defaults so omitted keys keep working values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return QuickAWSConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return QuickAWSConfig{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags; a config that fails validation never
// reaches the engine.
func Validate(cfg QuickAWSConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
