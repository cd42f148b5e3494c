// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

type QuickAWSConfig struct {
	// StateDir is where manifests, secrets, and reports land.
	StateDir string `yaml:"state_dir" validate:"required"`

	// Secrets: length policies for generated credentials
	Secrets SecretsConfig `yaml:"secrets"`

	// Logging controls the structured log output
	Logging LoggingConfig `yaml:"logging"`
}

type SecretsConfig struct {
	// PasswordLength applies to password-class secrets (MySQL root, etc.)
	PasswordLength int `yaml:"password_length" validate:"gte=16,lte=128"`

	// IdentifierLength applies to identifier-class secrets (DB usernames)
	IdentifierLength int `yaml:"identifier_length" validate:"gte=16,lte=64"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables JSON file logging when set; supports ~ expansion
	Dir string `yaml:"dir,omitempty"`
}

func DefaultConfig() QuickAWSConfig {
	return QuickAWSConfig{
		StateDir: "/opt/quickaws",
		Secrets: SecretsConfig{
			PasswordLength:   18,
			IdentifierLength: 16,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
