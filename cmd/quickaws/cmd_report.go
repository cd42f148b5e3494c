// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quickaws/quickaws/cmd/quickaws/config"
	"github.com/quickaws/quickaws/cmd/quickaws/internal/provision"
)

func runReport(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	dir := stateDir
	if dir == "" {
		dir = config.Global.StateDir
	}

	path := filepath.Join(dir, provision.ReportFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("no report at %s; run `quickaws provision` first", path)
	}
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}

	text := string(data)
	if !showSecrets {
		text = maskCredentials(text)
	}
	fmt.Print(text)
	if !showSecrets {
		fmt.Fprintln(os.Stderr, "(credential values masked; use --show-secrets to print them)")
	}
	return nil
}

// maskCredentials hides the value part of "service/NAME = value" lines so
// the report can be shown on a shared screen without exposing passwords.
func maskCredentials(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(line, "  ") || !strings.Contains(trimmed, " = ") {
			continue
		}
		head, _, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		lines[i] = head + " = ********"
	}
	return strings.Join(lines, "\n")
}
