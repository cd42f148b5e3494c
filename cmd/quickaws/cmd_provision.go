// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quickaws/quickaws/cmd/quickaws/config"
	"github.com/quickaws/quickaws/cmd/quickaws/internal/provision"
	"github.com/quickaws/quickaws/pkg/logging"
	"github.com/quickaws/quickaws/pkg/ux"
)

func runProvision(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  config.Global.Logging.Dir,
		Service: "quickaws",
	})
	defer logger.Close()

	profile, err := resolveProfile(args)
	if err != nil {
		return err
	}

	dir := stateDir
	if dir == "" {
		dir = config.Global.StateDir
	}

	engine, err := provision.NewEngine(provision.Options{
		StateDir: dir,
		Logger:   logger.Slog(),
		Policies: provision.PolicyDefaults{
			PasswordLength:   config.Global.Secrets.PasswordLength,
			IdentifierLength: config.Global.Secrets.IdentifierLength,
		},
	})
	if err != nil {
		return err
	}

	deployment, err := engine.Run(cmd.Context(), profile)
	if err != nil {
		return err
	}

	printSummary(deployment, dir)
	return nil
}

// resolveProfile picks the profile in precedence order: positional
// argument or --profile flag, then the PROFILE environment variable,
// then an interactive menu. Bootstrap scripts (cloud-init, CI) set
// PROFILE or NONINTERACTIVE and never see a prompt.
func resolveProfile(args []string) (provision.Profile, error) {
	name := profileName
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		name = os.Getenv("PROFILE")
	}
	if name != "" {
		return provision.ParseProfile(name)
	}

	if noPrompt() {
		return "", fmt.Errorf("%w: pass --profile or set PROFILE", provision.ErrMissingProfile)
	}

	choices := make([]ux.Choice, 0, len(provision.Profiles()))
	for _, p := range provision.Profiles() {
		choices = append(choices, ux.Choice{
			Value:       string(p),
			Label:       string(p),
			Description: p.Description(),
		})
	}
	selected, err := ux.SelectOne("Select a server profile", choices)
	if err != nil {
		if errors.Is(err, ux.ErrNoTerminal) {
			return "", fmt.Errorf("%w: no terminal for the profile menu; pass --profile or set PROFILE", provision.ErrMissingProfile)
		}
		return "", err
	}
	return provision.ParseProfile(selected)
}

func noPrompt() bool {
	if nonInteractive {
		return true
	}
	switch os.Getenv("NONINTERACTIVE") {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

func printSummary(d *provision.ResolvedDeployment, dir string) {
	ux.Title("Provision complete")
	ux.KeyValue("Profile", string(d.Profile))
	ux.KeyValue("Run ID", d.RunID)
	ux.KeyValue("Public IP", d.Facts.PublicIP)
	ux.KeyValue("Services", fmt.Sprintf("%d", len(d.Services)))
	for _, svc := range d.Services {
		for _, p := range svc.Ports {
			ux.Info(fmt.Sprintf("%s %s  host port %d -> container %d", ux.IconArrow, svc.Name, p.Host, p.Container))
		}
	}
	if len(d.RemovedServices) > 0 {
		for _, name := range d.RemovedServices {
			ux.Warning(fmt.Sprintf("%s is no longer part of this profile; stop and remove it", name))
		}
	}
	if len(d.Secrets) > 0 {
		ux.Success(fmt.Sprintf("%d credential(s) written to %s",
			len(d.Secrets), filepath.Join(dir, provision.ReportFileName)))
		ux.Muted("Retrieve the report over SSH; it is readable by the owner only.")
	}
	ux.Success(fmt.Sprintf("manifest written to %s", filepath.Join(dir, provision.ManifestFileName)))
	ux.Info(fmt.Sprintf("start the stack with: docker compose -f %s up -d", filepath.Join(dir, provision.ManifestFileName)))
}
