// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/quickaws/quickaws/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	profileName    string
	stateDir       string
	nonInteractive bool
	showSecrets    bool

	rootCmd = &cobra.Command{
		Use:   "quickaws",
		Short: "A cli to provision single-host docker-compose deployments",
		Long: `quickaws turns a profile selection (static, php, node, django, mail)
into a ready-to-run docker-compose manifest with generated credentials
and a protected summary report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if nonInteractive {
				ux.SetPlain(true)
			}
		},
	}

	provisionCmd = &cobra.Command{
		Use:   "provision [profile]",
		Short: "Generate the manifest, credentials, and report for a profile",
		Long: `provision resolves the chosen profile into a service topology,
generates or preserves credentials, assigns host ports, and writes
docker-compose.yml, .env, and README_SECURE.txt into the state directory.
Re-running with the same profile preserves credentials and ports.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProvision, // Defined in cmd_provision.go
	}

	profilesCmd = &cobra.Command{
		Use:   "profiles",
		Short: "List the available server profiles",
		Run:   runProfiles, // Defined in cmd_profiles.go
	}

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Print the credential report from the last provisioning run",
		RunE:  runReport, // Defined in cmd_report.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&stateDir, "dir", "",
		"State directory for manifests and credentials (default: from config)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false,
		"Never prompt; fail instead of asking (also via NONINTERACTIVE=1)")

	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().StringVar(&profileName, "profile", "",
		"Server profile to provision (also via PROFILE env)")

	rootCmd.AddCommand(profilesCmd)

	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().BoolVar(&showSecrets, "show-secrets", false,
		"Print the report including credential values")
}
