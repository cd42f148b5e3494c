// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// reportMode keeps the credential report readable by the owning account
// only. The mode is applied to the temp file before the atomic rename,
// so the report is never visible with broader permissions.
const reportMode = 0o600

// WriteReport renders the credential report for a resolved deployment and
// writes it atomically to destinationPath. Re-running overwrites the prior
// report wholesale; old content is superseded, never merged.
func WriteReport(d *ResolvedDeployment, destinationPath string) error {
	if err := writeFileAtomic(destinationPath, RenderReport(d), reportMode); err != nil {
		return fmt.Errorf("writing credential report: %w", err)
	}
	return nil
}

// RenderReport builds the full report document in memory: host address,
// per-service ports and URLs, credentials with provenance, profile, and
// the run timestamp.
func RenderReport(d *ResolvedDeployment) []byte {
	var b strings.Builder

	fmt.Fprintln(&b, "=== QUICKAWS PROVISION SUMMARY ===")
	fmt.Fprintf(&b, "Profile:   %s\n", d.Profile)
	fmt.Fprintf(&b, "Run ID:    %s\n", d.RunID)
	fmt.Fprintf(&b, "Time:      %s\n", d.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Public IP: %s\n", d.Facts.PublicIP)
	fmt.Fprintf(&b, "Hostname:  %s\n", d.Facts.Hostname)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Services:")
	for _, svc := range d.Services {
		for _, p := range svc.Ports {
			fmt.Fprintf(&b, "  %-12s %-28s %s\n", svc.Name, serviceURL(d.Facts.PublicIP, p), svc.Image)
		}
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Credentials (store securely):")
	if len(d.Secrets) == 0 {
		fmt.Fprintln(&b, "  none for this profile")
	} else {
		for _, name := range sortedSecretNames(d.Secrets) {
			sec := d.Secrets[name]
			fmt.Fprintf(&b, "  %s/%s = %s  (%s)\n", sec.Service, sec.Name, sec.Value, sec.Provenance)
		}
	}

	if len(d.RemovedServices) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "No longer part of this profile (stop and remove via the orchestration layer):")
		for _, name := range d.RemovedServices {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Notes:")
	fmt.Fprintf(&b, " - This file is mode 0600. Retrieve it over SSH (scp) only;\n")
	fmt.Fprintf(&b, "   never serve it from the provisioned services.\n")

	return []byte(b.String())
}

func serviceURL(publicIP string, p ResolvedPort) string {
	host := publicIP
	if host == "" || host == unknownValue {
		host = "<public-ip>"
	}
	switch p.Container {
	case 80, 8080, 3000, 8000:
		return fmt.Sprintf("http://%s:%d", host, p.Host)
	default:
		return fmt.Sprintf("%s:%d", host, p.Host)
	}
}

func sortedSecretNames(secrets map[string]Secret) []string {
	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
