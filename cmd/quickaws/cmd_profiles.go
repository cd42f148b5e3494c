// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickaws/quickaws/cmd/quickaws/internal/provision"
	"github.com/quickaws/quickaws/pkg/ux"
)

func runProfiles(cmd *cobra.Command, args []string) {
	ux.Title("Available profiles")
	for _, p := range provision.Profiles() {
		if ux.Plain() {
			fmt.Printf("%s\t%s\n", p, p.Description())
			continue
		}
		ux.KeyValue(string(p), p.Description())
	}
}
