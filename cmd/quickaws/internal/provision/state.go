// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"fmt"
	"os"
	"path/filepath"
)

// PriorState is the read-only snapshot of the artifacts an earlier run
// left in the state directory. It is never mutated; the new run's
// artifacts supersede it atomically.
type PriorState struct {
	// Profile the prior manifest was generated for.
	Profile Profile

	// Services deployed by the prior run, sorted.
	Services []string

	// Ports maps service name -> container port -> host port.
	Ports map[string]map[int]int

	// Secrets maps environment variable name -> prior value, as read
	// from the prior .env file.
	Secrets map[string]string
}

// LoadPriorState reads the prior manifest and .env file from the state
// directory.
//
// Returns (nil, nil) when no prior manifest exists: a fresh install.
// Returns ErrPriorStateUnreadable when artifacts exist but cannot be
// parsed, or when the recorded profile is not part of the current
// enumeration; callers treat that as fresh and supersede the corrupt
// artifacts. Other errors are real I/O failures.
func LoadPriorState(stateDir string) (*PriorState, error) {
	manifestPath := filepath.Join(stateDir, ManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading prior manifest: %w", err)
	}

	cf, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriorStateUnreadable, err)
	}
	profile, err := ParseProfile(cf.Meta.Profile)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest records profile %q", ErrPriorStateUnreadable, cf.Meta.Profile)
	}

	prior := &PriorState{
		Profile:  profile,
		Services: cf.ServiceNames(),
		Ports:    cf.HostPorts(),
		Secrets:  make(map[string]string),
	}

	// The .env companion may legitimately be absent (profiles without
	// secrets); any other read failure is I/O.
	envData, err := os.ReadFile(filepath.Join(stateDir, EnvFileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading prior env file: %w", err)
	}
	if err == nil {
		prior.Secrets = ParseEnvFile(envData)
	}

	return prior, nil
}
