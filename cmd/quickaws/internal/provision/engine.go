// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// # Description
// Engine runs one complete provision: acquire the state-dir lock, load
// prior state, reconcile, synthesize, and emit the three artifacts.
//
// # Inputs
// A profile name plus Options (state directory, facts source, logger).
//
// # Outputs
// docker-compose.yml, .env (0600), and README_SECURE.txt (0600) in the
// state directory, and the ResolvedDeployment for display.

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	manifestMode = 0o644
	envFileMode  = 0o600
	stateDirMode = 0o755
)

// Options configures an Engine. Zero-value fields get working defaults
// except StateDir, which is required.
type Options struct {
	// StateDir is where artifacts and the lock live.
	StateDir string

	// Facts supplies host facts; defaults to metadata detection.
	Facts FactsSource

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Policies override the built-in secret length defaults.
	Policies PolicyDefaults

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time

	// NewRunID is overridable for tests; defaults to a random UUID.
	NewRunID func() string
}

// Engine orchestrates the provision pipeline. All decision logic lives
// in the pure stages (Reconcile, Synthesize); the engine only sequences
// them and owns the filesystem side effects.
type Engine struct {
	stateDir string
	registry *Registry
	facts    FactsSource
	logger   *slog.Logger
	clock    func() time.Time
	newRunID func() string
}

// NewEngine validates options and builds the profile registry.
func NewEngine(opts Options) (*Engine, error) {
	if opts.StateDir == "" {
		return nil, errors.New("state directory is required")
	}
	if opts.Policies == (PolicyDefaults{}) {
		opts.Policies = DefaultPolicyDefaults()
	}
	registry, err := NewRegistry(opts.Policies)
	if err != nil {
		return nil, err
	}
	if opts.Facts == nil {
		opts.Facts = NewMetadataFactsSource()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	return &Engine{
		stateDir: opts.StateDir,
		registry: registry,
		facts:    opts.Facts,
		logger:   opts.Logger,
		clock:    opts.Clock,
		newRunID: opts.NewRunID,
	}, nil
}

// Profiles lists the profiles the engine can provision.
func (e *Engine) Profiles() []Profile {
	return Profiles()
}

// Run provisions the given profile into the state directory and returns
// the resolved deployment. The whole run holds an exclusive advisory
// lock on the state directory; a second concurrent invocation fails
// fast with ErrConcurrentRun.
//
// Artifacts are written .env first, then the manifest, then the report,
// each atomically. A crash mid-run leaves every prior artifact intact.
func (e *Engine) Run(ctx context.Context, profile Profile) (*ResolvedDeployment, error) {
	topology, err := e.registry.ResolveTopology(profile)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.stateDir, stateDirMode); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock := NewFileLock(e.stateDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	prior, err := LoadPriorState(e.stateDir)
	if err != nil {
		if !errors.Is(err, ErrPriorStateUnreadable) {
			return nil, err
		}
		e.logger.Warn("prior state unreadable, provisioning from scratch",
			"state_dir", e.stateDir, "error", err)
		prior = nil
	}

	plan := Reconcile(profile, topology, prior)
	switch {
	case plan.FreshInstall:
		e.logger.Info("fresh install", "profile", profile)
	case plan.ProfileSwitch:
		e.logger.Info("profile switch", "from", prior.Profile, "to", profile,
			"removed_services", plan.RemovedServices)
	default:
		e.logger.Info("updating existing deployment", "profile", profile)
	}

	deployment, err := Synthesize(SynthesisInputs{
		Topology: topology,
		Plan:     plan,
		Facts:    e.facts.Facts(ctx),
		RunID:    e.newRunID(),
		Now:      e.clock().UTC(),
	}, NewGenerator())
	if err != nil {
		return nil, err
	}

	if err := e.writeArtifacts(deployment); err != nil {
		return nil, err
	}

	e.logger.Info("provision complete",
		"profile", deployment.Profile,
		"run_id", deployment.RunID,
		"services", len(deployment.Services),
		"secrets", len(deployment.Secrets))
	return deployment, nil
}

func (e *Engine) writeArtifacts(d *ResolvedDeployment) error {
	// The .env lands before the manifest so a manifest on disk never
	// references a secret that does not exist yet.
	envPath := filepath.Join(e.stateDir, EnvFileName)
	if err := writeFileAtomic(envPath, RenderEnvFile(d.Secrets), envFileMode); err != nil {
		return fmt.Errorf("write %s: %w", EnvFileName, err)
	}

	manifest, err := RenderManifest(d)
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(e.stateDir, ManifestFileName)
	if err := writeFileAtomic(manifestPath, manifest, manifestMode); err != nil {
		return fmt.Errorf("write %s: %w", ManifestFileName, err)
	}

	reportPath := filepath.Join(e.stateDir, ReportFileName)
	if err := WriteReport(d, reportPath); err != nil {
		return fmt.Errorf("write %s: %w", ReportFileName, err)
	}
	return nil
}

// ReportPath returns where the engine writes the credential report.
func (e *Engine) ReportPath() string {
	return filepath.Join(e.stateDir, ReportFileName)
}
