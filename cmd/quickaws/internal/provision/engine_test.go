// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, stateDir string) *Engine {
	t.Helper()
	runSeq := 0
	engine, err := NewEngine(Options{
		StateDir: stateDir,
		Facts:    StaticFactsSource{F: testFacts},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		NewRunID: func() string { runSeq++; return "run-" + string(rune('0'+runSeq)) },
	})
	require.NoError(t, err)
	return engine
}

func TestNewEngine_RequiresStateDir(t *testing.T) {
	_, err := NewEngine(Options{})
	require.Error(t, err)
}

func TestEngine_FreshProvision(t *testing.T) {
	dir := t.TempDir()
	engine := newTestEngine(t, dir)

	d, err := engine.Run(context.Background(), ProfilePHP)
	require.NoError(t, err)
	require.Len(t, d.Services, 4)
	require.Len(t, d.Secrets, 2)

	t.Run("all three artifacts exist", func(t *testing.T) {
		for _, name := range []string{ManifestFileName, EnvFileName, ReportFileName} {
			_, err := os.Stat(filepath.Join(dir, name))
			require.NoError(t, err, name)
		}
	})

	t.Run("env and report are owner-only", func(t *testing.T) {
		for _, name := range []string{EnvFileName, ReportFileName} {
			info, err := os.Stat(filepath.Join(dir, name))
			require.NoError(t, err)
			require.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
		}
	})

	t.Run("lock released after the run", func(t *testing.T) {
		lock := NewFileLock(dir)
		require.NoError(t, lock.Acquire())
		lock.Release()
	})

	t.Run("env matches manifest references", func(t *testing.T) {
		envData, err := os.ReadFile(filepath.Join(dir, EnvFileName))
		require.NoError(t, err)
		env := ParseEnvFile(envData)
		require.Contains(t, env, "MYSQL_ROOT_PASSWORD")
		require.Contains(t, env, "MYSQL_PASSWORD")

		manifestData, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
		require.NoError(t, err)
		require.NotContains(t, string(manifestData), env["MYSQL_ROOT_PASSWORD"])
	})
}

func TestEngine_RerunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	engine := newTestEngine(t, dir)
	ctx := context.Background()

	first, err := engine.Run(ctx, ProfilePHP)
	require.NoError(t, err)

	second, err := engine.Run(ctx, ProfilePHP)
	require.NoError(t, err)

	for name, sec := range first.Secrets {
		require.Equal(t, sec.Value, second.Secrets[name].Value, name)
		require.Equal(t, ProvenancePreserved, second.Secrets[name].Provenance, name)
	}
	for i := range first.Services {
		require.Equal(t, first.Services[i].Ports, second.Services[i].Ports,
			first.Services[i].Name)
	}
	require.NotEqual(t, first.RunID, second.RunID)
}

func TestEngine_ProfileSwitch(t *testing.T) {
	dir := t.TempDir()
	engine := newTestEngine(t, dir)
	ctx := context.Background()

	php, err := engine.Run(ctx, ProfilePHP)
	require.NoError(t, err)

	static, err := engine.Run(ctx, ProfileStatic)
	require.NoError(t, err)
	require.Equal(t, []string{"admin-ui", "database", "php-runtime"}, static.RemovedServices)
	require.Empty(t, static.Secrets)

	t.Run("env file superseded", func(t *testing.T) {
		envData, err := os.ReadFile(filepath.Join(dir, EnvFileName))
		require.NoError(t, err)
		require.Empty(t, ParseEnvFile(envData))
	})

	t.Run("switching back regenerates credentials", func(t *testing.T) {
		phpAgain, err := engine.Run(ctx, ProfilePHP)
		require.NoError(t, err)
		for name, sec := range phpAgain.Secrets {
			require.Equal(t, ProvenanceGenerated, sec.Provenance, name)
			require.NotEqual(t, php.Secrets[name].Value, sec.Value, name)
		}
	})
}

func TestEngine_UnknownProfile(t *testing.T) {
	engine := newTestEngine(t, t.TempDir())
	_, err := engine.Run(context.Background(), Profile("wordpress"))
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestEngine_ConcurrentRunRejected(t *testing.T) {
	dir := t.TempDir()
	engine := newTestEngine(t, dir)

	other := NewFileLock(dir)
	require.NoError(t, other.Acquire())
	defer other.Release()

	_, err := engine.Run(context.Background(), ProfilePHP)
	require.ErrorIs(t, err, ErrConcurrentRun)
	require.Equal(t, ExitConcurrentRun, ExitCodeFor(err))

	// Nothing must be written while the lock is contended.
	for _, name := range []string{ManifestFileName, EnvFileName, ReportFileName} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		require.True(t, os.IsNotExist(statErr), name)
	}
}

func TestEngine_CorruptPriorStateProvisionsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("{{{not yaml"), 0o644))

	var logBuf strings.Builder
	engine, err := NewEngine(Options{
		StateDir: dir,
		Facts:    StaticFactsSource{F: testFacts},
		Logger:   slog.New(slog.NewTextHandler(&logBuf, nil)),
	})
	require.NoError(t, err)

	d, err := engine.Run(context.Background(), ProfilePHP)
	require.NoError(t, err)
	require.Len(t, d.Secrets, 2)
	require.Contains(t, logBuf.String(), "prior state unreadable")

	// The corrupt manifest has been superseded by a parseable one.
	prior, err := LoadPriorState(dir)
	require.NoError(t, err)
	require.Equal(t, ProfilePHP, prior.Profile)
}

func TestEngine_CreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deploy", "quickaws")
	engine := newTestEngine(t, dir)

	_, err := engine.Run(context.Background(), ProfileStatic)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ManifestFileName))
	require.NoError(t, err)
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("anything"), ExitFailure},
		{ErrUnknownProfile, ExitUnknownProfile},
		{ErrMissingProfile, ExitMissingProfile},
		{ErrManifestInvalid, ExitManifestInvalid},
		{ErrConcurrentRun, ExitConcurrentRun},
		{ErrGenerationExhausted, ExitGenerationExhausted},
	}
	for _, tc := range cases {
		wrapped := tc.err
		if wrapped != nil {
			wrapped = errors.Join(errors.New("context"), tc.err)
		}
		if got := ExitCodeFor(wrapped); got != tc.want {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
