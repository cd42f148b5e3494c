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
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ComposeMeta is the x-quickaws extension block stamped into every
// manifest. The reconciler reads it back on the next run to learn which
// profile produced the prior state.
type ComposeMeta struct {
	Profile     string `yaml:"profile"`
	RunID       string `yaml:"run_id"`
	GeneratedAt string `yaml:"generated_at"`
}

// ComposeService is one service entry of the orchestration manifest.
type ComposeService struct {
	Image       string            `yaml:"image"`
	Restart     string            `yaml:"restart"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

// ComposeFile is the declarative document handed to the orchestration
// layer: services, images, environment, port mappings, volumes, and
// startup-order dependencies. One document per run, overwritten on every
// run.
type ComposeFile struct {
	Services map[string]ComposeService `yaml:"services"`
	Volumes  map[string]*struct{}      `yaml:"volumes,omitempty"`
	Meta     ComposeMeta               `yaml:"x-quickaws"`
}

// BuildManifest projects a ResolvedDeployment into its compose document.
// Secret-valued environment entries keep their ${NAME} references; the
// values travel in the .env companion file.
func BuildManifest(d *ResolvedDeployment) *ComposeFile {
	cf := &ComposeFile{
		Services: make(map[string]ComposeService, len(d.Services)),
		Meta: ComposeMeta{
			Profile:     string(d.Profile),
			RunID:       d.RunID,
			GeneratedAt: d.GeneratedAt.UTC().Format(time.RFC3339),
		},
	}

	for _, svc := range d.Services {
		cs := ComposeService{
			Image:     svc.Image,
			Restart:   "unless-stopped",
			DependsOn: append([]string(nil), svc.DependsOn...),
		}
		for _, p := range svc.Ports {
			cs.Ports = append(cs.Ports, fmt.Sprintf("%d:%d", p.Host, p.Container))
		}
		if len(svc.Env) > 0 {
			cs.Environment = make(map[string]string, len(svc.Env))
			for k, v := range svc.Env {
				cs.Environment[k] = v
			}
		}
		for _, v := range svc.Volumes {
			cs.Volumes = append(cs.Volumes, v.composeString())
			if v.Named {
				if cf.Volumes == nil {
					cf.Volumes = make(map[string]*struct{})
				}
				cf.Volumes[v.Source] = nil
			}
		}
		cf.Services[svc.Name] = cs
	}
	return cf
}

// RenderManifest serializes the deployment's compose document to YAML.
func RenderManifest(d *ResolvedDeployment) ([]byte, error) {
	data, err := yaml.Marshal(BuildManifest(d))
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	return data, nil
}

// ParseManifest decodes a previously written manifest.
func ParseManifest(data []byte) (*ComposeFile, error) {
	var cf ComposeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(cf.Services) == 0 {
		return nil, fmt.Errorf("parsing manifest: no services")
	}
	return &cf, nil
}

// HostPorts extracts the concrete port assignments from a manifest:
// service name -> container port -> host port. Malformed entries are
// skipped; losing a prior assignment only costs determinism, not
// correctness, since first-fit will re-derive the same port.
func (cf *ComposeFile) HostPorts() map[string]map[int]int {
	out := make(map[string]map[int]int, len(cf.Services))
	for name, svc := range cf.Services {
		for _, mapping := range svc.Ports {
			host, container, ok := splitPortMapping(mapping)
			if !ok {
				continue
			}
			if out[name] == nil {
				out[name] = make(map[int]int)
			}
			out[name][container] = host
		}
	}
	return out
}

// ServiceNames returns the manifest's service names, sorted.
func (cf *ComposeFile) ServiceNames() []string {
	names := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func splitPortMapping(s string) (host, container int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	c, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return h, c, true
}

// RenderEnvFile serializes the deployment's secret map as NAME=value
// lines, sorted by name. This is the only artifact besides the report
// that carries secret values, and it is written with mode 0600.
func RenderEnvFile(secrets map[string]Secret) []byte {
	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(secrets[name].Value)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ParseEnvFile reads NAME=value lines, ignoring blanks and # comments.
func ParseEnvFile(data []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || k == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// writeFileAtomic writes data to a temporary file in path's directory,
// applies perm, and renames into place. The destination is either the old
// content or the new content, never a truncated mix, and is never visible
// with permissions broader than perm.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".quickaws-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmpPath, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s into place: %w", tmpPath, err)
	}
	cleanup = false
	return nil
}
