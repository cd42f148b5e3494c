// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"fmt"
	"time"
)

// SynthesisInputs is the explicit, immutable input set of one synthesis.
// Everything the resolved deployment depends on is here; nothing is read
// from ambient state.
type SynthesisInputs struct {
	Topology []ServiceSpec
	Plan     *Plan
	Facts    HostFacts
	RunID    string
	Now      time.Time
}

// Synthesize combines topology, resolution plan, and host facts into a
// ResolvedDeployment: secrets resolved per the plan, host ports assigned
// deterministically (prior assignments preserved, fresh ones first-fit
// from each port's fixed range), and non-secret environment values filled.
//
// The result is validated as the last gate before anything is written to
// disk; validation failure is ErrManifestInvalid and indicates a bug, not
// an operator mistake.
func Synthesize(in SynthesisInputs, gen *Generator) (*ResolvedDeployment, error) {
	d := &ResolvedDeployment{
		Profile:         in.Plan.Profile,
		RunID:           in.RunID,
		GeneratedAt:     in.Now,
		Facts:           in.Facts,
		Secrets:         make(map[string]Secret),
		RemovedServices: append([]string(nil), in.Plan.RemovedServices...),
	}

	if err := resolveSecrets(d, in.Plan, gen); err != nil {
		return nil, err
	}

	ports, err := assignHostPorts(in.Topology, in.Plan.PriorPorts)
	if err != nil {
		return nil, err
	}

	for _, spec := range in.Topology {
		svc := ResolvedService{
			Name:      spec.Name,
			Image:     imageFor(spec, in.Facts),
			DependsOn: append([]string(nil), spec.DependsOn...),
			Volumes:   append([]VolumeSpec(nil), spec.Volumes...),
		}
		for _, p := range spec.Ports {
			svc.Ports = append(svc.Ports, ResolvedPort{Container: p.Container, Host: ports[spec.Name][p.Container]})
		}
		if len(spec.Env) > 0 {
			svc.Env = make(map[string]string, len(spec.Env))
			for _, e := range spec.Env {
				v, err := resolveEnv(e, in.Topology)
				if err != nil {
					return nil, err
				}
				svc.Env[e.Name] = v
			}
		}
		d.Services = append(d.Services, svc)
	}

	if err := validateDeployment(in.Topology, d); err != nil {
		return nil, err
	}
	return d, nil
}

func resolveSecrets(d *ResolvedDeployment, plan *Plan, gen *Generator) error {
	for _, dec := range plan.Decisions {
		sec := Secret{
			Name:    dec.Name,
			Service: dec.Service,
			Policy:  dec.Policy,
		}
		switch dec.Action {
		case ActionPreserve:
			sec.Value = dec.PriorValue
			sec.Provenance = ProvenancePreserved
		default:
			value, err := gen.Generate(dec.Policy)
			if err != nil {
				return fmt.Errorf("generating %s for service %q: %w", dec.Name, dec.Service, err)
			}
			sec.Value = value
			sec.Provenance = ProvenanceGenerated
		}
		d.Secrets[sec.Name] = sec
	}
	return nil
}

// assignHostPorts maps every exposed port to a concrete host port.
// Prior assignments are claimed first so an update never moves a port an
// operator has already opened; remaining ports get the lowest free port
// of their fixed range, which is stable across re-runs by construction.
func assignHostPorts(topology []ServiceSpec, prior map[string]map[int]int) (map[string]map[int]int, error) {
	assigned := make(map[string]map[int]int, len(topology))
	used := make(map[int]struct{})

	claim := func(service string, container, host int) {
		if assigned[service] == nil {
			assigned[service] = make(map[int]int)
		}
		assigned[service][container] = host
		used[host] = struct{}{}
	}

	for _, svc := range topology {
		for _, p := range svc.Ports {
			host, ok := prior[svc.Name][p.Container]
			if !ok {
				continue
			}
			if _, taken := used[host]; taken {
				// Two prior entries claiming one port means the prior
				// manifest was hand-edited; fall back to first-fit.
				continue
			}
			claim(svc.Name, p.Container, host)
		}
	}

	for _, svc := range topology {
		for _, p := range svc.Ports {
			if _, done := assigned[svc.Name][p.Container]; done {
				continue
			}
			host, ok := firstFit(p, used)
			if !ok {
				return nil, fmt.Errorf("%w: service %q: no free host port in [%d,%d)",
					ErrManifestInvalid, svc.Name, p.HostBase, p.HostBase+p.HostRange)
			}
			claim(svc.Name, p.Container, host)
		}
	}
	return assigned, nil
}

func firstFit(p PortSpec, used map[int]struct{}) (int, bool) {
	for host := p.HostBase; host < p.HostBase+p.HostRange; host++ {
		if _, taken := used[host]; !taken {
			return host, true
		}
	}
	return 0, false
}

func imageFor(spec ServiceSpec, facts HostFacts) string {
	if spec.ARM64Image != "" && isARM64(facts.Arch) {
		return spec.ARM64Image
	}
	return spec.Image
}

func isARM64(arch string) bool {
	return arch == "arm64" || arch == "aarch64"
}

// resolveEnv produces the manifest-facing value of one environment entry.
// Secrets (and copies of secrets) become ${NAME} references; everything
// else is a literal.
func resolveEnv(e EnvSpec, topology []ServiceSpec) (string, error) {
	switch {
	case e.Secret != nil:
		return secretRef(e.Name), nil
	case e.From != nil:
		src, ok := findEnv(topology, e.From.Service, e.From.Name)
		if !ok {
			return "", fmt.Errorf("%w: env %s copies from unknown entry %s/%s",
				ErrManifestInvalid, e.Name, e.From.Service, e.From.Name)
		}
		if src.Secret != nil {
			return secretRef(src.Name), nil
		}
		return src.Value, nil
	default:
		return e.Value, nil
	}
}

func findEnv(topology []ServiceSpec, service, name string) (EnvSpec, bool) {
	for _, svc := range topology {
		if svc.Name != service {
			continue
		}
		for _, e := range svc.Env {
			if e.Name == name {
				return e, true
			}
		}
	}
	return EnvSpec{}, false
}

// validateDeployment is the defensive last gate: duplicate host ports,
// missing or unresolvable environment values, and dependency cycles all
// fail with ErrManifestInvalid naming the offending service.
func validateDeployment(topology []ServiceSpec, d *ResolvedDeployment) error {
	seenPorts := make(map[int]string)
	for _, svc := range d.Services {
		for _, p := range svc.Ports {
			if p.Host <= 0 {
				return fmt.Errorf("%w: service %q: unassigned host port for container port %d",
					ErrManifestInvalid, svc.Name, p.Container)
			}
			if other, dup := seenPorts[p.Host]; dup {
				return fmt.Errorf("%w: host port %d assigned to both %q and %q",
					ErrManifestInvalid, p.Host, other, svc.Name)
			}
			seenPorts[p.Host] = svc.Name
		}
	}

	resolved := make(map[string]ResolvedService, len(d.Services))
	for _, svc := range d.Services {
		resolved[svc.Name] = svc
	}
	for _, spec := range topology {
		svc, ok := resolved[spec.Name]
		if !ok {
			return fmt.Errorf("%w: service %q missing from resolved deployment", ErrManifestInvalid, spec.Name)
		}
		for _, e := range spec.Env {
			raw, ok := svc.Env[e.Name]
			if !ok || raw == "" {
				return fmt.Errorf("%w: service %q: missing required env %s", ErrManifestInvalid, spec.Name, e.Name)
			}
			if ref, isRef := parseSecretRef(raw); isRef {
				if _, ok := d.Secrets[ref]; !ok {
					return fmt.Errorf("%w: service %q: env %s references unresolved secret %s",
						ErrManifestInvalid, spec.Name, e.Name, ref)
				}
			}
		}
	}

	if _, err := StartupOrder(topology); err != nil {
		return fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	return nil
}
