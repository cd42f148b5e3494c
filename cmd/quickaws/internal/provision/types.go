// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"fmt"
	"strings"
	"time"
)

// Artifact names inside the state directory.
const (
	ManifestFileName = "docker-compose.yml"
	EnvFileName      = ".env"
	ReportFileName   = "README_SECURE.txt"
	LockFileName     = ".quickaws.lock"
)

// Profile identifies a server role. The set of profiles is a closed
// enumeration; ParseProfile is the only way external input becomes a
// Profile, so ErrUnknownProfile is unreachable for values produced here.
type Profile string

const (
	ProfileStatic Profile = "static"
	ProfilePHP    Profile = "php"
	ProfileNode   Profile = "node"
	ProfileDjango Profile = "django"
	ProfileMail   Profile = "mail"
)

// Profiles returns the closed profile enumeration in menu order.
func Profiles() []Profile {
	return []Profile{ProfileStatic, ProfilePHP, ProfileNode, ProfileDjango, ProfileMail}
}

// ParseProfile maps an operator-supplied identifier onto the closed
// enumeration. The error message lists the valid identifiers.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Profiles() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownProfile, s, profileList())
}

func profileList() string {
	names := make([]string, 0, len(Profiles()))
	for _, p := range Profiles() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// Description returns the operator-facing summary shown in the profile menu.
func (p Profile) Description() string {
	switch p {
	case ProfileStatic:
		return "Static web server (nginx only)"
	case ProfilePHP:
		return "PHP web server (nginx + php-fpm + MariaDB + DB admin UI)"
	case ProfileNode:
		return "NodeJS service behind nginx"
	case ProfileDjango:
		return "Django/Gunicorn stack with PostgreSQL"
	case ProfileMail:
		return "Mail server (SMTP/IMAP, advanced)"
	default:
		return string(p)
	}
}

// Alphabet selects the character set a secret is drawn from.
type Alphabet int

const (
	// AlphabetPassword draws from lowercase, uppercase, digits, and
	// symbols, requiring at least one character of each class.
	AlphabetPassword Alphabet = iota

	// AlphabetIdentifier draws from letters and digits only, starting
	// with a lowercase letter. Used for values consumed by systems that
	// forbid symbols, such as database usernames.
	AlphabetIdentifier
)

func (a Alphabet) String() string {
	if a == AlphabetIdentifier {
		return "identifier"
	}
	return "password"
}

// SecretPolicy constrains the generation of one secret.
type SecretPolicy struct {
	Length   int
	Alphabet Alphabet
}

// MinSecretLength is the floor enforced on operator-configurable policies.
const MinSecretLength = 16

// PolicyDefaults carries the configurable secret lengths applied when the
// registry table is built.
type PolicyDefaults struct {
	PasswordLength   int
	IdentifierLength int
}

// DefaultPolicyDefaults mirrors the lengths the original provisioner used.
func DefaultPolicyDefaults() PolicyDefaults {
	return PolicyDefaults{PasswordLength: 18, IdentifierLength: 16}
}

// Provenance records where a resolved secret value came from.
type Provenance string

const (
	ProvenanceGenerated Provenance = "generated this run"
	ProvenancePreserved Provenance = "preserved from prior run"
)

// Secret is a named value bound to one environment variable of one service.
type Secret struct {
	Name       string
	Service    string
	Value      string
	Policy     SecretPolicy
	Provenance Provenance
}

// EnvRef points at another service's environment entry whose resolved value
// is reused verbatim (e.g. the DB admin UI logging in with the database
// root password).
type EnvRef struct {
	Service string
	Name    string
}

// EnvSpec declares one required environment variable of a service.
// Exactly one of Value, Secret, or From is set.
type EnvSpec struct {
	Name string

	// Value is a static assignment, possibly derived from topology
	// (e.g. a database host equal to the database service name).
	Value string

	// Secret marks the entry secret-valued and carries its policy.
	Secret *SecretPolicy

	// From copies the resolved value of another service's entry.
	From *EnvRef
}

// PortSpec declares one exposed port and the fixed host range its host
// port is assigned from.
type PortSpec struct {
	Container int
	HostBase  int
	HostRange int
}

// VolumeSpec declares a persistent or bind mount.
type VolumeSpec struct {
	// Source is a named volume when Named is true, otherwise a host path.
	Source   string
	Target   string
	ReadOnly bool
	Named    bool
}

func (v VolumeSpec) composeString() string {
	s := v.Source + ":" + v.Target
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// ServiceSpec is the declarative description of one containerized process
// within a profile.
type ServiceSpec struct {
	Name  string
	Image string

	// ARM64Image, when set, replaces Image on arm64 hosts. Restores the
	// original provisioner's Adminer-on-ARM behavior for the DB admin UI.
	ARM64Image string

	Ports     []PortSpec
	Env       []EnvSpec
	DependsOn []string
	Volumes   []VolumeSpec
}

// SecretEnv returns the service's secret-valued environment entries.
func (s ServiceSpec) SecretEnv() []EnvSpec {
	var out []EnvSpec
	for _, e := range s.Env {
		if e.Secret != nil {
			out = append(out, e)
		}
	}
	return out
}

// HostFacts are the host-derived inputs to synthesis.
type HostFacts struct {
	PublicIP string
	Hostname string
	Arch     string
}

// ResolvedPort is a concrete container-to-host port mapping.
type ResolvedPort struct {
	Container int
	Host      int
}

// ResolvedService is a ServiceSpec with concrete host ports and environment
// assignments. Secret-valued entries hold a "${NAME}" reference rather than
// the value itself; the value lives only in ResolvedDeployment.Secrets.
type ResolvedService struct {
	Name      string
	Image     string
	Ports     []ResolvedPort
	Env       map[string]string
	DependsOn []string
	Volumes   []VolumeSpec
}

// ResolvedDeployment is the complete result of one provisioning run: the
// single source of truth consumed by both the manifest and the report.
type ResolvedDeployment struct {
	Profile     Profile
	RunID       string
	GeneratedAt time.Time
	Facts       HostFacts

	Services []ResolvedService

	// Secrets is keyed by environment variable name. Secret values live
	// here and nowhere else; emission copies them into the artifacts.
	Secrets map[string]Secret

	// RemovedServices lists previously deployed services that are no
	// longer part of the topology after a profile switch. Removal itself
	// is the orchestration layer's job; this is reporting only.
	RemovedServices []string
}

// secretRef is the placeholder a manifest uses for a secret-valued
// environment entry; the value itself stays in the .env companion file.
func secretRef(name string) string {
	return "${" + name + "}"
}

// parseSecretRef reports whether v is a secret reference and, if so,
// the referenced environment variable name.
func parseSecretRef(v string) (string, bool) {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") && len(v) > 3 {
		return v[2 : len(v)-1], true
	}
	return "", false
}

// EnvValue resolves the effective value of a service environment entry,
// substituting secret references from the deployment's secret map.
func (d *ResolvedDeployment) EnvValue(service, name string) (string, bool) {
	for _, svc := range d.Services {
		if svc.Name != service {
			continue
		}
		raw, ok := svc.Env[name]
		if !ok {
			return "", false
		}
		if ref, isRef := parseSecretRef(raw); isRef {
			sec, ok := d.Secrets[ref]
			if !ok {
				return "", false
			}
			return sec.Value, true
		}
		return raw, true
	}
	return "", false
}
