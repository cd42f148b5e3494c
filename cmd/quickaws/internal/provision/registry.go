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
)

// Registry is the fixed mapping from profile identifier to service
// topology. The table is compiled in and validated once at build time;
// per-run lookups are pure and cannot fail for any Profile value.
type Registry struct {
	profiles map[Profile][]ServiceSpec
}

// NewRegistry builds and validates the registry table. Secret lengths come
// from the supplied defaults, floored at MinSecretLength.
//
// Validation covers, per profile: unique service names, dependency edges
// that exist and are acyclic, secret-valued names that are unique across
// the whole profile (they share one .env namespace), and From references
// that point at an existing entry.
func NewRegistry(defaults PolicyDefaults) (*Registry, error) {
	if defaults.PasswordLength < MinSecretLength {
		defaults.PasswordLength = MinSecretLength
	}
	if defaults.IdentifierLength < MinSecretLength {
		defaults.IdentifierLength = MinSecretLength
	}

	r := &Registry{profiles: buildProfiles(defaults)}
	for profile, topology := range r.profiles {
		if err := validateTopology(topology); err != nil {
			return nil, fmt.Errorf("registry profile %q: %w", profile, err)
		}
	}
	return r, nil
}

// ResolveTopology returns a deep copy of the profile's service list in
// declaration order. Unknown identifiers fail with ErrUnknownProfile.
func (r *Registry) ResolveTopology(p Profile) ([]ServiceSpec, error) {
	topology, ok := r.profiles[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownProfile, p, profileList())
	}
	return copyTopology(topology), nil
}

func buildProfiles(defaults PolicyDefaults) map[Profile][]ServiceSpec {
	password := func() *SecretPolicy {
		return &SecretPolicy{Length: defaults.PasswordLength, Alphabet: AlphabetPassword}
	}
	identifier := func() *SecretPolicy {
		return &SecretPolicy{Length: defaults.IdentifierLength, Alphabet: AlphabetIdentifier}
	}

	return map[Profile][]ServiceSpec{
		ProfileStatic: {
			{
				Name:    "web",
				Image:   "nginx:stable-alpine",
				Ports:   []PortSpec{{Container: 80, HostBase: 80, HostRange: 10}},
				Volumes: []VolumeSpec{{Source: "./www", Target: "/usr/share/nginx/html", ReadOnly: true}},
			},
		},

		ProfilePHP: {
			{
				Name:      "web",
				Image:     "nginx:stable-alpine",
				Ports:     []PortSpec{{Container: 80, HostBase: 80, HostRange: 10}},
				DependsOn: []string{"php-runtime"},
				Volumes: []VolumeSpec{
					{Source: "./www", Target: "/var/www/html", ReadOnly: true},
					{Source: "./nginx/conf.d", Target: "/etc/nginx/conf.d", ReadOnly: true},
				},
			},
			{
				Name:      "php-runtime",
				Image:     "php:8.1-fpm-alpine",
				Ports:     []PortSpec{{Container: 9000, HostBase: 9000, HostRange: 10}},
				DependsOn: []string{"database"},
				Volumes:   []VolumeSpec{{Source: "./www", Target: "/var/www/html"}},
			},
			{
				Name:  "database",
				Image: "mariadb:10.5",
				Ports: []PortSpec{{Container: 3306, HostBase: 3306, HostRange: 10}},
				Env: []EnvSpec{
					{Name: "MYSQL_ROOT_PASSWORD", Secret: password()},
					{Name: "MYSQL_DATABASE", Value: "appdb"},
					{Name: "MYSQL_USER", Value: "appuser"},
					{Name: "MYSQL_PASSWORD", Secret: password()},
				},
				Volumes: []VolumeSpec{{Source: "db_data", Target: "/var/lib/mysql", Named: true}},
			},
			{
				Name:       "admin-ui",
				Image:      "phpmyadmin/phpmyadmin:latest",
				ARM64Image: "adminer:latest",
				Ports:      []PortSpec{{Container: 80, HostBase: 8080, HostRange: 10}},
				DependsOn:  []string{"database"},
				Env: []EnvSpec{
					{Name: "PMA_HOST", Value: "database"},
					{Name: "PMA_USER", Value: "root"},
					{Name: "PMA_PASSWORD", From: &EnvRef{Service: "database", Name: "MYSQL_ROOT_PASSWORD"}},
				},
			},
		},

		ProfileNode: {
			{
				Name:      "web",
				Image:     "nginx:stable-alpine",
				Ports:     []PortSpec{{Container: 80, HostBase: 80, HostRange: 10}},
				DependsOn: []string{"app"},
				Volumes:   []VolumeSpec{{Source: "./nginx/conf.d", Target: "/etc/nginx/conf.d", ReadOnly: true}},
			},
			{
				Name:  "app",
				Image: "node:20-alpine",
				Ports: []PortSpec{{Container: 3000, HostBase: 3000, HostRange: 10}},
				Env: []EnvSpec{
					{Name: "NODE_ENV", Value: "production"},
					{Name: "SESSION_SECRET", Secret: &SecretPolicy{Length: 32, Alphabet: AlphabetPassword}},
				},
				Volumes: []VolumeSpec{{Source: "./app", Target: "/usr/src/app"}},
			},
		},

		ProfileDjango: {
			{
				Name:      "web",
				Image:     "nginx:stable-alpine",
				Ports:     []PortSpec{{Container: 80, HostBase: 80, HostRange: 10}},
				DependsOn: []string{"app"},
				Volumes:   []VolumeSpec{{Source: "./nginx/conf.d", Target: "/etc/nginx/conf.d", ReadOnly: true}},
			},
			{
				Name:      "app",
				Image:     "python:3.12-slim",
				Ports:     []PortSpec{{Container: 8000, HostBase: 8000, HostRange: 10}},
				DependsOn: []string{"database"},
				Env: []EnvSpec{
					{Name: "DJANGO_SECRET_KEY", Secret: &SecretPolicy{Length: 32, Alphabet: AlphabetPassword}},
					{Name: "DJANGO_DB_HOST", Value: "database"},
					{Name: "DJANGO_DB_NAME", Value: "appdb"},
					{Name: "DJANGO_DB_USER", From: &EnvRef{Service: "database", Name: "POSTGRES_USER"}},
					{Name: "DJANGO_DB_PASSWORD", From: &EnvRef{Service: "database", Name: "POSTGRES_PASSWORD"}},
				},
				Volumes: []VolumeSpec{{Source: "./app", Target: "/usr/src/app"}},
			},
			{
				Name:  "database",
				Image: "postgres:16-alpine",
				Ports: []PortSpec{{Container: 5432, HostBase: 5432, HostRange: 10}},
				Env: []EnvSpec{
					{Name: "POSTGRES_DB", Value: "appdb"},
					{Name: "POSTGRES_USER", Secret: identifier()},
					{Name: "POSTGRES_PASSWORD", Secret: password()},
				},
				Volumes: []VolumeSpec{{Source: "pg_data", Target: "/var/lib/postgresql/data", Named: true}},
			},
		},

		ProfileMail: {
			{
				Name:  "mail",
				Image: "mailserver/docker-mailserver:latest",
				Ports: []PortSpec{
					{Container: 25, HostBase: 25, HostRange: 1},
					{Container: 143, HostBase: 143, HostRange: 1},
					{Container: 587, HostBase: 587, HostRange: 1},
					{Container: 993, HostBase: 993, HostRange: 1},
				},
				Env: []EnvSpec{
					{Name: "POSTMASTER_ADDRESS", Value: "postmaster@localhost"},
					{Name: "POSTMASTER_PASSWORD", Secret: &SecretPolicy{Length: 20, Alphabet: AlphabetPassword}},
				},
				Volumes: []VolumeSpec{{Source: "mail_data", Target: "/var/mail", Named: true}},
			},
		},
	}
}

func copyTopology(topology []ServiceSpec) []ServiceSpec {
	out := make([]ServiceSpec, len(topology))
	for i, svc := range topology {
		c := svc
		c.Ports = append([]PortSpec(nil), svc.Ports...)
		c.DependsOn = append([]string(nil), svc.DependsOn...)
		c.Volumes = append([]VolumeSpec(nil), svc.Volumes...)
		c.Env = make([]EnvSpec, len(svc.Env))
		for j, e := range svc.Env {
			ec := e
			if e.Secret != nil {
				p := *e.Secret
				ec.Secret = &p
			}
			if e.From != nil {
				f := *e.From
				ec.From = &f
			}
			c.Env[j] = ec
		}
		out[i] = c
	}
	return out
}

func validateTopology(topology []ServiceSpec) error {
	if len(topology) == 0 {
		return fmt.Errorf("empty service list")
	}

	byName := make(map[string]ServiceSpec, len(topology))
	for _, svc := range topology {
		if svc.Name == "" {
			return fmt.Errorf("service with empty name")
		}
		if _, dup := byName[svc.Name]; dup {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		byName[svc.Name] = svc
	}

	secretNames := make(map[string]string) // env name -> service
	for _, svc := range topology {
		for _, e := range svc.Env {
			set := 0
			if e.Value != "" {
				set++
			}
			if e.Secret != nil {
				set++
			}
			if e.From != nil {
				set++
			}
			if set != 1 {
				return fmt.Errorf("service %q env %q: exactly one of value, secret, or from must be set", svc.Name, e.Name)
			}
			if e.Secret != nil {
				if prev, dup := secretNames[e.Name]; dup {
					return fmt.Errorf("secret env %q declared by both %q and %q", e.Name, prev, svc.Name)
				}
				secretNames[e.Name] = svc.Name
			}
			if e.From != nil {
				src, ok := byName[e.From.Service]
				if !ok {
					return fmt.Errorf("service %q env %q: copies from unknown service %q", svc.Name, e.Name, e.From.Service)
				}
				if !hasEnv(src, e.From.Name) {
					return fmt.Errorf("service %q env %q: copies from unknown entry %s/%s", svc.Name, e.Name, e.From.Service, e.From.Name)
				}
			}
		}
		for _, p := range svc.Ports {
			if p.Container <= 0 || p.HostBase <= 0 || p.HostRange <= 0 {
				return fmt.Errorf("service %q: invalid port spec %+v", svc.Name, p)
			}
		}
		for _, dep := range svc.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("service %q depends on unknown service %q", svc.Name, dep)
			}
		}
	}

	if _, err := StartupOrder(topology); err != nil {
		return err
	}
	return nil
}

func hasEnv(svc ServiceSpec, name string) bool {
	for _, e := range svc.Env {
		if e.Name == name {
			return true
		}
	}
	return false
}

// StartupOrder returns service names ordered so that every service appears
// after all of its dependencies. Ties are broken alphabetically so the
// order is stable. Fails if the dependency graph has a cycle.
func StartupOrder(topology []ServiceSpec) ([]string, error) {
	deps := make(map[string][]string, len(topology))
	indegree := make(map[string]int, len(topology))
	for _, svc := range topology {
		indegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			deps[dep] = append(deps[dep], svc.Name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(topology))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unblocked []string
		for _, next := range deps[name] {
			indegree[next]--
			if indegree[next] == 0 {
				unblocked = append(unblocked, next)
			}
		}
		sort.Strings(unblocked)
		ready = append(ready, unblocked...)
	}

	if len(order) != len(topology) {
		return nil, fmt.Errorf("dependency cycle among services")
	}
	return order, nil
}
