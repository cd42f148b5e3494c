// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(DefaultPolicyDefaults())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func TestNewRegistry(t *testing.T) {
	t.Run("builds with defaults", func(t *testing.T) {
		newTestRegistry(t)
	})

	t.Run("floors secret lengths at the minimum", func(t *testing.T) {
		r, err := NewRegistry(PolicyDefaults{PasswordLength: 4, IdentifierLength: 1})
		if err != nil {
			t.Fatalf("NewRegistry failed: %v", err)
		}
		topology, err := r.ResolveTopology(ProfilePHP)
		if err != nil {
			t.Fatalf("ResolveTopology failed: %v", err)
		}
		for _, svc := range topology {
			for _, e := range svc.SecretEnv() {
				if e.Secret.Length < MinSecretLength {
					t.Errorf("service %s env %s: length %d below minimum %d",
						svc.Name, e.Name, e.Secret.Length, MinSecretLength)
				}
			}
		}
	})
}

func TestResolveTopology(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("every profile resolves", func(t *testing.T) {
		for _, p := range Profiles() {
			topology, err := r.ResolveTopology(p)
			if err != nil {
				t.Errorf("profile %s: %v", p, err)
				continue
			}
			if len(topology) == 0 {
				t.Errorf("profile %s: empty topology", p)
			}
		}
	})

	t.Run("unknown profile fails with sentinel", func(t *testing.T) {
		_, err := r.ResolveTopology(Profile("wordpress"))
		if !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got %v", err)
		}
	})

	t.Run("php topology has the expected services", func(t *testing.T) {
		topology, err := r.ResolveTopology(ProfilePHP)
		if err != nil {
			t.Fatalf("ResolveTopology failed: %v", err)
		}
		var names []string
		for _, svc := range topology {
			names = append(names, svc.Name)
		}
		want := []string{"web", "php-runtime", "database", "admin-ui"}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("php services = %v, want %v", names, want)
		}
	})

	t.Run("returned topology is a deep copy", func(t *testing.T) {
		first, err := r.ResolveTopology(ProfilePHP)
		if err != nil {
			t.Fatalf("ResolveTopology failed: %v", err)
		}
		first[2].Env[0].Secret.Length = 999
		first[2].Name = "tampered"

		second, err := r.ResolveTopology(ProfilePHP)
		if err != nil {
			t.Fatalf("ResolveTopology failed: %v", err)
		}
		if second[2].Name != "database" {
			t.Errorf("registry table mutated through resolved copy: %s", second[2].Name)
		}
		if second[2].Env[0].Secret.Length == 999 {
			t.Error("secret policy mutated through resolved copy")
		}
	})

	t.Run("secret names are unique within each profile", func(t *testing.T) {
		for _, p := range Profiles() {
			topology, _ := r.ResolveTopology(p)
			seen := map[string]bool{}
			for _, svc := range topology {
				for _, e := range svc.SecretEnv() {
					if seen[e.Name] {
						t.Errorf("profile %s: duplicate secret name %s", p, e.Name)
					}
					seen[e.Name] = true
				}
			}
		}
	})
}

func TestStartupOrder(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("php order puts database first and web last", func(t *testing.T) {
		topology, _ := r.ResolveTopology(ProfilePHP)
		order, err := StartupOrder(topology)
		if err != nil {
			t.Fatalf("StartupOrder failed: %v", err)
		}
		pos := map[string]int{}
		for i, name := range order {
			pos[name] = i
		}
		if pos["database"] > pos["php-runtime"] {
			t.Errorf("database after php-runtime in %v", order)
		}
		if pos["php-runtime"] > pos["web"] {
			t.Errorf("php-runtime after web in %v", order)
		}
		if pos["database"] > pos["admin-ui"] {
			t.Errorf("database after admin-ui in %v", order)
		}
	})

	t.Run("every profile is acyclic", func(t *testing.T) {
		for _, p := range Profiles() {
			topology, _ := r.ResolveTopology(p)
			if _, err := StartupOrder(topology); err != nil {
				t.Errorf("profile %s: %v", p, err)
			}
		}
	})

	t.Run("cycle is rejected", func(t *testing.T) {
		topology := []ServiceSpec{
			{Name: "a", Image: "x", DependsOn: []string{"b"}},
			{Name: "b", Image: "x", DependsOn: []string{"a"}},
		}
		if _, err := StartupOrder(topology); err == nil {
			t.Error("expected cycle error")
		}
	})
}

func TestValidateTopology(t *testing.T) {
	cases := []struct {
		name     string
		topology []ServiceSpec
	}{
		{"empty list", nil},
		{"duplicate service name", []ServiceSpec{
			{Name: "a", Image: "x"}, {Name: "a", Image: "y"},
		}},
		{"env with nothing set", []ServiceSpec{
			{Name: "a", Image: "x", Env: []EnvSpec{{Name: "EMPTY"}}},
		}},
		{"env with two sources set", []ServiceSpec{
			{Name: "a", Image: "x", Env: []EnvSpec{
				{Name: "BOTH", Value: "v", Secret: &SecretPolicy{Length: 16}},
			}},
		}},
		{"duplicate secret env across services", []ServiceSpec{
			{Name: "a", Image: "x", Env: []EnvSpec{{Name: "TOKEN", Secret: &SecretPolicy{Length: 16}}}},
			{Name: "b", Image: "x", Env: []EnvSpec{{Name: "TOKEN", Secret: &SecretPolicy{Length: 16}}}},
		}},
		{"from unknown service", []ServiceSpec{
			{Name: "a", Image: "x", Env: []EnvSpec{{Name: "COPY", From: &EnvRef{Service: "ghost", Name: "X"}}}},
		}},
		{"from unknown entry", []ServiceSpec{
			{Name: "a", Image: "x", Env: []EnvSpec{{Name: "X", Value: "1"}}},
			{Name: "b", Image: "x", Env: []EnvSpec{{Name: "COPY", From: &EnvRef{Service: "a", Name: "MISSING"}}}},
		}},
		{"dependency on unknown service", []ServiceSpec{
			{Name: "a", Image: "x", DependsOn: []string{"ghost"}},
		}},
		{"invalid port spec", []ServiceSpec{
			{Name: "a", Image: "x", Ports: []PortSpec{{Container: 80, HostBase: 80, HostRange: 0}}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateTopology(tc.topology); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseProfile(t *testing.T) {
	t.Run("accepts canonical and mixed-case names", func(t *testing.T) {
		for _, in := range []string{"php", "PHP", "  Php "} {
			p, err := ParseProfile(in)
			if err != nil {
				t.Errorf("ParseProfile(%q): %v", in, err)
			}
			if p != ProfilePHP {
				t.Errorf("ParseProfile(%q) = %s", in, p)
			}
		}
	})

	t.Run("rejects unknown names and lists valid ones", func(t *testing.T) {
		_, err := ParseProfile("rails")
		if !errors.Is(err, ErrUnknownProfile) {
			t.Fatalf("expected ErrUnknownProfile, got %v", err)
		}
		for _, p := range Profiles() {
			if !strings.Contains(err.Error(), string(p)) {
				t.Errorf("error %q does not mention %s", err, p)
			}
		}
	})
}
