// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import "sort"

// SecretAction is the per-secret decision computed by the reconciler.
type SecretAction int

const (
	// ActionGenerate asks the synthesizer to call the secret generator.
	ActionGenerate SecretAction = iota

	// ActionPreserve asks the synthesizer to copy the prior value.
	ActionPreserve
)

func (a SecretAction) String() string {
	if a == ActionPreserve {
		return "preserve"
	}
	return "generate"
}

// Reasons recorded on each decision; they surface in debug logs and make
// the three reconciliation branches auditable after the fact.
const (
	ReasonFreshInstall    = "fresh install"
	ReasonProfileSwitch   = "profile switch"
	ReasonNewSecret       = "not present in prior state"
	ReasonPolicyViolation = "prior value fails current policy"
	ReasonPriorValue      = "well-formed prior value"
)

// SecretDecision is one entry of the resolution plan.
type SecretDecision struct {
	Service string
	Name    string
	Action  SecretAction
	Policy  SecretPolicy
	Reason  string

	// PriorValue is set only when Action is ActionPreserve.
	PriorValue string
}

// Plan is the secret resolution plan plus the prior facts the synthesizer
// needs to keep the deployment stable across re-runs.
type Plan struct {
	Profile       Profile
	FreshInstall  bool
	ProfileSwitch bool

	// Decisions follow topology declaration order.
	Decisions []SecretDecision

	// PriorPorts carries forward the prior run's host port assignments.
	// Empty on fresh install and on profile switch.
	PriorPorts map[string]map[int]int

	// RemovedServices lists prior services absent from the new topology
	// after a profile switch, for the report. Sorted.
	RemovedServices []string
}

// Reconcile classifies the run and decides, for every secret-valued
// environment name in the topology, whether to preserve the prior value
// or generate a fresh one.
//
// Branches:
//   - prior == nil: fresh install, everything is generated.
//   - prior profile == requested profile: well-formed prior values are
//     preserved; names new to the topology, and prior values failing the
//     current policy, are generated.
//   - prior profile != requested profile: a profile switch. Everything is
//     generated and the services that disappear are recorded.
func Reconcile(profile Profile, topology []ServiceSpec, prior *PriorState) *Plan {
	plan := &Plan{
		Profile:    profile,
		PriorPorts: map[string]map[int]int{},
	}

	switch {
	case prior == nil:
		plan.FreshInstall = true
	case prior.Profile != profile:
		plan.ProfileSwitch = true
		plan.RemovedServices = removedServices(prior.Services, topology)
	default:
		plan.PriorPorts = prior.Ports
	}

	for _, svc := range topology {
		for _, e := range svc.Env {
			if e.Secret == nil {
				continue
			}
			plan.Decisions = append(plan.Decisions, decide(svc.Name, e, prior, plan))
		}
	}
	return plan
}

func decide(service string, e EnvSpec, prior *PriorState, plan *Plan) SecretDecision {
	d := SecretDecision{
		Service: service,
		Name:    e.Name,
		Action:  ActionGenerate,
		Policy:  *e.Secret,
	}

	switch {
	case plan.FreshInstall:
		d.Reason = ReasonFreshInstall
		return d
	case plan.ProfileSwitch:
		d.Reason = ReasonProfileSwitch
		return d
	}

	priorValue, ok := prior.Secrets[e.Name]
	if !ok || priorValue == "" {
		d.Reason = ReasonNewSecret
		return d
	}
	if !Satisfies(d.Policy, priorValue) {
		// Passive migration: a prior secret that no longer meets policy
		// is replaced on update rather than silently carried forward.
		d.Reason = ReasonPolicyViolation
		return d
	}

	d.Action = ActionPreserve
	d.PriorValue = priorValue
	d.Reason = ReasonPriorValue
	return d
}

func removedServices(prior []string, topology []ServiceSpec) []string {
	current := make(map[string]struct{}, len(topology))
	for _, svc := range topology {
		current[svc.Name] = struct{}{}
	}
	var removed []string
	for _, name := range prior {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}
