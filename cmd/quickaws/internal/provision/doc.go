// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package provision implements the profile-based provisioning engine.

The engine turns a profile selection plus the host's prior deployment state
into a deterministic, re-runnable deployment description and a secret set.
It decides what should run and which secrets protect it; it never talks to
the container runtime itself.

# Pipeline

A run is a strictly sequential pipeline:

	Registry lookup -> State Reconciler -> Manifest Synthesizer -> disk writes

The Registry maps each profile of the closed enumeration (static, php, node,
django, mail) to a fixed service topology. The Reconciler inspects the prior
manifest and .env file in the state directory and decides, per secret,
whether to preserve the prior value or generate a fresh one. The Synthesizer
combines topology, plan, and host facts into a ResolvedDeployment, which is
the single source of truth for both output artifacts: the compose manifest
(docker-compose.yml plus .env) and the credential report (README_SECURE.txt).

# Crash Safety

All artifacts are written via write-temp-then-rename in the state directory,
with permission bits applied before the rename. A run that dies mid-way
leaves the prior artifacts untouched. An exclusive advisory lock on the
state directory rejects concurrent invocations with ErrConcurrentRun.

# Determinism

For a given profile, host port assignment is first-fit from a fixed
low-numbered range per service role, and prior assignments are always
preserved, so an update never silently moves a port an operator has already
opened in a firewall. Re-running against unchanged prior state reproduces
the prior ports and secret values exactly.
*/
package provision
