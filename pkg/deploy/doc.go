// Package deploy implements the per-host deployment state machine: ensure
// the network exists, pull the image, start the new container, wait for it
// to report healthy, cut traffic over, and clean up the predecessor.
//
// A Deployer runs against a single already-connected runtime.Client; it has
// no notion of other hosts or of a cluster. Callers (cmd/peleka) pick the
// strategy via ForConfig and loop over servers themselves.
//
// Two strategies share the same state machine:
//
//   - BlueGreen starts the new container in the opposite slot from the
//     active one, health-checks it, flips the service network alias to it,
//     and only then stops the old container. Traffic never drops and a
//     second host-visible container briefly overlaps with the first.
//   - Recreate stops the old container before the new one starts and
//     removes it once the new one has completed the state machine — the
//     orchestrator (not this package) handles that part — so there is a
//     gap in service but never two managed containers running at once. Useful when the service can't tolerate two replicas sharing a
//     resource (a fixed host port, a singleton lock file).
//
// Every phase transition is recorded on a DeploymentRecord so a failure
// partway through knows exactly what to undo: Rollback stops and removes
// whatever container the failed attempt created. It does not touch the
// previous container: if cutover had already disconnected it from the
// network, it stays disconnected. Rollback is idempotent — calling it on a
// record where nothing happened yet is a no-op, not an error.
//
// SweepOrphans removes managed containers for a service except the ids the
// caller asks it to keep, covering the case where a prior run was
// interrupted before cleanup.
package deploy
