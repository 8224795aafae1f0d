// Package manager holds the resident persona model: a single-slot cache that
// prepares a model for a persona on demand (apply adapter, merge, quantize,
// load) and swaps it in atomically. It is structured into small files by
// concern:
//
//   - manager.go: Manager type, constructor, readiness and getters.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: slot state, Lease, Snapshot.
//   - ensure.go: GetOrLoad, persona resolution, load serialization.
//   - pipeline.go: Build, the apply → merge → quantize → load pipeline.
//   - admission.go: per-slot queueing and generation admission.
//   - evict.go: retiring a replaced slot and releasing its model.
//   - ops.go: Warm and Switch.
//   - status_report.go: Snapshot and Status reporting.
//   - unload.go: Close and draining.
//   - errors.go, events.go, metrics.go: error types, lifecycle events, Prometheus.
//
// Callers hold a Lease for the whole of a request. A lease pins the model it
// was taken on, so a swap to another persona never pulls weights out from
// under a running generation; the replaced model is released when its last
// lease goes.
package manager
