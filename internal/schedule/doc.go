// Package schedule owns durable capture jobs and their execution history.
//
// The Store persists jobs, recording instances, and the opaque
// system_config table in SQLite. The Engine validates and registers jobs,
// arms cancellable triggers for their next firing, invokes the capture
// supervisors when a trigger fires, and records outcomes: one-time jobs
// carry their own terminal status, recurring jobs accumulate
// RecordingInstance rows keyed by (job, date). Missing instances for past
// occurrences are materialized lazily and idempotently by the reconciler.
//
// Treat this package as the single source of truth for job semantics; when
// adding statuses or fields, update schema.sql and bump schemaVersion.
package schedule
