// Package services defines shared utilities consumed by the pipeline stages
// and the collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, job IDs, stage names, experiments,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     configuration, tool, timeout, or transient problems.
//   - The Executor abstraction that runs external collaborator commands and
//     makes them testable.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
