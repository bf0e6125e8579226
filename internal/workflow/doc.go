// Package workflow drains the job table through a bounded pool of pipeline
// workers.
//
// The Manager holds a process-level lock so only one manager runs against a
// state directory. On start it returns jobs left running by a previous
// process to the queue, then claims queued jobs oldest first and runs each
// through a JobRunner (normally the in-process pipeline controller) with its
// own output directory under paths.jobs_dir. Results, including the failing
// stage's error, are recorded on the job row.
//
// Cancelling the context stops claiming new work; in-flight jobs observe the
// cancellation through their collaborator processes and are marked failed
// with a "worker stopped" message so they can be retried later.
package workflow
