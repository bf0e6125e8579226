// Package jobs persists pipeline jobs in SQLite.
//
// The Store owns the job table; status only changes through Enqueue, Claim,
// Complete, Fail, Retry, and ResetRunning, each guarded by the expected
// source state so concurrent workers cannot double-claim or resurrect a job.
package jobs
