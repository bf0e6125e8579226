// Package sweep runs the fixed parameter experiments.
//
// Each grid point is executed as an independent "meshforge run" child
// process writing into {point}/temp. Artifacts are located through the
// child's manifest (falling back to its stdout markers), moved next to the
// temp directory under a canonical name, and every temp directory is removed
// once the sweep finishes. Failed runs are recorded and skipped; the sweep
// itself only fails on setup errors or cancellation.
package sweep
