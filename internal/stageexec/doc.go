// Package stageexec runs a single pipeline stage with stage-scoped context and
// the standard start, completion, and failure log events.
package stageexec
