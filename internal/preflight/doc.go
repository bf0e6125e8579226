// Package preflight provides readiness checks for the filesystem paths,
// collaborator commands, and object storage meshforge depends on.
package preflight
