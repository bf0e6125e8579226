// Package mesh wraps the external reconstruction, cleanup, and conversion
// commands behind narrow interfaces the pipeline depends on.
package mesh
