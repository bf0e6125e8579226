// Package deps reports whether the collaborator commands meshforge shells out
// to can be resolved on PATH.
package deps
