// Package staging performs best-effort removal of intermediate working
// directories, reporting failures instead of aborting.
package staging
