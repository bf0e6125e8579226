// Package validation inspects produced meshes through the configured validator
// command and locates the newest processed artifact for ad-hoc checks.
package validation
