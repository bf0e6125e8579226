// Package backend selects and invokes the image generation backend for a
// model. Each model is an external command configured under
// [backends.<model>]; the dispatcher is a fixed table with no fallback.
package backend
