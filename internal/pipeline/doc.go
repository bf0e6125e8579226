// Package pipeline sequences one prompt-to-asset run.
//
// A Controller walks the image, mesh, postprocess, validate, and deliver
// stages, deriving each stage's working paths from the previous stage's
// output. Runs announce their artifacts on stdout using the ImageMarker and
// GLBMarker lines and, when RunConfig.ManifestPath is set, persist a Manifest
// that parent processes read instead of scraping output.
package pipeline
