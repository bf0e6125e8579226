// Command meshforge drives the text-to-3D asset pipeline.
//
// "meshforge run" executes one prompt through image generation, mesh
// reconstruction, cleanup, and GLB conversion, printing the artifact markers
// other tools parse. "meshforge sweep" re-executes the binary once per grid
// point of the fixed parameter experiments and files the results under the
// sweep root. The queue and worker commands persist runs in the job table and
// process them with a bounded worker pool; validate, deps, and config round
// out the operator surface.
package main
