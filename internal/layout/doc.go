// Package layout derives run identifiers and the on-disk locations of every
// pipeline artifact under an output root.
//
// Each stage keys its directory off the previous stage's output: the image
// stem names the raw mesh folder, and the raw mesh folder names the processed
// folder.
package layout
