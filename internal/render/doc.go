// Package render holds the collaborators that turn decoded units into
// encodable frames: an Evaluator that lists the layers visible at each
// output frame, a Compositor that rasterizes them, and a Mixer that sums
// layer audio into encoder-sized chunks.
package render
