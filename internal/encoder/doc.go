// Package encoder wraps the output container and its per-stream encoders.
//
// Units from the encode queue are converted to the codec's layout (a
// scaler for RGBA rasters, a resampler for mixed audio, or a device surface
// in hardware modes) and submitted with Send. Write moves one encoded packet
// into the interleaved container, rescaled to the stream time base. Close
// flushes every encoder and writes the trailer; Release tears everything
// down without one.
package encoder
