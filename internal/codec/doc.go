// Package codec defines the media backend contract used by the render
// pipeline: demuxing inputs, decoding packets into frames, resampling audio,
// scaling and converting video, encoding frames back into packets, writing
// the output container, and managing hardware devices and surfaces.
//
// The contract follows FFmpeg's send/receive model. Decoders and encoders
// return [ErrAgain] when they need more input or must be drained before
// accepting more, and [io.EOF] once a flush has been fully drained.
//
// Two implementations exist: [media-render/internal/codec/libav] binds FFmpeg
// through go-astiav for production use, and
// [media-render/internal/codec/codectest] provides deterministic synthetic
// media for tests.
package codec
