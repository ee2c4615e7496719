// Package codectest provides an in-memory implementation of the codec
// backend contract for tests.
//
// Inputs are registered by path with a [Media] description; packets and
// frames are generated deterministically from it, so presentation times,
// seek positions, loop points and decoder latency are all predictable.
// Encoders and the output container record everything they receive, and a
// configurable stall pattern makes encoders return ErrAgain to exercise the
// consumer's retry path.
package codectest
