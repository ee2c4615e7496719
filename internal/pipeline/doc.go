// Package pipeline runs a render job: a producer goroutine decodes the
// timeline, composites video and mixes audio into a bounded queue, and a
// consumer goroutine feeds the queue to the encoder.
//
// The producer waits for the queue's not-full gate before each output frame;
// the consumer waits (bounded) for not-empty and then drains. A unit the
// encoder refuses with SendAgain stays pending and is resubmitted after the
// encoder's packets are written. Once the producer has finished the consumer
// drains the queue exactly once and closes the encoder. The Job owns every
// resource and releases them after both goroutines are done.
//
// Cancellation is the context passed to Run. DrainPolicy decides whether a
// cancelled job still encodes what was queued.
package pipeline
