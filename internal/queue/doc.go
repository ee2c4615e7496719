// Package queue implements the bounded FIFO between the render producer and
// the encode consumer. Backpressure is expressed through two gates rather
// than blocking calls, so each side can bound its waits and re-check for
// cancellation.
package queue
