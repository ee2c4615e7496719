// Package decode implements the hierarchical decode state machine that
// turns a render profile into timeline-placed units.
//
// A TimelineDecoder walks atoms in order. Each AtomSource round-robins over
// its LayerSources, and each LayerSource owns one input: it maps native
// frame timestamps onto the timeline, trims them to the layer window, and
// seeks back to the trim start to loop short clips over long slots.
//
// Sources are opened lazily when the timeline first reaches their atom and
// closed as soon as the atom is exhausted. Every step returns a Result code
// instead of an error so callers can tell retry, skip, end-of-unit and fatal
// conditions apart without unwinding.
package decode
