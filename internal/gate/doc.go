// Package gate provides a generic condition-guarded value.
//
// A [Value] pairs a value with a mutex and a condition variable. Writers
// call Set or Update; readers block in WaitUntil with a predicate and an
// optional timeout. The render pipeline instantiates one per signal: the
// queue's not-full and not-empty flags and the producer/consumer completion
// flags.
package gate
