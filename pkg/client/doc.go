// Package client implements the client side of a roomsync session: the
// connection lifecycle against a coordination server, room membership, the
// reliable event pipeline with batching, and the periodic state stream with
// latency estimation.
//
// A Client owns all session state. State is mutated on a single dispatch
// goroutine: incoming frames are decoded on the network-receive goroutine and
// handed to the dispatch loop, timers fire on the dispatch loop, and
// application code reaches session state through Dispatch. Methods that read
// or write session state document this requirement; the message batcher is
// the only piece shared across goroutines and is locked internally.
package client
