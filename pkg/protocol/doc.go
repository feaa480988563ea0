// Package protocol implements the wire format spoken between a roomsync
// client and its coordination server.
//
// Every message travels as a JSON envelope {"type": ..., "data": ...}. The
// type tag selects the payload shape; payloads are kept as raw JSON until the
// owning subsystem decodes them. Reliable messages may be batched: a single
// websocket frame can carry several newline-joined envelopes, and each line
// decodes independently.
package protocol
