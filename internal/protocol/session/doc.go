// Package session owns processor<->validator payload contracts.
//
// Ownership boundary:
// - registration, process and state payload shapes
// - payload validation and CBOR encode/decode
// - session timing and retry/backoff primitives
package session
