// Package protocol owns the validator wire contract shared by the frame,
// schema, codec and session packages.
//
// Ownership boundary:
// - codec error contract
// - envelope frame primitives (frame)
// - message kinds (schema)
// - payload serialization (codec, session)
package protocol
