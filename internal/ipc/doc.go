// Package ipc exposes daemon control over a Unix domain socket using
// JSON-RPC. The perch CLI is the only intended client; the wire types
// deliberately mirror the engine and supervisor surfaces rather than
// inventing a second vocabulary.
package ipc
