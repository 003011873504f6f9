// Package storage keeps account snapshots in a hash sharded directory tree.
//
// An identifier maps to root/<aa>/<bb>/.../inspect_<identifier>.json where each
// segment is two hex characters of the sha256 of the identifier. The number of
// segments is chosen once per process by ResolveDepth and never changes while a
// Store is in use; moving a tree to a different depth is a separate offline step.
//
// Writes go through a temporary file in the leaf directory and a rename, so a
// crash never leaves a partial artifact under its final name.
package storage
