// Package core provides the types shared by every layer of spaghettifs:
// the error taxonomy from the storage engine's error-handling design,
// the fixed commit identity used by every mount, and the handful of
// sizing constants (block size, max name length) the engine is built
// around.
//
// # Errors
//
// Every operation that can fail returns a *core.Error carrying one of a
// small set of Kinds (NotFound, AlreadyExists, InvalidName,
// InvalidFormat, NotSupported, StoreError). Callers test for a kind with
// core.Is:
//
//	if core.Is(err, core.NotFound) {
//	    // translate to ENOENT at the dispatcher boundary
//	}
//
// # Identity
//
// Identity identifies the author of every commit this module makes.
// Unlike a general-purpose Git-backed datastore, a mounted filesystem
// has exactly one author for its whole lifetime, so Identity is a
// package-level constant (CommitIdentity) rather than a per-call value.
package core
