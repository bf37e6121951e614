// Package errors provides structured error types for the artifact load
// pipeline.
//
// # Error Structure
//
// Every failure surfaces as *Error, carrying the pipeline phase where it
// happened, a machine-readable kind, the artifact URL involved, a short
// detail string, and the wrapped cause. Errors print as:
//
//	[fetch] unreachable at https://unpkg.com/...: download artifact (caused by: dial tcp ...)
//
// # Phases
//
//	Phase        Where
//	─────────    ─────────────────────────────
//	resolve      artifact URL resolution
//	fetch        artifact download
//	cache        cache reads and writes
//	inspect      binary preflight checks
//	compile      wazero compilation
//	instantiate  module instantiation
//	call         exported function calls
//	load         load orchestration
//
// # Kinds
//
//	Kind              Meaning
//	───────────────   ─────────────────────────────
//	unreachable       network-level download failure
//	not_found         artifact or export missing
//	invalid_artifact  binary rejected by inspection or compilation
//	unsupported       binary format this loader does not run
//	instantiation     imports unresolvable or start trap
//	out_of_bounds     linear memory access outside bounds
//	allocation        guest allocator returned null
//	not_initialized   handle used after Close
//	invalid_input     bad arguments from the host
//
// # Matching
//
// (*Error).Is matches on phase and kind, so sentinel-style comparisons work
// with errors.Is:
//
//	if errors.Is(err, &rerrors.Error{Phase: rerrors.PhaseFetch, Kind: rerrors.KindNotFound}) {
//	    // artifact missing from the CDN
//	}
//
// # Terminal Failures
//
// TerminalError is not part of the phase/kind taxonomy. It is handed to
// failure observers when the loader has run out of artifact sources, lists
// every URL attempted, and wraps the error from the final attempt.
package errors
