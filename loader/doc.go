// Package loader manages the lifecycle of the shared runtime instance: one
// artifact download, one instantiation, any number of consumers.
//
// # Load Lifecycle
//
// A Loader starts idle. The first RequestInstance (or AwaitInstance, or an
// explicit LoadRuntime) kicks off an asynchronous load on its own
// goroutine; the loader never blocks the caller. Requests made while the
// load is in flight join a FIFO queue. When the runtime is ready the handle
// is published first and the queue drained second, so a callback that asks
// for another instance mid-drain is answered synchronously rather than
// queued behind itself. Every request after that is served synchronously.
//
// # Fallback
//
// A failed attempt against the configured URL is retried once against the
// fallback mirror. The comparison deciding whether the fallback was already
// tried ignores case, so pointing SetWasmURL at the mirror (in any casing)
// means a single attempt. Each hop is logged at warn level with both
// locations.
//
// # Terminal Failures
//
// When the fallback also fails the loader logs one error and goes quiet:
// queued callbacks are held, not invoked, and futures stay unsettled.
// Registered OnLoadFailure observers receive a TerminalError naming every
// attempted location. The recovery path is SetWasmURL with a reachable
// copy followed by LoadRuntime, which runs a fresh load and, on success,
// drains the held queue in its original order.
//
// # The Default Loader
//
// Package-level RequestInstance, AwaitInstance, SetWasmURL, LoadRuntime and
// OnLoadFailure operate on a process-wide loader created on first use.
// InitDefault installs a configured loader before first use; ResetDefault
// is for tests.
package loader
