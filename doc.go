// Package riveruntime loads the Rive animation engine's WebAssembly build and
// shares one instantiated runtime across an application.
//
// The engine ships as a compiled .wasm artifact published to public CDNs. This
// library resolves the artifact URL, downloads the binary (with an optional
// persistent cache), instantiates it with wazero, and hands the resulting
// runtime handle to every interested caller. Loading happens at most once per
// process no matter how many callers ask, and a failed download fails over
// from the primary CDN to a mirror before giving up.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	riveruntime/         Root package with Memory and Allocator interfaces
//	├── loader/          Shared-instance orchestration: callback queue, failover
//	├── engine/          wazero integration: compile, instantiate, runtime handle
//	├── artifact/        Pinned engine build identity and CDN URL construction
//	├── fetch/           Retrying HTTP client for artifact downloads
//	├── cache/           Persistent artifact cache on go-cloud blob storage
//	└── errors/          Structured error types for load failures
//
// # Quick Start
//
// Register a callback for the shared runtime:
//
//	loader.RequestInstance(func(rt *engine.Runtime) {
//	    fmt.Println("engine ready:", rt.SourceURL())
//	})
//
// Or wait on a future:
//
//	fut := loader.AwaitInstance()
//	rt, err := fut.Wait(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
// Point the loader at a self-hosted artifact before the first request:
//
//	loader.SetWasmURL("https://assets.example.com/rive/rive.wasm")
//
// # Load Semantics
//
// The first RequestInstance or AwaitInstance call starts the load; every later
// call attaches to the same attempt. Callbacks queue in FIFO order and drain
// once the runtime is ready; callbacks registered after that point run
// immediately. If the primary CDN fails, the loader retries once against the
// fallback CDN. If that fails too, the loader logs an error and goes quiet:
// queued callbacks stay queued until SetWasmURL and LoadRuntime start a fresh
// attempt. OnLoadFailure observers exist for hosts that need to surface the
// terminal error.
//
// # Thread Safety
//
// Loader, InstanceFuture, and the package-level functions are safe for
// concurrent use. The engine.Runtime handle serializes exported-function
// calls internally; Memory reads and writes are not synchronized against
// concurrent calls into the artifact.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Buffers handed to the
// animation engine must live in guest memory: allocate through the handle's
// Allocator, write through Memory, then pass the guest pointer to Call.
package riveruntime
