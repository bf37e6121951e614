// Package engine turns a published artifact URL into a running wasm instance.
//
// This package wraps wazero to fetch, inspect, compile and instantiate the
// Rive engine's WebAssembly build, producing the Runtime handle the loader
// package shares across the process.
//
// # Load Pipeline
//
// Init runs five stages, each reported as its own error phase:
//
//  1. resolve     - the LocateFile resolver names the artifact URL
//  2. fetch/cache - bytes come from the cache when present, the CDN otherwise
//  3. inspect     - header sniff plus import/export section decode
//  4. compile     - wazero validates and compiles the module
//  5. instantiate - WASI preview1 wiring, module start, _initialize
//
// Inspection exists to fail fast with a precise error before compilation:
// component-model binaries (header layer 1) are rejected here, and the
// import survey decides whether the WASI preview1 host module is needed.
//
// # Runtime Handle
//
// Runtime is the instantiated artifact:
//
//	Runtime.Call       - invoke an exported function with raw stack values
//	Runtime.Memory     - host access to linear memory
//	Runtime.Allocator  - guest malloc/free when the artifact exports them
//	Runtime.Exports    - sorted exported function names
//	Runtime.Close      - tear down the instance and its wazero runtime
//
// Calls into the guest are serialized: the artifact is a single-threaded
// reactor and concurrent entry would corrupt its stack.
//
// # Artifact Format
//
// The engine expects a core wasm module (version 1, layer 0), typically an
// emscripten standalone build. Command-style _start entry points are
// suppressed; reactor-style _initialize exports run once at instantiation.
package engine
