package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	riveruntime "github.com/rivekit/rive-runtime-go"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
)

// Runtime is the instantiated engine artifact. One Runtime is shared by
// every caller in the process; the loader package owns handing it out.
type Runtime struct {
	runtime   wazero.Runtime
	module    api.Module
	mem       *wazeroMemory
	alloc     *guestAllocator
	sourceURL string
	size      int
	fromCache bool

	// The guest is single-threaded; calls into it must not interleave.
	callMu sync.Mutex
	closed atomic.Bool
}

func newRuntime(r wazero.Runtime, mod api.Module, sourceURL string, size int, fromCache bool) *Runtime {
	rt := &Runtime{
		runtime:   r,
		module:    mod,
		sourceURL: sourceURL,
		size:      size,
		fromCache: fromCache,
	}

	if mem := mod.Memory(); mem != nil {
		rt.mem = &wazeroMemory{mem: mem}
	}

	malloc := mod.ExportedFunction("malloc")
	free := mod.ExportedFunction("free")
	if malloc != nil && free != nil {
		rt.alloc = &guestAllocator{rt: rt, malloc: malloc, free: free}
	}

	return rt
}

// SourceURL returns the URL the artifact was loaded from.
func (r *Runtime) SourceURL() string {
	return r.sourceURL
}

// ArtifactSize returns the artifact binary size in bytes.
func (r *Runtime) ArtifactSize() int {
	return r.size
}

// FromCache reports whether the artifact came from the local cache rather
// than the network.
func (r *Runtime) FromCache() bool {
	return r.fromCache
}

// Exports returns the sorted names of the artifact's exported functions.
func (r *Runtime) Exports() []string {
	if r.closed.Load() {
		return nil
	}

	defs := r.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether the artifact exports a function with this name.
func (r *Runtime) HasExport(name string) bool {
	if r.closed.Load() {
		return false
	}
	return r.module.ExportedFunction(name) != nil
}

// ExportSignature describes one exported function's core wasm type.
type ExportSignature struct {
	Name    string
	Params  []string
	Results []string
}

// ExportSignatures returns the exported functions with their value types,
// sorted by name.
func (r *Runtime) ExportSignatures() []ExportSignature {
	if r.closed.Load() {
		return nil
	}

	defs := r.module.ExportedFunctionDefinitions()
	sigs := make([]ExportSignature, 0, len(defs))
	for name, def := range defs {
		sig := ExportSignature{Name: name}
		for _, p := range def.ParamTypes() {
			sig.Params = append(sig.Params, api.ValueTypeName(p))
		}
		for _, res := range def.ResultTypes() {
			sig.Results = append(sig.Results, api.ValueTypeName(res))
		}
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })
	return sigs
}

// Call invokes an exported function with raw stack values. The call is
// serialized against every other call into the guest.
func (r *Runtime) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if r.closed.Load() {
		return nil, rerrors.NotInitialized(rerrors.PhaseCall, "runtime")
	}

	fn := r.module.ExportedFunction(name)
	if fn == nil {
		return nil, rerrors.ExportNotFound(name)
	}

	r.callMu.Lock()
	defer r.callMu.Unlock()

	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("call %q: %w", name, err)
	}
	return results, nil
}

// Memory returns host-side access to the artifact's linear memory, or nil
// when the artifact exports none.
func (r *Runtime) Memory() riveruntime.Memory {
	if r.mem == nil {
		return nil
	}
	return r.mem
}

// Allocator returns the guest allocator when the artifact exports malloc
// and free.
func (r *Runtime) Allocator() (riveruntime.Allocator, bool) {
	if r.alloc == nil {
		return nil, false
	}
	return r.alloc, true
}

// Close tears down the runtime and everything instantiated in it. Close is
// idempotent; the handle is unusable afterwards.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.runtime.Close(ctx)
}

// wazeroMemory adapts wazero's memory to the riveruntime.Memory interface.
type wazeroMemory struct {
	mem api.Memory
}

func (m *wazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, rerrors.OutOfBounds(offset, length, m.mem.Size())
	}
	return data, nil
}

func (m *wazeroMemory) Write(offset uint32, data []byte) error {
	if ok := m.mem.Write(offset, data); !ok {
		return rerrors.OutOfBounds(offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

func (m *wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, rerrors.OutOfBounds(offset, 4, m.mem.Size())
	}
	return val, nil
}

func (m *wazeroMemory) WriteU32(offset uint32, value uint32) error {
	if ok := m.mem.WriteUint32Le(offset, value); !ok {
		return rerrors.OutOfBounds(offset, 4, m.mem.Size())
	}
	return nil
}

func (m *wazeroMemory) ReadF32(offset uint32) (float32, error) {
	val, ok := m.mem.ReadFloat32Le(offset)
	if !ok {
		return 0, rerrors.OutOfBounds(offset, 4, m.mem.Size())
	}
	return val, nil
}

func (m *wazeroMemory) WriteF32(offset uint32, value float32) error {
	if ok := m.mem.WriteFloat32Le(offset, value); !ok {
		return rerrors.OutOfBounds(offset, 4, m.mem.Size())
	}
	return nil
}

func (m *wazeroMemory) Size() uint32 {
	return m.mem.Size()
}

// guestAllocator drives the artifact's exported malloc/free pair.
type guestAllocator struct {
	rt     *Runtime
	malloc api.Function
	free   api.Function
}

func (a *guestAllocator) Alloc(size uint32) (uint32, error) {
	if a.rt.closed.Load() {
		return 0, rerrors.NotInitialized(rerrors.PhaseCall, "runtime")
	}

	a.rt.callMu.Lock()
	defer a.rt.callMu.Unlock()

	results, err := a.malloc.Call(context.Background(), uint64(size))
	if err != nil {
		return 0, fmt.Errorf("guest malloc: %w", err)
	}
	if len(results) == 0 || results[0] == 0 {
		return 0, rerrors.AllocationFailed(size)
	}
	return uint32(results[0]), nil
}

func (a *guestAllocator) Free(ptr uint32) error {
	if a.rt.closed.Load() {
		return rerrors.NotInitialized(rerrors.PhaseCall, "runtime")
	}

	a.rt.callMu.Lock()
	defer a.rt.callMu.Unlock()

	if _, err := a.free.Call(context.Background(), uint64(ptr)); err != nil {
		return fmt.Errorf("guest free: %w", err)
	}
	return nil
}

// Compile-time checks that the wrappers satisfy the root interfaces.
var (
	_ riveruntime.Memory    = (*wazeroMemory)(nil)
	_ riveruntime.Allocator = (*guestAllocator)(nil)
)
