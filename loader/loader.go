package loader

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rivekit/rive-runtime-go/artifact"
	"github.com/rivekit/rive-runtime-go/cache"
	"github.com/rivekit/rive-runtime-go/engine"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
	"github.com/rivekit/rive-runtime-go/fetch"
)

// Callback receives the shared runtime handle once it is ready. Callbacks
// registered before the load completes are invoked in registration order.
type Callback func(*engine.Runtime)

// FailureObserver is notified when a load attempt exhausts every artifact
// source. See Loader.OnLoadFailure.
type FailureObserver func(*rerrors.TerminalError)

// InitFunc builds a runtime from a load configuration. It exists so tests
// can substitute the engine pipeline.
type InitFunc func(ctx context.Context, cfg engine.Config) (*engine.Runtime, error)

// Loader owns the lifecycle of a single shared runtime instance. The first
// instance request triggers an asynchronous load; every request made while
// the load is in flight queues up and drains, in order, once the runtime is
// ready. After that, requests are served synchronously.
//
// A load that fails on the primary CDN retries once against the fallback
// mirror. When the fallback also fails the loader goes quiet: queued
// callbacks are held, not dropped, and a caller can recover by pointing
// SetWasmURL at a reachable copy and calling LoadRuntime.
type Loader struct {
	mu          sync.Mutex
	wasmURL     string
	loading     bool
	inflight    bool
	runtime     *engine.Runtime
	queue       []Callback
	observers   []FailureObserver
	lastFailure *rerrors.TerminalError

	// Set at construction, immutable afterwards.
	init       InitFunc
	fetcher    *fetch.Client
	cache      *cache.Store
	revalidate bool
	memPages   uint32
	log        *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithWasmURL points the loader at a custom artifact location instead of the
// pinned CDN build.
func WithWasmURL(url string) Option {
	return func(l *Loader) { l.wasmURL = url }
}

// WithLogger routes load diagnostics to log. The default logger discards
// everything.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithFetcher replaces the HTTP client used to download artifacts.
func WithFetcher(c *fetch.Client) Option {
	return func(l *Loader) { l.fetcher = c }
}

// WithCache stores downloaded artifacts in store and serves repeat loads
// from it. With revalidate set, cached copies are checked against the CDN's
// current ETag before use.
func WithCache(store *cache.Store, revalidate bool) Option {
	return func(l *Loader) {
		l.cache = store
		l.revalidate = revalidate
	}
}

// WithMemoryLimit caps the runtime's linear memory, in 64KB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(l *Loader) { l.memPages = pages }
}

// WithInitializer substitutes the function that turns a load configuration
// into a runtime. Tests use this to script load outcomes.
func WithInitializer(fn InitFunc) Option {
	return func(l *Loader) { l.init = fn }
}

// New creates an idle loader. Nothing is fetched until the first instance
// request or an explicit LoadRuntime call.
func New(opts ...Option) *Loader {
	l := &Loader{
		init: engine.Init,
		log:  Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RequestInstance delivers the shared runtime to cb. If the runtime is
// already loaded the callback runs synchronously before RequestInstance
// returns. Otherwise the callback is queued and the first request starts
// the load. A nil callback is ignored.
//
// Callbacks queued behind a load that ultimately fails are held until a
// later LoadRuntime succeeds; they are never invoked with a nil runtime.
func (l *Loader) RequestInstance(cb Callback) {
	if cb == nil {
		return
	}

	l.mu.Lock()
	if l.runtime != nil {
		rt := l.runtime
		l.mu.Unlock()
		cb(rt)
		return
	}

	l.queue = append(l.queue, cb)
	start := !l.loading
	l.loading = true
	if start {
		l.inflight = true
	}
	l.mu.Unlock()

	if start {
		go l.runLoad()
	}
}

// AwaitInstance returns a future that settles once the shared runtime is
// ready. It participates in the same queue as RequestInstance callbacks: a
// future requested while a load is in flight settles when that load
// completes, and a future requested after a terminal failure stays
// unsettled until a retry succeeds.
func (l *Loader) AwaitInstance() *InstanceFuture {
	f := newInstanceFuture()
	l.RequestInstance(f.resolve)
	return f
}

// SetWasmURL overrides where the next load attempt looks for the artifact.
// It does not interrupt a load already in flight.
func (l *Loader) SetWasmURL(url string) {
	l.mu.Lock()
	l.wasmURL = url
	l.mu.Unlock()
}

// WasmURL returns the location the next load attempt will try first.
func (l *Loader) WasmURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.wasmURL != "" {
		return l.wasmURL
	}
	return artifact.PrimaryURL()
}

// LoadRuntime starts a load if none has succeeded and none is in flight.
// It is the recovery path after a terminal failure: set a reachable URL
// with SetWasmURL, then call LoadRuntime to drain the held queue.
func (l *Loader) LoadRuntime() {
	l.mu.Lock()
	if l.runtime != nil || l.inflight {
		l.mu.Unlock()
		return
	}
	l.loading = true
	l.inflight = true
	l.mu.Unlock()

	go l.runLoad()
}

// Instance returns the loaded runtime without triggering a load.
func (l *Loader) Instance() (*engine.Runtime, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runtime, l.runtime != nil
}

// Loading reports whether a load has ever been requested. It stays true
// after a terminal failure; it does not mean a load is currently running.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// LastFailure returns the most recent terminal failure, or nil if the last
// load succeeded or none has finished yet.
func (l *Loader) LastFailure() *rerrors.TerminalError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastFailure
}

// OnLoadFailure registers fn to be called whenever a load exhausts every
// artifact source. If a terminal failure already happened, fn is invoked
// immediately with it. Observers survive retries and fire again if a retry
// also fails.
func (l *Loader) OnLoadFailure(fn FailureObserver) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	l.observers = append(l.observers, fn)
	last := l.lastFailure
	l.mu.Unlock()

	if last != nil {
		fn(last)
	}
}

// runLoad drives one load to completion on its own goroutine. The first
// attempt uses the configured URL; on failure it retries once against the
// fallback mirror, unless the configured URL already was the fallback.
func (l *Loader) runLoad() {
	ctx := context.Background()
	url := l.WasmURL()

	var attempted []string
	for {
		attemptURL := url
		attempted = append(attempted, attemptURL)

		rt, err := l.init(ctx, engine.Config{
			LocateFile:       func() string { return attemptURL },
			Fetcher:          l.fetcher,
			Cache:            l.cache,
			RevalidateCache:  l.revalidate,
			MemoryLimitPages: l.memPages,
			Logger:           l.log,
		})
		if err == nil {
			l.finishLoad(rt)
			return
		}

		fallback := artifact.FallbackURL()
		if strings.EqualFold(attemptURL, fallback) {
			l.log.Error("runtime wasm could not be loaded from any source",
				zap.Strings("attempted", attempted),
				zap.Error(err))
			l.failTerminal(rerrors.NewTerminal(attempted, err))
			return
		}

		l.log.Warn("artifact source failed, trying fallback mirror",
			zap.String("failed", attemptURL),
			zap.String("fallback", fallback),
			zap.Error(err))
		url = fallback
	}
}

// finishLoad publishes the runtime and drains the queue. The handle is
// visible before the first callback runs, so a callback that requests
// another instance is served synchronously instead of re-queueing behind
// itself.
func (l *Loader) finishLoad(rt *engine.Runtime) {
	l.mu.Lock()
	l.runtime = rt
	l.inflight = false
	l.lastFailure = nil
	l.mu.Unlock()

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		cb := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		cb(rt)
	}
}

// failTerminal records the failure and notifies observers. The queue is
// deliberately left intact so a successful retry can still serve it.
func (l *Loader) failTerminal(terr *rerrors.TerminalError) {
	l.mu.Lock()
	l.inflight = false
	l.lastFailure = terr
	observers := append([]FailureObserver(nil), l.observers...)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(terr)
	}
}
