package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rivekit/rive-runtime-go/artifact"
	"github.com/rivekit/rive-runtime-go/engine"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
)

// urlRecorder tracks the artifact URL of every load attempt.
type urlRecorder struct {
	mu   sync.Mutex
	urls []string
}

func (r *urlRecorder) add(url string) {
	r.mu.Lock()
	r.urls = append(r.urls, url)
	r.mu.Unlock()
}

func (r *urlRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

// initSucceeding scripts a load that succeeds on any URL.
func initSucceeding(rec *urlRecorder, rt *engine.Runtime) InitFunc {
	return func(_ context.Context, cfg engine.Config) (*engine.Runtime, error) {
		rec.add(cfg.LocateFile())
		return rt, nil
	}
}

// initSucceedingOn scripts a load that only succeeds on one URL.
func initSucceedingOn(rec *urlRecorder, rt *engine.Runtime, ok string) InitFunc {
	return func(_ context.Context, cfg engine.Config) (*engine.Runtime, error) {
		url := cfg.LocateFile()
		rec.add(url)
		if url == ok {
			return rt, nil
		}
		return nil, errors.New("dial tcp: connection refused")
	}
}

// initFailing scripts a load that fails on every URL.
func initFailing(rec *urlRecorder) InitFunc {
	return func(_ context.Context, cfg engine.Config) (*engine.Runtime, error) {
		rec.add(cfg.LocateFile())
		return nil, errors.New("dial tcp: connection refused")
	}
}

func waitSettled(t *testing.T, f *InstanceFuture) *engine.Runtime {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("future did not settle: %v", err)
	}
	return rt
}

func recvFailure(t *testing.T, ch <-chan *rerrors.TerminalError) *rerrors.TerminalError {
	t.Helper()
	select {
	case terr := <-ch:
		return terr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal failure")
		return nil
	}
}

// waitFailure blocks until the loader reports a terminal failure. Works
// whether the failure already happened or is still in flight, since a late
// observer is replayed the stored failure.
func waitFailure(t *testing.T, l *Loader) *rerrors.TerminalError {
	t.Helper()
	ch := make(chan *rerrors.TerminalError, 1)
	l.OnLoadFailure(func(terr *rerrors.TerminalError) {
		select {
		case ch <- terr:
		default:
		}
	})
	return recvFailure(t, ch)
}

func TestRequestInstanceDeliversRuntime(t *testing.T) {
	rec := &urlRecorder{}
	rt := new(engine.Runtime)
	l := New(WithInitializer(initSucceeding(rec, rt)))

	if l.Loading() {
		t.Error("loader should be idle before the first request")
	}

	got := make(chan *engine.Runtime, 1)
	l.RequestInstance(func(r *engine.Runtime) { got <- r })

	if !l.Loading() {
		t.Error("first request should mark the loader as loading")
	}

	select {
	case r := <-got:
		if r != rt {
			t.Errorf("callback got %p, want %p", r, rt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never invoked")
	}

	if want := []string{artifact.PrimaryURL()}; !reflect.DeepEqual(rec.snapshot(), want) {
		t.Errorf("attempted %v, want %v", rec.snapshot(), want)
	}

	if r, ok := l.Instance(); !ok || r != rt {
		t.Errorf("Instance() = %p, %v", r, ok)
	}

	// The runtime is loaded now, so delivery is synchronous.
	var called bool
	l.RequestInstance(func(*engine.Runtime) { called = true })
	if !called {
		t.Error("request after load should be served before returning")
	}
}

func TestLoadStartsOnce(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	rt := new(engine.Runtime)
	init := func(_ context.Context, _ engine.Config) (*engine.Runtime, error) {
		calls.Add(1)
		<-release
		return rt, nil
	}
	l := New(WithInitializer(init))

	const requests = 20
	done := make(chan struct{})
	var delivered atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RequestInstance(func(*engine.Runtime) {
				if delivered.Add(1) == requests {
					close(done)
				}
			})
		}()
	}
	wg.Wait()

	l.LoadRuntime() // already in flight, must not start another

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d of %d callbacks delivered", delivered.Load(), requests)
	}

	if calls.Load() != 1 {
		t.Errorf("init ran %d times, want 1", calls.Load())
	}

	l.LoadRuntime() // already loaded, must not start another
	if calls.Load() != 1 {
		t.Errorf("LoadRuntime after success reran init, %d calls", calls.Load())
	}
}

func TestQueueDrainsInOrder(t *testing.T) {
	release := make(chan struct{})
	rt := new(engine.Runtime)
	init := func(_ context.Context, _ engine.Config) (*engine.Runtime, error) {
		<-release
		return rt, nil
	}
	l := New(WithInitializer(init))

	var order []int
	done := make(chan struct{})
	for i := 1; i <= 5; i++ {
		l.RequestInstance(func(*engine.Runtime) {
			order = append(order, i)
			if i == 5 {
				close(done)
			}
		})
	}

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never drained")
	}

	if want := []int{1, 2, 3, 4, 5}; !reflect.DeepEqual(order, want) {
		t.Errorf("drain order %v, want %v", order, want)
	}
}

func TestReentrantRequestServedSynchronously(t *testing.T) {
	release := make(chan struct{})
	rt := new(engine.Runtime)
	init := func(_ context.Context, _ engine.Config) (*engine.Runtime, error) {
		<-release
		return rt, nil
	}
	l := New(WithInitializer(init))

	var order []string
	done := make(chan struct{})
	l.RequestInstance(func(*engine.Runtime) {
		order = append(order, "first")
		l.RequestInstance(func(*engine.Runtime) {
			order = append(order, "reentrant")
		})
		order = append(order, "first-end")
	})
	l.RequestInstance(func(*engine.Runtime) {
		order = append(order, "second")
		close(done)
	})

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never drained")
	}

	// The handle is published before the drain starts, so the request made
	// inside the first callback is answered inline, ahead of the second
	// queued callback.
	want := []string{"first", "reentrant", "first-end", "second"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order %v, want %v", order, want)
	}
}

func TestAwaitInstance(t *testing.T) {
	rec := &urlRecorder{}
	rt := new(engine.Runtime)
	l := New(WithInitializer(initSucceeding(rec, rt)))

	f := l.AwaitInstance()
	if got := waitSettled(t, f); got != rt {
		t.Errorf("future settled with %p, want %p", got, rt)
	}
	if got, ok := f.TryGet(); !ok || got != rt {
		t.Errorf("TryGet = %p, %v", got, ok)
	}
}

func TestFallbackAfterPrimaryFailure(t *testing.T) {
	rec := &urlRecorder{}
	rt := new(engine.Runtime)
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(
		WithInitializer(initSucceedingOn(rec, rt, artifact.FallbackURL())),
		WithLogger(zap.New(core)),
	)

	if got := waitSettled(t, l.AwaitInstance()); got != rt {
		t.Errorf("future settled with %p, want %p", got, rt)
	}

	want := []string{artifact.PrimaryURL(), artifact.FallbackURL()}
	if !reflect.DeepEqual(rec.snapshot(), want) {
		t.Errorf("attempted %v, want %v", rec.snapshot(), want)
	}

	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 1 {
		t.Errorf("expected 1 warn entry for the fallback hop, got %d", n)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("successful fallback should not log errors, got %d", n)
	}
}

func TestTerminalFailureIsQuiet(t *testing.T) {
	rec := &urlRecorder{}
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(WithInitializer(initFailing(rec)), WithLogger(zap.New(core)))

	var fired atomic.Bool
	l.RequestInstance(func(*engine.Runtime) { fired.Store(true) })
	f := l.AwaitInstance()

	terr := waitFailure(t, l)

	want := []string{artifact.PrimaryURL(), artifact.FallbackURL()}
	if !reflect.DeepEqual(terr.Attempted, want) {
		t.Errorf("attempted %v, want %v", terr.Attempted, want)
	}
	if !strings.Contains(terr.Error(), "SetWasmURL") {
		t.Errorf("terminal error should name the recovery path: %v", terr)
	}

	if fired.Load() {
		t.Error("queued callback fired despite terminal failure")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("future should stay unsettled, Wait returned %v", err)
	}

	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Errorf("expected exactly 1 error entry, got %d", n)
	}

	if !l.Loading() {
		t.Error("loading flag should stay set after a terminal failure")
	}
	if l.LastFailure() != terr {
		t.Error("LastFailure should return the reported failure")
	}
	if _, ok := l.Instance(); ok {
		t.Error("Instance should report nothing loaded")
	}

	// Further requests queue silently without retriggering the load.
	l.RequestInstance(func(*engine.Runtime) { fired.Store(true) })
	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("request after terminal failure retriggered the load: %v", got)
	}
	if fired.Load() {
		t.Error("callback queued after terminal failure must not fire")
	}
}

func TestFallbackURLMatchIgnoresCase(t *testing.T) {
	rec := &urlRecorder{}
	upper := strings.ToUpper(artifact.FallbackURL())
	l := New(WithInitializer(initFailing(rec)), WithWasmURL(upper))

	l.LoadRuntime()
	terr := waitFailure(t, l)

	// A configured URL that already is the fallback mirror, in any casing,
	// gets a single attempt.
	if want := []string{upper}; !reflect.DeepEqual(terr.Attempted, want) {
		t.Errorf("attempted %v, want %v", terr.Attempted, want)
	}
	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("expected a single attempt, got %v", got)
	}
}

func TestRecoveryAfterTerminal(t *testing.T) {
	rec := &urlRecorder{}
	rt := new(engine.Runtime)
	good := "https://artifacts.internal.example/rive.wasm"
	l := New(WithInitializer(initSucceedingOn(rec, rt, good)))

	got := make(chan *engine.Runtime, 1)
	l.RequestInstance(func(r *engine.Runtime) { got <- r })
	f := l.AwaitInstance()

	waitFailure(t, l)
	select {
	case <-got:
		t.Fatal("callback fired before recovery")
	default:
	}

	l.SetWasmURL(good)
	l.LoadRuntime()

	select {
	case r := <-got:
		if r != rt {
			t.Errorf("callback got %p, want %p", r, rt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("held callback never delivered after recovery")
	}
	if r := waitSettled(t, f); r != rt {
		t.Errorf("future settled with %p, want %p", r, rt)
	}

	want := []string{artifact.PrimaryURL(), artifact.FallbackURL(), good}
	if !reflect.DeepEqual(rec.snapshot(), want) {
		t.Errorf("attempted %v, want %v", rec.snapshot(), want)
	}

	if l.LastFailure() != nil {
		t.Error("LastFailure should clear after a successful retry")
	}
	if r, ok := l.Instance(); !ok || r != rt {
		t.Errorf("Instance() = %p, %v", r, ok)
	}
}

func TestRetryFailureNotifiesAgain(t *testing.T) {
	rec := &urlRecorder{}
	l := New(WithInitializer(initFailing(rec)))

	ch := make(chan *rerrors.TerminalError, 2)
	l.OnLoadFailure(func(terr *rerrors.TerminalError) { ch <- terr })

	l.LoadRuntime()
	first := recvFailure(t, ch)

	l.LoadRuntime()
	second := recvFailure(t, ch)

	if first == second {
		t.Error("retry should report a fresh failure")
	}
	if got := rec.snapshot(); len(got) != 4 {
		t.Errorf("expected 4 attempts across 2 rounds, got %v", got)
	}
}

func TestObserverReplayAfterFailure(t *testing.T) {
	rec := &urlRecorder{}
	l := New(WithInitializer(initFailing(rec)))

	l.LoadRuntime()
	terr := waitFailure(t, l)

	// Registering after the fact replays the stored failure immediately.
	var replayed *rerrors.TerminalError
	l.OnLoadFailure(func(te *rerrors.TerminalError) { replayed = te })
	if replayed != terr {
		t.Errorf("replayed %v, want %v", replayed, terr)
	}

	l.OnLoadFailure(nil) // ignored
}

func TestSetWasmURLUsedForFirstAttempt(t *testing.T) {
	rec := &urlRecorder{}
	rt := new(engine.Runtime)
	custom := "https://cdn.example.com/custom/rive.wasm"
	l := New(WithInitializer(initSucceedingOn(rec, rt, custom)), WithWasmURL(custom))

	if l.WasmURL() != custom {
		t.Errorf("WasmURL = %q, want %q", l.WasmURL(), custom)
	}

	waitSettled(t, l.AwaitInstance())
	if want := []string{custom}; !reflect.DeepEqual(rec.snapshot(), want) {
		t.Errorf("attempted %v, want %v", rec.snapshot(), want)
	}
}

func TestWasmURLDefaultsToPrimary(t *testing.T) {
	if got := New().WasmURL(); got != artifact.PrimaryURL() {
		t.Errorf("WasmURL = %q, want %q", got, artifact.PrimaryURL())
	}
}

func TestNilCallbackIgnored(t *testing.T) {
	rec := &urlRecorder{}
	l := New(WithInitializer(initFailing(rec)))

	l.RequestInstance(nil)

	if l.Loading() {
		t.Error("nil callback must not trigger a load")
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("nil callback triggered %d attempts", len(got))
	}
}

func TestLoaderWithEngineInit(t *testing.T) {
	// Smallest valid artifact: just the magic and version.
	empty := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/wasm")
		w.Write(empty)
	}))
	defer server.Close()

	l := New(WithWasmURL(server.URL))
	rt := waitSettled(t, l.AwaitInstance())
	defer rt.Close(context.Background())

	if rt.SourceURL() != server.URL {
		t.Errorf("SourceURL = %q, want %q", rt.SourceURL(), server.URL)
	}
	if rt.ArtifactSize() != len(empty) {
		t.Errorf("ArtifactSize = %d, want %d", rt.ArtifactSize(), len(empty))
	}
}
