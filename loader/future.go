package loader

import (
	"context"
	"sync"

	"github.com/rivekit/rive-runtime-go/engine"
)

// InstanceFuture is the promise-style counterpart to RequestInstance. It
// settles exactly once, with the runtime handle, when the load that it is
// queued behind completes. A terminal load failure does not settle the
// future; bound waits belong in the caller's context.
type InstanceFuture struct {
	once sync.Once
	done chan struct{}
	rt   *engine.Runtime
}

func newInstanceFuture() *InstanceFuture {
	return &InstanceFuture{done: make(chan struct{})}
}

func (f *InstanceFuture) resolve(rt *engine.Runtime) {
	f.once.Do(func() {
		f.rt = rt
		close(f.done)
	})
}

// Wait blocks until the future settles or ctx ends, whichever comes first.
// The only error Wait returns is the context's.
func (f *InstanceFuture) Wait(ctx context.Context) (*engine.Runtime, error) {
	select {
	case <-f.done:
		return f.rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel that is closed once the future settles.
func (f *InstanceFuture) Done() <-chan struct{} {
	return f.done
}

// TryGet returns the runtime if the future has already settled.
func (f *InstanceFuture) TryGet() (*engine.Runtime, bool) {
	select {
	case <-f.done:
		return f.rt, true
	default:
		return nil, false
	}
}
