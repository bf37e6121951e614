package loader

import (
	"sync"

	"github.com/rivekit/rive-runtime-go/engine"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
)

// Default loader instance and initialization guard.
var (
	defaultLoader *Loader
	defaultOnce   sync.Once
)

// Default returns the process-wide loader instance.
// Creates a plain loader on first call if not already initialized.
func Default() *Loader {
	defaultOnce.Do(func() {
		defaultLoader = New()
	})
	return defaultLoader
}

// InitDefault initializes the process-wide loader with a configured instance.
// Must be called before any call to Default() to take effect.
// Safe for concurrent use but only the first call has any effect.
func InitDefault(l *Loader) {
	defaultOnce.Do(func() {
		defaultLoader = l
	})
}

// ResetDefault resets the process-wide loader for testing purposes.
// This is NOT thread-safe and should only be used in tests.
func ResetDefault() {
	defaultOnce = sync.Once{}
	defaultLoader = nil
}

// RequestInstance delivers the shared runtime to cb via the process-wide
// loader. See Loader.RequestInstance.
func RequestInstance(cb Callback) {
	Default().RequestInstance(cb)
}

// AwaitInstance returns a future for the process-wide loader's runtime.
// See Loader.AwaitInstance.
func AwaitInstance() *InstanceFuture {
	return Default().AwaitInstance()
}

// SetWasmURL overrides the artifact location for the process-wide loader.
// See Loader.SetWasmURL.
func SetWasmURL(url string) {
	Default().SetWasmURL(url)
}

// LoadRuntime triggers a load on the process-wide loader if none has
// succeeded and none is running. See Loader.LoadRuntime.
func LoadRuntime() {
	Default().LoadRuntime()
}

// Instance returns the process-wide loader's runtime without triggering a
// load.
func Instance() (*engine.Runtime, bool) {
	return Default().Instance()
}

// OnLoadFailure registers a failure observer on the process-wide loader.
// See Loader.OnLoadFailure.
func OnLoadFailure(fn FailureObserver) {
	Default().OnLoadFailure(fn)
}

// LastFailure returns the process-wide loader's most recent terminal
// failure, or nil.
func LastFailure() *rerrors.TerminalError {
	return Default().LastFailure()
}
