// Package artifact pins the identity of the engine build this library loads
// and knows where the published binaries live.
package artifact

import "fmt"

const (
	// Name is the npm package the compiled engine ships in.
	Name = "@rive-app/canvas"

	// Version is the engine build this library release is pinned to. Loader
	// and artifact version ship together, so running a different build means
	// overriding the URL via SetWasmURL.
	Version = "2.31.4"

	// Filename is the primary build inside the package.
	Filename = "rive.wasm"

	// FallbackFilename is the alternate build served from the mirror.
	FallbackFilename = "rive_fallback.wasm"
)

// PrimaryURL returns the pinned build's primary CDN location.
func PrimaryURL() string {
	primary, _ := URLs(Name, Version)
	return primary
}

// FallbackURL returns the mirror location tried when the primary fails.
func FallbackURL() string {
	_, fallback := URLs(Name, Version)
	return fallback
}

// URLs returns the primary and fallback locations for an arbitrary build,
// for hosts that pin a different package or version.
func URLs(name, version string) (primary, fallback string) {
	primary = fmt.Sprintf("https://unpkg.com/%s@%s/%s", name, version, Filename)
	fallback = fmt.Sprintf("https://cdn.jsdelivr.net/npm/%s@%s/%s", name, version, FallbackFilename)
	return primary, fallback
}
