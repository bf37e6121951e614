package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/rivekit/rive-runtime-go/cache"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
	"github.com/rivekit/rive-runtime-go/fetch"
)

// Config holds everything Init needs to locate and run an artifact.
type Config struct {
	// LocateFile resolves the artifact URL for this attempt. Required. The
	// loader passes a resolver so URL overrides apply without rebuilding
	// configuration.
	LocateFile func() string

	// Fetcher downloads the artifact. Nil gets a client with default options.
	Fetcher *fetch.Client

	// Cache holds previously downloaded artifacts. Nil disables caching.
	Cache *cache.Store

	// RevalidateCache checks the CDN's ETag with a HEAD request before
	// serving a cached copy, refetching when it moved. Without it a cache
	// hit skips the network entirely.
	RevalidateCache bool

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB
	// each). 0 means the wazero default.
	MemoryLimitPages uint32

	// Logger for load diagnostics. Nil falls back to the package logger.
	Logger *zap.Logger
}

// Init fetches, compiles and instantiates the engine artifact, returning the
// shared runtime handle. The pipeline is cache lookup, download, preflight
// inspection, compile, instantiate. Every failure comes back as a structured
// error naming the pipeline phase.
func Init(ctx context.Context, cfg Config) (*Runtime, error) {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	if cfg.LocateFile == nil {
		return nil, rerrors.InvalidInput(rerrors.PhaseResolve, "LocateFile resolver is required")
	}
	url := cfg.LocateFile()
	if url == "" {
		return nil, rerrors.InvalidInput(rerrors.PhaseResolve, "artifact URL is empty")
	}

	start := time.Now()

	data, cached, err := artifactBytes(ctx, cfg, url, log)
	if err != nil {
		return nil, err
	}

	info, err := Inspect(data)
	if err != nil {
		var e *rerrors.Error
		if errors.As(err, &e) {
			e.URL = url
		}
		return nil, err
	}
	if !info.IsCoreModule() {
		return nil, rerrors.Unsupported(url,
			fmt.Sprintf("binary version %d layer %d; expected a core module", info.Version, info.Layer))
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := r.CompileModule(ctx, data)
	if err != nil {
		r.Close(ctx)
		return nil, rerrors.Compile(url, err)
	}

	if info.NeedsWASI() {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			r.Close(ctx)
			return nil, rerrors.Instantiation(url, err)
		}
	}

	// The artifact is a reactor, not a command: suppress _start and run the
	// explicit initializer export instead.
	modCfg := wazero.NewModuleConfig().
		WithName("rive").
		WithStartFunctions()
	mod, err := r.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		r.Close(ctx)
		return nil, rerrors.Instantiation(url, err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			r.Close(ctx)
			return nil, rerrors.Instantiation(url, err)
		}
	}

	rt := newRuntime(r, mod, url, len(data), cached)

	log.Info("engine artifact loaded",
		zap.String("url", url),
		zap.Int("size_bytes", len(data)),
		zap.Bool("cached", cached),
		zap.Int("exports", len(rt.Exports())),
		zap.Duration("elapsed", time.Since(start)))

	return rt, nil
}

// artifactBytes returns the artifact binary for url, from cache when
// possible. Cache failures degrade to a fetch; fetch failures are fatal for
// the attempt.
func artifactBytes(ctx context.Context, cfg Config, url string, log *zap.Logger) (data []byte, cached bool, err error) {
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewClient(fetch.DefaultOptions())
	}

	if cfg.Cache != nil {
		data, etag, err := cfg.Cache.Get(ctx, url)
		switch {
		case err == nil:
			if !cfg.RevalidateCache || stillFresh(ctx, fetcher, url, etag, log) {
				log.Debug("artifact cache hit",
					zap.String("url", url),
					zap.Int("size_bytes", len(data)))
				return data, true, nil
			}
			log.Info("cached artifact is stale, refetching", zap.String("url", url))
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("artifact cache read failed",
				zap.String("url", url),
				zap.Error(err))
		}
	}

	art, err := fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			return nil, false, rerrors.NotFoundAt(url, err)
		}
		return nil, false, rerrors.Fetch(url, err)
	}

	if cfg.Cache != nil {
		if err := cfg.Cache.Put(ctx, url, art.Data, art.ETag); err != nil {
			log.Warn("artifact cache write failed",
				zap.String("url", url),
				zap.Error(err))
		}
	}

	return art.Data, false, nil
}

// stillFresh reports whether the cached copy matches what the CDN serves
// now. An unreachable CDN counts as fresh so cached copies work offline.
func stillFresh(ctx context.Context, fetcher *fetch.Client, url, etag string, log *zap.Logger) bool {
	info, err := fetcher.Head(ctx, url)
	if err != nil {
		log.Warn("artifact revalidation failed, serving cached copy",
			zap.String("url", url),
			zap.Error(err))
		return true
	}
	return info.ETag == etag
}
