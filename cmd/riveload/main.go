package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/rivekit/rive-runtime-go/artifact"
	"github.com/rivekit/rive-runtime-go/cache"
	"github.com/rivekit/rive-runtime-go/engine"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
	"github.com/rivekit/rive-runtime-go/fetch"
	"github.com/rivekit/rive-runtime-go/internal/config"
	"github.com/rivekit/rive-runtime-go/loader"

	_ "gocloud.dev/blob/fileblob"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		wasmURL     = flag.String("url", "", "Artifact URL (default: the pinned CDN build)")
		cacheDir    = flag.String("cache", "", "Directory for the local artifact cache")
		revalidate  = flag.Bool("revalidate", false, "Revalidate cached artifacts against the CDN")
		funcName    = flag.String("func", "", "Exported function to call")
		funcArgs    = flag.String("args", "", "Arguments for -func (comma-separated numbers)")
		timeout     = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
		inspectOnly = flag.Bool("inspect", false, "Fetch the artifact and print its structure without instantiating")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fatal(err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fatal(err)
	}
	if *wasmURL != "" {
		cfg.WasmURL = *wasmURL
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *revalidate {
		cfg.Revalidate = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *inspectOnly {
		if err := runInspect(ctx, cfg); err != nil {
			fatal(err)
		}
		return
	}

	l, cleanup, err := buildLoader(cfg, log)
	if err != nil {
		fatal(err)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			cleanup()
			fatal(fmt.Errorf("interactive mode needs a terminal"))
		}
		err = runInteractive(l)
	} else {
		err = run(ctx, l, *funcName, *funcArgs, *list)
	}

	cleanup()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// buildLogger creates a console logger at the configured level for load
// diagnostics. User-facing output goes to stdout separately.
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// buildLoader assembles a loader from the configuration. The returned
// cleanup releases the cache store, if one was opened.
func buildLoader(cfg config.Config, log *zap.Logger) (*loader.Loader, func(), error) {
	opts := []loader.Option{
		loader.WithLogger(log),
		loader.WithFetcher(fetch.NewClient(cfg.Fetch.Options())),
	}
	cleanup := func() {}

	if cfg.WasmURL != "" {
		opts = append(opts, loader.WithWasmURL(cfg.WasmURL))
	}
	if cfg.CacheDir != "" {
		store, err := cache.OpenDirectory(context.Background(), cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, loader.WithCache(store, cfg.Revalidate))
		cleanup = func() { store.Close() }
	}
	if cfg.MemoryLimitPages > 0 {
		opts = append(opts, loader.WithMemoryLimit(cfg.MemoryLimitPages))
	}

	return loader.New(opts...), cleanup, nil
}

func run(ctx context.Context, l *loader.Loader, funcName, argsStr string, listOnly bool) error {
	fmt.Printf("Loading runtime from %s\n", l.WasmURL())

	failures := make(chan *rerrors.TerminalError, 1)
	l.OnLoadFailure(func(terr *rerrors.TerminalError) {
		select {
		case failures <- terr:
		default:
		}
	})

	future := l.AwaitInstance()
	var rt *engine.Runtime
	select {
	case <-future.Done():
		rt, _ = future.TryGet()
	case terr := <-failures:
		return terr
	case <-ctx.Done():
		return ctx.Err()
	}
	defer rt.Close(context.Background())

	from := "network"
	if rt.FromCache() {
		from = "cache"
	}
	fmt.Printf("Loaded %d bytes from %s (%s)\n", rt.ArtifactSize(), rt.SourceURL(), from)

	sigs := rt.ExportSignatures()
	fmt.Printf("\nExported functions:\n")
	for _, sig := range sigs {
		fmt.Printf("  %s\n", formatSignature(sig))
	}

	if listOnly || funcName == "" {
		return nil
	}

	var resultTypes []string
	for _, sig := range sigs {
		if sig.Name == funcName {
			resultTypes = sig.Results
		}
	}

	args, err := parseArgs(argsStr)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argsStr)
	results, err := rt.Call(ctx, funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %s\n", formatResults(results, resultTypes))

	return nil
}

// runInspect downloads the artifact and prints its structure without
// compiling or instantiating it.
func runInspect(ctx context.Context, cfg config.Config) error {
	url := cfg.WasmURL
	if url == "" {
		url = artifact.PrimaryURL()
	}

	client := fetch.NewClient(cfg.Fetch.Options())
	art, err := client.Fetch(ctx, url)
	if err != nil {
		return err
	}

	info, err := engine.Inspect(art.Data)
	if err != nil {
		return err
	}

	fmt.Printf("Artifact: %s\n", url)
	fmt.Printf("Size: %d bytes\n", len(art.Data))
	if art.ETag != "" {
		fmt.Printf("ETag: %s\n", art.ETag)
	}
	fmt.Printf("Binary version: %d, layer: %d\n", info.Version, info.Layer)
	if info.IsComponent() {
		fmt.Println("Format: component model (not loadable by this runtime)")
		return nil
	}

	fmt.Printf("\nImports (%d):\n", len(info.Imports))
	for _, imp := range info.Imports {
		fmt.Printf("  %s.%s (%s)\n", imp.Module, imp.Name, imp.Kind)
	}
	fmt.Printf("\nExports (%d):\n", len(info.Exports))
	for _, exp := range info.Exports {
		fmt.Printf("  %s (%s)\n", exp.Name, exp.Kind)
	}

	return nil
}

func formatSignature(sig engine.ExportSignature) string {
	s := sig.Name + "(" + strings.Join(sig.Params, ", ") + ")"
	if len(sig.Results) > 0 {
		s += " -> " + strings.Join(sig.Results, ", ")
	}
	return s
}

// parseArgs parses comma-separated integers into raw stack values.
func parseArgs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if v, err := strconv.ParseUint(p, 0, 64); err == nil {
			args = append(args, v)
			continue
		}
		v, err := strconv.ParseInt(p, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p, err)
		}
		args = append(args, uint64(v))
	}
	return args, nil
}

func formatResults(results []uint64, types []string) string {
	if len(results) == 0 {
		return "(no results)"
	}
	parts := make([]string, len(results))
	for i, r := range results {
		typ := ""
		if i < len(types) {
			typ = types[i]
		}
		parts[i] = formatValue(r, typ)
	}
	return strings.Join(parts, ", ")
}

// formatValue renders a raw stack value using the export's declared type.
func formatValue(v uint64, typ string) string {
	switch typ {
	case "i32":
		return strconv.FormatInt(int64(int32(uint32(v))), 10)
	case "i64":
		return strconv.FormatInt(int64(v), 10)
	case "f32":
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case "f64":
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	}
	return strconv.FormatUint(v, 10)
}

// convertArg parses one user-entered argument for the declared value type.
func convertArg(value, typ string) uint64 {
	switch typ {
	case "i32":
		v, _ := strconv.ParseInt(value, 0, 32)
		return api.EncodeI32(int32(v))
	case "i64":
		v, _ := strconv.ParseInt(value, 0, 64)
		return api.EncodeI64(v)
	case "f32":
		v, _ := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v))
	case "f64":
		v, _ := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v)
	}
	v, _ := strconv.ParseUint(value, 0, 64)
	return v
}
