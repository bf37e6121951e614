package engine

import (
	"errors"
	"testing"

	rerrors "github.com/rivekit/rive-runtime-go/errors"
)

func TestInspectEmptyModule(t *testing.T) {
	info, err := Inspect(emptyModule)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if info.Version != 1 || info.Layer != 0 {
		t.Errorf("version/layer = %d/%d, want 1/0", info.Version, info.Layer)
	}
	if !info.IsCoreModule() {
		t.Error("expected core module")
	}
	if info.IsComponent() {
		t.Error("unexpected component")
	}
	if len(info.Imports) != 0 || len(info.Exports) != 0 {
		t.Errorf("expected no imports/exports, got %d/%d", len(info.Imports), len(info.Exports))
	}
}

func TestInspectImports(t *testing.T) {
	info, err := Inspect(wasiModule)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if len(info.Imports) != 1 {
		t.Fatalf("expected 1 import, got %d", len(info.Imports))
	}
	imp := info.Imports[0]
	if imp.Module != "wasi_snapshot_preview1" {
		t.Errorf("import module = %q", imp.Module)
	}
	if imp.Name != "proc_exit" {
		t.Errorf("import name = %q", imp.Name)
	}
	if imp.Kind != "func" {
		t.Errorf("import kind = %q", imp.Kind)
	}
	if !info.NeedsWASI() {
		t.Error("expected NeedsWASI")
	}
}

func TestInspectExports(t *testing.T) {
	info, err := Inspect(answerModule)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if info.NeedsWASI() {
		t.Error("unexpected NeedsWASI")
	}
	if len(info.Exports) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(info.Exports))
	}
	if info.Exports[0].Name != "answer" || info.Exports[0].Kind != "func" {
		t.Errorf("export 0 = %+v", info.Exports[0])
	}
	if info.Exports[1].Name != "memory" || info.Exports[1].Kind != "memory" {
		t.Errorf("export 1 = %+v", info.Exports[1])
	}
}

func TestInspectComponent(t *testing.T) {
	info, err := Inspect(componentHeader)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if !info.IsComponent() {
		t.Error("expected component")
	}
	if info.IsCoreModule() {
		t.Error("component reported as core module")
	}
	if info.Version != 13 || info.Layer != 1 {
		t.Errorf("version/layer = %d/%d, want 13/1", info.Version, info.Layer)
	}
}

func TestInspectRejectsBadBinaries(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "too short",
			data: []byte{0x00, 0x61, 0x73},
		},
		{
			name: "bad magic",
			data: []byte{0xFF, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00},
		},
		{
			name: "section size exceeds binary",
			data: []byte{
				0x00, 0x61, 0x73, 0x6D,
				0x01, 0x00, 0x00, 0x00,
				0x02, 0x24, // import section claims 36 bytes
				0x01, 0x16, // only 2 present
			},
		},
		{
			name: "truncated section size",
			data: []byte{
				0x00, 0x61, 0x73, 0x6D,
				0x01, 0x00, 0x00, 0x00,
				0x02, // import section id, no size
			},
		},
		{
			name: "unknown import kind",
			data: []byte{
				0x00, 0x61, 0x73, 0x6D,
				0x01, 0x00, 0x00, 0x00,
				0x02, 0x07, 0x01, // import section, 1 import
				0x01, 'm', 0x01, 'n', // module "m", name "n"
				0x07, 0x00, // kind 7 is not a thing
			},
		},
		{
			name: "import name not utf8",
			data: []byte{
				0x00, 0x61, 0x73, 0x6D,
				0x01, 0x00, 0x00, 0x00,
				0x02, 0x07, 0x01, // import section, 1 import
				0x01, 0xFF, // module name is an invalid byte
				0x01, 'n',
				0x00, 0x00,
			},
		},
		{
			name: "oversized varint",
			data: []byte{
				0x00, 0x61, 0x73, 0x6D,
				0x01, 0x00, 0x00, 0x00,
				0x02, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F, // section size needs 33 bits
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Inspect(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, &rerrors.Error{Phase: rerrors.PhaseInspect, Kind: rerrors.KindInvalidArtifact}) {
				t.Errorf("expected inspect/invalid_artifact, got %v", err)
			}
		})
	}
}

func TestInspectSkipsUnknownSections(t *testing.T) {
	// A custom section before the export section must not disturb parsing.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D,
		0x01, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x01, 'x', 0xDE, 0xAD, // custom section, opaque payload
		0x05, 0x03, 0x01, 0x00, 0x01, // memory section
		0x07, 0x0A, 0x01, // export section, 1 export
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" memory 0
	}

	info, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(info.Exports) != 1 || info.Exports[0].Name != "memory" {
		t.Errorf("exports = %+v", info.Exports)
	}
}
