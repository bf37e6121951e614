package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf8"

	rerrors "github.com/rivekit/rive-runtime-go/errors"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6D}

const (
	sectionImport byte = 2
	sectionExport byte = 7

	wasiModuleName = "wasi_snapshot_preview1"
)

// Info summarizes an artifact binary without executing it. For core modules
// the import and export sections are decoded; component-model binaries stop
// at the header since their section encoding is a different format.
type Info struct {
	Version uint16
	Layer   uint16
	Imports []Import
	Exports []Export
}

// Import is a single entry from the binary's import section.
type Import struct {
	Module string
	Name   string
	Kind   string
}

// Export is a single entry from the binary's export section.
type Export struct {
	Name string
	Kind string
}

// IsCoreModule reports whether the binary is a plain core module, the only
// format this engine instantiates.
func (i *Info) IsCoreModule() bool {
	return i.Version == 1 && i.Layer == 0
}

// IsComponent reports whether the binary is a component-model artifact.
func (i *Info) IsComponent() bool {
	return i.Layer != 0
}

// NeedsWASI reports whether the module imports the WASI preview1 namespace.
func (i *Info) NeedsWASI() bool {
	for _, imp := range i.Imports {
		if imp.Module == wasiModuleName {
			return true
		}
	}
	return false
}

// Inspect decodes the header and the import/export sections of a wasm binary.
// It is a preflight check, not a validator: wazero stays authoritative for
// anything deeper than section framing.
func Inspect(data []byte) (*Info, error) {
	if len(data) < 8 {
		return nil, rerrors.New(rerrors.PhaseInspect, rerrors.KindInvalidArtifact).
			Detail("binary is %d bytes, shorter than the 8-byte header", len(data)).
			Build()
	}
	if !bytes.Equal(data[0:4], wasmMagic) {
		return nil, rerrors.New(rerrors.PhaseInspect, rerrors.KindInvalidArtifact).
			Detail(`missing \0asm magic`).
			Build()
	}

	info := &Info{
		Version: binary.LittleEndian.Uint16(data[4:6]),
		Layer:   binary.LittleEndian.Uint16(data[6:8]),
	}
	if !info.IsCoreModule() {
		return info, nil
	}

	r := &byteReader{data: data, off: 8}
	for r.len() > 0 {
		id, err := r.u8()
		if err != nil {
			return nil, sectionError("section id", err)
		}
		size, err := r.u32()
		if err != nil {
			return nil, sectionError("section size", err)
		}
		body, err := r.take(size)
		if err != nil {
			return nil, sectionError("section body", err)
		}

		switch id {
		case sectionImport:
			info.Imports, err = parseImports(body)
			if err != nil {
				return nil, sectionError("import section", err)
			}
		case sectionExport:
			info.Exports, err = parseExports(body)
			if err != nil {
				return nil, sectionError("export section", err)
			}
		}
	}

	return info, nil
}

func sectionError(where string, err error) *rerrors.Error {
	return rerrors.New(rerrors.PhaseInspect, rerrors.KindInvalidArtifact).
		Detail("%s: %v", where, err).
		Build()
}

func parseImports(body []byte) ([]Import, error) {
	r := &byteReader{data: body}

	count, err := r.u32()
	if err != nil {
		return nil, err
	}

	imports := make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.name()
		if err != nil {
			return nil, err
		}
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}

		switch kind {
		case 0x00: // function: type index
			if _, err := r.u32(); err != nil {
				return nil, err
			}
		case 0x01: // table: reftype + limits
			if _, err := r.u8(); err != nil {
				return nil, err
			}
			if err := r.skipLimits(); err != nil {
				return nil, err
			}
		case 0x02: // memory: limits
			if err := r.skipLimits(); err != nil {
				return nil, err
			}
		case 0x03: // global: valtype + mutability
			if _, err := r.u8(); err != nil {
				return nil, err
			}
			if _, err := r.u8(); err != nil {
				return nil, err
			}
		default:
			return nil, errBadIndexKind
		}

		imports = append(imports, Import{
			Module: module,
			Name:   name,
			Kind:   indexKindName(kind),
		})
	}

	return imports, nil
}

func parseExports(body []byte) ([]Export, error) {
	r := &byteReader{data: body}

	count, err := r.u32()
	if err != nil {
		return nil, err
	}

	exports := make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		if kind > 0x03 {
			return nil, errBadIndexKind
		}
		if _, err := r.u32(); err != nil {
			return nil, err
		}

		exports = append(exports, Export{
			Name: name,
			Kind: indexKindName(kind),
		})
	}

	return exports, nil
}

func indexKindName(kind byte) string {
	switch kind {
	case 0x00:
		return "func"
	case 0x01:
		return "table"
	case 0x02:
		return "memory"
	case 0x03:
		return "global"
	}
	return "unknown"
}

var (
	errUnexpectedEnd = errors.New("unexpected end of binary")
	errLEBOverflow   = errors.New("varint exceeds 32 bits")
	errBadName       = errors.New("name is not valid UTF-8")
	errBadIndexKind  = errors.New("unknown index kind")
)

// byteReader is a cursor over raw module bytes.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) len() int {
	return len(r.data) - r.off
}

func (r *byteReader) u8() (byte, error) {
	if r.off >= len(r.data) {
		return 0, errUnexpectedEnd
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// u32 reads a LEB128-encoded unsigned 32-bit integer.
func (r *byteReader) u32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.u8()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b > 0x0F {
			return 0, errLEBOverflow
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 28 {
			return 0, errLEBOverflow
		}
	}
}

func (r *byteReader) take(n uint32) ([]byte, error) {
	if uint64(n) > uint64(r.len()) {
		return nil, errUnexpectedEnd
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *byteReader) name() (string, error) {
	length, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.take(length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errBadName
	}
	return string(b), nil
}

func (r *byteReader) skipLimits() error {
	flags, err := r.u8()
	if err != nil {
		return err
	}
	if _, err := r.u32(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, err := r.u32(); err != nil {
			return err
		}
	}
	return nil
}
