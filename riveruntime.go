package riveruntime

// Memory is host-side access to an instantiated artifact's linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	ReadF32(offset uint32) (float32, error)
	WriteF32(offset uint32, value float32) error
	Size() uint32
}

// Allocator reserves guest memory through the artifact's own allocator
// exports, malloc and free in emscripten-style builds. Buffers passed to
// the animation engine must live in guest memory, so hosts allocate them
// here before writing.
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Free(ptr uint32) error
}
