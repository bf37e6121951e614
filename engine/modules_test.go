package engine

// Hand-assembled core modules used across the engine tests. Offsets follow
// the wasm binary format: magic, version, then (id, size, contents) sections.

// emptyModule is the smallest valid core module: just the header.
var emptyModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version 1, layer 0
}

// componentHeader carries the component-model version/layer fields.
var componentHeader = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x0D, 0x00, 0x01, 0x00, // version 13, layer 1
}

// answerModule exports a function "answer" returning i32 42 and one page of
// memory named "memory".
var answerModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7F, // type section: () -> i32
	0x03, 0x02, 0x01, 0x00, // function section: 1 function with type 0
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, no max, 1 page
	0x07, 0x13, 0x02, // export section: 2 exports
	0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00, // "answer" func 0
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" memory 0
	0x0A, 0x06, 0x01, // code section: 1 body
	0x04, 0x00, 0x41, 0x2A, 0x0B, // no locals, i32.const 42, end
}

// allocModule exports "malloc" (returns a fixed pointer at 16), a no-op
// "free", and one page of memory.
var allocModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x0A, 0x02, // type section: 2 types
	0x60, 0x01, 0x7F, 0x01, 0x7F, // (i32) -> i32
	0x60, 0x01, 0x7F, 0x00, // (i32) -> ()
	0x03, 0x03, 0x02, 0x00, 0x01, // function section: types 0, 1
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page
	0x07, 0x1A, 0x03, // export section: 3 exports
	0x06, 'm', 'a', 'l', 'l', 'o', 'c', 0x00, 0x00, // "malloc" func 0
	0x04, 'f', 'r', 'e', 'e', 0x00, 0x01, // "free" func 1
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" memory 0
	0x0A, 0x09, 0x02, // code section: 2 bodies
	0x04, 0x00, 0x41, 0x10, 0x0B, // malloc: i32.const 16, end
	0x02, 0x00, 0x0B, // free: end
}

// wasiModule imports proc_exit from the WASI preview1 namespace.
var wasiModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x05, 0x01, 0x60, 0x01, 0x7F, 0x00, // type section: (i32) -> ()
	0x02, 0x24, 0x01, // import section: 1 import
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't',
	'_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1', // module name
	0x09, 'p', 'r', 'o', 'c', '_', 'e', 'x', 'i', 't', // field name
	0x00, 0x00, // func, type 0
}

// reactorModule exports "_initialize", which stores 1 at memory offset 0 so
// tests can observe that instantiation ran it.
var reactorModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: () -> ()
	0x03, 0x02, 0x01, 0x00, // function section: 1 function with type 0
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page
	0x07, 0x18, 0x02, // export section: 2 exports
	0x0B, '_', 'i', 'n', 'i', 't', 'i', 'a', 'l', 'i', 'z', 'e', 0x00, 0x00, // "_initialize" func 0
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" memory 0
	0x0A, 0x0B, 0x01, // code section: 1 body
	0x09, 0x00, // body size, no locals
	0x41, 0x00, // i32.const 0
	0x41, 0x01, // i32.const 1
	0x36, 0x02, 0x00, // i32.store align=2 offset=0
	0x0B, // end
}

// trapInitModule exports an "_initialize" that hits unreachable.
var trapInitModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: () -> ()
	0x03, 0x02, 0x01, 0x00, // function section: 1 function with type 0
	0x07, 0x0F, 0x01, // export section: 1 export
	0x0B, '_', 'i', 'n', 'i', 't', 'i', 'a', 'l', 'i', 'z', 'e', 0x00, 0x00, // "_initialize" func 0
	0x0A, 0x05, 0x01, // code section: 1 body
	0x03, 0x00, 0x00, 0x0B, // no locals, unreachable, end
}

// badTypeIndexModule passes section framing but fails real validation: its
// function section references a type that does not exist.
var badTypeIndexModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7F, // type section: () -> i32
	0x03, 0x02, 0x01, 0x05, // function section: 1 function with type 5
	0x0A, 0x06, 0x01, // code section: 1 body
	0x04, 0x00, 0x41, 0x2A, 0x0B, // no locals, i32.const 42, end
}
