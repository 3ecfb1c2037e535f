// Package native describes the ctanker C ABI as a Go interface.
//
// Library is implemented by the cgo binding in native/ctanker, by a
// WebAssembly build of the core in native/wasmcore and by the simulator in
// native/nativetest. Handles are opaque Pointer values; the package never
// dereferences them.
//
// Ownership follows the C side: every future returned by a Library method
// is destroyed with FutureDestroy exactly once, strings with FreeBuffer and
// memory from Alloc with Free. Byte slices passed in are only read for the
// duration of the call; outputs are written into native memory obtained
// from Alloc.
package native
