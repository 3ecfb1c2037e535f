//go:build cgo && ctanker

package ctanker

/*
#include "bridge.h"
*/
import "C"

import "unsafe"

// arena owns the C copies of one call's inputs.
type arena struct {
	ptrs  []unsafe.Pointer
	after []func()
}

func (a *arena) alloc(n int) unsafe.Pointer {
	if n <= 0 {
		n = 1
	}
	p := C.calloc(1, C.size_t(n))
	a.ptrs = append(a.ptrs, p)
	return p
}

func (a *arena) str(s string) *C.char {
	p := C.CString(s)
	a.ptrs = append(a.ptrs, unsafe.Pointer(p))
	return p
}

// optStr maps "" to NULL.
func (a *arena) optStr(s string) *C.char {
	if s == "" {
		return nil
	}
	return a.str(s)
}

func (a *arena) bytes(b []byte) *C.uint8_t {
	p := a.alloc(len(b))
	if len(b) > 0 {
		C.memcpy(p, unsafe.Pointer(&b[0]), C.size_t(len(b)))
	}
	return (*C.uint8_t)(p)
}

// strs returns a C array of C strings.
func (a *arena) strs(ss []string) **C.char {
	if len(ss) == 0 {
		return nil
	}
	arr := unsafe.Slice((**C.char)(a.alloc(len(ss)*int(unsafe.Sizeof((*C.char)(nil))))), len(ss))
	for i, s := range ss {
		arr[i] = a.str(s)
	}
	return &arr[0]
}

// onFree runs fn when the arena is freed.
func (a *arena) onFree(fn func()) { a.after = append(a.after, fn) }

func (a *arena) free() {
	for _, p := range a.ptrs {
		C.free(p)
	}
	a.ptrs = nil
	for _, fn := range a.after {
		fn()
	}
	a.after = nil
}
