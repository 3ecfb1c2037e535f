//go:build cgo && ctanker

package ctanker

/*
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"
	"strings"
	"unsafe"

	"github.com/wippyai/tanker-go/native"
)

//export goFutureThen
func goFutureThen(fut *C.tanker_future_t, arg unsafe.Pointer) unsafe.Pointer {
	h := cgo.Handle(uintptr(arg))
	c := h.Value().(*continuation)
	h.Delete()

	// fut is a fresh future carrying the same result; it is only valid here.
	s := &settled{}
	if C.tanker_future_has_error(fut) != 0 {
		e := C.tanker_future_get_error(fut)
		s.failed = true
		s.code = uint32(e.code)
		s.message = C.GoString(e.message)
	} else {
		s.value = native.Pointer(uintptr(C.tanker_future_get_voidptr(fut)))
	}
	c.lib.settled.Store(c.fut, s)
	c.lib.waiting.Delete(c.fut)

	go c.cont(c.fut)
	return nil
}

//export goHTTPSend
func goHTTPSend(req *C.tanker_http_request_t, data unsafe.Pointer) *C.tanker_http_request_handle_t {
	handler := cgo.Handle(uintptr(data)).Value().(*native.HTTPHandler)

	r := &native.HTTPRequest{
		Handle: ptr(req),
		Method: C.GoString(req.method),
		URL:    C.GoString(req.url),
	}
	if req.body_size > 0 {
		r.Body = C.GoBytes(unsafe.Pointer(req.body), C.int(req.body_size))
	}
	for _, h := range unsafe.Slice(req.headers, int(req.num_headers)) {
		name, value := C.GoString(h.name), C.GoString(h.value)
		switch {
		case strings.EqualFold(name, "X-Tanker-Instanceid"):
			r.InstanceID = value
		case strings.EqualFold(name, "Authorization"):
			r.Authorization = value
		default:
			r.Headers = append(r.Headers, native.Header{Name: name, Value: value})
		}
	}

	id := handler.SendRequest(r)
	return (*C.tanker_http_request_handle_t)(unsafe.Pointer(uintptr(id)))
}

//export goHTTPCancel
func goHTTPCancel(req *C.tanker_http_request_t, handle *C.tanker_http_request_handle_t, data unsafe.Pointer) {
	handler := cgo.Handle(uintptr(data)).Value().(*native.HTTPHandler)
	handler.CancelRequest(&native.HTTPRequest{Handle: ptr(req)}, native.RequestID(uintptr(unsafe.Pointer(handle))))
}

//export goStreamInput
func goStreamInput(buf *C.uint8_t, size C.int64_t, op *C.tanker_stream_read_operation_t, data unsafe.Pointer) {
	src := cgo.Handle(uintptr(data)).Value().(native.InputSource)
	src(unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size)), ptr(op))
}

//export goLog
func goLog(rec *C.tanker_log_record_t) {
	h := logHandler.Load()
	if h == nil {
		return
	}
	(*h)(native.LogRecord{
		Category: C.GoString(rec.category),
		Level:    native.LogLevel(rec.level),
		File:     C.GoString(rec.file),
		Line:     uint32(rec.line),
		Message:  C.GoString(rec.message),
	})
}
