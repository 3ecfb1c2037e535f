package wasmcore

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/native"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// hostModule builds the tanker_host imports. They run on the goroutine
// that holds the guest lock, so they only record state or hand work to
// another goroutine.
func (l *Library) hostModule() wazero.HostModuleBuilder {
	b := l.runtime.NewHostModuleBuilder(hostModule)

	// future_complete(fut)
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			l.futureComplete(native.Pointer(uint32(stack[0])))
		}), []api.ValueType{i32}, nil).
		Export("future_complete")

	// http_send(handler, req, ptr, len) -> id
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
			stack[0] = l.httpSend(mod, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3]))
		}), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i64}).
		Export("http_send")

	// http_cancel(handler, req, id)
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			l.httpCancel(uint32(stack[0]), uint32(stack[1]), stack[2])
		}), []api.ValueType{i32, i32, i64}, nil).
		Export("http_cancel")

	// stream_read(source, buf, size, op)
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			l.streamRead(uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3]))
		}), []api.ValueType{i32, i32, i32, i32}, nil).
		Export("stream_read")

	// source_drop(source)
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			l.sources.Delete(uint32(stack[0]))
		}), []api.ValueType{i32}, nil).
		Export("source_drop")

	// log(ptr, len)
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
			l.log(mod, uint32(stack[0]), uint32(stack[1]))
		}), []api.ValueType{i32, i32}, nil).
		Export("log")

	return b
}

func (l *Library) futureComplete(fut native.Pointer) {
	v, ok := l.conts.LoadAndDelete(fut)
	if !ok {
		Logger().Warn("completion for a future without continuation", zap.Uintptr("future", uintptr(fut)))
		return
	}
	go v.(native.Continuation)(fut)
}

func decode(mod api.Module, ptr, n uint32, v any) bool {
	view, ok := mod.Memory().Read(ptr, n)
	if !ok {
		Logger().Error("guest payload out of range", zap.Uint32("ptr", ptr), zap.Uint32("len", n))
		return false
	}
	if err := cbor.Unmarshal(view, v); err != nil {
		Logger().Error("decoding guest payload failed", zap.Error(err))
		return false
	}
	return true
}

func (l *Library) handler(id uint32) *native.HTTPHandler {
	v, ok := l.handlers.Load(id)
	if !ok {
		return nil
	}
	return v.(*native.HTTPHandler)
}

func (l *Library) httpSend(mod api.Module, handler, req, ptr, n uint32) uint64 {
	h := l.handler(handler)
	if h == nil {
		Logger().Error("http request for an unknown handler", zap.Uint32("handler", handler))
		return 0
	}
	var r native.HTTPRequest
	if !decode(mod, ptr, n, &r) {
		return 0
	}
	r.Handle = native.Pointer(req)
	return uint64(h.SendRequest(&r))
}

func (l *Library) httpCancel(handler, req uint32, id uint64) {
	h := l.handler(handler)
	if h == nil {
		return
	}
	h.CancelRequest(&native.HTTPRequest{Handle: native.Pointer(req)}, native.RequestID(id))
}

func (l *Library) streamRead(source, dest, size, op uint32) {
	v, ok := l.sources.Load(source)
	if !ok {
		Logger().Error("stream read for an unknown source", zap.Uint32("source", source))
		l.reads.Store(native.Pointer(op), &pendingRead{dest: dest})
		go l.StreamReadOperationFinish(native.Pointer(op), -1)
		return
	}
	buf := make([]byte, size)
	l.reads.Store(native.Pointer(op), &pendingRead{buf: buf, dest: dest})
	v.(native.InputSource)(buf, native.Pointer(op))
}

func (l *Library) log(mod api.Module, ptr, n uint32) {
	h := l.logHandler.Load()
	if h == nil {
		return
	}
	var rec native.LogRecord
	if decode(mod, ptr, n, &rec) {
		(*h)(rec)
	}
}
