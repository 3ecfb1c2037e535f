package wasmcore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/native"
)

// Config holds configuration for loading a guest core.
type Config struct {
	// MemoryLimitPages caps guest memory in 64 KiB pages. 0 keeps the
	// wazero default.
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 for guests built against it.
	WASI bool
}

// Library runs a WebAssembly build of the core and implements
// native.Library on top of it. Guest calls are serialized; host imports
// run while the guest lock is held and never call back into the guest.
type Library struct {
	ctx     context.Context
	runtime wazero.Runtime
	mod     api.Module
	mem     api.Memory

	alloc, free, invoke, httpResponse, readFinish api.Function

	conts    sync.Map // guest future -> native.Continuation
	handlers sync.Map // handler id -> *native.HTTPHandler
	sources  sync.Map // source token -> native.InputSource
	reads    sync.Map // read op -> *pendingRead

	logHandler atomic.Pointer[native.LogHandler]
	nextID     atomic.Uint32
	mu         sync.Mutex
}

type pendingRead struct {
	buf  []byte
	dest uint32
}

var _ native.Library = (*Library)(nil)

// New compiles and instantiates wasm as the core.
func New(ctx context.Context, wasm []byte, cfg *Config) (*Library, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	l := &Library{ctx: context.WithoutCancel(ctx), runtime: rt}
	if err := l.instantiate(ctx, wasm, cfg != nil && cfg.WASI); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return l, nil
}

func (l *Library) instantiate(ctx context.Context, wasm []byte, wasi bool) error {
	if wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, l.runtime); err != nil {
			return fmt.Errorf("instantiate wasi: %w", err)
		}
	}
	if _, err := l.hostModule().Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate %s: %w", hostModule, err)
	}

	compiled, err := l.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compile core: %w", err)
	}
	mod, err := l.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName("tanker").WithStartFunctions("_initialize"))
	if err != nil {
		return fmt.Errorf("instantiate core: %w", err)
	}
	l.mod = mod

	if l.mem = mod.ExportedMemory(exportMemory); l.mem == nil {
		return fmt.Errorf("core does not export %q", exportMemory)
	}
	for name, dst := range map[string]*api.Function{
		exportAlloc:            &l.alloc,
		exportFree:             &l.free,
		exportInvoke:           &l.invoke,
		exportHTTPResponse:     &l.httpResponse,
		exportStreamReadFinish: &l.readFinish,
	} {
		if *dst = mod.ExportedFunction(name); *dst == nil {
			return fmt.Errorf("core does not export %q", name)
		}
	}
	return nil
}

// Close releases the runtime and every guest instance.
func (l *Library) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// call runs a guest export under the guest lock. A trap is logged and
// reported as a zero result, which callers see as a null handle.
func (l *Library) call(name string, f api.Function, params ...uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, err := f.Call(l.ctx, params...)
	if err != nil {
		Logger().Error("guest call failed", zap.String("export", name), zap.Error(err))
		return 0
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

// invokeFn encodes args as a CBOR array and calls tanker_invoke.
func (l *Library) invokeFn(id fn, args ...any) uint64 {
	if args == nil {
		args = []any{}
	}
	payload, err := cbor.Marshal(args)
	if err != nil {
		Logger().Error("encoding guest arguments failed", zap.Uint32("fn", uint32(id)), zap.Error(err))
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	ptr, ok := l.writeLocked(payload)
	if !ok {
		return 0
	}
	defer l.freeLocked(ptr)

	res, err := l.invoke.Call(l.ctx, uint64(id), uint64(ptr), uint64(len(payload)))
	if err != nil {
		Logger().Error("guest call failed", zap.Uint32("fn", uint32(id)), zap.Error(err))
		return 0
	}
	return res[0]
}

func (l *Library) writeLocked(b []byte) (uint32, bool) {
	res, err := l.alloc.Call(l.ctx, uint64(len(b)))
	if err != nil || res[0] == 0 {
		Logger().Error("guest allocation failed", zap.Int("size", len(b)), zap.Error(err))
		return 0, false
	}
	ptr := uint32(res[0])
	if !l.mem.Write(ptr, b) {
		Logger().Error("guest allocation out of range", zap.Uint32("ptr", ptr), zap.Int("size", len(b)))
		l.freeLocked(ptr)
		return 0, false
	}
	return ptr, true
}

func (l *Library) freeLocked(ptr uint32) {
	if _, err := l.free.Call(l.ctx, uint64(ptr)); err != nil {
		Logger().Error("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// readBuffer copies a length-prefixed guest buffer: a little-endian u32
// length followed by the bytes. The caller holds the guest lock.
func (l *Library) readBuffer(ptr uint64) ([]byte, bool) {
	if ptr == 0 {
		return nil, false
	}
	n, ok := l.mem.ReadUint32Le(uint32(ptr))
	if !ok {
		return nil, false
	}
	view, ok := l.mem.Read(uint32(ptr)+4, n)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), view...), true
}

// takeBuffer copies a length-prefixed guest buffer and frees it.
func (l *Library) takeBuffer(ptr uint64) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.readBuffer(ptr)
	if ok {
		l.freeLocked(uint32(ptr))
	}
	return b, ok
}

// decodeBuffer decodes a length-prefixed CBOR guest buffer into v and
// frees it.
func (l *Library) decodeBuffer(ptr uint64, v any) bool {
	b, ok := l.takeBuffer(ptr)
	if !ok {
		return false
	}
	if err := cbor.Unmarshal(b, v); err != nil {
		Logger().Error("decoding guest result failed", zap.Error(err))
		return false
	}
	return true
}

func (l *Library) newID() uint32 { return l.nextID.Add(1) }
