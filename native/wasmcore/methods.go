package wasmcore

import (
	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/native"
)

func u(p native.Pointer) uint64 { return uint64(p) }

func (l *Library) handle(id fn, args ...any) native.Pointer {
	return native.Pointer(l.invokeFn(id, args...))
}

// Init implements native.Library.
func (l *Library) Init() { l.invokeFn(fnInit) }

// Teardown implements native.Library.
func (l *Library) Teardown() { l.invokeFn(fnTeardown) }

// VersionString implements native.Library.
func (l *Library) VersionString() string {
	b, _ := l.takeBuffer(l.invokeFn(fnVersionString))
	return string(b)
}

// SetLogHandler implements native.Library. A nil handler silences the
// guest.
func (l *Library) SetLogHandler(h native.LogHandler) {
	if h == nil {
		l.logHandler.Store(nil)
	} else {
		l.logHandler.Store(&h)
	}
	l.invokeFn(fnSetLogHandler, h != nil)
}

// FutureIsReady implements native.Library.
func (l *Library) FutureIsReady(fut native.Pointer) bool {
	return l.invokeFn(fnFutureIsReady, u(fut)) != 0
}

// FutureHasError implements native.Library.
func (l *Library) FutureHasError(fut native.Pointer) bool {
	return l.invokeFn(fnFutureHasError, u(fut)) != 0
}

// FutureGetError implements native.Library.
func (l *Library) FutureGetError(fut native.Pointer) (uint32, string) {
	var e futureError
	if !l.decodeBuffer(l.invokeFn(fnFutureGetError, u(fut)), &e) {
		return 2, "unreadable error from core"
	}
	return e.Code, e.Message
}

// FutureGetValue implements native.Library.
func (l *Library) FutureGetValue(fut native.Pointer) native.Pointer {
	return l.handle(fnFutureGetValue, u(fut))
}

// FutureThen implements native.Library. The guest reports readiness
// through future_complete; the continuation runs on its own goroutine.
func (l *Library) FutureThen(fut native.Pointer, cont native.Continuation) {
	l.conts.Store(fut, cont)
	l.invokeFn(fnFutureThen, u(fut))
}

// FutureDestroy implements native.Library.
func (l *Library) FutureDestroy(fut native.Pointer) {
	l.conts.Delete(fut)
	l.invokeFn(fnFutureDestroy, u(fut))
}

// Alloc implements native.Library.
func (l *Library) Alloc(size int) native.Pointer {
	return native.Pointer(l.call(exportAlloc, l.alloc, uint64(size)))
}

// Bytes implements native.Library. The returned slice is a copy.
func (l *Library) Bytes(ptr native.Pointer, n int) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	view, ok := l.mem.Read(uint32(ptr), uint32(n))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), view...), true
}

// Free implements native.Library.
func (l *Library) Free(ptr native.Pointer) { l.call(exportFree, l.free, u(ptr)) }

// GoString implements native.Library.
func (l *Library) GoString(ptr native.Pointer) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, _ := l.readBuffer(u(ptr))
	return string(b)
}

// FreeBuffer implements native.Library.
func (l *Library) FreeBuffer(ptr native.Pointer) { l.call(exportFree, l.free, u(ptr)) }

// Create implements native.Library. The HTTP handler stays registered for
// the lifetime of the Library.
func (l *Library) Create(opts *native.CreateOptions) native.Pointer {
	var handler uint32
	if opts.HTTP != nil {
		handler = l.newID()
		l.handlers.Store(handler, opts.HTTP)
	}
	return l.handle(fnCreate, opts, handler)
}

// Destroy implements native.Library.
func (l *Library) Destroy(core native.Pointer) native.Pointer {
	return l.handle(fnDestroy, u(core))
}

// Status implements native.Library.
func (l *Library) Status(core native.Pointer) native.Status {
	return native.Status(l.invokeFn(fnStatus, u(core)))
}

// Start implements native.Library.
func (l *Library) Start(core native.Pointer, identity string) native.Pointer {
	return l.handle(fnStart, u(core), identity)
}

// Stop implements native.Library.
func (l *Library) Stop(core native.Pointer) native.Pointer {
	return l.handle(fnStop, u(core))
}

// RegisterIdentity implements native.Library.
func (l *Library) RegisterIdentity(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	return l.handle(fnRegisterIdentity, u(core), v, opts)
}

// VerifyIdentity implements native.Library.
func (l *Library) VerifyIdentity(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	return l.handle(fnVerifyIdentity, u(core), v, opts)
}

// SetVerificationMethod implements native.Library.
func (l *Library) SetVerificationMethod(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	return l.handle(fnSetVerificationMethod, u(core), v, opts)
}

// GetVerificationMethods implements native.Library.
func (l *Library) GetVerificationMethods(core native.Pointer) native.Pointer {
	return l.handle(fnGetVerificationMethods, u(core))
}

// VerificationMethodList implements native.Library.
func (l *Library) VerificationMethodList(list native.Pointer) []native.VerificationMethod {
	var methods []native.VerificationMethod
	if !l.decodeBuffer(l.invokeFn(fnVerificationMethodList, u(list)), &methods) {
		return nil
	}
	return methods
}

// FreeVerificationMethodList implements native.Library.
func (l *Library) FreeVerificationMethodList(list native.Pointer) {
	l.invokeFn(fnFreeVerificationMethodList, u(list))
}

// GenerateVerificationKey implements native.Library.
func (l *Library) GenerateVerificationKey(core native.Pointer) native.Pointer {
	return l.handle(fnGenerateVerificationKey, u(core))
}

// AttachProvisionalIdentity implements native.Library.
func (l *Library) AttachProvisionalIdentity(core native.Pointer, identity string) native.Pointer {
	return l.handle(fnAttachProvisionalIdentity, u(core), identity)
}

// AttachResult implements native.Library.
func (l *Library) AttachResult(ptr native.Pointer) native.AttachResult {
	var r native.AttachResult
	if !l.decodeBuffer(l.invokeFn(fnAttachResult, u(ptr)), &r) {
		Logger().Error("unreadable attach result", zap.Uintptr("ptr", uintptr(ptr)))
	}
	return r
}

// FreeAttachResult implements native.Library.
func (l *Library) FreeAttachResult(ptr native.Pointer) {
	l.invokeFn(fnFreeAttachResult, u(ptr))
}

// VerifyProvisionalIdentity implements native.Library.
func (l *Library) VerifyProvisionalIdentity(core native.Pointer, v *native.Verification) native.Pointer {
	return l.handle(fnVerifyProvisionalIdentity, u(core), v)
}

// CreateOIDCNonce implements native.Library.
func (l *Library) CreateOIDCNonce(core native.Pointer) native.Pointer {
	return l.handle(fnCreateOIDCNonce, u(core))
}

// SetOIDCTestNonce implements native.Library.
func (l *Library) SetOIDCTestNonce(core native.Pointer, nonce string) native.Pointer {
	return l.handle(fnSetOIDCTestNonce, u(core), nonce)
}

// EncryptedSize implements native.Library.
func (l *Library) EncryptedSize(clearSize uint64, paddingStep uint32) uint64 {
	return l.invokeFn(fnEncryptedSize, clearSize, paddingStep)
}

// Encrypt implements native.Library.
func (l *Library) Encrypt(core, out native.Pointer, in []byte, opts *native.EncryptOptions) native.Pointer {
	return l.handle(fnEncrypt, u(core), u(out), in, opts)
}

// DecryptedSize implements native.Library.
func (l *Library) DecryptedSize(in []byte) native.Pointer {
	return l.handle(fnDecryptedSize, in)
}

// Decrypt implements native.Library.
func (l *Library) Decrypt(core, out native.Pointer, in []byte) native.Pointer {
	return l.handle(fnDecrypt, u(core), u(out), in)
}

// GetResourceID implements native.Library.
func (l *Library) GetResourceID(in []byte) native.Pointer {
	return l.handle(fnGetResourceID, in)
}

// Share implements native.Library.
func (l *Library) Share(core native.Pointer, resourceIDs []string, opts *native.SharingOptions) native.Pointer {
	return l.handle(fnShare, u(core), resourceIDs, opts)
}

// CreateGroup implements native.Library.
func (l *Library) CreateGroup(core native.Pointer, members []string) native.Pointer {
	return l.handle(fnCreateGroup, u(core), members)
}

// UpdateGroupMembers implements native.Library.
func (l *Library) UpdateGroupMembers(core native.Pointer, groupID string, add, remove []string) native.Pointer {
	return l.handle(fnUpdateGroupMembers, u(core), groupID, add, remove)
}

// PrehashPassword implements native.Library.
func (l *Library) PrehashPassword(password string) native.Pointer {
	return l.handle(fnPrehashPassword, password)
}

// EncryptionSessionOpen implements native.Library.
func (l *Library) EncryptionSessionOpen(core native.Pointer, opts *native.EncryptOptions) native.Pointer {
	return l.handle(fnEncryptionSessionOpen, u(core), opts)
}

// EncryptionSessionClose implements native.Library.
func (l *Library) EncryptionSessionClose(sess native.Pointer) native.Pointer {
	return l.handle(fnEncryptionSessionClose, u(sess))
}

// EncryptionSessionEncryptedSize implements native.Library.
func (l *Library) EncryptionSessionEncryptedSize(sess native.Pointer, clearSize uint64) uint64 {
	return l.invokeFn(fnEncryptionSessionEncryptedSize, u(sess), clearSize)
}

// EncryptionSessionEncrypt implements native.Library.
func (l *Library) EncryptionSessionEncrypt(sess, out native.Pointer, in []byte) native.Pointer {
	return l.handle(fnEncryptionSessionEncrypt, u(sess), u(out), in)
}

// EncryptionSessionGetResourceID implements native.Library.
func (l *Library) EncryptionSessionGetResourceID(sess native.Pointer) native.Pointer {
	return l.handle(fnEncryptionSessionGetResourceID, u(sess))
}

// EncryptionSessionStreamEncrypt implements native.Library.
func (l *Library) EncryptionSessionStreamEncrypt(sess native.Pointer, src native.InputSource) native.Pointer {
	return l.handle(fnEncryptionSessionStreamEncrypt, u(sess), l.addSource(src))
}

// StreamEncrypt implements native.Library.
func (l *Library) StreamEncrypt(core native.Pointer, src native.InputSource, opts *native.EncryptOptions) native.Pointer {
	return l.handle(fnStreamEncrypt, u(core), l.addSource(src), opts)
}

// StreamDecrypt implements native.Library.
func (l *Library) StreamDecrypt(core native.Pointer, src native.InputSource) native.Pointer {
	return l.handle(fnStreamDecrypt, u(core), l.addSource(src))
}

// addSource registers src until the guest drops it with source_drop.
func (l *Library) addSource(src native.InputSource) uint32 {
	id := l.newID()
	l.sources.Store(id, src)
	return id
}

// StreamRead implements native.Library.
func (l *Library) StreamRead(stream, buf native.Pointer, size int64) native.Pointer {
	return l.handle(fnStreamRead, u(stream), u(buf), size)
}

// StreamReadOperationFinish implements native.Library. Input is copied
// into the guest buffer named by stream_read before the guest is told.
func (l *Library) StreamReadOperationFinish(op native.Pointer, n int64) {
	v, ok := l.reads.LoadAndDelete(op)
	if !ok {
		Logger().Error("finish for an unknown read operation", zap.Uintptr("op", uintptr(op)))
		return
	}
	r := v.(*pendingRead)

	l.mu.Lock()
	defer l.mu.Unlock()
	if n > 0 {
		if n > int64(len(r.buf)) || !l.mem.Write(r.dest, r.buf[:n]) {
			Logger().Error("stream read does not fit its buffer", zap.Int64("n", n), zap.Int("len", len(r.buf)))
			n = -1
		}
	}
	if _, err := l.readFinish.Call(l.ctx, u(op), uint64(n)); err != nil {
		Logger().Error("guest call failed", zap.String("export", exportStreamReadFinish), zap.Error(err))
	}
}

// StreamClose implements native.Library.
func (l *Library) StreamClose(stream native.Pointer) native.Pointer {
	return l.handle(fnStreamClose, u(stream))
}

// HTTPHandleResponse implements native.Library.
func (l *Library) HTTPHandleResponse(req native.Pointer, resp *native.HTTPResponse) {
	payload, err := cbor.Marshal(resp)
	if err != nil {
		Logger().Error("encoding http response failed", zap.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	ptr, ok := l.writeLocked(payload)
	if !ok {
		return
	}
	defer l.freeLocked(ptr)
	if _, err := l.httpResponse.Call(l.ctx, u(req), uint64(ptr), uint64(len(payload))); err != nil {
		Logger().Error("guest call failed", zap.String("export", exportHTTPResponse), zap.Error(err))
	}
}
