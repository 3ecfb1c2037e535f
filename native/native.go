package native

import "errors"

// ErrNotBuilt is returned by backends that were compiled out of the binary.
var ErrNotBuilt = errors.New("native: backend not built")

// Pointer is an opaque native handle: a core instance, a future, a stream,
// a read operation, an encryption session, a buffer or an HTTP request.
// Zero is the null handle.
type Pointer uintptr

// RequestID is the host-side identifier returned for an outbound HTTP request.
type RequestID uintptr

// Continuation runs once when a future becomes ready. Native may invoke it
// from any thread, including synchronously from FutureThen.
type Continuation func(fut Pointer)

// InputSource is the pull callback native uses to read stream input.
// buf has exactly the length native asked for and stays valid until
// StreamReadOperationFinish is called for op.
type InputSource func(buf []byte, op Pointer)

// LogHandler receives native log records on a native thread.
type LogHandler func(LogRecord)

// HTTPHandler is the outbound HTTP callback pair installed at creation.
// Both functions are invoked synchronously from native worker threads.
type HTTPHandler struct {
	SendRequest   func(req *HTTPRequest) RequestID
	CancelRequest func(req *HTTPRequest, id RequestID)
}

// Library is the ctanker ABI. Every method maps onto the C function of the
// same name; methods returning a future return a handle that must be
// destroyed with FutureDestroy exactly once.
type Library interface {
	Init()
	Teardown()
	VersionString() string
	SetLogHandler(LogHandler)

	FutureIsReady(fut Pointer) bool
	FutureHasError(fut Pointer) bool
	FutureGetError(fut Pointer) (code uint32, message string)
	FutureGetValue(fut Pointer) Pointer
	FutureThen(fut Pointer, cont Continuation)
	FutureDestroy(fut Pointer)

	Alloc(size int) Pointer
	Bytes(ptr Pointer, n int) ([]byte, bool)
	Free(ptr Pointer)
	GoString(ptr Pointer) string
	FreeBuffer(ptr Pointer)

	Create(opts *CreateOptions) Pointer
	Destroy(core Pointer) Pointer
	Status(core Pointer) Status
	Start(core Pointer, identity string) Pointer
	Stop(core Pointer) Pointer

	RegisterIdentity(core Pointer, v *Verification, opts *VerificationOptions) Pointer
	VerifyIdentity(core Pointer, v *Verification, opts *VerificationOptions) Pointer
	SetVerificationMethod(core Pointer, v *Verification, opts *VerificationOptions) Pointer
	GetVerificationMethods(core Pointer) Pointer
	VerificationMethodList(list Pointer) []VerificationMethod
	FreeVerificationMethodList(list Pointer)
	GenerateVerificationKey(core Pointer) Pointer
	AttachProvisionalIdentity(core Pointer, identity string) Pointer
	AttachResult(ptr Pointer) AttachResult
	FreeAttachResult(ptr Pointer)
	VerifyProvisionalIdentity(core Pointer, v *Verification) Pointer
	CreateOIDCNonce(core Pointer) Pointer
	SetOIDCTestNonce(core Pointer, nonce string) Pointer

	EncryptedSize(clearSize uint64, paddingStep uint32) uint64
	Encrypt(core Pointer, out Pointer, in []byte, opts *EncryptOptions) Pointer
	DecryptedSize(in []byte) Pointer
	Decrypt(core Pointer, out Pointer, in []byte) Pointer
	GetResourceID(in []byte) Pointer
	Share(core Pointer, resourceIDs []string, opts *SharingOptions) Pointer
	CreateGroup(core Pointer, members []string) Pointer
	UpdateGroupMembers(core Pointer, groupID string, add, remove []string) Pointer
	PrehashPassword(password string) Pointer

	EncryptionSessionOpen(core Pointer, opts *EncryptOptions) Pointer
	EncryptionSessionClose(sess Pointer) Pointer
	EncryptionSessionEncryptedSize(sess Pointer, clearSize uint64) uint64
	EncryptionSessionEncrypt(sess Pointer, out Pointer, in []byte) Pointer
	EncryptionSessionGetResourceID(sess Pointer) Pointer
	EncryptionSessionStreamEncrypt(sess Pointer, src InputSource) Pointer

	StreamEncrypt(core Pointer, src InputSource, opts *EncryptOptions) Pointer
	StreamDecrypt(core Pointer, src InputSource) Pointer
	StreamRead(stream Pointer, buf Pointer, size int64) Pointer
	StreamReadOperationFinish(op Pointer, n int64)
	StreamClose(stream Pointer) Pointer

	HTTPHandleResponse(req Pointer, resp *HTTPResponse)
}
