package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Origin indicates where in the bridge the error was raised
type Origin string

const (
	OriginArgument      Origin = "argument"       // caller misuse, before any native call
	OriginNativeSync    Origin = "native-sync"    // native call rejected immediately
	OriginNativeAsync   Origin = "native-async"   // operation started and failed later
	OriginNetwork       Origin = "network"        // outbound HTTP path
	OriginProtocol      Origin = "protocol"       // native broke its own contract
	OriginSessionClosed Origin = "session-closed" // use after close
)

// Kind categorizes the error
type Kind string

const (
	KindNoError             Kind = "no_error"
	KindInvalidArgument     Kind = "invalid_argument"
	KindInternalError       Kind = "internal_error"
	KindNetworkError        Kind = "network_error"
	KindPreconditionFailed  Kind = "precondition_failed"
	KindOperationCanceled   Kind = "operation_canceled"
	KindDecryptionFailed    Kind = "decryption_failed"
	KindGroupTooBig         Kind = "group_too_big"
	KindInvalidVerification Kind = "invalid_verification"
	KindTooManyAttempts     Kind = "too_many_attempts"
	KindExpiredVerification Kind = "expired_verification"
	KindIOError             Kind = "io_error"
	KindDeviceRevoked       Kind = "device_revoked"
	KindConflict            Kind = "conflict"
	KindUpgradeRequired     Kind = "upgrade_required"

	// KindNative is the generic variant for codes the bridge does not know.
	KindNative Kind = "native_error"

	KindSessionClosed     Kind = "session_closed"
	KindInvariantViolated Kind = "invariant_violated"
	KindNotBuilt          Kind = "not_built"
)

// Native error codes of the ctanker ABI.
const (
	CodeNoError             uint32 = 0
	CodeInvalidArgument     uint32 = 1
	CodeInternalError       uint32 = 2
	CodeNetworkError        uint32 = 3
	CodePreconditionFailed  uint32 = 4
	CodeOperationCanceled   uint32 = 5
	CodeDecryptionFailed    uint32 = 6
	CodeGroupTooBig         uint32 = 7
	CodeInvalidVerification uint32 = 8
	CodeTooManyAttempts     uint32 = 9
	CodeExpiredVerification uint32 = 10
	CodeIOError             uint32 = 11
	CodeDeviceRevoked       uint32 = 12
	CodeConflict            uint32 = 13
	CodeUpgradeRequired     uint32 = 14
)

var codeKinds = [...]Kind{
	CodeNoError:             KindNoError,
	CodeInvalidArgument:     KindInvalidArgument,
	CodeInternalError:       KindInternalError,
	CodeNetworkError:        KindNetworkError,
	CodePreconditionFailed:  KindPreconditionFailed,
	CodeOperationCanceled:   KindOperationCanceled,
	CodeDecryptionFailed:    KindDecryptionFailed,
	CodeGroupTooBig:         KindGroupTooBig,
	CodeInvalidVerification: KindInvalidVerification,
	CodeTooManyAttempts:     KindTooManyAttempts,
	CodeExpiredVerification: KindExpiredVerification,
	CodeIOError:             KindIOError,
	CodeDeviceRevoked:       KindDeviceRevoked,
	CodeConflict:            KindConflict,
	CodeUpgradeRequired:     KindUpgradeRequired,
}

// Sentinels for errors.Is. An empty Kind matches any kind of that origin.
var (
	ErrSessionClosed = &Error{Origin: OriginSessionClosed}
	ErrProtocol      = &Error{Origin: OriginProtocol}
	ErrArgument      = &Error{Origin: OriginArgument}
	ErrNetwork       = &Error{Origin: OriginNetwork}
)

// Error is the structured error returned by every bridge operation.
// It is immutable once built.
type Error struct {
	Cause   error
	Origin  Origin
	Kind    Kind
	Op      string
	Context string
	Message string
	Code    uint32
	// Native reports whether Code came from the native library.
	Native bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Origin))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Native {
		b.WriteString(" (")
		b.WriteString(strconv.FormatUint(uint64(e.Code), 10))
		b.WriteByte(')')
	}

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	if e.Context != "" {
		b.WriteString(" [")
		b.WriteString(e.Context)
		b.WriteByte(']')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Origin != "" && e.Origin != t.Origin {
		return false
	}
	return t.Kind == "" || e.Kind == t.Kind
}

// Translate maps a native error code and message to an Error. It is total:
// undocumented codes map to KindNative with the raw code preserved.
func Translate(code uint32, message string) *Error {
	origin := OriginNativeAsync
	if code == CodeNetworkError {
		origin = OriginNetwork
	}
	return &Error{
		Origin:  origin,
		Kind:    KindOf(code),
		Code:    code,
		Native:  true,
		Message: message,
	}
}

// KindOf returns the Kind for a native error code.
func KindOf(code uint32) Kind {
	if int(code) < len(codeKinds) {
		return codeKinds[code]
	}
	return KindNative
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(origin Origin, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Origin: origin,
			Kind:   kind,
		},
	}
}

// Op sets the bridge operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Code sets the native error code
func (b *Builder) Code(code uint32) *Builder {
	b.err.Code = code
	b.err.Native = true
	return b
}

// Context sets native-side context
func (b *Builder) Context(ctx string) *Builder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Message sets the human-readable message
func (b *Builder) Message(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Message = fmt.Sprintf(msg, args...)
	} else {
		b.err.Message = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Convenience constructors for common error patterns

// InvalidArgument creates a caller misuse error
func InvalidArgument(op, msg string) *Error {
	return &Error{
		Origin:  OriginArgument,
		Kind:    KindInvalidArgument,
		Op:      op,
		Message: msg,
	}
}

// SessionClosed creates a use-after-close error
func SessionClosed(op string) *Error {
	return &Error{
		Origin:  OriginSessionClosed,
		Kind:    KindSessionClosed,
		Op:      op,
		Message: "session closed",
	}
}

// ProtocolViolation creates an internal bridge invariant error
func ProtocolViolation(op, msg string) *Error {
	return &Error{
		Origin:  OriginProtocol,
		Kind:    KindInvariantViolated,
		Op:      op,
		Message: "internal bridge invariant violated: " + msg,
	}
}

// NativeSync creates an error for a native call that never started
func NativeSync(op, msg string, cause error) *Error {
	return &Error{
		Origin:  OriginNativeSync,
		Kind:    KindNative,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// Network creates an outbound HTTP failure
func Network(op string, cause error) *Error {
	return &Error{
		Origin:  OriginNetwork,
		Kind:    KindNetworkError,
		Op:      op,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// WithOp returns a copy of err tagged with an operation name
func WithOp(err *Error, op string) *Error {
	e := *err
	e.Op = op
	return &e
}

// WithOrigin returns a copy of err with a different origin
func WithOrigin(err *Error, origin Origin) *Error {
	e := *err
	e.Origin = origin
	return &e
}
