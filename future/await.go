package future

import (
	"context"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/native"
)

// Await waits for f and lifts its raw value into T.
func Await[T any](ctx context.Context, f *Future, lift func(native.Pointer) (T, error)) (T, error) {
	v, err := f.Await(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return lift(v)
}

// AwaitVoid waits for an operation that yields no value.
func AwaitVoid(ctx context.Context, f *Future) error {
	_, err := f.Await(ctx)
	return err
}

// AwaitUint waits for an operation that yields an integer in its value slot.
func AwaitUint(ctx context.Context, f *Future) (uint64, error) {
	v, err := f.Await(ctx)
	return uint64(v), err
}

// AwaitHandle waits for an operation that yields a native handle. A null
// handle on success is a protocol violation.
func AwaitHandle(ctx context.Context, f *Future) (native.Pointer, error) {
	v, err := f.Await(ctx)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, errors.ProtocolViolation(f.op, "operation succeeded with a null handle")
	}
	return v, nil
}

// AwaitString waits for an operation that yields a native string. The
// string is copied and its buffer freed. A null string yields "".
func AwaitString(ctx context.Context, lib native.Library, f *Future) (string, error) {
	return Await(ctx, f, func(p native.Pointer) (string, error) {
		if p == 0 {
			return "", nil
		}
		s := lib.GoString(p)
		lib.FreeBuffer(p)
		return s, nil
	})
}

// ReleaseBuffer returns a release hook that frees native strings.
func ReleaseBuffer(lib native.Library) SubmitOption {
	return WithRelease(lib.FreeBuffer)
}
