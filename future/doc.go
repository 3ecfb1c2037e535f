// Package future converts native asynchronous operations into host futures.
//
// A native operation is identified by a future handle. The native library
// reports completion by invoking a continuation from one of its own
// threads. Bridge.Submit registers a completion slot before issuing the
// native call, so a completion that fires early, even synchronously inside
// FutureThen, is never lost:
//
//	b := future.NewBridge(lib, registry)
//	f := b.Submit("start", func() (native.Pointer, error) {
//	    return lib.Start(core, identity), nil
//	})
//	status, err := future.AwaitUint(ctx, f)
//
// The completion path only reads the outcome, destroys the native future
// and closes a channel. It never runs caller code.
//
// # Failures
//
// A call that fails or returns a null future resolves with an
// errors.OriginNativeSync error: the operation never started. A native
// error resolves with errors.OriginNativeAsync (or OriginNetwork for native
// network errors): the operation ran and failed.
//
// # Abandoning
//
// The native library cannot cancel operations. When ctx ends before the
// result arrives, the future is abandoned and the late result is released
// through the hook given with WithRelease:
//
//	f := b.Submit("stream_encrypt", call, future.WithRelease(closeStream))
//	stream, err := future.AwaitHandle(ctx, f) // ctx expires: stream closed later
package future
