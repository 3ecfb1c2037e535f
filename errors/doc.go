// Package errors provides the structured error type returned by the bridge.
//
// Errors are categorized by Origin (where in the bridge the failure was
// raised) and Kind (error category). Native failures also carry the raw
// native code and message.
//
// Translate maps a native code to an Error and never fails:
//
//	err := errors.Translate(7, "invalid group")
//	// err.Kind == errors.KindGroupTooBig, err.Code == 7
//
//	err = errors.Translate(9999, "???")
//	// err.Kind == errors.KindNative, err.Code == 9999
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.OriginProtocol, errors.KindInvariantViolated).
//		Op("encrypt").
//		Message("stream read returned %d bytes into a %d byte buffer", n, size).
//		Build()
//
// Origins are matched with the standard library:
//
//	if errors.Is(err, tankererrors.ErrSessionClosed) { ... }
package errors
