// Package ctanker binds the Tanker C library through cgo.
//
// The binding is compiled only with cgo and the ctanker build tag, and
// links against libctanker found through pkg-config:
//
//	go build -tags ctanker ./...
//
// Without the tag New returns native.ErrNotBuilt.
//
// Every input handed to an asynchronous call is copied into C memory that
// stays alive until the returned future is destroyed. Go callbacks are
// passed to C as cgo handles and deleted when C can no longer call them.
package ctanker
