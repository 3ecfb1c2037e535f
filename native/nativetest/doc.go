// Package nativetest provides an in-process native.Library for tests.
//
// The simulator follows the ctanker contract closely enough to exercise the
// bridge: futures complete on separate goroutines, FutureThen on a ready
// future fires synchronously, every handle is counted until destroyed, and
// misuse of the ABI (double destroy, double fulfil, writes past a buffer)
// is counted as a violation instead of crashing.
//
// Ciphertexts are a keyed XOR under a random resource id. They round-trip
// and nothing more.
//
//	lib := nativetest.New(nativetest.WithReadSizes(1, 7, 4096))
//	lib.FailNext("create_group", 7, "invalid group")
//	release := lib.Hold("encrypt")
//	defer release()
package nativetest
