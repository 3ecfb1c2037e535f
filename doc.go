// Package tanker is an asynchronous Go binding of the Tanker end-to-end
// encryption core.
//
// The native core does all cryptography and session logic. It reports
// results through completion callbacks fired on its own threads and asks the
// host to perform its HTTP requests. This module turns that into ordinary
// blocking calls that take a context.Context.
//
// # Architecture Overview
//
//	tanker/              Core, EncryptionSession and value types
//	├── native/          The ctanker ABI as a Go interface
//	│   ├── ctanker/     cgo binding (build tag ctanker)
//	│   ├── wasmcore/    WebAssembly build of the core hosted by wazero
//	│   └── nativetest/  In-process simulator used by the tests
//	├── resource/        Registry of native handles, released exactly once
//	├── future/          Native futures resolved as host futures
//	├── errors/          Structured errors and native code translation
//	├── http/            Fulfils native HTTP requests with net/http
//	├── stream/          io.Reader adapters for native streams
//	├── config/          koanf configuration loader
//	└── metrics/         Prometheus collector
//
// # Quick Start
//
//	lib, err := ctanker.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	core, err := tanker.New(ctx, lib, tanker.Options{
//	    AppID:          appID,
//	    PersistentPath: dir,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close(ctx)
//
//	status, err := core.Start(ctx, identity)
//	if status == tanker.StatusIdentityRegistrationNeeded {
//	    _, err = core.RegisterIdentity(ctx, tanker.PassphraseVerification(pass), nil)
//	}
//
//	encrypted, err := core.Encrypt(ctx, []byte("hello"), nil)
//
// # Thread Safety
//
// Core and EncryptionSession are safe for concurrent use. A Stream is read
// by one goroutine at a time.
//
// # Lifetimes
//
// Every native handle is owned by a guard and destroyed exactly once: on
// Close, when the last in-flight operation using it ends, or when the guard
// is garbage collected. Closing a Core closes its encryption sessions and
// streams first. Operations on a closed object fail with
// errors.ErrSessionClosed without calling native.
//
// A context that ends while native is working abandons the operation. The
// native result, if any, is released when it arrives.
package tanker
