// Package wasmcore runs a WebAssembly build of the Tanker core under wazero
// and exposes it as a native.Library.
//
// The guest exports memory, tanker_alloc, tanker_free, tanker_invoke,
// tanker_http_response and tanker_stream_read_finish. Every ctanker entry
// point goes through tanker_invoke with a function number and a CBOR array
// of arguments. Strings and structured results come back as pointers to a
// little-endian u32 length followed by the payload, owned by the caller.
//
// The host module tanker_host provides future_complete, http_send,
// http_cancel, stream_read, source_drop and log. Continuations run on
// their own goroutines; HTTP and stream callbacks are handed to the
// installed handlers, which must not call back into the library
// synchronously.
package wasmcore
