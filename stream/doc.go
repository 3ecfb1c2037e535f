// Package stream adapts native encryption and decryption streams to
// io.Reader.
//
// Native streams pull their input through an InputSource callback and
// produce output one chunk at a time. The callback runs on a native thread
// and only enqueues the pull request; the goroutine blocked in Open or Read
// serves it from the caller's io.Reader. A Stream owns its native handle and
// one chunk buffer, both tracked by the resource registry, and is closed by
// Close or, failing that, when it becomes unreachable.
package stream
