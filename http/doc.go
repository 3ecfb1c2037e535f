// Package http fulfils the native library's outbound HTTP requests.
//
// Native hands requests to the Adapter through the callback pair returned
// by Handler. OnRequest records the request, starts a goroutine and
// returns an id at once; the goroutine performs the request with net/http,
// retrying transient network failures with exponential backoff, and
// answers native exactly once through Responder.HTTPHandleResponse:
//
//	a := http.NewAdapter(lib, http.Config{SDKType: "client-go", SDKVersion: "1.0.0"})
//	opts.HTTP = a.Handler()
//	defer a.Close()
//
// A network failure is answered with status 0 and an error message. HTTP
// statuses, including 5xx, are passed through untouched and never retried.
//
// OnCancel and the fulfilment race on a per-request state flag; whichever
// moves it out of pending decides whether native hears back.
package http
