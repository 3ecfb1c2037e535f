package nativetest

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/wippyai/tanker-go/native"
)

const (
	requestPending int32 = iota
	requestAnswered
	requestCancelled
)

type request struct {
	req    *native.HTTPRequest
	done   chan *native.HTTPResponse
	handle native.Pointer
	id     atomic.Uintptr
	state  atomic.Int32
}

type keyResponse struct {
	Key string `json:"key"`
}

// fetchKey performs the key lookup configured with WithKeyLookup through
// the HTTP handler of c. It runs on a worker goroutine and blocks until the
// host answers or the core is destroyed.
func (l *Library) fetchKey(c *core, resourceID string) ([]byte, error) {
	h := c.opts.HTTP
	if l.cfg.keyLookupURL == "" || h == nil {
		return nil, nil
	}

	r := &request{
		done: make(chan *native.HTTPResponse, 1),
		req: &native.HTTPRequest{
			Method:     "GET",
			URL:        l.cfg.keyLookupURL + "?resource=" + resourceID,
			InstanceID: "nativetest",
			Headers:    []native.Header{{Name: "Accept", Value: "application/json"}},
		},
	}
	r.handle = l.put(KindRequest, r)
	r.req.Handle = r.handle

	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		l.drop(r.handle, KindRequest)
		return nil, fail(codeOperationCanceled, "tanker was destroyed")
	}
	c.requests[r.handle] = r
	c.mu.Unlock()

	r.id.Store(uintptr(h.SendRequest(r.req)))
	resp := <-r.done

	c.mu.Lock()
	delete(c.requests, r.handle)
	c.mu.Unlock()

	switch {
	case resp == nil:
		return nil, fail(codeOperationCanceled, "request cancelled")
	case resp.ErrorMessage != "":
		return nil, fail(codeNetworkError, resp.ErrorMessage)
	case resp.StatusCode != 200:
		return nil, fail(codeNetworkError, fmt.Sprintf("key lookup failed with status %d", resp.StatusCode))
	}
	var body keyResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Key == "" {
		return nil, fail(codeInternalError, "malformed key lookup response")
	}
	return []byte(body.Key), nil
}

// cancelRequest asks the host to cancel r and fails the waiting operation.
// The handle is kept as a tombstone: an answer already racing with the
// cancellation is dropped silently.
func (l *Library) cancelRequest(c *core, r *request) {
	if !r.state.CompareAndSwap(requestPending, requestCancelled) {
		return
	}
	l.mu.Lock()
	delete(l.objects, r.handle)
	l.cancelled[r.handle] = struct{}{}
	l.mu.Unlock()
	if h := c.opts.HTTP; h != nil && h.CancelRequest != nil {
		h.CancelRequest(r.req, native.RequestID(r.id.Load()))
	}
	r.done <- nil
}

// HTTPHandleResponse implements native.Library.
func (l *Library) HTTPHandleResponse(p native.Pointer, resp *native.HTTPResponse) {
	l.enter()
	v, ok := l.drop(p, KindRequest)
	if !ok {
		l.mu.Lock()
		_, tomb := l.cancelled[p]
		delete(l.cancelled, p)
		l.mu.Unlock()
		if !tomb {
			l.violation()
		}
		return
	}
	r := v.(*request)
	if !r.state.CompareAndSwap(requestPending, requestAnswered) {
		return
	}
	cp := *resp
	cp.Body = append([]byte(nil), resp.Body...)
	cp.Headers = append([]native.Header(nil), resp.Headers...)
	r.done <- &cp
}
