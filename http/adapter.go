package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/native"
)

// ErrClosed is reported to native for requests issued after Close.
var ErrClosed = errors.New("http: adapter closed")

// Header names added to every outbound request.
const (
	HeaderSDKType    = "X-Tanker-SdkType"
	HeaderSDKVersion = "X-Tanker-SdkVersion"
	HeaderInstanceID = "X-Tanker-Instanceid"
)

// Request outcomes reported to the Observer.
const (
	OutcomeFulfilled    = "fulfilled"
	OutcomeNetworkError = "network_error"
	OutcomeCancelled    = "cancelled"
)

const (
	taskPending int32 = iota
	taskFulfilled
	taskCancelled
)

// Responder delivers responses to native. native.Library satisfies it.
type Responder interface {
	HTTPHandleResponse(req native.Pointer, resp *native.HTTPResponse)
}

// Observer receives request outcomes. Methods must not block.
type Observer interface {
	HTTPRequestFinished(outcome string)
	HTTPRequestRetried()
}

type nopObserver struct{}

func (nopObserver) HTTPRequestFinished(string) {}
func (nopObserver) HTTPRequestRetried()        {}

// Config configures an Adapter. Zero fields take the package defaults.
type Config struct {
	Client         *nethttp.Client
	Observer       Observer
	SDKType        string
	SDKVersion     string
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	Jitter         float64
}

func (c Config) withDefaults() Config {
	if c.Client == nil {
		c.Client = &nethttp.Client{}
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Stats counts finished requests.
type Stats struct {
	Fulfilled     uint64
	NetworkErrors uint64
	Cancelled     uint64
	Retried       uint64
}

// Adapter fulfils native outbound HTTP requests with net/http. Each request
// runs on its own goroutine; the native callbacks only record state.
type Adapter struct {
	responder Responder
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     sync.Map
	wg        sync.WaitGroup
	cfg       Config
	nextID    atomic.Uint64
	fulfilled atomic.Uint64
	netErrs   atomic.Uint64
	cancelled atomic.Uint64
	retried   atomic.Uint64
	closeMu   sync.RWMutex
	closed    bool
}

type task struct {
	req    *native.HTTPRequest
	ctx    context.Context
	cancel context.CancelFunc
	trace  string
	state  atomic.Int32
}

// NewAdapter creates an adapter answering through r.
func NewAdapter(r Responder, cfg Config) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		responder: r,
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg.withDefaults(),
	}
}

// Handler returns the callback pair to install in native.CreateOptions.
func (a *Adapter) Handler() *native.HTTPHandler {
	return &native.HTTPHandler{
		SendRequest:   a.OnRequest,
		CancelRequest: a.OnCancel,
	}
}

// OnRequest starts req in the background and returns its id. It performs
// no I/O and never calls native.
func (a *Adapter) OnRequest(req *native.HTTPRequest) native.RequestID {
	cp := *req
	cp.Headers = append([]native.Header(nil), req.Headers...)
	cp.Body = append([]byte(nil), req.Body...)

	id := a.nextID.Add(1)
	ctx, cancel := context.WithCancel(a.ctx)
	t := &task{
		req:    &cp,
		ctx:    ctx,
		cancel: cancel,
		trace:  uuid.NewString(),
	}
	a.tasks.Store(id, t)

	a.closeMu.RLock()
	closed := a.closed
	if !closed {
		a.wg.Add(1)
	}
	a.closeMu.RUnlock()

	if closed {
		// Native still expects exactly one answer.
		go a.fulfil(id, t, networkError(ErrClosed))
		return native.RequestID(id)
	}
	go func() {
		defer a.wg.Done()
		a.fulfil(id, t, a.do(t))
	}()
	return native.RequestID(id)
}

// OnCancel aborts the request with the given id. Cancelling an unknown or
// finished request is a no-op.
func (a *Adapter) OnCancel(_ *native.HTTPRequest, id native.RequestID) {
	v, ok := a.tasks.Load(uint64(id))
	if !ok {
		return
	}
	t := v.(*task)
	if !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return
	}
	t.cancel()
	a.cancelled.Add(1)
	a.cfg.Observer.HTTPRequestFinished(OutcomeCancelled)
	Logger().Debug("http request cancelled",
		zap.String("trace", t.trace),
		zap.String("method", t.req.Method),
		zap.String("url", t.req.URL))
}

func (a *Adapter) fulfil(id uint64, t *task, resp *native.HTTPResponse) {
	defer a.tasks.Delete(id)
	defer t.cancel()

	if !t.state.CompareAndSwap(taskPending, taskFulfilled) {
		return
	}
	outcome := OutcomeFulfilled
	if resp.StatusCode == 0 {
		outcome = OutcomeNetworkError
		a.netErrs.Add(1)
	} else {
		a.fulfilled.Add(1)
	}
	a.cfg.Observer.HTTPRequestFinished(outcome)
	Logger().Debug("http request finished",
		zap.String("trace", t.trace),
		zap.String("method", t.req.Method),
		zap.String("url", t.req.URL),
		zap.Int("status", resp.StatusCode),
		zap.String("error", resp.ErrorMessage))
	a.responder.HTTPHandleResponse(t.req.Handle, resp)
}

func (a *Adapter) do(t *task) *native.HTTPResponse {
	var lastErr error
	for attempt := range a.cfg.MaxAttempts {
		if attempt > 0 {
			a.retried.Add(1)
			a.cfg.Observer.HTTPRequestRetried()
			Logger().Debug("retrying http request",
				zap.String("trace", t.trace),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			if err := sleep(t.ctx, Delay(a.cfg.BackoffBase, a.cfg.BackoffMax, a.cfg.Jitter, attempt-1)); err != nil {
				return networkError(err)
			}
		}

		resp, err := a.attempt(t)
		if err == nil {
			return resp
		}
		lastErr = err
		if t.ctx.Err() != nil || !IsTransient(err) {
			break
		}
	}
	return networkError(lastErr)
}

func (a *Adapter) attempt(t *task) (*native.HTTPResponse, error) {
	ctx, cancel := context.WithTimeout(t.ctx, a.cfg.AttemptTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, t.req.Method, t.req.URL, bytes.NewReader(t.req.Body))
	if err != nil {
		return nil, err
	}
	for _, h := range t.req.Headers {
		req.Header.Add(h.Name, h.Value)
	}
	req.Header.Set(HeaderSDKType, a.cfg.SDKType)
	req.Header.Set(HeaderSDKVersion, a.cfg.SDKVersion)
	req.Header.Set(HeaderInstanceID, t.req.InstanceID)
	if t.req.Authorization != "" {
		req.Header.Set("Authorization", t.req.Authorization)
	}

	resp, err := a.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &native.HTTPResponse{StatusCode: resp.StatusCode}
	for name, values := range resp.Header {
		for _, v := range values {
			out.Headers = append(out.Headers, native.Header{Name: name, Value: v})
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.ErrorMessage = fmt.Sprintf("reading response body: %v", err)
		return out, nil
	}
	out.Body = body
	return out, nil
}

func networkError(err error) *native.HTTPResponse {
	if err == nil {
		err = errors.New("request failed")
	}
	return &native.HTTPResponse{ErrorMessage: err.Error()}
}

// Stats returns a snapshot of the request counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Fulfilled:     a.fulfilled.Load(),
		NetworkErrors: a.netErrs.Load(),
		Cancelled:     a.cancelled.Load(),
		Retried:       a.retried.Load(),
	}
}

// InFlight returns the number of requests not yet answered or cancelled.
func (a *Adapter) InFlight() int {
	n := 0
	a.tasks.Range(func(_, v any) bool {
		if v.(*task).state.Load() == taskPending {
			n++
		}
		return true
	})
	return n
}

// Close cancels every in-flight request and waits for their goroutines.
// Cancelled requests are not answered.
func (a *Adapter) Close() error {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return nil
	}
	a.closed = true
	a.closeMu.Unlock()

	a.tasks.Range(func(_, v any) bool {
		t := v.(*task)
		if t.state.CompareAndSwap(taskPending, taskCancelled) {
			a.cancelled.Add(1)
			a.cfg.Observer.HTTPRequestFinished(OutcomeCancelled)
		}
		return true
	})
	a.cancel()
	a.wg.Wait()
	return nil
}
