package stream

import (
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/native"
)

// maxEmptyReads bounds consecutive (0, nil) reads from the input reader.
const maxEmptyReads = 100

type readOp struct {
	buf []byte
	op  native.Pointer
}

// Source feeds a caller's io.Reader to native pull requests. The native
// callback only enqueues; requests are served on the goroutine that is
// waiting for the stream.
type Source struct {
	lib        native.Library
	r          io.Reader
	ops        chan readOp
	err        error
	violations atomic.Int64
	eof        bool
}

// NewSource wraps r.
func NewSource(lib native.Library, r io.Reader) *Source {
	return &Source{
		lib: lib,
		r:   r,
		ops: make(chan readOp, 1),
	}
}

// Callback returns the InputSource to hand to native.
func (s *Source) Callback() native.InputSource {
	return func(buf []byte, op native.Pointer) {
		select {
		case s.ops <- readOp{buf: buf, op: op}:
		default:
			// Native never has two reads in flight on one stream.
			s.violations.Add(1)
			Logger().Error("native issued a read while another was pending",
				zap.Uintptr("operation", uintptr(op)))
			go s.lib.StreamReadOperationFinish(op, -1)
		}
	}
}

// Violations returns the number of contract violations seen by the source.
func (s *Source) Violations() int64 { return s.violations.Load() }

// Err returns the error reported by the input reader, if any.
func (s *Source) Err() error { return s.err }

// serve answers one pull request from the input reader. It never writes
// past len(o.buf) and never reads the input again after EOF or an error.
func (s *Source) serve(o readOp) {
	if s.eof || s.err != nil {
		s.finish(o.op, 0)
		return
	}

	var (
		n   int
		err error
	)
	for range maxEmptyReads {
		n, err = s.r.Read(o.buf)
		if n != 0 || err != nil {
			break
		}
	}

	switch {
	case n < 0 || n > len(o.buf):
		s.violations.Add(1)
		s.err = fmt.Errorf("input reader returned %d bytes for a %d byte buffer", n, len(o.buf))
		Logger().Error("input reader overran its buffer", zap.Int("n", n), zap.Int("len", len(o.buf)))
		s.finish(o.op, -1)
	case err == io.EOF:
		s.eof = true
		s.finish(o.op, int64(n))
	case err != nil:
		s.err = err
		s.finish(o.op, -1)
	case n == 0:
		s.err = io.ErrNoProgress
		s.finish(o.op, -1)
	default:
		s.finish(o.op, int64(n))
	}
}

func (s *Source) finish(op native.Pointer, n int64) {
	s.lib.StreamReadOperationFinish(op, n)
}

// serveUntil answers pull requests until done is closed.
func (s *Source) serveUntil(done <-chan struct{}) {
	for {
		select {
		case o := <-s.ops:
			s.serve(o)
		case <-done:
			return
		}
	}
}

// drain fails every pull request until done is closed. Used once the
// consumer has given up on the operation.
func (s *Source) drain(done <-chan struct{}) {
	for {
		select {
		case o := <-s.ops:
			s.finish(o.op, -1)
		case <-done:
			return
		}
	}
}
