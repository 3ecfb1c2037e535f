package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
)

// DefaultChunkSize matches the native stream chunk size.
const DefaultChunkSize = 1 << 20

// Options configures a Stream.
type Options struct {
	// ChunkSize is the size of the native output buffer. Zero means
	// DefaultChunkSize.
	ChunkSize int
}

// Submitter issues the native call that creates a stream reading from src.
type Submitter func(src native.InputSource) (native.Pointer, error)

// Stream is the output of a native encryption or decryption stream. It is
// read once, front to back.
type Stream struct {
	bridge  *future.Bridge
	src     *Source
	guard   *resource.Guard
	chunk   *resource.Guard
	closing chan *future.Future
	err     error
	pending []byte
	op      string
	size    int
	mu      sync.Mutex
	eof     bool
	closed  atomic.Bool
}

// Open creates a native stream over r. Pull requests are served while the
// creating operation is in flight: decryption reads its header before the
// stream exists. If ctx ends first the operation is abandoned, later pulls
// are failed and a stream that still appears is closed.
func Open(ctx context.Context, b *future.Bridge, r io.Reader, op string, submit Submitter, opts Options) (*Stream, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	lib := b.Library()
	src := NewSource(lib, r)

	f := b.Submit(op, func() (native.Pointer, error) {
		return submit(src.Callback())
	}, future.WithRelease(closeLate(b)))

wait:
	for {
		select {
		case o := <-src.ops:
			src.serve(o)
		case <-f.Done():
			break wait
		case <-ctx.Done():
			f.Abandon()
			go src.drain(f.Done())
			return nil, ctx.Err()
		}
	}

	ptr, err := future.AwaitHandle(context.Background(), f)
	if err != nil {
		return nil, inputError(op, src, err)
	}
	return wrap(b, src, ptr, op, opts.ChunkSize)
}

func wrap(b *future.Bridge, src *Source, ptr native.Pointer, op string, size int) (*Stream, error) {
	lib := b.Library()
	reg := b.Registry()
	closing := make(chan *future.Future, 1)

	guard, err := reg.Register(resource.KindStream, ptr, func(p native.Pointer) error {
		closing <- b.Submit("stream_close", func() (native.Pointer, error) {
			return lib.StreamClose(p), nil
		})
		return nil
	})
	if err != nil {
		return nil, errors.SessionClosed(op)
	}

	buf := lib.Alloc(size)
	if buf == 0 {
		_ = guard.Release()
		return nil, errors.NativeSync(op, fmt.Sprintf("allocating a %d byte stream chunk failed", size), nil)
	}
	chunk, err := reg.Register(resource.KindBuffer, buf, func(p native.Pointer) error {
		lib.Free(p)
		return nil
	})
	if err != nil {
		_ = guard.Release()
		return nil, errors.SessionClosed(op)
	}

	return &Stream{
		bridge:  b,
		src:     src,
		guard:   guard,
		chunk:   chunk,
		closing: closing,
		op:      op,
		size:    size,
	}, nil
}

// closeLate closes a stream handle that arrived after its future was
// abandoned.
func closeLate(b *future.Bridge) func(native.Pointer) {
	return func(p native.Pointer) {
		f := b.Submit("stream_close", func() (native.Pointer, error) {
			return b.Library().StreamClose(p), nil
		})
		if err := future.AwaitVoid(context.Background(), f); err != nil {
			Logger().Warn("closing abandoned stream failed", zap.Error(err))
		}
	}
}

func inputError(op string, src *Source, err error) error {
	if src.Err() == nil {
		return err
	}
	return errors.New(errors.OriginNativeAsync, errors.KindIOError).
		Op(op).
		Cause(src.Err()).
		Message("reading input: %v", src.Err()).
		Build()
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, errors.SessionClosed("stream_read")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	if len(s.pending) == 0 {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// fill pulls the next chunk from native. It returns io.EOF once the stream
// is exhausted and never reads past it.
func (s *Stream) fill() error {
	if s.eof {
		return io.EOF
	}
	if s.err != nil {
		return s.err
	}

	ptr, err := s.guard.Acquire()
	if err != nil {
		return errors.SessionClosed("stream_read")
	}
	defer s.guard.Done()
	buf, err := s.chunk.Acquire()
	if err != nil {
		return errors.SessionClosed("stream_read")
	}
	defer s.chunk.Done()

	lib := s.bridge.Library()
	size := s.size
	f := s.bridge.Submit("stream_read", func() (native.Pointer, error) {
		return lib.StreamRead(ptr, buf, int64(size)), nil
	})
	s.src.serveUntil(f.Done())

	n, err := future.AwaitUint(context.Background(), f)
	switch {
	case err != nil:
		s.err = inputError("stream_read", s.src, err)
		return s.err
	case n == 0:
		s.eof = true
		return io.EOF
	case n > uint64(size):
		s.err = errors.ProtocolViolation("stream_read", fmt.Sprintf("native reported %d bytes for a %d byte chunk", n, size))
		Logger().Error("stream read overran its chunk", zap.Uint64("n", n), zap.Int("chunk", size))
		return s.err
	}

	data, ok := lib.Bytes(buf, int(n))
	if !ok {
		s.err = errors.ProtocolViolation("stream_read", "chunk buffer is not readable")
		return s.err
	}
	s.pending = data
	return nil
}

// Close closes the native stream and waits for it, then frees the chunk
// buffer. It is idempotent.
func (s *Stream) Close() error { return s.CloseContext(context.Background()) }

// CloseContext is Close with a bound on the wait. A Read blocked on the
// input reader keeps the native stream open until it returns; the close is
// then issued without a waiter and ctx.Err() is returned.
func (s *Stream) CloseContext(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.guard.Release()
	if rerr := s.chunk.Release(); rerr != nil && err == nil {
		err = rerr
	}
	select {
	case f := <-s.closing:
		if cerr := future.AwaitVoid(ctx, f); cerr != nil && err == nil {
			err = cerr
		}
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Violations returns the number of contract violations seen on the input
// side.
func (s *Stream) Violations() int64 { return s.src.Violations() }
