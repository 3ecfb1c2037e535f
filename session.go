package tanker

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
	"github.com/wippyai/tanker-go/stream"
)

// EncryptionSession encrypts many resources under one key, shared with the
// recipients given at creation.
type EncryptionSession struct {
	core   *Core
	guard  *resource.Guard
	closed chan error
	done   atomic.Bool
}

// CreateEncryptionSession opens an encryption session. A nil opts means
// NewEncryptionOptions().
func (c *Core) CreateEncryptionSession(ctx context.Context, opts *EncryptionOptions) (*EncryptionSession, error) {
	const op = "encryption_session_open"
	nopts, err := opts.native(op)
	if err != nil {
		return nil, err
	}

	b, lib := c.bridge, c.lib
	var ptr native.Pointer
	err = c.with(op, func(core native.Pointer) (err error) {
		ptr, err = future.AwaitHandle(ctx, c.submit(op, func() native.Pointer {
			return lib.EncryptionSessionOpen(core, nopts)
		}, future.WithRelease(func(p native.Pointer) {
			_ = future.AwaitVoid(context.Background(), b.Submit("encryption_session_close", func() (native.Pointer, error) {
				return lib.EncryptionSessionClose(p), nil
			}))
		})))
		return err
	})
	if err != nil {
		return nil, err
	}

	closed := make(chan error, 1)
	guard, err := b.Registry().Register(resource.KindEncryptionSession, ptr, func(p native.Pointer) error {
		f := b.Submit("encryption_session_close", func() (native.Pointer, error) {
			return lib.EncryptionSessionClose(p), nil
		})
		go func() { closed <- future.AwaitVoid(context.Background(), f) }()
		return nil
	})
	if err != nil {
		return nil, errors.SessionClosed(op)
	}

	s := &EncryptionSession{core: c, guard: guard, closed: closed}
	if err := c.adopt(op, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EncryptionSession) with(op string, body func(sess native.Pointer) error) error {
	if s.done.Load() {
		return errors.SessionClosed(op)
	}
	sess, err := s.guard.Acquire()
	if err != nil {
		return errors.SessionClosed(op)
	}
	defer s.guard.Done()
	return body(sess)
}

// Encrypt encrypts data with the key of the session.
func (s *EncryptionSession) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	const op = "encryption_session_encrypt"
	if err := checkInput(op, data); err != nil {
		return nil, err
	}
	c := s.core
	var out []byte
	err := s.with(op, func(sess native.Pointer) error {
		size := c.lib.EncryptionSessionEncryptedSize(sess, uint64(len(data)))
		buf, g, err := c.buffer(op, size)
		if err != nil {
			return err
		}
		f := c.submit(op, func() native.Pointer {
			return c.lib.EncryptionSessionEncrypt(sess, buf, data)
		})
		defer releaseWhenDone(f, g)
		if err := future.AwaitVoid(ctx, f); err != nil {
			return err
		}
		out, err = readBuffer(c.lib, op, buf, size, size)
		return err
	})
	return out, err
}

// EncryptStream returns a stream of the encryption of r with the key of
// the session.
func (s *EncryptionSession) EncryptStream(ctx context.Context, r io.Reader) (*Stream, error) {
	const op = "encryption_session_stream_encrypt"
	if r == nil {
		return nil, errors.InvalidArgument(op, "reader is nil")
	}
	c := s.core
	var st *stream.Stream
	err := s.with(op, func(sess native.Pointer) (err error) {
		st, err = stream.Open(ctx, c.bridge, r, op, func(src native.InputSource) (native.Pointer, error) {
			return c.lib.EncryptionSessionStreamEncrypt(sess, src), nil
		}, chunkSize(c.chunkSize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.adoptStream(op, st)
}

// ResourceID returns the resource id shared by everything the session
// encrypts.
func (s *EncryptionSession) ResourceID(ctx context.Context) (string, error) {
	const op = "encryption_session_get_resource_id"
	c := s.core
	var id string
	err := s.with(op, func(sess native.Pointer) (err error) {
		id, err = future.AwaitString(ctx, c.lib, c.submit(op, func() native.Pointer {
			return c.lib.EncryptionSessionGetResourceID(sess)
		}, future.ReleaseBuffer(c.lib)))
		return err
	})
	return id, err
}

// Close closes the session and waits for native to release it. It is
// idempotent.
func (s *EncryptionSession) Close(ctx context.Context) error {
	s.core.forget(s)
	return s.closeChild(ctx)
}

func (s *EncryptionSession) closeChild(ctx context.Context) error {
	if !s.done.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.guard.Release(); err != nil {
		return err
	}
	select {
	case err := <-s.closed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
