package tanker

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/http"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
	"github.com/wippyai/tanker-go/stream"
)

// child is a handle derived from a Core. Children are closed before the
// Core that created them.
type child interface {
	closeChild(ctx context.Context) error
}

// Core is a Tanker instance. It is safe for concurrent use.
type Core struct {
	lib       native.Library
	bridge    *future.Bridge
	guard     *resource.Guard
	observers []resource.Observer
	destroyed chan error
	children  sync.Map // child -> struct{}
	log       *zap.Logger
	id        string
	chunkSize int
	closed    atomic.Bool
	closeMu   sync.Mutex
}

// New creates a Core with status Stopped. The first Core of a library
// initializes it; closing the last one tears it down.
func New(ctx context.Context, lib native.Library, opts Options, options ...Option) (*Core, error) {
	const op = "create"
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var s settings
	for _, o := range options {
		o(&s)
	}
	reg := s.registry
	if reg == nil {
		reg = resource.NewRegistry()
	}
	for _, o := range s.resourceObs {
		reg.Subscribe(o)
	}
	unsubscribe := func() { unsubscribeAll(reg, s.resourceObs) }
	b := future.NewBridge(lib, reg, future.WithObserver(fanout(s.observers)))

	acquireLib(lib)

	var adapter *http.Adapter
	create := &native.CreateOptions{
		AppID:          opts.AppID,
		URL:            opts.URL,
		PersistentPath: opts.PersistentPath,
		CachePath:      opts.cachePath(),
		SDKType:        opts.sdkType(),
		SDKVersion:     Version(),
	}
	if !opts.HTTP.Disabled {
		adapter = http.NewAdapter(lib, opts.httpConfig(s.httpObserver))
		create.HTTP = adapter.Handler()
	}
	teardown := func() {
		if adapter != nil {
			_ = adapter.Close()
		}
		releaseLib(lib)
	}

	f := b.Submit(op, func() (native.Pointer, error) {
		return lib.Create(create), nil
	})
	select {
	case <-f.Done():
	case <-ctx.Done():
		// The native instance may still appear; destroy it then.
		go func() {
			if p, err := future.AwaitHandle(context.Background(), f); err == nil {
				_ = future.AwaitVoid(context.Background(), b.Submit("destroy", func() (native.Pointer, error) {
					return lib.Destroy(p), nil
				}))
			}
			teardown()
			unsubscribe()
		}()
		return nil, ctx.Err()
	}

	ptr, err := future.AwaitHandle(context.Background(), f)
	if err != nil {
		teardown()
		unsubscribe()
		return nil, err
	}

	destroyed := make(chan error, 1)
	guard, err := reg.Register(resource.KindCore, ptr, func(p native.Pointer) error {
		df := b.Submit("destroy", func() (native.Pointer, error) {
			return lib.Destroy(p), nil
		})
		go func() {
			err := future.AwaitVoid(context.Background(), df)
			teardown()
			destroyed <- err
		}()
		return nil
	})
	if err != nil {
		_ = future.AwaitVoid(context.Background(), b.Submit("destroy", func() (native.Pointer, error) {
			return lib.Destroy(ptr), nil
		}))
		teardown()
		unsubscribe()
		return nil, errors.SessionClosed(op)
	}

	chunk := opts.StreamChunkSize
	if chunk == 0 {
		chunk = stream.DefaultChunkSize
	}
	id := uuid.NewString()
	c := &Core{
		lib:       lib,
		bridge:    b,
		guard:     guard,
		observers: s.resourceObs,
		destroyed: destroyed,
		log:       Logger().With(zap.String("instance", id)),
		id:        id,
		chunkSize: chunk,
	}
	c.log.Debug("tanker created", zap.String("app_id", opts.AppID), zap.Bool("http_adapter", adapter != nil))
	return c, nil
}

// unsubscribeAll detaches the observers a Core added to a registry it may
// share with other Cores.
func unsubscribeAll(reg *resource.Registry, obs []resource.Observer) {
	for _, o := range obs {
		reg.Unsubscribe(o)
	}
}

// ID returns the host-side instance id used in logs.
func (c *Core) ID() string { return c.id }

// Close closes derived encryption sessions and streams, then destroys the
// native instance and waits for it. Later calls return nil. Operations
// started after Close fail with errors.ErrSessionClosed.
func (c *Core) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var (
		mu  sync.Mutex
		err error
		g   errgroup.Group
	)
	c.children.Range(func(k, _ any) bool {
		ch := k.(child)
		c.children.Delete(k)
		g.Go(func() error {
			if cerr := ch.closeChild(ctx); cerr != nil {
				mu.Lock()
				err = multierr.Append(err, cerr)
				mu.Unlock()
			}
			return nil
		})
		return true
	})
	_ = g.Wait()

	err = multierr.Append(err, c.guard.Release())
	select {
	case derr := <-c.destroyed:
		err = multierr.Append(err, derr)
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	unsubscribeAll(c.bridge.Registry(), c.observers)
	if err != nil {
		c.log.Warn("tanker closed with errors", zap.Error(err))
	} else {
		c.log.Debug("tanker closed")
	}
	return err
}

// adopt tracks ch so that Close reaches it. A child adopted by a closing
// Core is closed at once.
func (c *Core) adopt(op string, ch child) error {
	c.children.Store(ch, struct{}{})
	if c.closed.Load() {
		c.children.Delete(ch)
		_ = ch.closeChild(context.Background())
		return errors.SessionClosed(op)
	}
	return nil
}

func (c *Core) forget(ch child) { c.children.Delete(ch) }

// with runs body while holding the native instance.
func (c *Core) with(op string, body func(core native.Pointer) error) error {
	if c.closed.Load() {
		return errors.SessionClosed(op)
	}
	core, err := c.guard.Acquire()
	if err != nil {
		return errors.SessionClosed(op)
	}
	defer c.guard.Done()
	return body(core)
}

func (c *Core) submit(op string, call func() native.Pointer, opts ...future.SubmitOption) *future.Future {
	return c.bridge.Submit(op, func() (native.Pointer, error) {
		return call(), nil
	}, opts...)
}

// maxBufferSize bounds native buffers, which are addressed with 32-bit
// sizes.
var maxBufferSize uint64 = math.MaxInt32

// checkInput rejects data whose buffers native could not address.
func checkInput(op string, data []byte) error {
	if uint64(len(data)) > maxBufferSize {
		return errors.InvalidArgument(op, fmt.Sprintf("data is %d bytes, above the %d byte limit", len(data), maxBufferSize))
	}
	return nil
}

// buffer allocates a native output buffer tracked by the registry. Sizes
// derive from the caller's data, so an oversized buffer is an argument
// error.
func (c *Core) buffer(op string, size uint64) (native.Pointer, *resource.Guard, error) {
	if size > maxBufferSize {
		return 0, nil, errors.InvalidArgument(op, fmt.Sprintf("output would be %d bytes, above the %d byte limit", size, maxBufferSize))
	}
	p := c.lib.Alloc(int(size))
	if p == 0 {
		return 0, nil, errors.NativeSync(op, fmt.Sprintf("allocating %d bytes failed", size), nil)
	}
	lib := c.lib
	g, err := c.bridge.Registry().Register(resource.KindBuffer, p, func(p native.Pointer) error {
		lib.Free(p)
		return nil
	})
	if err != nil {
		return 0, nil, errors.SessionClosed(op)
	}
	return p, g, nil
}

// releaseWhenDone frees g once native is finished with f. An abandoned
// operation may still write into its output buffer.
func releaseWhenDone(f *future.Future, g *resource.Guard) {
	select {
	case <-f.Done():
		_ = g.Release()
	default:
		go func() {
			<-f.Done()
			_ = g.Release()
		}()
	}
}

// readBuffer copies n bytes out of an output buffer of the given size.
func readBuffer(lib native.Library, op string, p native.Pointer, n, size uint64) ([]byte, error) {
	if n > size {
		return nil, errors.ProtocolViolation(op, fmt.Sprintf("native reported %d bytes for a %d byte buffer", n, size))
	}
	out, ok := lib.Bytes(p, int(n))
	if !ok {
		return nil, errors.ProtocolViolation(op, "output buffer is not readable")
	}
	return out, nil
}

// Status returns the status of the instance. A closed Core is Stopped.
func (c *Core) Status() Status {
	st := StatusStopped
	_ = c.with("status", func(core native.Pointer) error {
		st = c.lib.Status(core)
		return nil
	})
	return st
}

// Start starts a session for identity and returns the resulting status.
func (c *Core) Start(ctx context.Context, identity string) (Status, error) {
	const op = "start"
	if identity == "" {
		return StatusStopped, errors.InvalidArgument(op, "identity is empty")
	}
	var st uint64
	err := c.with(op, func(core native.Pointer) (err error) {
		st, err = future.AwaitUint(ctx, c.submit(op, func() native.Pointer {
			return c.lib.Start(core, identity)
		}))
		return err
	})
	if err != nil {
		return StatusStopped, err
	}
	return Status(st), nil
}

// Stop stops the current session.
func (c *Core) Stop(ctx context.Context) error {
	const op = "stop"
	return c.with(op, func(core native.Pointer) error {
		return future.AwaitVoid(ctx, c.submit(op, func() native.Pointer {
			return c.lib.Stop(core)
		}))
	})
}

type verifyCall func(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer

// verify runs one of the identity verification calls. It returns the
// session token when one was requested.
func (c *Core) verify(ctx context.Context, op string, v Verification, opts *VerificationOptions, call verifyCall) (string, error) {
	if v.v.Type == 0 {
		return "", errors.InvalidArgument(op, "verification is empty")
	}
	nv, nopts := v.v, opts.native()
	var token string
	err := c.with(op, func(core native.Pointer) (err error) {
		token, err = future.AwaitString(ctx, c.lib, c.submit(op, func() native.Pointer {
			return call(core, &nv, nopts)
		}, future.ReleaseBuffer(c.lib)))
		return err
	})
	return token, err
}

// RegisterIdentity registers the identity given to Start. The status must
// be IdentityRegistrationNeeded.
func (c *Core) RegisterIdentity(ctx context.Context, v Verification, opts *VerificationOptions) (string, error) {
	return c.verify(ctx, "register_identity", v, opts, c.lib.RegisterIdentity)
}

// VerifyIdentity verifies the identity given to Start. The status must be
// IdentityVerificationNeeded.
func (c *Core) VerifyIdentity(ctx context.Context, v Verification, opts *VerificationOptions) (string, error) {
	return c.verify(ctx, "verify_identity", v, opts, c.lib.VerifyIdentity)
}

// SetVerificationMethod adds or replaces a verification method.
func (c *Core) SetVerificationMethod(ctx context.Context, v Verification, opts *VerificationOptions) (string, error) {
	return c.verify(ctx, "set_verification_method", v, opts, c.lib.SetVerificationMethod)
}

// GetVerificationMethods lists the verification methods of the user.
func (c *Core) GetVerificationMethods(ctx context.Context) ([]VerificationMethod, error) {
	const op = "get_verification_methods"
	var methods []VerificationMethod
	err := c.with(op, func(core native.Pointer) (err error) {
		f := c.submit(op, func() native.Pointer {
			return c.lib.GetVerificationMethods(core)
		}, future.WithRelease(c.lib.FreeVerificationMethodList))
		methods, err = future.Await(ctx, f, func(p native.Pointer) ([]VerificationMethod, error) {
			if p == 0 {
				return nil, errors.ProtocolViolation(op, "null method list")
			}
			defer c.lib.FreeVerificationMethodList(p)
			list := c.lib.VerificationMethodList(p)
			out := make([]VerificationMethod, len(list))
			for i, m := range list {
				out[i] = methodFromNative(m)
			}
			return out, nil
		})
		return err
	})
	return methods, err
}

// GenerateVerificationKey generates a verification key and returns its
// private part.
func (c *Core) GenerateVerificationKey(ctx context.Context) (string, error) {
	return c.stringOp(ctx, "generate_verification_key", c.lib.GenerateVerificationKey)
}

// CreateOIDCNonce creates a nonce for the OIDC authorization code flow.
func (c *Core) CreateOIDCNonce(ctx context.Context) (string, error) {
	return c.stringOp(ctx, "create_oidc_nonce", c.lib.CreateOIDCNonce)
}

func (c *Core) stringOp(ctx context.Context, op string, call func(core native.Pointer) native.Pointer) (string, error) {
	var s string
	err := c.with(op, func(core native.Pointer) (err error) {
		s, err = future.AwaitString(ctx, c.lib, c.submit(op, func() native.Pointer {
			return call(core)
		}, future.ReleaseBuffer(c.lib)))
		return err
	})
	return s, err
}

// SetOIDCTestNonce sets the nonce used by the next OIDC verification.
func (c *Core) SetOIDCTestNonce(ctx context.Context, nonce string) error {
	const op = "set_oidc_test_nonce"
	if nonce == "" {
		return errors.InvalidArgument(op, "nonce is empty")
	}
	return c.with(op, func(core native.Pointer) error {
		return future.AwaitVoid(ctx, c.submit(op, func() native.Pointer {
			return c.lib.SetOIDCTestNonce(core, nonce)
		}))
	})
}

// AttachProvisionalIdentity attaches a provisional identity to the user.
func (c *Core) AttachProvisionalIdentity(ctx context.Context, identity string) (AttachResult, error) {
	const op = "attach_provisional_identity"
	if identity == "" {
		return AttachResult{}, errors.InvalidArgument(op, "provisional identity is empty")
	}
	var res AttachResult
	err := c.with(op, func(core native.Pointer) (err error) {
		f := c.submit(op, func() native.Pointer {
			return c.lib.AttachProvisionalIdentity(core, identity)
		}, future.WithRelease(c.lib.FreeAttachResult))
		res, err = future.Await(ctx, f, func(p native.Pointer) (AttachResult, error) {
			if p == 0 {
				return AttachResult{}, errors.ProtocolViolation(op, "null attach result")
			}
			defer c.lib.FreeAttachResult(p)
			r := c.lib.AttachResult(p)
			out := AttachResult{Status: r.Status}
			if r.Method != nil {
				m := methodFromNative(*r.Method)
				out.Method = &m
			}
			return out, nil
		})
		return err
	})
	return res, err
}

// VerifyProvisionalIdentity verifies an attached provisional identity.
func (c *Core) VerifyProvisionalIdentity(ctx context.Context, v Verification) error {
	const op = "verify_provisional_identity"
	if v.v.Type == 0 {
		return errors.InvalidArgument(op, "verification is empty")
	}
	nv := v.v
	return c.with(op, func(core native.Pointer) error {
		return future.AwaitVoid(ctx, c.submit(op, func() native.Pointer {
			return c.lib.VerifyProvisionalIdentity(core, &nv)
		}))
	})
}

// Encrypt encrypts data. A nil opts means NewEncryptionOptions().
func (c *Core) Encrypt(ctx context.Context, data []byte, opts *EncryptionOptions) ([]byte, error) {
	const op = "encrypt"
	if err := checkInput(op, data); err != nil {
		return nil, err
	}
	nopts, err := opts.native(op)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = c.with(op, func(core native.Pointer) error {
		size := c.lib.EncryptedSize(uint64(len(data)), nopts.PaddingStep)
		buf, g, err := c.buffer(op, size)
		if err != nil {
			return err
		}
		f := c.submit(op, func() native.Pointer {
			return c.lib.Encrypt(core, buf, data, nopts)
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

// Decrypt decrypts data.
func (c *Core) Decrypt(ctx context.Context, data []byte) ([]byte, error) {
	const op = "decrypt"
	if err := checkInput(op, data); err != nil {
		return nil, err
	}
	var out []byte
	err := c.with(op, func(core native.Pointer) error {
		size, err := future.AwaitUint(ctx, c.submit("decrypted_size", func() native.Pointer {
			return c.lib.DecryptedSize(data)
		}))
		if err != nil {
			return err
		}
		buf, g, err := c.buffer(op, size)
		if err != nil {
			return err
		}
		f := c.submit(op, func() native.Pointer {
			return c.lib.Decrypt(core, buf, data)
		})
		defer releaseWhenDone(f, g)
		n, err := future.AwaitUint(ctx, f)
		if err != nil {
			return err
		}
		out, err = readBuffer(c.lib, op, buf, n, size)
		return err
	})
	return out, err
}

// GetResourceID returns the resource id of encrypted data.
func (c *Core) GetResourceID(ctx context.Context, data []byte) (string, error) {
	const op = "get_resource_id"
	if len(data) == 0 {
		return "", errors.InvalidArgument(op, "encrypted data is empty")
	}
	var id string
	err := c.with(op, func(native.Pointer) (err error) {
		id, err = future.AwaitString(ctx, c.lib, c.submit(op, func() native.Pointer {
			return c.lib.GetResourceID(data)
		}, future.ReleaseBuffer(c.lib)))
		return err
	})
	return id, err
}

// Share shares resources with the recipients of opts. It either fully
// succeeds or shares nothing.
func (c *Core) Share(ctx context.Context, resourceIDs []string, opts SharingOptions) error {
	const op = "share"
	if len(resourceIDs) == 0 {
		return errors.InvalidArgument(op, "resource id list is empty")
	}
	nopts := &native.SharingOptions{ShareWithUsers: opts.ShareWithUsers, ShareWithGroups: opts.ShareWithGroups}
	return c.with(op, func(core native.Pointer) error {
		return future.AwaitVoid(ctx, c.submit(op, func() native.Pointer {
			return c.lib.Share(core, resourceIDs, nopts)
		}))
	})
}

// CreateGroup creates a group of public identities and returns its id.
func (c *Core) CreateGroup(ctx context.Context, members []string) (string, error) {
	const op = "create_group"
	if len(members) == 0 {
		return "", errors.InvalidArgument(op, "member list is empty")
	}
	return c.stringOp(ctx, op, func(core native.Pointer) native.Pointer {
		return c.lib.CreateGroup(core, members)
	})
}

// UpdateGroupMembers adds and removes members of a group.
func (c *Core) UpdateGroupMembers(ctx context.Context, groupID string, add, remove []string) error {
	const op = "update_group_members"
	switch {
	case groupID == "":
		return errors.InvalidArgument(op, "group id is empty")
	case len(add) == 0 && len(remove) == 0:
		return errors.InvalidArgument(op, "member list is empty")
	}
	return c.with(op, func(core native.Pointer) error {
		return future.AwaitVoid(ctx, c.submit(op, func() native.Pointer {
			return c.lib.UpdateGroupMembers(core, groupID, add, remove)
		}))
	})
}

// Stream is an encryption or decryption stream derived from a Core.
type Stream struct {
	*stream.Stream
	owner *Core
}

// Close closes the stream. It is idempotent.
func (s *Stream) Close() error {
	s.owner.forget(s)
	return s.Stream.Close()
}

// CloseContext closes the stream, waiting for native at most until ctx
// ends.
func (s *Stream) CloseContext(ctx context.Context) error {
	s.owner.forget(s)
	return s.Stream.CloseContext(ctx)
}

func (s *Stream) closeChild(ctx context.Context) error { return s.Stream.CloseContext(ctx) }

func (c *Core) adoptStream(op string, s *stream.Stream) (*Stream, error) {
	out := &Stream{Stream: s, owner: c}
	if err := c.adopt(op, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncryptStream returns a stream of the encryption of r. A nil opts means
// NewEncryptionOptions().
func (c *Core) EncryptStream(ctx context.Context, r io.Reader, opts *EncryptionOptions) (*Stream, error) {
	const op = "stream_encrypt"
	if r == nil {
		return nil, errors.InvalidArgument(op, "reader is nil")
	}
	nopts, err := opts.native(op)
	if err != nil {
		return nil, err
	}
	var s *stream.Stream
	err = c.with(op, func(core native.Pointer) (err error) {
		s, err = stream.Open(ctx, c.bridge, r, op, func(src native.InputSource) (native.Pointer, error) {
			return c.lib.StreamEncrypt(core, src, nopts), nil
		}, chunkSize(c.chunkSize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.adoptStream(op, s)
}

// DecryptStream returns a stream of the decryption of r.
func (c *Core) DecryptStream(ctx context.Context, r io.Reader) (*Stream, error) {
	const op = "stream_decrypt"
	if r == nil {
		return nil, errors.InvalidArgument(op, "reader is nil")
	}
	var s *stream.Stream
	err := c.with(op, func(core native.Pointer) (err error) {
		s, err = stream.Open(ctx, c.bridge, r, op, func(src native.InputSource) (native.Pointer, error) {
			return c.lib.StreamDecrypt(core, src), nil
		}, chunkSize(c.chunkSize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.adoptStream(op, s)
}
