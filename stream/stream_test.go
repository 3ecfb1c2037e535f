package stream_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"math/rand/v2"
	"runtime"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/native/nativetest"
	"github.com/wippyai/tanker-go/resource"
	"github.com/wippyai/tanker-go/stream"
)

type env struct {
	sim    *nativetest.Library
	bridge *future.Bridge
	core   native.Pointer
}

func newEnv(t *testing.T, opts ...nativetest.Option) *env {
	t.Helper()
	sim := nativetest.New(opts...)
	b := future.NewBridge(sim, resource.NewRegistry())
	ctx := context.Background()

	core, err := future.AwaitHandle(ctx, b.Submit("create", func() (native.Pointer, error) {
		return sim.Create(&native.CreateOptions{AppID: "app", PersistentPath: t.TempDir(), SDKType: "test"}), nil
	}))
	require.NoError(t, err)
	_, err = future.AwaitUint(ctx, b.Submit("start", func() (native.Pointer, error) {
		return sim.Start(core, "alice"), nil
	}))
	require.NoError(t, err)
	require.NoError(t, future.AwaitVoid(ctx, b.Submit("register_identity", func() (native.Pointer, error) {
		return sim.RegisterIdentity(core, &native.Verification{Type: native.VerificationPassphrase, Passphrase: "pw"}, nil), nil
	})))

	t.Cleanup(func() {
		_ = future.AwaitVoid(ctx, b.Submit("destroy", func() (native.Pointer, error) {
			return sim.Destroy(core), nil
		}))
	})
	return &env{sim: sim, bridge: b, core: core}
}

func (e *env) encrypt(ctx context.Context, r io.Reader, opts stream.Options) (*stream.Stream, error) {
	return stream.Open(ctx, e.bridge, r, "stream_encrypt", func(src native.InputSource) (native.Pointer, error) {
		return e.sim.StreamEncrypt(e.core, src, &native.EncryptOptions{}), nil
	}, opts)
}

func (e *env) decrypt(ctx context.Context, r io.Reader, opts stream.Options) (*stream.Stream, error) {
	return stream.Open(ctx, e.bridge, r, "stream_decrypt", func(src native.InputSource) (native.Pointer, error) {
		return e.sim.StreamDecrypt(e.core, src), nil
	}, opts)
}

func (e *env) requireNoStreamLeaks(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.sim.OutstandingByKind(nativetest.KindStream) == 0 &&
			e.sim.OutstandingByKind(nativetest.KindBuffer) == 0 &&
			e.sim.OutstandingByKind(nativetest.KindReadOp) == 0 &&
			e.sim.OutstandingByKind(nativetest.KindFuture) == 0
	}, 5*time.Second, time.Millisecond)
	assert.Zero(t, e.sim.Violations())
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func readAll(t *testing.T, s *stream.Stream) []byte {
	t.Helper()
	out, err := io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return out
}

func TestStream_RoundTrip(t *testing.T) {
	e := newEnv(t, nativetest.WithReadSizes(1, 7, 4096, 65536))
	ctx := context.Background()
	plain := randomBytes(rand.New(rand.NewPCG(1, 2)), 3<<20+17)

	enc, err := e.encrypt(ctx, bytes.NewReader(plain), stream.Options{})
	require.NoError(t, err)
	ciphertext := readAll(t, enc)
	assert.NotEqual(t, plain, ciphertext)

	dec, err := e.decrypt(ctx, bytes.NewReader(ciphertext), stream.Options{})
	require.NoError(t, err)
	assert.Equal(t, plain, readAll(t, dec))
	e.requireNoStreamLeaks(t)
}

// chunkReader returns at most the next size from sizes on every Read.
type chunkReader struct {
	r     io.Reader
	sizes []int
	i     int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	n := c.sizes[c.i%len(c.sizes)]
	c.i++
	if n < len(p) {
		p = p[:n]
	}
	return c.r.Read(p)
}

func TestStream_AdversarialChunkSizes(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	pick := func(n, maxSize int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = 1 + rng.IntN(maxSize)
		}
		return out
	}

	for i := range 40 {
		nativeSizes := pick(1+rng.IntN(4), 1+rng.IntN(70000))
		e := newEnv(t, nativetest.WithReadSizes(nativeSizes...))
		plain := randomBytes(rng, rng.IntN(200_000))
		chunk := 1 + rng.IntN(100_000)

		var src io.Reader = &chunkReader{r: bytes.NewReader(plain), sizes: pick(3, 5000)}
		switch i % 3 {
		case 1:
			src = iotest.OneByteReader(bytes.NewReader(plain))
		case 2:
			src = iotest.DataErrReader(bytes.NewReader(plain))
		}

		enc, err := e.encrypt(context.Background(), src, stream.Options{ChunkSize: chunk})
		require.NoError(t, err)
		ciphertext := readAll(t, enc)

		dec, err := e.decrypt(context.Background(), &chunkReader{r: bytes.NewReader(ciphertext), sizes: pick(2, 3000)}, stream.Options{ChunkSize: chunk})
		require.NoError(t, err)

		var got []byte
		buf := make([]byte, 1+rng.IntN(9000))
		for {
			n, err := dec.Read(buf[:1+rng.IntN(len(buf))])
			got = append(got, buf[:n]...)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
		}
		require.NoError(t, dec.Close())
		require.Equal(t, plain, got, "iteration %d (native sizes %v, chunk %d)", i, nativeSizes, chunk)
		e.requireNoStreamLeaks(t)
	}
}

func TestStream_EOFIsFinal(t *testing.T) {
	e := newEnv(t)
	s, err := e.encrypt(context.Background(), bytes.NewReader([]byte("hello")), stream.Options{})
	require.NoError(t, err)

	_, err = io.ReadAll(s)
	require.NoError(t, err)

	calls := e.sim.Calls()
	for range 3 {
		n, err := s.Read(make([]byte, 16))
		assert.Zero(t, n)
		assert.Equal(t, io.EOF, err)
	}
	assert.Equal(t, calls, e.sim.Calls(), "no native call after end of stream")
	require.NoError(t, s.Close())
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	e := newEnv(t)
	s, err := e.encrypt(context.Background(), bytes.NewReader([]byte("hello")), stream.Options{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Read(make([]byte, 8))
	assert.True(t, stderrors.Is(err, errors.ErrSessionClosed))
	e.requireNoStreamLeaks(t)
}

func TestStream_ReaderError(t *testing.T) {
	e := newEnv(t)
	boom := stderrors.New("disk on fire")
	s, err := e.encrypt(context.Background(), iotest.ErrReader(boom), stream.Options{})
	require.NoError(t, err)

	_, err = io.ReadAll(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindIOError, te.Kind)

	_, again := s.Read(make([]byte, 8))
	assert.Equal(t, err, again, "errors are sticky")
	require.NoError(t, s.Close())
	e.requireNoStreamLeaks(t)
}

type overrunReader struct{}

func (overrunReader) Read(p []byte) (int, error) { return len(p) + 1, nil }

func TestStream_OverrunningReaderIsViolation(t *testing.T) {
	e := newEnv(t)
	s, err := e.encrypt(context.Background(), overrunReader{}, stream.Options{})
	require.NoError(t, err)

	_, err = io.ReadAll(s)
	require.Error(t, err)
	assert.Equal(t, int64(1), s.Violations())
	require.NoError(t, s.Close())
	e.requireNoStreamLeaks(t)
}

func TestStream_DecryptInvalidHeader(t *testing.T) {
	e := newEnv(t)
	_, err := e.decrypt(context.Background(), bytes.NewReader(bytes.Repeat([]byte{'x'}, 64)), stream.Options{})
	require.Error(t, err)

	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindDecryptionFailed, te.Kind)
	assert.Equal(t, errors.OriginNativeAsync, te.Origin)
	e.requireNoStreamLeaks(t)
}

func TestStream_OpenAbandoned(t *testing.T) {
	e := newEnv(t)
	release := e.sim.Hold("stream_decrypt")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.decrypt(ctx, bytes.NewReader([]byte("TNKS0123456789abcdef")), stream.Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	e.requireNoStreamLeaks(t)
}

func TestStream_UnclosedStreamIsCollected(t *testing.T) {
	e := newEnv(t)
	func() {
		s, err := e.encrypt(context.Background(), bytes.NewReader([]byte("forgotten")), stream.Options{ChunkSize: 64})
		require.NoError(t, err)
		_, err = s.Read(make([]byte, 4))
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return e.sim.OutstandingByKind(nativetest.KindStream) == 0 &&
			e.sim.OutstandingByKind(nativetest.KindBuffer) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
