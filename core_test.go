package tanker_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	stderrors "errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/tanker-go"
	"github.com/wippyai/tanker-go/config"
	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/metrics"
	"github.com/wippyai/tanker-go/native/nativetest"
	"github.com/wippyai/tanker-go/resource"
)

func fastHTTP() tanker.HTTPOptions {
	return tanker.HTTPOptions{
		MaxAttempts:    2,
		AttemptTimeout: time.Second,
		BackoffBase:    time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

func options(t *testing.T) tanker.Options {
	return tanker.Options{
		AppID:          "app",
		PersistentPath: t.TempDir(),
		HTTP:           fastHTTP(),
	}
}

// newCore returns a ready Core for identity, registering it with a
// passphrase when needed.
func newCore(t *testing.T, sim *nativetest.Library, identity string, opts ...tanker.Option) *tanker.Core {
	t.Helper()
	ctx := context.Background()
	core, err := tanker.New(ctx, sim, options(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(context.Background()) })

	st, err := core.Start(ctx, identity)
	require.NoError(t, err)
	switch st {
	case tanker.StatusIdentityRegistrationNeeded:
		_, err = core.RegisterIdentity(ctx, tanker.PassphraseVerification("pw"), nil)
	case tanker.StatusIdentityVerificationNeeded:
		_, err = core.VerifyIdentity(ctx, tanker.PassphraseVerification("pw"), nil)
	}
	require.NoError(t, err)
	require.Equal(t, tanker.StatusReady, core.Status())
	return core
}

func requireDrained(t *testing.T, sim *nativetest.Library) {
	t.Helper()
	require.Eventually(t, func() bool { return sim.Outstanding() == 0 }, 5*time.Second, time.Millisecond)
	assert.Zero(t, sim.Violations())
}

type keyServer struct {
	*httptest.Server
	hits    atomic.Int32
	sdkType atomic.Value
	status  atomic.Int32
}

func newKeyServer(t *testing.T) *keyServer {
	ks := &keyServer{}
	ks.status.Store(nethttp.StatusOK)
	ks.Server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ks.hits.Add(1)
		ks.sdkType.Store(r.Header.Get("X-Tanker-SdkType"))
		status := int(ks.status.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == nethttp.StatusOK {
			_, _ = io.WriteString(w, `{"key":"0123456789abcdef"}`)
		}
	}))
	t.Cleanup(ks.Close)
	return ks
}

func TestCore_EncryptWithKeyLookupThenClose(t *testing.T) {
	ks := newKeyServer(t)
	sim := nativetest.New(nativetest.WithKeyLookup(ks.URL))
	ctx := context.Background()
	core := newCore(t, sim, "alice")

	plain := []byte("attack at dawn")
	ct, err := core.Encrypt(ctx, plain, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ks.hits.Load())
	assert.Equal(t, tanker.DefaultSDKType, ks.sdkType.Load())

	got, err := core.Decrypt(ctx, ct)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	require.NoError(t, core.Close(ctx))
	calls := sim.Calls()

	_, err = core.Encrypt(ctx, plain, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrSessionClosed))
	assert.Equal(t, calls, sim.Calls(), "no native call after close")
	assert.Equal(t, int32(1), ks.hits.Load())
	requireDrained(t, sim)
}

func TestCore_KeyLookupFailureIsNetworkError(t *testing.T) {
	ks := newKeyServer(t)
	ks.status.Store(nethttp.StatusServiceUnavailable)
	sim := nativetest.New(nativetest.WithKeyLookup(ks.URL))
	core := newCore(t, sim, "alice")

	_, err := core.Encrypt(context.Background(), []byte("x"), nil)
	require.Error(t, err)
	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.OriginNetwork, te.Origin)
	assert.Equal(t, errors.KindNetworkError, te.Kind)
	assert.Equal(t, errors.CodeNetworkError, te.Code)
}

func TestCore_ClosedFailsFast(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	core := newCore(t, sim, "alice")
	require.NoError(t, core.Close(ctx))
	require.NoError(t, core.Close(ctx), "close is idempotent")
	calls := sim.Calls()

	ops := map[string]func() error{
		"start": func() error { _, err := core.Start(ctx, "bob"); return err },
		"stop":  func() error { return core.Stop(ctx) },
		"decrypt": func() error {
			_, err := core.Decrypt(ctx, []byte("TNK1"))
			return err
		},
		"create_group": func() error {
			_, err := core.CreateGroup(ctx, []string{"bob"})
			return err
		},
		"encryption_session": func() error {
			_, err := core.CreateEncryptionSession(ctx, nil)
			return err
		},
		"stream": func() error {
			_, err := core.EncryptStream(ctx, bytes.NewReader(nil), nil)
			return err
		},
		"methods": func() error {
			_, err := core.GetVerificationMethods(ctx)
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrSessionClosed)
		})
	}
	assert.Equal(t, tanker.StatusStopped, core.Status())
	assert.Equal(t, calls, sim.Calls())
	requireDrained(t, sim)
}

func TestCore_ArgumentErrors(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	core := newCore(t, sim, "alice")
	calls := sim.Calls()

	tests := []struct {
		name string
		call func() error
	}{
		{"empty identity", func() error { _, err := core.Start(ctx, ""); return err }},
		{"padding step 1", func() error {
			_, err := core.Encrypt(ctx, []byte("x"), &tanker.EncryptionOptions{Padding: tanker.PaddingStep(1)})
			return err
		}},
		{"padding step 0", func() error {
			_, err := core.CreateEncryptionSession(ctx, &tanker.EncryptionOptions{Padding: tanker.PaddingStep(0)})
			return err
		}},
		{"empty group", func() error { _, err := core.CreateGroup(ctx, nil); return err }},
		{"empty update", func() error { return core.UpdateGroupMembers(ctx, "group-1", nil, nil) }},
		{"empty group id", func() error { return core.UpdateGroupMembers(ctx, "", []string{"bob"}, nil) }},
		{"empty share", func() error {
			return core.Share(ctx, nil, tanker.SharingOptions{ShareWithUsers: []string{"bob"}})
		}},
		{"empty verification", func() error {
			_, err := core.VerifyIdentity(ctx, tanker.Verification{}, nil)
			return err
		}},
		{"empty nonce", func() error { return core.SetOIDCTestNonce(ctx, "") }},
		{"empty provisional", func() error { _, err := core.AttachProvisionalIdentity(ctx, ""); return err }},
		{"nil reader", func() error { _, err := core.DecryptStream(ctx, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			var te *errors.Error
			require.True(t, stderrors.As(err, &te))
			assert.Equal(t, errors.OriginArgument, te.Origin)
		})
	}
	assert.Equal(t, calls, sim.Calls(), "argument errors never reach native")
}

func TestCore_NativeErrors(t *testing.T) {
	sim := nativetest.New(nativetest.WithMaxGroupSize(2))
	ctx := context.Background()
	core := newCore(t, sim, "alice")

	_, err := core.CreateGroup(ctx, []string{"a", "b", "c"})
	require.Error(t, err)
	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindGroupTooBig, te.Kind)
	assert.Equal(t, uint32(7), te.Code)
	assert.Equal(t, errors.OriginNativeAsync, te.Origin)
	assert.Equal(t, "invalid group", te.Message)

	sim.FailNext("create_group", 9999, "mystery")
	_, err = core.CreateGroup(ctx, []string{"a"})
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindNative, te.Kind)
	assert.Equal(t, uint32(9999), te.Code)

	sim.RejectNext("create_group")
	_, err = core.CreateGroup(ctx, []string{"a"})
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.OriginNativeSync, te.Origin)

	id, err := core.CreateGroup(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, core.UpdateGroupMembers(ctx, id, []string{"c"}, []string{"a"}))
}

func TestCore_Verification(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	newCore(t, sim, "alice")

	core, err := tanker.New(ctx, sim, options(t))
	require.NoError(t, err)
	defer core.Close(ctx)

	st, err := core.Start(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, tanker.StatusIdentityVerificationNeeded, st)

	_, err = core.VerifyIdentity(ctx, tanker.PassphraseVerification("wrong"), nil)
	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindInvalidVerification, te.Kind)

	token, err := core.VerifyIdentity(ctx, tanker.PassphraseVerification("pw"), &tanker.VerificationOptions{WithSessionToken: true})
	require.NoError(t, err)
	assert.Equal(t, "session-token:alice", token)
	assert.Equal(t, tanker.StatusReady, core.Status())

	token, err = core.SetVerificationMethod(ctx, tanker.EmailVerification("alice@example.com", "1234"), nil)
	require.NoError(t, err)
	assert.Empty(t, token)

	methods, err := core.GetVerificationMethods(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tanker.VerificationMethod{
		{Type: tanker.MethodPassphrase},
		{Type: tanker.MethodEmail, Email: "alice@example.com"},
	}, methods)

	key, err := core.GenerateVerificationKey(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	nonce, err := core.CreateOIDCNonce(ctx)
	require.NoError(t, err)
	require.NoError(t, core.SetOIDCTestNonce(ctx, nonce))

	res, err := core.AttachProvisionalIdentity(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, tanker.StatusIdentityVerificationNeeded, res.Status)
	require.NotNil(t, res.Method)
	assert.Equal(t, "bob@example.com", res.Method.Email)
	require.NoError(t, core.VerifyProvisionalIdentity(ctx, tanker.EmailVerification("bob@example.com", "0000")))

	require.NoError(t, core.Stop(ctx))
	assert.Equal(t, tanker.StatusStopped, core.Status())
}

func TestCore_ShareAndResourceID(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	core := newCore(t, sim, "alice")

	ct, err := core.Encrypt(ctx, []byte("shared"), &tanker.EncryptionOptions{
		ShareWithSelf: true,
		Padding:       tanker.PaddingStep(64),
	})
	require.NoError(t, err)
	assert.Len(t, ct, 24+64)

	id, err := core.GetResourceID(ctx, ct)
	require.NoError(t, err)
	assert.Len(t, id, 32)
	require.NoError(t, core.Share(ctx, []string{id}, tanker.SharingOptions{ShareWithUsers: []string{"bob"}}))

	_, err = core.Decrypt(ctx, []byte("not a resource at all"))
	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindDecryptionFailed, te.Kind)
}

func TestCore_EncryptionSession(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	core := newCore(t, sim, "alice")

	sess, err := core.CreateEncryptionSession(ctx, nil)
	require.NoError(t, err)

	a, err := sess.Encrypt(ctx, []byte("first"))
	require.NoError(t, err)
	b, err := sess.Encrypt(ctx, []byte("second"))
	require.NoError(t, err)

	rid, err := sess.ResourceID(ctx)
	require.NoError(t, err)
	for _, ct := range [][]byte{a, b} {
		got, err := core.GetResourceID(ctx, ct)
		require.NoError(t, err)
		assert.Equal(t, rid, got)
	}
	plain, err := core.Decrypt(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), plain)

	s, err := sess.EncryptStream(ctx, bytes.NewReader([]byte("streamed")))
	require.NoError(t, err)
	ct, err := io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	got, err := core.GetResourceID(ctx, ct)
	require.NoError(t, err)
	assert.Equal(t, rid, got)

	require.NoError(t, sess.Close(ctx))
	require.NoError(t, sess.Close(ctx))
	_, err = sess.Encrypt(ctx, []byte("late"))
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	assert.Zero(t, sim.OutstandingByKind(nativetest.KindSession))
}

func TestCore_CloseClosesChildren(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	core := newCore(t, sim, "alice")

	sess, err := core.CreateEncryptionSession(ctx, nil)
	require.NoError(t, err)
	s, err := core.EncryptStream(ctx, bytes.NewReader(bytes.Repeat([]byte("x"), 1<<16)), nil)
	require.NoError(t, err)
	require.Equal(t, 1, sim.OutstandingByKind(nativetest.KindSession))
	require.Equal(t, 1, sim.OutstandingByKind(nativetest.KindStream))

	require.NoError(t, core.Close(ctx))
	assert.Zero(t, sim.OutstandingByKind(nativetest.KindSession))
	assert.Zero(t, sim.OutstandingByKind(nativetest.KindStream))

	_, err = sess.Encrypt(ctx, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	_, err = s.Read(make([]byte, 8))
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	require.NoError(t, s.Close())
	requireDrained(t, sim)
}

// gatedReader blocks every Read until open is closed, then reports EOF.
type gatedReader struct{ open chan struct{} }

func (r *gatedReader) Read([]byte) (int, error) {
	<-r.open
	return 0, io.EOF
}

func TestCore_CloseHonoursDeadlineWithBlockedRead(t *testing.T) {
	sim := nativetest.New()
	core := newCore(t, sim, "alice")
	r := &gatedReader{open: make(chan struct{})}

	s, err := core.EncryptStream(context.Background(), r, nil)
	require.NoError(t, err)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, _ = io.ReadAll(s)
	}()
	require.Eventually(t, func() bool {
		return sim.OutstandingByKind(nativetest.KindReadOp) == 1
	}, 5*time.Second, time.Millisecond, "native never pulled input")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	closed := make(chan error, 1)
	go func() { closed <- core.Close(ctx) }()
	select {
	case err := <-closed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("Close ignored its deadline while a read was blocked on the input")
	}

	close(r.open)
	select {
	case <-readDone:
	case <-time.After(5 * time.Second):
		t.Fatal("read did not finish after the input was released")
	}
	requireDrained(t, sim)
}

func TestCore_CloseDetachesSharedRegistryObservers(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	reg := resource.NewRegistry()
	first, second := metrics.New(), metrics.New()
	a := newCore(t, sim, "alice", tanker.WithMetrics(first), tanker.WithRegistry(reg))
	newCore(t, sim, "bob", tanker.WithMetrics(second), tanker.WithRegistry(reg))

	require.NoError(t, a.Close(ctx))
	detached := testutil.ToFloat64(first.Handles(resource.KindBuffer))
	before := testutil.ToFloat64(second.Handles(resource.KindBuffer))

	g, err := reg.Register(resource.KindBuffer, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, detached, testutil.ToFloat64(first.Handles(resource.KindBuffer)), "closed Core still observes the registry")
	assert.Equal(t, before+1, testutil.ToFloat64(second.Handles(resource.KindBuffer)))
	require.NoError(t, g.Release())
}

func TestCore_StreamRoundTrip(t *testing.T) {
	sim := nativetest.New(nativetest.WithReadSizes(3, 4096, 70000))
	ctx := context.Background()
	opts := options(t)
	opts.StreamChunkSize = 1000
	core, err := tanker.New(ctx, sim, opts)
	require.NoError(t, err)
	_, err = core.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = core.RegisterIdentity(ctx, tanker.PassphraseVerification("pw"), nil)
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("0123456789"), 50_000)
	enc, err := core.EncryptStream(ctx, bytes.NewReader(plain), nil)
	require.NoError(t, err)
	ct, err := io.ReadAll(enc)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	dec, err := core.DecryptStream(ctx, bytes.NewReader(ct))
	require.NoError(t, err)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	assert.Equal(t, plain, got)

	require.NoError(t, core.Close(ctx))
	requireDrained(t, sim)
}

func TestCore_AbandonedEncryptReleasesBuffer(t *testing.T) {
	sim := nativetest.New()
	core := newCore(t, sim, "alice")
	release := sim.Hold("encrypt")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := core.Encrypt(ctx, []byte("slow"), nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, sim.OutstandingByKind(nativetest.KindBuffer), "native still owns the output buffer")

	release()
	require.Eventually(t, func() bool {
		return sim.OutstandingByKind(nativetest.KindBuffer) == 0 &&
			sim.OutstandingByKind(nativetest.KindFuture) == 0
	}, 5*time.Second, time.Millisecond)
}

func TestCore_ConcurrentOperations(t *testing.T) {
	sim := nativetest.New(nativetest.WithLatency(time.Millisecond))
	ctx := context.Background()
	core := newCore(t, sim, "alice")

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plain := bytes.Repeat([]byte{byte(i)}, i+1)
			ct, err := core.Encrypt(ctx, plain, nil)
			if err != nil {
				errs <- err
				return
			}
			got, err := core.Decrypt(ctx, ct)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(plain, got) {
				errs <- stderrors.New("round trip mismatch")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCore_InitTeardownRefcount(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()

	a, err := tanker.New(ctx, sim, options(t))
	require.NoError(t, err)
	b, err := tanker.New(ctx, sim, options(t))
	require.NoError(t, err)
	assert.Equal(t, int32(1), sim.Inits())

	require.NoError(t, a.Close(ctx))
	assert.Zero(t, sim.Teardowns())
	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))
	assert.Equal(t, int32(1), sim.Teardowns())

	c, err := tanker.New(ctx, sim, options(t))
	require.NoError(t, err)
	assert.Equal(t, int32(2), sim.Inits())
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int32(2), sim.Teardowns())
}

func TestNew_InvalidOptions(t *testing.T) {
	sim := nativetest.New()
	_, err := tanker.New(context.Background(), sim, tanker.Options{PersistentPath: t.TempDir()})
	assert.ErrorIs(t, err, errors.ErrArgument)
	_, err = tanker.New(context.Background(), sim, tanker.Options{AppID: "app"})
	assert.ErrorIs(t, err, errors.ErrArgument)
	assert.Zero(t, sim.Calls())
}

func TestNew_NativeRejection(t *testing.T) {
	sim := nativetest.New()
	sim.FailNext("create", 1, "bad app id")
	_, err := tanker.New(context.Background(), sim, options(t))
	var te *errors.Error
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.KindInvalidArgument, te.Kind)
	assert.Equal(t, errors.OriginNativeAsync, te.Origin)
	assert.Equal(t, sim.Inits(), sim.Teardowns())
}

func TestNew_Abandoned(t *testing.T) {
	sim := nativetest.New()
	release := sim.Hold("create")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tanker.New(ctx, sim, options(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	require.Eventually(t, func() bool {
		return sim.Outstanding() == 0 && sim.Teardowns() == sim.Inits()
	}, 5*time.Second, time.Millisecond)
}

func TestCore_Metrics(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()
	c := metrics.New()
	reg := resource.NewRegistry()
	core := newCore(t, sim, "alice", tanker.WithMetrics(c), tanker.WithRegistry(reg))

	_, err := core.Encrypt(ctx, []byte("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Handles(resource.KindCore)))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.Completed(future.OutcomeOK)) >= 4
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, core.Close(ctx))
	assert.Zero(t, testutil.ToFloat64(c.Handles(resource.KindCore)))
	assert.Zero(t, reg.OutstandingByKind(resource.KindBuffer))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		AppID:          "app",
		PersistentPath: "/data",
		SDKType:        "server-go",
		HTTP: config.HTTP{
			Enabled:        false,
			MaxAttempts:    5,
			AttemptTimeout: time.Second,
		},
		Stream: config.Stream{ChunkSize: 4096},
	}
	opts := tanker.OptionsFromConfig(cfg)
	assert.Equal(t, "app", opts.AppID)
	assert.Equal(t, "/data", opts.PersistentPath)
	assert.Equal(t, "server-go", opts.SDKType)
	assert.True(t, opts.HTTP.Disabled)
	assert.Equal(t, 5, opts.HTTP.MaxAttempts)
	assert.Equal(t, time.Second, opts.HTTP.AttemptTimeout)
	assert.Equal(t, 4096, opts.StreamChunkSize)
}

func TestPrehashPassword(t *testing.T) {
	sim := nativetest.New()
	ctx := context.Background()

	got, err := tanker.PrehashPassword(ctx, sim, "secret")
	require.NoError(t, err)
	sum := sha256.Sum256([]byte("secret"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), got)

	_, err = tanker.PrehashPassword(ctx, sim, "")
	assert.ErrorIs(t, err, errors.ErrArgument)
	requireDrained(t, sim)
}

func TestVersions(t *testing.T) {
	sim := nativetest.New()
	assert.NotEmpty(t, tanker.Version())
	assert.Equal(t, "nativetest-1.0.0", tanker.NativeVersion(sim))
	assert.Equal(t, sim.Inits(), sim.Teardowns())
}

func TestSetLogHandler(t *testing.T) {
	records := make(chan tanker.LogRecord, 16)
	tanker.SetLogHandler(func(r tanker.LogRecord) { records <- r })
	t.Cleanup(func() { tanker.SetLogHandler(nil) })

	sim := nativetest.New()
	core, err := tanker.New(context.Background(), sim, options(t))
	require.NoError(t, err)
	defer core.Close(context.Background())

	select {
	case r := <-records:
		assert.Equal(t, "nativetest", r.Category)
		assert.Contains(t, r.Message, "app")
	case <-time.After(5 * time.Second):
		t.Fatal("no native log record delivered")
	}
}
