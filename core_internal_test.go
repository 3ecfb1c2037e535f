package tanker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/native/nativetest"
)

func TestCore_OversizedDataIsArgumentError(t *testing.T) {
	prev := maxBufferSize
	maxBufferSize = 16
	t.Cleanup(func() { maxBufferSize = prev })

	sim := nativetest.New()
	ctx := context.Background()
	core, err := New(ctx, sim, Options{AppID: "app", PersistentPath: t.TempDir(), HTTP: HTTPOptions{Disabled: true}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(context.Background()) })
	_, err = core.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = core.RegisterIdentity(ctx, PassphraseVerification("pw"), nil)
	require.NoError(t, err)
	sess, err := core.CreateEncryptionSession(ctx, nil)
	require.NoError(t, err)

	calls := sim.Calls()
	tests := map[string]func() error{
		"encrypt": func() error {
			_, err := core.Encrypt(ctx, make([]byte, 17), nil)
			return err
		},
		"decrypt": func() error {
			_, err := core.Decrypt(ctx, make([]byte, 17))
			return err
		},
		"encryption_session_encrypt": func() error {
			_, err := sess.Encrypt(ctx, make([]byte, 17))
			return err
		},
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrArgument)
			assert.NotErrorIs(t, err, errors.ErrProtocol)
		})
	}
	assert.Equal(t, calls, sim.Calls(), "oversized data never reaches native")

	// The clear data fits but its ciphertext does not.
	_, err = core.Encrypt(ctx, make([]byte, 8), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrArgument)
	assert.NotErrorIs(t, err, errors.ErrProtocol)
	assert.Zero(t, sim.OutstandingByKind(nativetest.KindBuffer))
}
