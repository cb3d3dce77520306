package enginebridge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginebridge "github.com/wagiedev/enginebridge-go"
)

func TestWithBridge_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := enginebridge.WithBridge(ctx, func(_ enginebridge.Bridge) error {
		t.Error("callback should not be called with cancelled context")

		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithBridge_StartFailure(t *testing.T) {
	err := enginebridge.WithBridge(context.Background(), func(_ enginebridge.Bridge) error {
		t.Error("callback should not be called when start fails")

		return nil
	})
	require.ErrorIs(t, err, enginebridge.ErrNoTransport)
	assert.Contains(t, err.Error(), "failed to start bridge")
}

func TestWithBridge_CallbackError(t *testing.T) {
	end, _ := enginebridge.NewPipe(nil)
	callbackErr := errors.New("level failed to load")

	err := enginebridge.WithBridge(context.Background(), func(_ enginebridge.Bridge) error {
		return callbackErr
	}, enginebridge.WithTransport(end))

	require.ErrorIs(t, err, callbackErr)
}

func TestWithBridge_ClosesBridge(t *testing.T) {
	hostEnd, engineEnd := enginebridge.NewPipe(nil)

	engine := enginebridge.NewBridge()
	engine.OnRequest("ping", func(h *enginebridge.Handler) bool {
		assert.NoError(t, h.Respond("pong"))

		return true
	})

	require.NoError(t, engine.Start(context.Background(), enginebridge.WithTransport(engineEnd)))
	t.Cleanup(func() { _ = engine.Close() })

	var captured enginebridge.Bridge

	err := enginebridge.WithBridge(context.Background(), func(b enginebridge.Bridge) error {
		captured = b

		pong, err := enginebridge.Call[string](context.Background(), b, "ping", nil)
		if err != nil {
			return err
		}

		assert.Equal(t, "pong", pong)

		return nil
	}, enginebridge.WithTransport(hostEnd), enginebridge.WithLogger(enginebridge.NopLogger()))
	require.NoError(t, err)

	err = captured.SendMessage(context.Background(), "ping", nil)
	require.ErrorIs(t, err, enginebridge.ErrBridgeClosed)
}
