package enginebridge

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnRequest struct {
	Prefab string  `json:"prefab"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type spawnResult struct {
	Entity int `json:"entity"`
}

var errUnknownPrefab = stderrors.New("unknown prefab")

func spawnPrefab(_ context.Context, req *spawnRequest) (spawnResult, error) {
	if req.Prefab != "crate" {
		return spawnResult{}, errUnknownPrefab
	}

	return spawnResult{Entity: int(req.X*10 + req.Y)}, nil
}

func TestHandleRequest_RespondsWithResult(t *testing.T) {
	host, _ := startPair(t, func(_, engine Bridge) {
		_, err := HandleRequest(engine, "spawn", spawnPrefab)
		require.NoError(t, err)
	})

	result, err := Call[spawnResult](context.Background(), host, "spawn", spawnRequest{Prefab: "crate", X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, 12, result.Entity)
}

func TestHandleRequest_ErrorCarriesHandlerOrigin(t *testing.T) {
	host, _ := startPair(t, func(_, engine Bridge) {
		_, err := HandleRequest(engine, "spawn", spawnPrefab)
		require.NoError(t, err)
	})

	_, err := Call[spawnResult](context.Background(), host, "spawn", spawnRequest{Prefab: "dragon"})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "unknown prefab", reqErr.Message)
	assert.Contains(t, reqErr.OriginMember, "spawnPrefab")
	assert.Contains(t, reqErr.OriginFile, "handlers_test.go")
	assert.NotZero(t, reqErr.OriginLine)
	assert.Contains(t, reqErr.RawInput, `"dragon"`)
}

func TestHandleRequest_KeepsRequestErrorOrigin(t *testing.T) {
	host, _ := startPair(t, func(_, engine Bridge) {
		_, err := HandleRequest(engine, "spawn",
			func(context.Context, *spawnRequest) (spawnResult, error) {
				return spawnResult{}, &RequestError{
					Message:      "level locked",
					OriginMember: "World.Spawn",
					OriginFile:   "world.go",
					OriginLine:   7,
				}
			},
		)
		require.NoError(t, err)
	})

	_, err := host.SendRequest(context.Background(), "spawn", spawnRequest{Prefab: "crate"})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "level locked", reqErr.Message)
	assert.Equal(t, "World.Spawn", reqErr.OriginMember)
	assert.Equal(t, "world.go", reqErr.OriginFile)
	assert.Equal(t, 7, reqErr.OriginLine)
}

func TestHandleRequest_RejectsInvalidPayload(t *testing.T) {
	called := make(chan struct{}, 1)

	host, _ := startPair(t, func(_, engine Bridge) {
		_, err := HandleRequest(engine, "spawn",
			func(ctx context.Context, req *spawnRequest) (spawnResult, error) {
				called <- struct{}{}

				return spawnPrefab(ctx, req)
			},
		)
		require.NoError(t, err)
	})

	tests := []struct {
		name    string
		payload any
	}{
		{name: "wrong field type", payload: map[string]any{"prefab": 5, "x": 1, "y": 2}},
		{name: "missing field", payload: map[string]any{"prefab": "crate"}},
		{name: "absent payload", payload: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := host.SendRequest(context.Background(), "spawn", tt.payload)

			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Contains(t, reqErr.Message, "payload does not match schema")
		})
	}

	assert.Empty(t, called)
}

func TestHandleRequestWithSchema(t *testing.T) {
	host, _ := startPair(t, func(_, engine Bridge) {
		_, err := HandleRequestWithSchema(engine, "add",
			SimpleSchema(map[string]string{"a": "float64", "b": "float64"}),
			func(_ context.Context, req *map[string]float64) (float64, error) {
				return (*req)["a"] + (*req)["b"], nil
			},
		)
		require.NoError(t, err)
	})

	sum, err := Call[float64](context.Background(), host, "add", map[string]float64{"a": 2, "b": 3.5})
	require.NoError(t, err)
	assert.InDelta(t, 5.5, sum, 1e-9)

	_, err = Call[float64](context.Background(), host, "add", map[string]any{"a": "two"})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
}

func TestHandleRequest_SenderCancellation(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan error, 1)

	host, engine := startPair(t, func(_, engine Bridge) {
		_, err := HandleRequest(engine, "bake",
			func(ctx context.Context, _ *string) (string, error) {
				close(started)
				<-ctx.Done()
				stopped <- ctx.Err()

				return "", ctx.Err()
			},
		)
		require.NoError(t, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		_, err := host.SendRequest(ctx, "bake", "lightmaps")
		errCh <- err
	}()

	<-started
	cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)

	select {
	case err := <-stopped:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Handler did not observe cancellation")
	}

	require.Eventually(t, func() bool {
		inbound, _ := engine.Pending()

		return inbound == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleRequest_CloseWaitsForHandlers(t *testing.T) {
	finished := make(chan struct{})
	started := make(chan struct{})

	hostEnd, engineEnd := NewPipe(nil)

	engine := NewBridge()
	_, err := HandleRequest(engine, "bake",
		func(ctx context.Context, _ *string) (string, error) {
			close(started)
			<-ctx.Done()
			close(finished)

			return "", ctx.Err()
		},
	)
	require.NoError(t, err)

	host := NewBridge()

	require.NoError(t, engine.Start(context.Background(), WithTransport(engineEnd)))
	require.NoError(t, host.Start(context.Background(), WithTransport(hostEnd)))
	t.Cleanup(func() { _ = host.Close() })

	go func() {
		_, _ = host.SendRequest(context.Background(), "bake", "lightmaps")
	}()

	<-started
	require.NoError(t, engine.Close())

	select {
	case <-finished:
	default:
		t.Fatal("Close returned before the handler finished")
	}
}

func TestHandleMessage(t *testing.T) {
	received := make(chan spawnRequest, 1)

	host, _ := startPair(t, func(_, engine Bridge) {
		HandleMessage(engine, "spawned", func(_ context.Context, msg spawnRequest) {
			received <- msg
		})
	})

	// A payload that does not decode is skipped
	require.NoError(t, host.SendMessage(context.Background(), "spawned", "not an object"))
	require.NoError(t, host.SendMessage(context.Background(), "spawned", spawnRequest{Prefab: "crate", X: 4}))

	select {
	case msg := <-received:
		assert.Equal(t, "crate", msg.Prefab)
		assert.InDelta(t, 4.0, msg.X, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("Message not delivered in time")
	}
}

func TestCall_DecodeFailure(t *testing.T) {
	host, _ := startPair(t, func(_, engine Bridge) {
		engine.OnRequest("score", func(h *Handler) bool {
			assert.NoError(t, h.Respond("not a number"))

			return true
		})
	})

	_, err := Call[int](context.Background(), host, "score", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode payload")
}

func TestSimpleSchema(t *testing.T) {
	s := SimpleSchema(map[string]string{"name": "string", "tags": "[]string"})

	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"name", "tags"}, s.Required)
	assert.Equal(t, "string", s.Properties["name"].Type)
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)
}
