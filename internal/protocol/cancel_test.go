package protocol

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/handler"
	"github.com/wagiedev/enginebridge-go/internal/listener"
)

func TestCancel_SignalReachesDeferredHandler(t *testing.T) {
	d, transport := startDispatcher(t)

	handlerCh := make(chan *handler.Handler, 1)
	cancelled := make(chan struct{})

	d.Listeners().Subscribe(listener.Filter{}, func(h *handler.Handler) bool {
		h.Defer()
		assert.NoError(t, h.OnCancel(func(*handler.Handler) { close(cancelled) }))

		handlerCh <- h

		return true
	})

	transport.sendToDispatcher(t, request("c3", "load", ""))

	var h *handler.Handler

	select {
	case h = <-handlerCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Handler did not start in time")
	}

	transport.sendToDispatcher(t, envelope.Envelope{Kind: envelope.KindCanceled, ID: "load", CorrelationID: "c3"})

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel observer was not invoked in time")
	}

	assert.True(t, h.IsCanceled())
	assert.ErrorIs(t, h.Context().Err(), context.Canceled)
	assert.Equal(t, 1, d.PendingInbound(), "cancellation does not terminate the handler")
	assert.Empty(t, transport.getEnvelopes(t))

	h.Defer().Release()

	reply := transport.nextEnvelope(t)
	assert.Equal(t, envelope.KindCanceled, reply.Kind)
	assert.Equal(t, "c3", reply.CorrelationID)
	assert.Zero(t, d.PendingInbound())
}

func TestCancel_ConsumerMayStillRespond(t *testing.T) {
	d, transport := startDispatcher(t)

	d.Listeners().Subscribe(listener.Filter{}, func(h *handler.Handler) bool {
		deferral := h.Defer()

		assert.NoError(t, h.OnCancel(func(h *handler.Handler) {
			defer deferral.Release()

			assert.NoError(t, h.Respond("partial result"))
		}))

		return true
	})

	transport.sendToDispatcher(t, request("c11", "load", ""))
	require.Eventually(t, func() bool { return d.PendingInbound() == 1 }, time.Second, 10*time.Millisecond)

	transport.sendToDispatcher(t, envelope.Envelope{Kind: envelope.KindCanceled, ID: "load", CorrelationID: "c11"})

	reply := transport.nextEnvelope(t)
	assert.Equal(t, envelope.KindResponse, reply.Kind)
	assert.JSONEq(t, `"partial result"`, string(reply.Payload))
}

func TestCancel_DuplicateSignalFiresObserversOnce(t *testing.T) {
	d, transport := startDispatcher(t)

	fired := make(chan struct{}, 4)

	d.Listeners().Subscribe(listener.Filter{}, func(h *handler.Handler) bool {
		h.Defer()
		assert.NoError(t, h.OnCancel(func(*handler.Handler) { fired <- struct{}{} }))

		return true
	})

	transport.sendToDispatcher(t, request("c12", "load", ""))

	cancel := envelope.Envelope{Kind: envelope.KindCanceled, ID: "load", CorrelationID: "c12"}
	transport.sendToDispatcher(t, cancel)
	transport.sendToDispatcher(t, cancel)

	// A later request proves both signals were processed
	transport.sendToDispatcher(t, request("c13", "load", ""))
	require.Eventually(t, func() bool { return d.PendingInbound() == 2 }, time.Second, 10*time.Millisecond)

	assert.Len(t, fired, 1)
}

func TestCancel_OutboundContextCancellationRelaysSignal(t *testing.T) {
	d, transport := startDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		_, err := d.SendRequest(ctx, "slow_operation", nil)
		errCh <- err
	}()

	req := transport.nextEnvelope(t)
	require.Equal(t, envelope.KindRequest, req.Kind)

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("SendRequest did not return after cancellation")
	}

	signal := transport.nextEnvelope(t)
	assert.Equal(t, envelope.KindCanceled, signal.Kind)
	assert.Equal(t, "slow_operation", signal.ID)
	assert.Equal(t, req.CorrelationID, signal.CorrelationID)
	assert.Zero(t, d.PendingOutbound())

	// A late reply for the abandoned request is discarded silently
	transport.sendToDispatcher(t, req.Reply(envelope.KindResponse, nil))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, d.PendingOutbound())
}

func TestCancel_CanceledReplyForOutboundRequest(t *testing.T) {
	d, transport := startDispatcher(t)

	errCh := make(chan error, 1)

	go func() {
		_, err := d.SendRequest(context.Background(), "load", nil)
		errCh <- err
	}()

	req := transport.nextEnvelope(t)
	transport.sendToDispatcher(t, req.Reply(envelope.KindCanceled, nil))

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "request canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("SendRequest did not return after Canceled reply")
	}
}

func TestCancel_DataRace(t *testing.T) {
	d, transport := startDispatcher(t)

	d.Listeners().Subscribe(listener.Filter{}, func(h *handler.Handler) bool {
		deferral := h.Defer()

		go func() {
			defer deferral.Release()

			select {
			case <-h.Context().Done():
			case <-time.After(20 * time.Millisecond):
				_ = h.Respond("done")
			}
		}()

		return true
	})

	for i := range 10 {
		id := "req-race-" + string(rune('a'+i))

		transport.sendToDispatcher(t, request(id, "concurrent_op", ""))

		if i%2 == 0 {
			transport.sendToDispatcher(t, envelope.Envelope{Kind: envelope.KindCanceled, ID: "concurrent_op", CorrelationID: id})
		}
	}

	require.Eventually(t, func() bool { return d.PendingInbound() == 0 }, 2*time.Second, 10*time.Millisecond)

	replies := map[string]int{}
	for _, env := range transport.getEnvelopes(t) {
		replies[env.CorrelationID]++
	}

	assert.Len(t, replies, 10)

	for id, n := range replies {
		assert.Equal(t, 1, n, "exactly one terminal reply for %s", id)
	}
}

// stallingTransport accepts the first frame and then blocks every send
// until its context ends.
type stallingTransport struct {
	*mockTransport

	sent atomic.Int32
}

func (s *stallingTransport) SendFrame(ctx context.Context, frame string) error {
	if s.sent.Add(1) == 1 {
		return s.mockTransport.SendFrame(ctx, frame)
	}

	<-ctx.Done()

	return ctx.Err()
}

func TestCancel_AbandonDoesNotHangOnStalledTransport(t *testing.T) {
	transport := &stallingTransport{mockTransport: newMockTransport()}
	d := NewDispatcher(slog.Default(), &config.Options{Transport: transport}, nil)

	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		_, err := d.SendRequest(ctx, "slow", nil)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("SendRequest blocked on the cancellation signal")
	}

	assert.Zero(t, d.PendingOutbound())
	assert.Equal(t, int32(2), transport.sent.Load(), "cancellation signal was attempted")
}
