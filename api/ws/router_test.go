package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fateforge/server/game/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

// newTestConn creates a minimal Conn for dispatch tests. No websocket
// is attached; Dispatch never writes to the socket itself.
func newTestConn(accountID int64) *client.Conn {
	return &client.Conn{
		ID:        "test-conn",
		AccountID: accountID,
		SendChan:  make(chan []byte, 256),
		Done:      make(chan struct{}),
	}
}

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	p, _ := json.Marshal(payload)
	pkt := client.Packet{Seq: seq, Type: msgType, Payload: p}
	b, err := json.Marshal(pkt)
	require.NoError(t, err)
	return b
}

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("ping", func(ctx context.Context, c *client.Conn, payload json.RawMessage) error {
		called = true
		return nil
	})

	c := newTestConn(1)
	r.Dispatch(c, makePacket(t, 1, "ping", nil))
	assert.True(t, called)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nop())
	c := newTestConn(1)
	// Should not panic
	r.Dispatch(c, []byte("not json"))
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("known", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		called = true
		return nil
	})
	c := newTestConn(1)
	r.Dispatch(c, makePacket(t, 1, "unknown", nil))
	assert.False(t, called)
}

func TestRouter_Dispatch_AntiReplay_RejectsOldSeq(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		callCount++
		return nil
	})
	c := newTestConn(1)

	// First message with seq=5 → accepted
	r.Dispatch(c, makePacket(t, 5, "msg", nil))
	assert.Equal(t, 1, callCount)

	// Same seq=5 → rejected (replay)
	r.Dispatch(c, makePacket(t, 5, "msg", nil))
	assert.Equal(t, 1, callCount)

	// Lower seq=3 → rejected
	r.Dispatch(c, makePacket(t, 3, "msg", nil))
	assert.Equal(t, 1, callCount)
}

func TestRouter_Dispatch_AntiReplay_AcceptsNewSeq(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		callCount++
		return nil
	})
	c := newTestConn(1)

	r.Dispatch(c, makePacket(t, 10, "msg", nil))
	r.Dispatch(c, makePacket(t, 11, "msg", nil))
	r.Dispatch(c, makePacket(t, 100, "msg", nil))
	assert.Equal(t, 3, callCount)
}

func TestRouter_Dispatch_SeqZero_SkipsAntiReplay(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		callCount++
		return nil
	})
	c := newTestConn(1)
	c.LastSeq = 100 // high seq already seen

	// Seq=0 should bypass anti-replay
	r.Dispatch(c, makePacket(t, 0, "msg", nil))
	r.Dispatch(c, makePacket(t, 0, "msg", nil))
	assert.Equal(t, 2, callCount)
}

func TestRouter_Dispatch_PayloadPassed(t *testing.T) {
	r := NewRouter(nop())
	var got map[string]interface{}
	r.On("data", func(_ context.Context, _ *client.Conn, raw json.RawMessage) error {
		return json.Unmarshal(raw, &got)
	})
	c := newTestConn(1)
	r.Dispatch(c, makePacket(t, 1, "data", map[string]interface{}{"key": "value"}))
	assert.Equal(t, "value", got["key"])
}

func TestRouter_Dispatch_HandlerError_NoPanic(t *testing.T) {
	r := NewRouter(nop())
	r.On("err", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		return assert.AnError
	})
	c := newTestConn(1)
	// Should not panic even when handler returns error
	r.Dispatch(c, makePacket(t, 1, "err", nil))
}

func TestRouter_TraceIDFromCtx_Present(t *testing.T) {
	r := NewRouter(nop())
	var traceID string
	r.On("trace", func(ctx context.Context, _ *client.Conn, _ json.RawMessage) error {
		traceID = TraceIDFromCtx(ctx)
		return nil
	})
	c := newTestConn(1)
	r.Dispatch(c, makePacket(t, 1, "trace", nil))
	assert.NotEmpty(t, traceID)
}

func TestTraceIDFromCtx_Missing(t *testing.T) {
	id := TraceIDFromCtx(context.Background())
	assert.Equal(t, "", id)
}

func TestRouter_MultipleHandlers(t *testing.T) {
	r := NewRouter(nop())
	var calls []string
	r.On("a", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		calls = append(calls, "a")
		return nil
	})
	r.On("b", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		calls = append(calls, "b")
		return nil
	})
	c := newTestConn(1)
	r.Dispatch(c, makePacket(t, 1, "a", nil))
	r.Dispatch(c, makePacket(t, 2, "b", nil))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRouter_ReplaceHandler(t *testing.T) {
	r := NewRouter(nop())
	var calls []string
	r.On("msg", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		calls = append(calls, "first")
		return nil
	})
	r.On("msg", func(_ context.Context, _ *client.Conn, _ json.RawMessage) error {
		calls = append(calls, "second")
		return nil
	})
	c := newTestConn(1)
	r.Dispatch(c, makePacket(t, 1, "msg", nil))
	assert.Equal(t, []string{"second"}, calls)
}
