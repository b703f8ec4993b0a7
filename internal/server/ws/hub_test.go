package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

type memBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string][]chan []byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.subs[channel] {
			if c == ch {
				b.subs[channel] = append(b.subs[channel][:i], b.subs[channel][i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func startHub(t *testing.T) (*Hub, *memBus, *httptest.Server) {
	t.Helper()
	bus := newMemBus()
	hub := NewHub(bus, []string{"ch:auction", "ch:market"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	<-hub.Ready()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, bus, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHub_ForwardsBusMessages(t *testing.T) {
	hub, bus, srv := startHub(t)
	conn := dial(t, srv)

	hello := readJSON(t, conn)
	assert.Equal(t, "hello", hello["type"])
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "ch:auction", []byte(`{"type":"bid_accepted"}`)))

	msg := readJSON(t, conn)
	assert.Equal(t, "ch:auction", msg["channel"])
	assert.Equal(t, map[string]any{"type": "bid_accepted"}, msg["data"])
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, bus, srv := startHub(t)
	conn := dial(t, srv)
	readJSON(t, conn)
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:auction"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return !c.isSubscribed("ch:auction")
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "ch:auction", []byte(`{"n":1}`)))
	require.NoError(t, bus.Publish(context.Background(), "ch:market", []byte(`{"n":2}`)))

	msg := readJSON(t, conn)
	assert.Equal(t, "ch:market", msg["channel"])
}

func TestClient_IgnoresUnknownChannels(t *testing.T) {
	h := &Hub{channels: []string{"ch:auction"}}
	c := &client{hub: h, subs: map[string]bool{}}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:auction", "ch:secret"}})

	assert.True(t, c.isSubscribed("ch:auction"))
	assert.False(t, c.isSubscribed("ch:secret"))
}
