package generators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestWebSocketGeneratorName(t *testing.T) {
	g := NewWebSocketGenerator(nil)
	assert.Equal(t, "websocket", g.Name())
}

func TestWebSocketGeneratorEmitsFramesFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(newUpgradeHandler(t, upgrader, []string{"frame-one", "frame-two"}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	g := NewWebSocketGenerator([]WebSocketSpec{{Name: "tail", URL: wsURL, LogType: "audit"}})
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, sink) }()

	assert.Eventually(t, func() bool { return len(sink.snapshot()) >= 2 }, 2*time.Second, 10*time.Millisecond)

	msgs := sink.snapshot()
	assert.Equal(t, "audit", msgs[0].LogType)
	assert.Equal(t, "frame-one", string(msgs[0].Payload))
	assert.Equal(t, "frame-two", string(msgs[1].Payload))
	assert.Equal(t, "tail", msgs[0].Source.Name)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNextDelayDoublesUntilCap(t *testing.T) {
	d := initialReconnectDelay
	d = nextDelay(d)
	assert.Equal(t, 2*time.Second, d)
	d = nextDelay(d)
	assert.Equal(t, 4*time.Second, d)

	huge := nextDelay(maxReconnectDelay)
	assert.Equal(t, maxReconnectDelay, huge)
}

func newUpgradeHandler(t *testing.T, upgrader websocket.Upgrader, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Keep the connection open briefly so the client's read loop has
		// time to consume both frames before the server closes it.
		time.Sleep(200 * time.Millisecond)
	}
}
