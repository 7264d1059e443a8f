package generators

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plaidhost/plaid/internal/domain/message"
)

// WebSocketSpec is one websocket-generator entry from data.toml: a URL to
// tail, with every text frame received emitted as a message payload.
type WebSocketSpec struct {
	Name    string
	URL     string
	LogType string
}

// WebSocketGenerator dials each configured URL and emits one Message per
// frame received, reconnecting with exponential backoff on drop.
type WebSocketGenerator struct {
	specs []WebSocketSpec
}

func NewWebSocketGenerator(specs []WebSocketSpec) *WebSocketGenerator {
	return &WebSocketGenerator{specs: specs}
}

func (g *WebSocketGenerator) Name() string { return "websocket" }

func (g *WebSocketGenerator) Run(ctx context.Context, sink Sink) error {
	for _, spec := range g.specs {
		go g.tail(ctx, spec, sink)
	}
	<-ctx.Done()
	return nil
}

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	reconnectMultiplier   = 2.0
)

func (g *WebSocketGenerator) tail(ctx context.Context, spec WebSocketSpec, sink Sink) {
	delay := initialReconnectDelay
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := dialer.DialContext(ctx, spec.URL, nil)
		if err != nil {
			slog.WarnContext(ctx, "websocket dial failed, retrying", "name", spec.Name, "error", err, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = initialReconnectDelay

		g.readLoop(ctx, spec, conn, sink)
		_ = conn.Close()
	}
}

func (g *WebSocketGenerator) readLoop(ctx context.Context, spec WebSocketSpec, conn *websocket.Conn, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			slog.WarnContext(ctx, "websocket connection dropped", "name", spec.Name, "error", err)
			return
		}

		msg := message.Message{
			LogType: spec.LogType,
			Payload: payload,
			Source:  message.WebSocket(spec.Name),
		}
		if err := sink.Enqueue(ctx, msg); err != nil {
			slog.WarnContext(ctx, "websocket enqueue failed", "name", spec.Name, "error", err)
		}
	}
}

func nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * reconnectMultiplier)
	if next > maxReconnectDelay {
		return maxReconnectDelay
	}
	return next
}
