package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitDecrement(t *testing.T) {
	tests := []struct {
		name      string
		limit     Limit
		expected  Limit
		exhausted bool
	}{
		{"unlimited stays unlimited", Unlimited(), Unlimited(), false},
		{"limited decrements", Limited(3), Limited(2), false},
		{"limited reaches zero", Limited(1), Limited(0), false},
		{"exhausted stays exhausted", Limited(0), Limited(0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.limit.Decrement()
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLimitExhausted(t *testing.T) {
	assert.False(t, Unlimited().Exhausted())
	assert.False(t, Limited(1).Exhausted())
	assert.True(t, Limited(0).Exhausted())
}

func TestLimitString(t *testing.T) {
	assert.Equal(t, "unlimited", Unlimited().String())
	assert.Equal(t, "5", Limited(5).String())
}

func TestSourceKindString(t *testing.T) {
	tests := []struct {
		kind     SourceKind
		expected string
	}{
		{SourceWebhook, "webhook"},
		{SourceInterval, "interval"},
		{SourceLogback, "logback"},
		{SourceWebSocket, "websocket"},
		{SourceGenerator, "generator"},
		{SourceKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestLogSourceEqual(t *testing.T) {
	a := Webhook("/hooks/foo", "POST", map[string]string{"X-A": "1"}, map[string]string{"q": "1"})
	b := Webhook("/hooks/foo", "POST", map[string]string{"X-A": "1"}, map[string]string{"q": "1"})
	c := Webhook("/hooks/bar", "POST", map[string]string{"X-A": "1"}, map[string]string{"q": "1"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	assert.True(t, Logback("mod.wasm", 2).Equal(Logback("mod.wasm", 2)))
	assert.False(t, Logback("mod.wasm", 2).Equal(Logback("mod.wasm", 3)))

	assert.True(t, Interval("*/5 * * * *").Equal(Interval("*/5 * * * *")))
	assert.False(t, Interval("*/5 * * * *").Equal(Interval("*/10 * * * *")))

	assert.True(t, WebSocket("feed").Equal(WebSocket("feed")))
	assert.True(t, Generator("queue-a").Equal(Generator("queue-a")))

	assert.False(t, a.Equal(Logback("mod.wasm", 0)))
}

func TestLogSourceEqualDifferentHeaderLengths(t *testing.T) {
	a := Webhook("/p", "GET", map[string]string{"X-A": "1", "X-B": "2"}, nil)
	b := Webhook("/p", "GET", map[string]string{"X-A": "1"}, nil)
	assert.False(t, a.Equal(b))
}
