// Package message defines the typed carriers delivered to rules: the
// tagged LogSource variant, the Message envelope, and the per-invocation
// execution budget that travels with it.
package message

import "fmt"

// Limit is a resource ceiling that is either unbounded or capped at a
// concrete value. It mirrors the spec's `Limit ∈ {Unlimited, Limited(n)}`.
type Limit struct {
	unlimited bool
	value     uint64
}

// Unlimited returns a Limit with no ceiling.
func Unlimited() Limit { return Limit{unlimited: true} }

// Limited returns a Limit capped at n.
func Limited(n uint64) Limit { return Limit{value: n} }

// IsUnlimited reports whether the limit has no ceiling.
func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the numeric ceiling. Only meaningful when !IsUnlimited().
func (l Limit) Value() uint64 { return l.value }

// Decrement returns the limit after consuming one unit. Unlimited stays
// unlimited; a Limited(0) decrements to itself (callers must check
// Exhausted before consuming).
func (l Limit) Decrement() Limit {
	if l.unlimited || l.value == 0 {
		return l
	}
	return Limited(l.value - 1)
}

// Exhausted reports whether a Limited value has reached zero.
func (l Limit) Exhausted() bool {
	return !l.unlimited && l.value == 0
}

// String renders the limit for logs.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.value)
}

// ExecBudget is the per-invocation resource ceiling snapshot copied from a
// module artifact at dispatch time, so per-invocation adjustments (e.g. a
// decremented logback budget) never mutate the artifact.
type ExecBudget struct {
	Computation        uint64
	MemoryPages        uint32
	StorageBytes       Limit
	LogbacksRemaining  Limit
}

// SourceKind tags the variant carried by a LogSource.
type SourceKind int

const (
	// SourceWebhook identifies a message delivered by an HTTP webhook.
	SourceWebhook SourceKind = iota
	// SourceInterval identifies a message delivered by a cron-style timer.
	SourceInterval
	// SourceLogback identifies a message enqueued by a rule-to-rule chain.
	SourceLogback
	// SourceWebSocket identifies a message delivered by a websocket tailer.
	SourceWebSocket
	// SourceGenerator identifies a message from any other named generator (e.g. a queue poller).
	SourceGenerator
)

func (k SourceKind) String() string {
	switch k {
	case SourceWebhook:
		return "webhook"
	case SourceInterval:
		return "interval"
	case SourceLogback:
		return "logback"
	case SourceWebSocket:
		return "websocket"
	case SourceGenerator:
		return "generator"
	default:
		return "unknown"
	}
}

// LogSource is a tagged variant carrying provenance for a Message. Only the
// fields relevant to Kind are populated; equality is structural.
type LogSource struct {
	Kind SourceKind

	// Webhook fields.
	Path    string
	Method  string
	Headers map[string]string
	Query   map[string]string

	// Interval fields.
	Schedule string

	// Logback fields.
	CallerModule string
	Depth        int

	// WebSocket / Generator fields.
	Name string
}

// Webhook constructs a Webhook-tagged LogSource.
func Webhook(path, method string, headers, query map[string]string) LogSource {
	return LogSource{Kind: SourceWebhook, Path: path, Method: method, Headers: headers, Query: query}
}

// Interval constructs an Interval-tagged LogSource.
func Interval(schedule string) LogSource {
	return LogSource{Kind: SourceInterval, Schedule: schedule}
}

// Logback constructs a Logback-tagged LogSource.
func Logback(callerModule string, depth int) LogSource {
	return LogSource{Kind: SourceLogback, CallerModule: callerModule, Depth: depth}
}

// WebSocket constructs a WebSocket-tagged LogSource.
func WebSocket(name string) LogSource {
	return LogSource{Kind: SourceWebSocket, Name: name}
}

// Generator constructs a Generator-tagged LogSource.
func Generator(name string) LogSource {
	return LogSource{Kind: SourceGenerator, Name: name}
}

// Equal reports structural equality between two LogSource values.
func (s LogSource) Equal(o LogSource) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case SourceWebhook:
		return s.Path == o.Path && s.Method == o.Method && mapsEqual(s.Headers, o.Headers) && mapsEqual(s.Query, o.Query)
	case SourceInterval:
		return s.Schedule == o.Schedule
	case SourceLogback:
		return s.CallerModule == o.CallerModule && s.Depth == o.Depth
	case SourceWebSocket, SourceGenerator:
		return s.Name == o.Name
	default:
		return false
	}
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Message is the typed carrier delivered to a rule invocation.
type Message struct {
	LogType           string
	Payload           []byte
	Source            LogSource
	Accessory         map[string]string
	AvailableSecrets  map[string]string
	Budget            ExecBudget
}
