// Package webhook defines the routing configuration that binds an HTTP
// path on a listener to a log-type, plus the GET-mode caching behavior for
// that route.
package webhook

import "github.com/plaidhost/plaid/internal/domain/message"

// CachingMode selects how a rule-produced GET response is memoized.
type CachingMode int

const (
	// CachingNone always re-invokes the rule for a GET.
	CachingNone CachingMode = iota
	// CachingTimed serves the last response until it expires, then re-invokes.
	CachingTimed
	// CachingFingerprinted keys the cache by query+header fingerprint and
	// de-duplicates concurrent invocations sharing a fingerprint.
	CachingFingerprinted
)

// GetModeKind tags the variant of a route's GET behavior.
type GetModeKind int

const (
	// GetModeStatic serves fixed configured bytes.
	GetModeStatic GetModeKind = iota
	// GetModeRule invokes (or replays the cache for) a named rule module.
	GetModeRule
	// GetModeUpstream serves a fixed, integration-specific literal string
	// (e.g. a webhook verification challenge response).
	GetModeUpstream
)

// GetMode is the tagged variant governing a route's response to HTTP GET.
type GetMode struct {
	Kind GetModeKind

	// Static payload, valid when Kind == GetModeStatic.
	StaticBody []byte

	// Rule module filename, valid when Kind == GetModeRule.
	RuleModule  string
	CachingMode CachingMode
	TimedSeconds int

	// Upstream literal, valid when Kind == GetModeUpstream.
	UpstreamBody string
}

// Route binds a listener path to a log-type and its request/response shape.
type Route struct {
	Listener        string // "internal" or "external"
	Path            string
	LogType         string
	AllowedHeaders  []string
	LogbacksAllowed message.Limit
	GetMode         *GetMode // nil means GET is not served for this route
}
