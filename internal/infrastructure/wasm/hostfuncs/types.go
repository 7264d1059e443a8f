// Package hostfuncs registers the "plaid_host" WASM module: the numbered
// host functions rule bytecode imports, each gated by the capability
// policy's allowlist/test-mode checks and charged against the invocation's
// computation meter before performing any side effect.
package hostfuncs

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

// apiFunc is the signature every plaid_host export implements.
type apiFunc func(ctx context.Context, mod api.Module, stack []uint64)

// FunctionError mirrors the original runtime's small negative error-code
// vocabulary: host calls never trap on ordinary failure, they return a
// negative i64/i32 the rule's SDK translates into its own Result type.
type FunctionError int32

const (
	ErrAPINotConfigured       FunctionError = -1
	ErrReturnBufferTooSmall   FunctionError = -2
	ErrCouldNotSerialize      FunctionError = -3
	ErrInternalAPIError       FunctionError = -4
	ErrParametersNotUTF8      FunctionError = -5
	ErrInvalidPointer         FunctionError = -6
	ErrCacheDisabled          FunctionError = -7
	ErrCouldNotGetMemory      FunctionError = -8
	ErrFailedToWriteMemory    FunctionError = -9
	ErrStorageLimitReached    FunctionError = -10
	ErrTestMode               FunctionError = -11
	ErrAllowlistDenied        FunctionError = -12
)

// StorageService is the narrow surface hostfuncs needs from the storage
// component (component D) to implement storage:: capabilities.
type StorageService interface {
	Insert(ctx context.Context, filename, key string, value []byte) error
	Get(ctx context.Context, filename, key string) ([]byte, bool, error)
	Delete(ctx context.Context, filename, key string) ([]byte, bool, error)
	ListKeys(ctx context.Context, filename, mode, prefix string) ([]string, error)

	SharedInsert(ctx context.Context, db, callerFilename, key string, value []byte) error
	SharedGet(ctx context.Context, db, callerFilename, key string) ([]byte, bool, error)
	SharedDelete(ctx context.Context, db, callerFilename, key string) ([]byte, bool, error)
	SharedListKeys(ctx context.Context, db, callerFilename, mode, prefix string) ([]string, error)
}

// CacheService is the narrow surface hostfuncs needs from the cache
// component to implement cache:: capabilities.
type CacheService interface {
	Insert(ctx context.Context, cacheName, key string, value []byte, ttlSeconds int) (evictedKey string, evicted bool)
	Get(ctx context.Context, cacheName, key string) ([]byte, bool)
}

// NetworkService performs a preconfigured outbound HTTP request on behalf
// of network::make_named_request.
type NetworkService interface {
	MakeNamedRequest(ctx context.Context, name string, urlVars, bodyVars, headersOverride map[string]string) (status int, body []byte, err error)
}

// LogbackService enqueues a logback message on behalf of log_back, subject
// to the caller's remaining logback budget.
type LogbackService interface {
	LogBack(ctx context.Context, inv *Invocation, newLogType string, payload []byte, delaySeconds int) error
}

// PersistentResponseService exposes a module's own last stored response,
// for the persistent_response::get capability (supplemented feature: the
// original runtime lets a rule read back its own persisted response).
type PersistentResponseService interface {
	Get(ctx context.Context, filename string) ([]byte, bool)
}

// Services aggregates every backend hostfuncs dispatches to. All fields
// are optional; a nil field makes the corresponding capability family
// respond with ErrAPINotConfigured instead of panicking.
type Services struct {
	Storage            StorageService
	Cache              CacheService
	Network            NetworkService
	Logback            LogbackService
	PersistentResponse PersistentResponseService
}

// Invocation is the per-call state hostfuncs reads: which rule is running,
// what message triggered it, and the mutable budget it is spending down.
// One Invocation is created per executor.Invoke call and attached to the
// module's context for the duration of the call.
type Invocation struct {
	Filename string
	LogType  string
	TestMode bool
	Source   message.LogSource
	Headers  map[string]string
	Query    map[string]string
	Secrets  map[string]string

	Meter *wasm.Meter

	// LogbacksRemaining is mutated in place as log_back calls succeed; it
	// starts as a copy of the triggering message's budget field.
	LogbacksRemaining message.Limit
}

type invocationCtxKey struct{}

// WithInvocation attaches inv to ctx for the duration of one module call.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationCtxKey{}, inv)
}

// InvocationFromContext retrieves the active Invocation, if any.
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(invocationCtxKey{}).(*Invocation)
	return inv, ok
}

// checkCapability evaluates a capability call for the invocation attached
// to ctx, returning the decision and the invocation for convenience.
func checkCapability(ctx context.Context, checker *wasm.CapabilityChecker, cap capabilities.Capability) (capabilities.AccessDecision, *Invocation) {
	inv, ok := InvocationFromContext(ctx)
	if !ok {
		return capabilities.DeniedNotFound, nil
	}
	if checker == nil || checker.Policy == nil {
		return capabilities.DeniedNotFound, inv
	}
	return checker.Policy.Evaluate(cap, inv.Filename, checker.TestMode), inv
}
