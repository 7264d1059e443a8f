package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/domain/module"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm/hostfuncs"
)

// ErrRuleTrap wraps a recovered guest panic (computation exhaustion,
// out-of-bounds memory access, an explicit unreachable) as the RuleTrap
// error kind spec.md §7 names: the invocation is aborted and its instance
// discarded, but the process keeps running.
type ErrRuleTrap struct {
	Filename string
	Cause    interface{}
}

func (e *ErrRuleTrap) Error() string {
	return fmt.Sprintf("executor: rule %s trapped: %v", e.Filename, e.Cause)
}

// Outcome is what an invocation produced, for the dispatcher/webhook
// listener to act on.
type Outcome struct {
	Response       []byte // present only for entrypoints that return Option<bytes>
	HasResponse    bool
	ComputationUsed uint64
}

// wireEnvelope is the JSON payload written into guest memory alongside the
// payload bytes: the LogSource plus the metadata a rule may need without a
// separate host call (accessory data, log type).
type wireEnvelope struct {
	LogType   string            `json:"log_type"`
	Source    wireSource        `json:"source"`
	Accessory map[string]string `json:"accessory,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
}

type wireSource struct {
	Kind         string            `json:"kind"`
	Path         string            `json:"path,omitempty"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Query        map[string]string `json:"query,omitempty"`
	Schedule     string            `json:"schedule,omitempty"`
	CallerModule string            `json:"caller_module,omitempty"`
	Depth        int               `json:"depth,omitempty"`
	Name         string            `json:"name,omitempty"`
}

func toWireSource(s message.LogSource) wireSource {
	return wireSource{
		Kind: s.Kind.String(), Path: s.Path, Method: s.Method, Headers: s.Headers, Query: s.Query,
		Schedule: s.Schedule, CallerModule: s.CallerModule, Depth: s.Depth, Name: s.Name,
	}
}

// Executor runs Message invocations against compiled Artifacts, enforcing
// the computation/memory budget and the single_threaded_rules constraint.
type Executor struct {
	rt   *wasm.Runtime
	pool *instancePool

	invocationTimeout time.Duration

	serialMu sync.Mutex
	serial   map[string]*sync.Mutex // filename -> per-rule mutex, for SerialExecution artifacts
}

// New builds an Executor. instancePoolSize bounds how many guest instances
// may be live at once (spec.md's lru_cache_size, repurposed as a
// concurrency cap now that instances are never cached across invocations).
// timeoutSeconds is the wall-clock backstop applied to every invocation on
// top of the computation meter; zero disables it.
func New(ctx context.Context, rt *wasm.Runtime, instancePoolSize, timeoutSeconds int) (*Executor, error) {
	pool, err := newInstancePool(ctx, rt, instancePoolSize)
	if err != nil {
		return nil, err
	}
	e := &Executor{rt: rt, pool: pool, serial: make(map[string]*sync.Mutex)}
	if timeoutSeconds > 0 {
		e.invocationTimeout = time.Duration(timeoutSeconds) * time.Second
	}
	return e, nil
}

func (e *Executor) serialLock(filename string) *sync.Mutex {
	e.serialMu.Lock()
	defer e.serialMu.Unlock()
	m, ok := e.serial[filename]
	if !ok {
		m = &sync.Mutex{}
		e.serial[filename] = m
	}
	return m
}

// Invoke runs one message against art, returning its Outcome or an error.
// A RuleTrap error (*ErrRuleTrap) means the instance was already discarded
// and the runtime remains otherwise healthy.
func (e *Executor) Invoke(ctx context.Context, art *module.Artifact, msg *message.Message) (outcome *Outcome, err error) {
	if e.invocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.invocationTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executor: %s: %w", art.Filename, err)
	}

	if art.SerialExecution {
		lock := e.serialLock(art.Filename)
		lock.Lock()
		defer lock.Unlock()
	}

	mod, err := e.pool.checkout(ctx, art)
	if err != nil {
		return nil, err
	}

	meter := wasm.NewMeter(msg.Budget.Computation)
	inv := &hostfuncs.Invocation{
		Filename:          art.Filename,
		LogType:           art.LogType,
		Source:            msg.Source,
		Headers:           msg.Source.Headers,
		Query:             msg.Source.Query,
		Secrets:           msg.AvailableSecrets,
		Meter:             meter,
		LogbacksRemaining: msg.Budget.LogbacksRemaining,
	}

	// The metering listener factory only needs to be present on the context
	// passed to Compile/InstantiateModule (see instancePool.checkout):
	// wazero decides which functions carry a listener at compile time, and
	// the resulting Before/After hooks are invoked with whatever context
	// this call passes, from which they recover the active Meter.
	callCtx := wasm.WithMeter(ctx, meter)
	callCtx = hostfuncs.WithInvocation(callCtx, inv)

	var callErr error
	defer func() {
		if r := recover(); r != nil {
			e.pool.release(ctx, mod)
			outcome = nil
			err = &ErrRuleTrap{Filename: art.Filename, Cause: r}
			slog.WarnContext(ctx, "rule trapped", "module", art.Filename, "cause", fmt.Sprint(r))
		}
		// wazero recovers a panic raised during a guest call (the meter's
		// included) and returns it as that call's error.
		var exhausted wasm.ErrComputationExhausted
		if errors.As(callErr, &exhausted) || errors.As(err, &exhausted) {
			outcome = nil
			err = &ErrRuleTrap{Filename: art.Filename, Cause: exhausted}
		}
	}()

	entrypointName, fn, err := wasm.ResolveEntrypoint(mod)
	if err != nil {
		e.pool.release(ctx, mod)
		return nil, fmt.Errorf("executor: %s: %w", art.Filename, err)
	}

	envelope := wireEnvelope{LogType: msg.LogType, Source: toWireSource(msg.Source), Accessory: msg.Accessory, Secrets: msg.AvailableSecrets}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		e.pool.release(ctx, mod)
		return nil, fmt.Errorf("executor: marshaling envelope: %w", err)
	}

	payloadPacked, err := wasm.WriteBytes(callCtx, mod, msg.Payload)
	if err != nil {
		e.pool.release(ctx, mod)
		return nil, fmt.Errorf("executor: writing payload: %w", err)
	}
	defer wasm.FreeBytes(callCtx, mod, payloadPacked)

	var args []uint64
	switch entrypointName {
	case "plaid_entrypoint":
		args = []uint64{payloadPacked}
	default:
		sourcePacked, err := wasm.WriteBytes(callCtx, mod, envelopeBytes)
		if err != nil {
			e.pool.release(ctx, mod)
			return nil, fmt.Errorf("executor: writing source envelope: %w", err)
		}
		defer wasm.FreeBytes(callCtx, mod, sourcePacked)
		args = []uint64{payloadPacked, sourcePacked}
	}

	results, callErr := fn.Call(callCtx, args...)
	if callErr != nil {
		e.pool.release(ctx, mod)
		return nil, &ErrRuleTrap{Filename: art.Filename, Cause: callErr}
	}

	out := &Outcome{ComputationUsed: msg.Budget.Computation - meter.Remaining()}
	if entrypointName == "plaid_entrypoint_with_source_and_response" && len(results) > 0 && results[0] != 0 {
		resp, err := wasm.ReadPacked(mod, results[0])
		if err == nil {
			out.Response = resp
			out.HasResponse = true
		}
	}

	e.pool.release(ctx, mod)
	return out, nil
}

// Close releases the underlying runtime. Instances are never pooled across
// invocations, so there is nothing else to release here.
func (e *Executor) Close(ctx context.Context) error {
	return e.rt.Close(ctx)
}

var errNoEntrypoint = errors.New("executor: module exports no recognized entry point")
