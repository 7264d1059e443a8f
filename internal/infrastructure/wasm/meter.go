package wasm

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// callCost is charged on entry to every guest function; host functions
// charge their own cost. wazero has no bytecode-level basic-block instrumentation
// middleware (unlike the wasmer Metering middleware the original runtime
// relies on), so Plaid meters at call boundaries instead: coarser than
// per-basic-block charging, but it bounds runaway recursion and tight call
// loops the same way, and every capability call is itself an additional,
// separately-charged boundary.
const callCost = 10

// ErrComputationExhausted is panicked from inside a Before hook when a
// module's computation meter reaches zero. wazero returns it as the failing
// call's error; the executor finds it there and reports ResourceExhausted.
type ErrComputationExhausted struct{}

func (ErrComputationExhausted) Error() string { return "wasm: computation meter exhausted" }

// Meter is a per-invocation, atomically-decremented computation budget.
type Meter struct {
	remaining int64
}

// NewMeter creates a Meter starting at budget units.
func NewMeter(budget uint64) *Meter {
	return &Meter{remaining: int64(budget)}
}

// Charge deducts n units, panicking with ErrComputationExhausted if the
// meter would go negative.
func (m *Meter) Charge(n int64) {
	if atomic.AddInt64(&m.remaining, -n) < 0 {
		panic(ErrComputationExhausted{})
	}
}

// Remaining reports the units left, clamped at zero.
func (m *Meter) Remaining() uint64 {
	r := atomic.LoadInt64(&m.remaining)
	if r < 0 {
		return 0
	}
	return uint64(r)
}

type meterKey struct{}

// WithMeter attaches m to ctx so the listener factory below can find the
// active invocation's meter.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

func meterFromContext(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}

// meteringFactory implements experimental.FunctionListenerFactory,
// charging callCost at every function-call boundary of every module it is
// attached to (guest functions only; host functions charge their own,
// capability-specific cost separately in hostfuncs).
type meteringFactory struct{}

// NewMeteringListenerContext returns a context that, when passed to
// CompileModule and InstantiateModule, attaches a listener to every guest
// function that deducts callCost from whatever Meter the *call-time*
// context carries via WithMeter. wazero decides which functions get a
// listener at compile time, not at call time, so this must reach Compile
// even though compilation is cached and only happens once per module.
func NewMeteringListenerContext(ctx context.Context) context.Context {
	return experimental.WithFunctionListenerFactory(ctx, meteringFactory{})
}

// NewFunctionListener implements experimental.FunctionListenerFactory.
func (meteringFactory) NewFunctionListener(def api.FunctionDefinition) experimental.FunctionListener {
	return meterListener{}
}

type meterListener struct{}

func (meterListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	if m := meterFromContext(ctx); m != nil {
		m.Charge(callCost)
	}
}

func (meterListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (meterListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
