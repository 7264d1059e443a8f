// Package executor implements component E: turning a Message into at most
// one rule invocation, backed by a shared compiled-module cache (amortizing
// the (potentially expensive) compile step) while instantiating a fresh
// instance per invocation.
package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/domain/module"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

// instancePool amortizes compilation (via the runtime's shared compiled-
// module cache) while bounding the number of concurrently live instances.
// It never hands out an instance more than once: every checkout compiles
// (cache hit after the first time) and instantiates fresh, so no rule ever
// observes another invocation's residual linear memory or globals (spec.md
// invariant 5, "two invocations of the same rule never share mutable
// in-memory state").
type instancePool struct {
	rt  *wasm.Runtime
	sem chan struct{}
}

func newInstancePool(ctx context.Context, rt *wasm.Runtime, size int) (*instancePool, error) {
	if size <= 0 {
		size = 64
	}
	return &instancePool{rt: rt, sem: make(chan struct{}, size)}, nil
}

// checkout blocks until a concurrency slot is free, then compiles (from the
// runtime's shared cache) and instantiates a fresh instance of art for this
// invocation alone. The metering listener factory must be attached here,
// at compile and instantiate time: wazero decides which functions carry a
// listener when the module is compiled, not when a function is later
// called, so a plain context at this call site would leave every guest
// function permanently unmetered for the lifetime of the cached compiled
// module.
func (p *instancePool) checkout(ctx context.Context, art *module.Artifact) (api.Module, error) {
	p.sem <- struct{}{}

	meteredCtx := wasm.NewMeteringListenerContext(ctx)
	compiled, err := p.rt.Compile(meteredCtx, art.Filename, art.Bytecode)
	if err != nil {
		<-p.sem
		return nil, err
	}
	cfg := wasm.NewModuleConfig(art.Filename+"#"+uuid.NewString(), art.MemoryPages)
	mod, err := p.rt.Underlying().InstantiateModule(meteredCtx, compiled, cfg)
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("executor: instantiating %s: %w", art.Filename, err)
	}
	return mod, nil
}

// release closes mod and frees its concurrency slot. Every invocation calls
// this exactly once, whether it succeeded or trapped: instances are never
// cached or reused across invocations.
func (p *instancePool) release(ctx context.Context, mod api.Module) {
	_ = mod.Close(ctx)
	<-p.sem
}
