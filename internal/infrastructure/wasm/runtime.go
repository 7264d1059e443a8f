// Package wasm wraps wazero to compile and instantiate rule bytecode,
// following the teacher's Runtime/Plugin split: one shared compilation
// cache and WASI configuration, fresh instances per invocation.
package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
)

// Runtime owns the wazero runtime, its shared compilation cache, and the
// registered host module. One Runtime serves every loaded rule.
type Runtime struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache

	mu      sync.RWMutex
	modules map[string]wazero.CompiledModule // keyed by filename

	hostBuilder HostFunctionRegisterer
}

// HostFunctionRegisterer registers the "plaid_host" module's exported
// functions against a wazero runtime, given a checker used by every host
// call to enforce the capability allowlist/test-mode/metering gates.
type HostFunctionRegisterer func(ctx context.Context, r wazero.Runtime, checker *CapabilityChecker) error

// CapabilityChecker is the narrow surface host functions need from the
// domain capability Policy: evaluate a call, without depending on the
// executor's storage/cache/network implementations directly.
type CapabilityChecker struct {
	Policy   *capabilities.Policy
	TestMode bool
}

// NewRuntime constructs a wazero runtime with a shared compilation cache
// and WASI preview1 instantiated, mirroring the teacher's
// NewRuntimeWithCapabilities but generalized to Plaid's host module.
func NewRuntime(ctx context.Context, register HostFunctionRegisterer) (*Runtime, error) {
	cache := wazero.NewCompilationCache()
	// WithCloseOnContextDone makes an in-flight call return promptly when its
	// context is canceled or its deadline expires, instead of running to
	// completion: the backstop for an invocation blocked in a slow host call,
	// which the computation meter's call-boundary charges never see.
	cfg := wazero.NewRuntimeConfig().WithCompilationCache(cache).WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("wasm: instantiating WASI: %w", err)
	}

	return &Runtime{
		runtime:     rt,
		cache:       cache,
		modules:     make(map[string]wazero.CompiledModule),
		hostBuilder: register,
	}, nil
}

// RegisterHostFunctions installs the plaid_host module against this
// runtime, gated by checker.
func (r *Runtime) RegisterHostFunctions(ctx context.Context, checker *CapabilityChecker) error {
	if r.hostBuilder == nil {
		return nil
	}
	return r.hostBuilder(ctx, r.runtime, checker)
}

// Compile compiles moduleBytes and caches the result under filename. A
// second Compile for the same filename is a no-op returning the cached
// module (artifacts are immutable after publish).
func (r *Runtime) Compile(ctx context.Context, filename string, moduleBytes []byte) (wazero.CompiledModule, error) {
	r.mu.RLock()
	if m, ok := r.modules[filename]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[filename]; ok {
		return m, nil
	}

	compiled, err := r.runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("wasm: compiling %s: %w", filename, err)
	}
	r.modules[filename] = compiled
	return compiled, nil
}

// Evict drops a filename's compiled module, e.g. when the module directory
// no longer lists it after a reload pass.
func (r *Runtime) Evict(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, filename)
}

// Underlying exposes the wazero runtime for instance creation.
func (r *Runtime) Underlying() wazero.Runtime { return r.runtime }

// Close releases the runtime and every compiled module.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// NewModuleConfig builds a fresh, per-invocation wazero.ModuleConfig: no
// filesystem access, no ambient environment, stdout/stderr discarded
// (debug output goes through the print_debug_string capability instead).
// memoryPages caps the guest's linear memory at instantiation time, so a
// growth request beyond the module's configured budget traps instead of
// growing unbounded; a zero value leaves wazero's default (unbounded) cap
// in place.
func NewModuleConfig(name string, memoryPages uint32) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")
	if memoryPages > 0 {
		cfg = cfg.WithMemoryLimitPages(memoryPages)
	}
	return cfg
}
