// Package application wires every infrastructure component into one
// running host process: the typed-context replacement for the original
// runtime's process-wide singletons (spec.md §9's "Global state → typed
// context" design note).
package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/tetratelabs/wazero"
	"golang.org/x/sync/errgroup"

	"github.com/plaidhost/plaid/internal/domain/module"
	"github.com/plaidhost/plaid/internal/domain/webhook"
	"github.com/plaidhost/plaid/internal/infrastructure/cache"
	"github.com/plaidhost/plaid/internal/infrastructure/config"
	"github.com/plaidhost/plaid/internal/infrastructure/dispatcher"
	"github.com/plaidhost/plaid/internal/infrastructure/executor"
	"github.com/plaidhost/plaid/internal/infrastructure/generators"
	"github.com/plaidhost/plaid/internal/infrastructure/loader"
	"github.com/plaidhost/plaid/internal/infrastructure/network"
	"github.com/plaidhost/plaid/internal/infrastructure/responsecache"
	"github.com/plaidhost/plaid/internal/infrastructure/secrets"
	"github.com/plaidhost/plaid/internal/infrastructure/storage"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm/hostfuncs"
)

// ReadinessFile is created in the working directory once boot completes
// successfully (spec.md §6).
const ReadinessFile = "plaid_ready"

// Engine owns every long-lived component the boot sequence assembles. It
// replaces the original runtime's process-wide singletons with explicit,
// passed-around state.
type Engine struct {
	cfg        *config.Config
	registry   *loader.Registry
	rt         *wasm.Runtime
	exec       *executor.Executor
	dispatcher *dispatcher.Dispatcher
	respCache  *responsecache.Store
	routes     []*webhook.Route
	gens       []generators.Generator
}

// dispatcherHolder lets hostfuncs.Services.Logback be constructed before
// the Dispatcher exists (the Dispatcher itself needs the Executor and
// Registry, both built after the WASM runtime and its host functions).
type dispatcherHolder struct {
	d *dispatcher.Dispatcher
}

func (h *dispatcherHolder) LogBack(ctx context.Context, inv *hostfuncs.Invocation, newLogType string, payload []byte, delaySeconds int) error {
	if h.d == nil {
		return fmt.Errorf("application: dispatcher not yet initialized")
	}
	return h.d.LogBack(ctx, inv, newLogType, payload, delaySeconds)
}

// Boot loads configuration, secrets, the module set, and every backing
// service, then wires them together. It does not start any goroutine;
// call Run to start serving.
func Boot(ctx context.Context, configDir, secretsFile, secretsEnvPrefix string) (*Engine, error) {
	secretValues, err := secrets.LoadFile(secretsFile)
	if err != nil {
		return nil, fmt.Errorf("application: loading secrets: %w", err)
	}
	resolver := secrets.NewResolver(secretValues, secretsEnvPrefix)

	cfg, err := config.Load(configDir, resolver)
	if err != nil {
		return nil, fmt.Errorf("application: loading config: %w", err)
	}

	policy := buildPolicy(cfg)
	checker := &wasm.CapabilityChecker{Policy: policy, TestMode: cfg.Executor.TestMode}

	storageService, err := buildStorageService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("application: building storage: %w", err)
	}
	cacheService := cache.NewService(cfg.Cache.DefaultCapacity, namedCacheCapacities(cfg.Cache))
	networkService := network.NewService(cfg.Apis.Network)
	respCache := responsecache.NewStore(map[string]uint64{})

	dispatcherRef := &dispatcherHolder{}
	services := &hostfuncs.Services{
		Storage:            storageService,
		Cache:              cacheService,
		Network:            networkService,
		Logback:            dispatcherRef,
		PersistentResponse: respCache,
	}

	rt, err := wasm.NewRuntime(ctx, func(ctx context.Context, r wazero.Runtime, checker *wasm.CapabilityChecker) error {
		return hostfuncs.Register(ctx, r, checker, services)
	})
	if err != nil {
		return nil, fmt.Errorf("application: building wasm runtime: %w", err)
	}
	if err := rt.RegisterHostFunctions(ctx, checker); err != nil {
		return nil, fmt.Errorf("application: registering host functions: %w", err)
	}

	artifacts, err := loader.Load(ctx, cfg.Loading, rt, resolver)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("application: loading modules: %w", err)
	}
	registry := loader.NewRegistry()
	registry.Replace(artifacts)

	respCache.SetLimits(persistentResponseLimits(artifacts))
	storageService.SetRuleLimits(storageLimits(artifacts))

	exec, err := executor.New(ctx, rt, cfg.Loading.LRUCacheSize, cfg.Executor.InvocationTimeoutSeconds)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("application: building executor: %w", err)
	}

	disp := dispatcher.New(registry, exec, respCache, cfg.Executor.TestMode, cfg.Executor.ExecutionThreads, cfg.Executor.QueueDepth)
	dispatcherRef.d = disp

	routes, err := buildRoutes(cfg.Webhooks)
	if err != nil {
		return nil, fmt.Errorf("application: building routes: %w", err)
	}

	gens := buildGenerators(cfg, routes, disp)

	return &Engine{
		cfg: cfg, registry: registry, rt: rt, exec: exec,
		dispatcher: disp, respCache: respCache, routes: routes, gens: gens,
	}, nil
}

// LoggingConfig exposes the decoded logging.toml settings so the CLI can
// reconfigure the default slog logger's level and format after boot.
func (e *Engine) LoggingConfig() config.LoggingConfig { return e.cfg.Logging }

// Run starts the dispatcher's worker pool and every generator, blocking
// until ctx is canceled, then shuts everything down and returns the first
// error observed (if any).
func (e *Engine) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		e.dispatcher.Run(groupCtx)
		return nil
	})

	for _, g := range e.gens {
		g := g
		group.Go(func() error {
			if err := g.Run(groupCtx, e.dispatcher); err != nil {
				slog.ErrorContext(groupCtx, "generator stopped with error", "generator", g.Name(), "error", err)
				return fmt.Errorf("generator %s: %w", g.Name(), err)
			}
			return nil
		})
	}

	markReady()
	slog.InfoContext(ctx, "plaid boot complete", "modules", len(e.registry.All()), "routes", len(e.routes))

	<-groupCtx.Done()
	err := group.Wait()
	_ = e.exec.Close(context.Background())
	return err
}

func buildGenerators(cfg *config.Config, routes []*webhook.Route, disp *dispatcher.Dispatcher) []generators.Generator {
	var gens []generators.Generator

	listeners := make(map[string]generators.ListenerAddr, len(cfg.Webhooks.Listeners))
	for name, l := range cfg.Webhooks.Listeners {
		listeners[name] = generators.ListenerAddr{Address: l.Address, CertFile: l.CertFile, KeyFile: l.KeyFile}
	}
	if len(listeners) > 0 {
		gens = append(gens, generators.NewWebhookGenerator(listeners, routes, disp))
	}

	if len(cfg.Data.Interval) > 0 {
		specs := make([]generators.IntervalSpec, 0, len(cfg.Data.Interval))
		for _, ic := range cfg.Data.Interval {
			specs = append(specs, generators.IntervalSpec{Name: ic.Name, Schedule: ic.Schedule, LogType: ic.LogType})
		}
		gens = append(gens, generators.NewIntervalGenerator(specs))
	}

	if len(cfg.Data.WebSocket) > 0 {
		specs := make([]generators.WebSocketSpec, 0, len(cfg.Data.WebSocket))
		for _, wc := range cfg.Data.WebSocket {
			specs = append(specs, generators.WebSocketSpec{Name: wc.Name, URL: wc.URL, LogType: wc.LogType})
		}
		gens = append(gens, generators.NewWebSocketGenerator(specs))
	}

	if len(cfg.Data.Queue) > 0 {
		specs := make([]generators.QueueSpec, 0, len(cfg.Data.Queue))
		for _, qc := range cfg.Data.Queue {
			specs = append(specs, generators.QueueSpec{Name: qc.Name, QueueURL: qc.QueueURL, Region: qc.Region, LogType: qc.LogType, PollSeconds: qc.PollSeconds})
		}
		gens = append(gens, generators.NewQueueGenerator(specs))
	}

	return gens
}

func persistentResponseLimits(artifacts []*module.Artifact) map[string]uint64 {
	out := make(map[string]uint64, len(artifacts))
	for _, a := range artifacts {
		if a.PersistentResponseSize > 0 {
			out[a.Filename] = a.PersistentResponseSize
		}
	}
	return out
}

// storageLimits derives the rule-scoped storage.Store's namespace caps from
// every loaded Artifact's resolved storage_size_limit; a Limit of Unlimited
// leaves the namespace absent from the map (storage.Store treats an absent
// namespace as uncapped).
func storageLimits(artifacts []*module.Artifact) map[string]uint64 {
	out := make(map[string]uint64, len(artifacts))
	for _, a := range artifacts {
		if !a.StorageLimit.IsUnlimited() {
			out[a.Filename] = a.StorageLimit.Value()
		}
	}
	return out
}

func namedCacheCapacities(cfg config.CacheConfig) map[string]int {
	out := make(map[string]int, len(cfg.Named))
	for name, nc := range cfg.Named {
		out[name] = nc.Capacity
	}
	return out
}

func buildStorageService(ctx context.Context, cfg *config.Config) (*storage.Service, error) {
	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "", "memory":
		backend = storage.NewMemoryBackend()
	case "bolt":
		b, err := storage.OpenBoltBackend(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		backend = b
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.DynamoRegion))
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		backend = storage.NewDynamoDBBackend(client, cfg.Storage.DynamoTable)
	default:
		return nil, fmt.Errorf("application: unknown storage backend %q", cfg.Storage.Backend)
	}

	ruleLimits := make(map[string]uint64)
	ruleStore := storage.NewStore(backend, ruleLimits)

	sharedLimits := make(map[string]uint64)
	shared := make(map[string]storage.SharedNamespace, len(cfg.Storage.SharedDBs))
	for name, db := range cfg.Storage.SharedDBs {
		read := make(map[string]bool, len(db.Read)+len(db.ReadWrite))
		readWrite := make(map[string]bool, len(db.ReadWrite))
		for _, f := range db.Read {
			read[f] = true
		}
		for _, f := range db.ReadWrite {
			read[f] = true
			readWrite[f] = true
		}
		shared[name] = storage.SharedNamespace{Read: read, ReadWrite: readWrite}
		if limit, err := config.ParseLimitSpec(db.SizeLimit); err == nil && !limit.Unlimited {
			sharedLimits[name] = limit.Value
		}
	}
	sharedStore := storage.NewStore(backend, sharedLimits)

	return storage.NewService(ruleStore, sharedStore, shared), nil
}

// markReady creates the readiness file. Failure to write it is logged but
// not fatal: it is an operator convenience, not correctness-critical.
func markReady() {
	f, err := os.Create(ReadinessFile)
	if err != nil {
		slog.Warn("could not create readiness marker", "file", ReadinessFile, "error", err)
		return
	}
	_ = f.Close()
}
