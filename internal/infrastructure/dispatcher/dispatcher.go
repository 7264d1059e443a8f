// Package dispatcher implements component G: routing messages to the
// modules whose derived log-type matches, worker-pool backpressure, and
// rule-to-rule logback chaining. It also drives the synchronous GET-mode
// path (component H) shared with the webhook generator.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/domain/module"
	"github.com/plaidhost/plaid/internal/domain/webhook"
	"github.com/plaidhost/plaid/internal/infrastructure/executor"
	"github.com/plaidhost/plaid/internal/infrastructure/metrics"
	"github.com/plaidhost/plaid/internal/infrastructure/responsecache"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm/hostfuncs"
)

// ErrSaturated is returned by Enqueue when the worker queue picked
// round-robin for a matching artifact is full; artifacts already queued by
// that call stay queued.
// Webhook generators translate it to HTTP 503; interval generators drop
// the tick with a log.
var ErrSaturated = errors.New("dispatcher: worker queues saturated")

// Registry resolves the active module set the loader published.
type Registry interface {
	ArtifactsForLogType(logType string) []*module.Artifact
	Artifact(filename string) (*module.Artifact, bool)
}

type queuedInvocation struct {
	artifact *module.Artifact
	msg      message.Message
	route    *webhook.Route // set only for messages that may want their response cached
}

// Dispatcher owns the worker pool and the routing table.
type Dispatcher struct {
	registry Registry
	exec     *executor.Executor
	cache    *responsecache.Store
	testMode bool

	queues []chan queuedInvocation
	next   int
}

// New builds a Dispatcher with workerCount workers, each with its own
// bounded queue of depth queueDepth.
func New(registry Registry, exec *executor.Executor, cache *responsecache.Store, testMode bool, workerCount, queueDepth int) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueDepth <= 0 {
		queueDepth = 128
	}
	d := &Dispatcher{registry: registry, exec: exec, cache: cache, testMode: testMode}
	d.queues = make([]chan queuedInvocation, workerCount)
	for i := range d.queues {
		d.queues[i] = make(chan queuedInvocation, queueDepth)
	}
	return d
}

// Run starts every worker goroutine and blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	done := make(chan struct{}, len(d.queues))
	for i := range d.queues {
		go func(q chan queuedInvocation) {
			d.worker(ctx, q)
			done <- struct{}{}
		}(d.queues[i])
	}
	<-ctx.Done()
	for range d.queues {
		<-done
	}
}

func (d *Dispatcher) worker(ctx context.Context, q chan queuedInvocation) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q:
			d.invoke(ctx, item)
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, item queuedInvocation) {
	out, err := d.exec.Invoke(ctx, item.artifact, &item.msg)
	if err != nil {
		outcome := "error"
		if _, ok := err.(*executor.ErrRuleTrap); ok {
			outcome = "trap"
		}
		metrics.Invocations.WithLabelValues(item.artifact.Filename, outcome).Inc()
		slog.WarnContext(ctx, "rule invocation failed", "module", item.artifact.Filename, "error", err)
		return
	}
	metrics.Invocations.WithLabelValues(item.artifact.Filename, "ok").Inc()
	if out.HasResponse && item.route != nil {
		d.cache.StorePersistentResponse(item.artifact.Filename, out.Response)
	}
}

// Enqueue implements generators.Sink: every artifact whose LogType matches
// msg.LogType is scheduled onto a worker queue, round-robin. A module with
// no matching log-type is never invoked (spec.md §4.G).
func (d *Dispatcher) Enqueue(ctx context.Context, msg message.Message) error {
	artifacts := d.registry.ArtifactsForLogType(msg.LogType)
	for _, art := range artifacts {
		perArtifact := msg
		perArtifact.Budget = art.DefaultBudget(msg.Budget.LogbacksRemaining)

		q := d.pickQueue()
		select {
		case q <- queuedInvocation{artifact: art, msg: perArtifact}:
		default:
			metrics.Saturated.Inc()
			return ErrSaturated
		}
	}
	return nil
}

func (d *Dispatcher) pickQueue() chan queuedInvocation {
	q := d.queues[d.next%len(d.queues)]
	d.next++
	return q
}

// LogBack implements hostfuncs.LogbackService: constructs a new
// Logback-sourced message with the depth incremented and the caller's
// logback budget decremented, and enqueues it before returning so the
// message is visible before the caller's invocation terminates.
func (d *Dispatcher) LogBack(ctx context.Context, inv *hostfuncs.Invocation, newLogType string, payload []byte, delaySeconds int) error {
	depth := 0
	if inv.Source.Kind == message.SourceLogback {
		depth = inv.Source.Depth
	}
	remaining := inv.LogbacksRemaining.Decrement()

	msg := message.Message{
		LogType:          newLogType,
		Payload:          payload,
		Source:           message.Logback(inv.Filename, depth+1),
		AvailableSecrets: inv.Secrets,
		Budget: message.ExecBudget{
			LogbacksRemaining: remaining,
		},
	}
	if delaySeconds > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(delaySeconds) * time.Second):
				if err := d.Enqueue(context.Background(), msg); err != nil {
					slog.Warn("delayed logback dropped", "log_type", newLogType, "error", err)
					return
				}
				metrics.LogbacksEnqueued.Inc()
			case <-ctx.Done():
			}
		}()
		return nil
	}

	if err := d.Enqueue(ctx, msg); err != nil {
		return err
	}
	metrics.LogbacksEnqueued.Inc()
	return nil
}

// HandleGet implements the synchronous GET-mode path for a webhook route,
// per spec.md §4.H.
func (d *Dispatcher) HandleGet(ctx context.Context, route *webhook.Route, query, headers map[string]string) ([]byte, error) {
	mode := route.GetMode
	if mode == nil {
		return nil, fmt.Errorf("dispatcher: route %s has no get_mode", route.Path)
	}

	switch mode.Kind {
	case webhook.GetModeStatic:
		return mode.StaticBody, nil
	case webhook.GetModeUpstream:
		return []byte(mode.UpstreamBody), nil
	case webhook.GetModeRule:
		return d.handleGetRule(ctx, route, mode, query, headers)
	default:
		return nil, fmt.Errorf("dispatcher: unknown get_mode kind")
	}
}

func (d *Dispatcher) handleGetRule(ctx context.Context, route *webhook.Route, mode *webhook.GetMode, query, headers map[string]string) ([]byte, error) {
	art, ok := d.registry.Artifact(mode.RuleModule)
	if !ok {
		return nil, fmt.Errorf("dispatcher: get_mode rule module %s not loaded", mode.RuleModule)
	}

	invokeOnce := func(ctx context.Context) ([]byte, error) {
		msg := &message.Message{
			LogType: art.LogType,
			Source:  message.Webhook(route.Path, "GET", headers, query),
			Budget:  art.DefaultBudget(route.LogbacksAllowed),
		}
		out, err := d.exec.Invoke(ctx, art, msg)
		if err != nil {
			return nil, err
		}
		if out.HasResponse {
			d.cache.StorePersistentResponse(art.Filename, out.Response)
		}
		return out.Response, nil
	}

	switch mode.CachingMode {
	case webhook.CachingNone:
		return invokeOnce(ctx)
	case webhook.CachingTimed:
		fp := responsecache.Fingerprint(query, headers)
		if cached, ok := d.cache.TimedGet(art.Filename, fp); ok {
			return cached, nil
		}
		body, err := invokeOnce(ctx)
		if err != nil {
			return nil, err
		}
		d.cache.TimedPut(art.Filename, fp, body, time.Duration(mode.TimedSeconds)*time.Second)
		return body, nil
	case webhook.CachingFingerprinted:
		fp := responsecache.Fingerprint(query, headers)
		return d.cache.SingleFlight(ctx, art.Filename, fp, invokeOnce)
	default:
		return invokeOnce(ctx)
	}
}
