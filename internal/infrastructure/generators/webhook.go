package generators

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/domain/webhook"
	"github.com/plaidhost/plaid/internal/infrastructure/dispatcher"
	"github.com/plaidhost/plaid/internal/infrastructure/metrics"
)

// GetModeInvoker runs a route's synchronous GET-mode path. The dispatcher
// implements this.
type GetModeInvoker interface {
	HandleGet(ctx context.Context, route *webhook.Route, query, headers map[string]string) ([]byte, error)
}

// ListenerAddr is the bind address and optional TLS material for one of the
// two webhook listeners (spec.md §6: "internal"/"external").
type ListenerAddr struct {
	Address  string
	CertFile string
	KeyFile  string
}

// WebhookGenerator runs the two HTTP listeners named in webhooks.toml,
// routing POST to the dispatcher's Sink and GET to a route's get_mode.
type WebhookGenerator struct {
	listeners map[string]ListenerAddr
	routes    []*webhook.Route
	getter    GetModeInvoker

	servers []*http.Server
}

// NewWebhookGenerator builds a WebhookGenerator. getter serves GET-mode
// responses; it is usually the same Dispatcher passed as the Sink to Run.
func NewWebhookGenerator(listeners map[string]ListenerAddr, routes []*webhook.Route, getter GetModeInvoker) *WebhookGenerator {
	return &WebhookGenerator{listeners: listeners, routes: routes, getter: getter}
}

func (g *WebhookGenerator) Name() string { return "webhook" }

// Run starts one HTTP server per configured listener and blocks until ctx
// is canceled, at which point every server is shut down gracefully.
func (g *WebhookGenerator) Run(ctx context.Context, sink Sink) error {
	byListener := make(map[string][]*webhook.Route)
	for _, r := range g.routes {
		byListener[r.Listener] = append(byListener[r.Listener], r)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(g.listeners))

	for name, addr := range g.listeners {
		router := mux.NewRouter()
		router.HandleFunc("/webhook/health", healthHandler).Methods(http.MethodGet)
		router.Handle("/webhook/metrics", metrics.Handler()).Methods(http.MethodGet)
		for _, route := range byListener[name] {
			route := route
			router.HandleFunc(route.Path, g.routeHandler(route, sink)).Methods(http.MethodPost, http.MethodGet)
		}
		router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMethodNotAllowed)
		})

		srv := &http.Server{Addr: addr.Address, Handler: router}
		g.servers = append(g.servers, srv)

		wg.Add(1)
		go func(name string, addr ListenerAddr, srv *http.Server) {
			defer wg.Done()
			slog.InfoContext(ctx, "webhook listener starting", "listener", name, "address", addr.Address)
			var err error
			if addr.CertFile != "" && addr.KeyFile != "" {
				srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
				err = srv.ListenAndServeTLS(addr.CertFile, addr.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("generators: webhook listener %s: %w", name, err)
			}
		}(name, addr, srv)
	}

	<-ctx.Done()
	for _, srv := range g.servers {
		_ = srv.Shutdown(context.Background())
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// routeHandler dispatches POST to sink.Enqueue (spec.md §6 status mapping:
// 200 accepted, 503 on ErrSaturated) and GET to the route's get_mode via
// getter, when one is configured.
func (g *WebhookGenerator) routeHandler(route *webhook.Route, sink Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers := filterAllowed(headerMap(r.Header), route.AllowedHeaders)
		query := queryMap(r.URL.Query())

		switch r.Method {
		case http.MethodPost:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			msg := message.Message{
				LogType: route.LogType,
				Payload: body,
				Source:  message.Webhook(route.Path, r.Method, headers, query),
				Budget:  message.ExecBudget{LogbacksRemaining: route.LogbacksAllowed},
			}
			if err := sink.Enqueue(r.Context(), msg); err != nil {
				if errors.Is(err, dispatcher.ErrSaturated) {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				slog.ErrorContext(r.Context(), "webhook enqueue failed", "path", route.Path, "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			if route.GetMode == nil || g.getter == nil {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			body, err := g.getter.HandleGet(r.Context(), route, query, headers)
			if err != nil {
				slog.ErrorContext(r.Context(), "get_mode invocation failed", "path", route.Path, "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func headerMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k := range h {
		m[k] = h.Get(k)
	}
	return m
}

func queryMap(v map[string][]string) map[string]string {
	m := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			m[k] = vals[0]
		}
	}
	return m
}

func filterAllowed(m map[string]string, allowed []string) map[string]string {
	if len(allowed) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(allowed))
	for _, k := range allowed {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}
