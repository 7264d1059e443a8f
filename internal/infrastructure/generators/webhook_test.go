package generators

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidhost/plaid/internal/domain/webhook"
	"github.com/plaidhost/plaid/internal/infrastructure/dispatcher"
)

type fakeGetter struct {
	body []byte
	err  error
}

func (g *fakeGetter) HandleGet(ctx context.Context, route *webhook.Route, query, headers map[string]string) ([]byte, error) {
	return g.body, g.err
}

func TestWebhookGeneratorName(t *testing.T) {
	g := NewWebhookGenerator(nil, nil, nil)
	assert.Equal(t, "webhook", g.Name())
}

func TestRouteHandlerPostEnqueuesAndReturns200(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident", AllowedHeaders: []string{"X-Team"}}
	sink := &fakeSink{}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/incident?env=prod", strings.NewReader("payload"))
	req.Header.Set("X-Team", "sre")
	req.Header.Set("X-Ignored", "nope")
	rec := httptest.NewRecorder()

	g.routeHandler(route, sink)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgs := sink.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "incident", msgs[0].LogType)
	assert.Equal(t, []byte("payload"), msgs[0].Payload)
	assert.Equal(t, "prod", msgs[0].Source.Query["env"])
	assert.Equal(t, "sre", msgs[0].Source.Headers["X-Team"])
	assert.NotContains(t, msgs[0].Source.Headers, "X-Ignored")
}

func TestRouteHandlerPostReturns503WhenSaturated(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident"}
	sink := &fakeSink{err: dispatcher.ErrSaturated}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/incident", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	g.routeHandler(route, sink)(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouteHandlerPostReturns500OnOtherEnqueueError(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident"}
	sink := &fakeSink{err: errors.New("boom")}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/incident", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	g.routeHandler(route, sink)(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouteHandlerGetWithoutGetModeReturns405(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident"}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, nil)

	req := httptest.NewRequest(http.MethodGet, "/hooks/incident", nil)
	rec := httptest.NewRecorder()
	g.routeHandler(route, &fakeSink{})(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouteHandlerGetInvokesGetter(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident", GetMode: &webhook.GetMode{Kind: webhook.GetModeStatic}}
	getter := &fakeGetter{body: []byte("hello")}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, getter)

	req := httptest.NewRequest(http.MethodGet, "/hooks/incident", nil)
	rec := httptest.NewRecorder()
	g.routeHandler(route, &fakeSink{})(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestRouteHandlerGetInvokerErrorReturns500(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident", GetMode: &webhook.GetMode{Kind: webhook.GetModeStatic}}
	getter := &fakeGetter{err: errors.New("boom")}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, getter)

	req := httptest.NewRequest(http.MethodGet, "/hooks/incident", nil)
	rec := httptest.NewRecorder()
	g.routeHandler(route, &fakeSink{})(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouteHandlerRejectsOtherMethods(t *testing.T) {
	route := &webhook.Route{Path: "/hooks/incident", LogType: "incident"}
	g := NewWebhookGenerator(nil, []*webhook.Route{route}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/hooks/incident", nil)
	rec := httptest.NewRecorder()
	g.routeHandler(route, &fakeSink{})(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFilterAllowedNoAllowlistReturnsEmpty(t *testing.T) {
	got := filterAllowed(map[string]string{"A": "1"}, nil)
	assert.Empty(t, got)
}

func TestFilterAllowedKeepsOnlyListedHeaders(t *testing.T) {
	got := filterAllowed(map[string]string{"A": "1", "B": "2"}, []string{"A", "C"})
	assert.Equal(t, map[string]string{"A": "1"}, got)
}

func TestQueryMapTakesFirstValue(t *testing.T) {
	got := queryMap(map[string][]string{"env": {"prod", "staging"}, "empty": {}})
	assert.Equal(t, "prod", got["env"])
	_, ok := got["empty"]
	assert.False(t, ok)
}

func TestHealthHandlerReturns200(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/webhook/health", nil)
	rec := httptest.NewRecorder()
	healthHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
