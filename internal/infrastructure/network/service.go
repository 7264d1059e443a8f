// Package network implements the network:: capability family: preconfigured
// outbound HTTP requests, with URL-template and body substitution, on
// behalf of a rule's make_named_request call.
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/plaidhost/plaid/internal/infrastructure/config"
)

// Target is one named outbound request Plaid may perform, resolved from
// apis.toml's [apis.network.<name>] table.
type Target struct {
	URL            string
	Method         string
	Headers        map[string]string
	Timeout        time.Duration
	ReturnCode     bool
	ReturnBody     bool
}

// Service implements hostfuncs.NetworkService against a fixed table of
// named targets.
type Service struct {
	client  *http.Client
	targets map[string]Target
}

// NewService builds a Service from apis.toml's network target table.
func NewService(cfg map[string]config.NetworkTargetConfig) *Service {
	targets := make(map[string]Target, len(cfg))
	for name, t := range cfg {
		timeout := time.Duration(t.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		method := t.Method
		if method == "" {
			method = http.MethodGet
		}
		targets[name] = Target{
			URL: t.URL, Method: method, Headers: t.Headers, Timeout: timeout,
			ReturnCode: t.ReturnCode, ReturnBody: t.ReturnBody,
		}
	}
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 2
	return &Service{client: rc.StandardClient(), targets: targets}
}

// MakeNamedRequest implements hostfuncs.NetworkService. urlVars substitute
// {key} placeholders in the target URL; non-empty bodyVars are sent as a
// key=value&... form body, whatever the target method;
// headersOverride adds to (never removes) the configured header set.
func (s *Service) MakeNamedRequest(ctx context.Context, name string, urlVars, bodyVars, headersOverride map[string]string) (int, []byte, error) {
	target, ok := s.targets[name]
	if !ok {
		return 0, nil, fmt.Errorf("network: no target named %q", name)
	}

	url := substituteVars(target.URL, urlVars)

	var body io.Reader
	if len(bodyVars) > 0 {
		body = strings.NewReader(encodeForm(bodyVars))
	}

	req, err := http.NewRequestWithContext(ctx, target.Method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("network: building request: %w", err)
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headersOverride {
		req.Header.Set(k, v)
	}

	callCtx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()
	req = req.WithContext(callCtx)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("network: request failed: %w", err)
	}
	defer resp.Body.Close()

	var respBody []byte
	if target.ReturnBody {
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("network: reading response: %w", err)
		}
	}

	status := 0
	if target.ReturnCode {
		status = resp.StatusCode
	}
	return status, respBody, nil
}

func substituteVars(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func encodeForm(vars map[string]string) string {
	var b strings.Builder
	first := true
	for k, v := range vars {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}
