package application

import (
	"fmt"

	"github.com/plaidhost/plaid/internal/domain/webhook"
	"github.com/plaidhost/plaid/internal/infrastructure/config"
)

// buildRoutes converts the decoded webhooks.toml route table into
// webhook.Route domain values.
func buildRoutes(cfg config.WebhooksConfig) ([]*webhook.Route, error) {
	routes := make([]*webhook.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		limit, err := config.ParseLimitSpec(rc.LogbacksAllowed)
		if err != nil {
			return nil, fmt.Errorf("route %s: logbacks_allowed: %w", rc.Path, err)
		}

		route := &webhook.Route{
			Listener:        rc.Listener,
			Path:            rc.Path,
			LogType:         rc.LogType,
			AllowedHeaders:  rc.AllowedHeaders,
			LogbacksAllowed: limit.ToLimit(),
		}

		if rc.GetMode != nil {
			mode, err := buildGetMode(rc.GetMode)
			if err != nil {
				return nil, fmt.Errorf("route %s: get_mode: %w", rc.Path, err)
			}
			route.GetMode = mode
		}

		routes = append(routes, route)
	}
	return routes, nil
}

func buildGetMode(gc *config.GetModeConfig) (*webhook.GetMode, error) {
	mode := &webhook.GetMode{
		StaticBody:   []byte(gc.StaticBody),
		RuleModule:   gc.RuleModule,
		TimedSeconds: gc.TimedSeconds,
		UpstreamBody: gc.UpstreamBody,
	}

	switch gc.Kind {
	case "static":
		mode.Kind = webhook.GetModeStatic
	case "rule":
		mode.Kind = webhook.GetModeRule
	case "upstream":
		mode.Kind = webhook.GetModeUpstream
	default:
		return nil, fmt.Errorf("unknown get_mode kind %q", gc.Kind)
	}

	switch gc.CachingMode {
	case "", "none":
		mode.CachingMode = webhook.CachingNone
	case "timed":
		mode.CachingMode = webhook.CachingTimed
	case "fingerprinted":
		mode.CachingMode = webhook.CachingFingerprinted
	default:
		return nil, fmt.Errorf("unknown caching_mode %q", gc.CachingMode)
	}

	return mode, nil
}
