package application

import (
	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/config"
)

// buildPolicy assembles the capability grant table from every named
// resource across apis.toml, cache.toml, and storage.toml's shared_dbs
// table, per spec.md §4.C's allowlist+test-mode-gate model.
func buildPolicy(cfg *config.Config) *capabilities.Policy {
	var grants []capabilities.Grant

	for name, t := range cfg.Apis.Network {
		grants = append(grants, capabilities.Grant{
			Capability:          capabilities.Capability{Kind: capabilities.KindNetwork, Name: name},
			AllowedRules:        t.AllowedRules,
			AvailableInTestMode: t.AvailableInTestMode,
		})
	}
	for name, a := range cfg.Apis.API {
		grants = append(grants, capabilities.Grant{
			Capability:          capabilities.Capability{Kind: capabilities.KindAPI, Name: name},
			AllowedRules:        a.AllowedRules,
			AvailableInTestMode: a.AvailableInTestMode,
		})
	}
	for name, c := range cfg.Cache.Named {
		grants = append(grants, capabilities.Grant{
			Capability:          capabilities.Capability{Kind: capabilities.KindCache, Name: name},
			AllowedRules:        c.AllowedRules,
			AvailableInTestMode: c.AvailableInTestMode,
		})
	}
	for name, db := range cfg.Storage.SharedDBs {
		allowed := append(append([]string{}, db.Read...), db.ReadWrite...)
		grants = append(grants, capabilities.Grant{
			Capability:          capabilities.Capability{Kind: capabilities.KindStorage, Name: name},
			AllowedRules:        allowed,
			AvailableInTestMode: false,
		})
	}

	return capabilities.NewPolicy(grants, cfg.Loading.TestModeExemptions)
}
