package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/config"
)

func TestBuildPolicyCollectsGrantsFromEveryTable(t *testing.T) {
	cfg := &config.Config{
		Apis: config.ApisConfig{
			Network: map[string]config.NetworkTargetConfig{
				"slack": {AllowedRules: []string{"notify.wasm"}, AvailableInTestMode: true},
			},
			API: map[string]config.APIAdapterConfig{
				"geo": {AllowedRules: []string{"enrich.wasm"}},
			},
		},
		Cache: config.CacheConfig{
			Named: map[string]config.NamedCacheConfig{
				"results": {AllowedRules: []string{"router.wasm"}, AvailableInTestMode: true},
			},
		},
		Storage: config.StorageConfig{
			SharedDBs: map[string]config.SharedDBConfig{
				"teams": {Read: []string{"reader.wasm", "admin.wasm"}, ReadWrite: []string{"writer.wasm"}},
			},
		},
		Loading: config.LoadingConfig{TestModeExemptions: []string{"admin.wasm"}},
	}

	policy := buildPolicy(cfg)
	require.NotNil(t, policy)

	grant, ok := policy.Grant(capabilities.Capability{Kind: capabilities.KindNetwork, Name: "slack"})
	require.True(t, ok)
	assert.True(t, grant.AllowsRule("notify.wasm"))
	assert.True(t, grant.AvailableInTestMode)

	grant, ok = policy.Grant(capabilities.Capability{Kind: capabilities.KindAPI, Name: "geo"})
	require.True(t, ok)
	assert.True(t, grant.AllowsRule("enrich.wasm"))

	grant, ok = policy.Grant(capabilities.Capability{Kind: capabilities.KindCache, Name: "results"})
	require.True(t, ok)
	assert.True(t, grant.AllowsRule("router.wasm"))

	grant, ok = policy.Grant(capabilities.Capability{Kind: capabilities.KindStorage, Name: "teams"})
	require.True(t, ok)
	assert.True(t, grant.AllowsRule("reader.wasm"))
	assert.True(t, grant.AllowsRule("writer.wasm"))
	assert.False(t, grant.AvailableInTestMode)

	decision := policy.Evaluate(capabilities.Capability{Kind: capabilities.KindStorage, Name: "teams"}, "admin.wasm", true)
	assert.Equal(t, capabilities.Allowed, decision)
}

func TestBuildPolicyEmptyConfigYieldsNoGrants(t *testing.T) {
	policy := buildPolicy(&config.Config{})
	_, ok := policy.Grant(capabilities.Capability{Kind: capabilities.KindNetwork, Name: "anything"})
	assert.False(t, ok)
}
