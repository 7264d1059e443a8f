package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/infrastructure/config"
	"github.com/plaidhost/plaid/internal/infrastructure/secrets"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

func TestDeriveLogTypeOverrideWins(t *testing.T) {
	got := deriveLogType("incident_router.wasm", map[string]string{"incident_router.wasm": "custom"})
	assert.Equal(t, "custom", got)
}

func TestDeriveLogTypeFromFilenamePrefix(t *testing.T) {
	assert.Equal(t, "incident", deriveLogType("incident_router.wasm", nil))
	assert.Equal(t, "standalone", deriveLogType("standalone.wasm", nil))
}

func TestMergeAccessoryThreeTierPrecedence(t *testing.T) {
	cfg := config.LoadingConfig{
		AccessoryUniversal: map[string]string{"env": "prod", "team": "sre"},
		AccessoryLogTypeOverrides: map[string]map[string]string{
			"incident": {"team": "incident-response"},
		},
		AccessoryFileOverrides: map[string]map[string]string{
			"incident_router.wasm": {"env": "staging"},
		},
	}

	merged := mergeAccessory(cfg, "incident_router.wasm", "incident")
	assert.Equal(t, "staging", merged["env"])
	assert.Equal(t, "incident-response", merged["team"])
}

func TestFilterSecretsOnlyResolvesDeclared(t *testing.T) {
	resolver := secrets.NewResolver(map[string]string{"A": "1", "B": "2"}, "")
	out := filterSecrets(resolver, []string{"A", "MISSING"})

	assert.Equal(t, map[string]string{"A": "1"}, out)
}

func TestLimitFromAmountPrecedence(t *testing.T) {
	a := config.AmountConfig{
		Default:         10,
		LogType:         map[string]uint64{"incident": 20},
		ModuleOverrides: map[string]uint64{"router.wasm": 30},
	}

	assert.Equal(t, message.Limited(30), limitFromAmount(a, "router.wasm", "incident"))
	assert.Equal(t, message.Limited(20), limitFromAmount(a, "other.wasm", "incident"))
	assert.Equal(t, message.Limited(10), limitFromAmount(a, "other.wasm", "other"))
}

func TestLimitFromAmountZeroDefaultIsUnlimited(t *testing.T) {
	a := config.AmountConfig{}
	assert.Equal(t, message.Unlimited(), limitFromAmount(a, "x.wasm", "x"))
}

func TestContainsString(t *testing.T) {
	assert.True(t, containsString([]string{"a", "b"}, "b"))
	assert.False(t, containsString([]string{"a", "b"}, "c"))
	assert.False(t, containsString(nil, "c"))
}

func TestLoadRejectsSignaturesRequiredWithoutSigners(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoadingConfig{
		ModuleDir: dir,
		Signing:   config.SigningConfig{SignaturesRequired: 1},
	}

	ctx := context.Background()
	rt, err := wasm.NewRuntime(ctx, nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	_, err = Load(ctx, cfg, rt, secrets.NewResolver(nil, ""))
	assert.ErrorIs(t, err, ErrSignerMisconfigured)
}

func TestLoadSkipsUncompilableModuleAndContinues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_rule.wasm"), []byte("not wasm"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good_rule.wasm"), minimalWasmModule(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	cfg := config.LoadingConfig{ModuleDir: dir}
	ctx := context.Background()
	rt, err := wasm.NewRuntime(ctx, nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	artifacts, err := Load(ctx, cfg, rt, secrets.NewResolver(nil, ""))
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "good_rule.wasm", artifacts[0].Filename)
	assert.Equal(t, "good", artifacts[0].LogType)
}

func TestLoadDerivesQuotasAndSerialExecution(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "incident_router.wasm"), minimalWasmModule(), 0o644))

	cfg := config.LoadingConfig{
		ModuleDir:           dir,
		SingleThreadedRules: []string{"incident_router.wasm"},
		ComputationAmount:   config.AmountConfig{Default: 5000},
		MemoryPageCount:     config.AmountConfig{Default: 16},
	}
	ctx := context.Background()
	rt, err := wasm.NewRuntime(ctx, nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	artifacts, err := Load(ctx, cfg, rt, secrets.NewResolver(nil, ""))
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	art := artifacts[0]
	assert.Equal(t, uint64(5000), art.ComputationLimit)
	assert.Equal(t, uint32(16), art.MemoryPages)
	assert.True(t, art.SerialExecution)
}

func minimalWasmModule() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}
