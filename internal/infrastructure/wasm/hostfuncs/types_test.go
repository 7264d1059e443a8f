package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

func TestWithInvocationRoundTrip(t *testing.T) {
	inv := &Invocation{Filename: "rule.wasm"}
	ctx := WithInvocation(context.Background(), inv)

	got, ok := InvocationFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, inv, got)
}

func TestInvocationFromContextMissing(t *testing.T) {
	_, ok := InvocationFromContext(context.Background())
	assert.False(t, ok)
}

func TestCheckCapabilityNoInvocation(t *testing.T) {
	decision, inv := checkCapability(context.Background(), nil, capabilities.Capability{Kind: capabilities.KindCache, Name: "x"})
	assert.Equal(t, capabilities.DeniedNotFound, decision)
	assert.Nil(t, inv)
}

func TestCheckCapabilityNilCheckerDeniesButReturnsInvocation(t *testing.T) {
	inv := &Invocation{Filename: "rule.wasm"}
	ctx := WithInvocation(context.Background(), inv)

	decision, got := checkCapability(ctx, nil, capabilities.Capability{Kind: capabilities.KindCache, Name: "x"})
	assert.Equal(t, capabilities.DeniedNotFound, decision)
	assert.Same(t, inv, got)
}

func TestCheckCapabilityEvaluatesPolicy(t *testing.T) {
	cap := capabilities.Capability{Kind: capabilities.KindCache, Name: "results"}
	policy := capabilities.NewPolicy([]capabilities.Grant{
		{Capability: cap, AllowedRules: []string{"rule.wasm"}, AvailableInTestMode: true},
	}, nil)
	checker := &wasm.CapabilityChecker{Policy: policy, TestMode: false}

	inv := &Invocation{Filename: "rule.wasm"}
	ctx := WithInvocation(context.Background(), inv)

	decision, got := checkCapability(ctx, checker, cap)
	assert.Equal(t, capabilities.Allowed, decision)
	assert.Same(t, inv, got)

	otherInv := &Invocation{Filename: "other.wasm"}
	ctx2 := WithInvocation(context.Background(), otherInv)
	decision2, _ := checkCapability(ctx2, checker, cap)
	assert.Equal(t, capabilities.DeniedAllowlist, decision2)
}
