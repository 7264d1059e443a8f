package module

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plaidhost/plaid/internal/domain/message"
)

func TestArtifactDefaultBudget(t *testing.T) {
	art := &Artifact{
		Filename:         "triage.wasm",
		ComputationLimit: 500_000,
		MemoryPages:      16,
		StorageLimit:     message.Limited(4096),
	}

	budget := art.DefaultBudget(message.Limited(3))

	assert.Equal(t, uint64(500_000), budget.Computation)
	assert.Equal(t, uint32(16), budget.MemoryPages)
	assert.Equal(t, message.Limited(4096), budget.StorageBytes)
	assert.Equal(t, message.Limited(3), budget.LogbacksRemaining)
}

func TestArtifactDefaultBudgetDoesNotMutateArtifact(t *testing.T) {
	art := &Artifact{ComputationLimit: 10, StorageLimit: message.Unlimited()}

	first := art.DefaultBudget(message.Limited(1))
	first.LogbacksRemaining = first.LogbacksRemaining.Decrement()

	second := art.DefaultBudget(message.Limited(1))
	assert.Equal(t, message.Limited(1), second.LogbacksRemaining)
}
