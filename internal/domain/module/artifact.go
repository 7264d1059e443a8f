// Package module defines the immutable, compiled representation of a rule
// ready for instantiation: quotas, secrets, accessory data, and the
// signature requirements it satisfied at load time.
package module

import (
	"github.com/plaidhost/plaid/internal/domain/message"
)

// Artifact is a loaded, signature-verified, compiled rule. It is published
// once by the loader and never mutated afterward; every field here is read
// concurrently by the executor and dispatcher.
type Artifact struct {
	// Filename is the on-disk name (e.g. "incident_router.wasm") and the
	// identity used throughout storage namespacing, capability allowlists,
	// and logback bookkeeping.
	Filename string

	// LogType is derived at load time: log_type_overrides[Filename] if
	// present, else the substring of Filename before the first '_'.
	LogType string

	// Bytecode is the raw WASM module bytes, retained so the executor can
	// recompile after a runtime restart without re-reading the module
	// directory (compiled modules themselves are cached separately).
	Bytecode []byte

	// ComputationLimit is the per-invocation instruction-cost budget.
	ComputationLimit uint64

	// MemoryPages caps the guest's linear memory, 64 KiB per page.
	MemoryPages uint32

	// StorageLimit caps the rule-scoped storage namespace's total byte usage.
	StorageLimit message.Limit

	// PersistentResponseSize caps the bytes retained for GET-mode replay.
	PersistentResponseSize uint64

	// Secrets is the set of resolved secret values this rule may see,
	// pre-filtered from the global secrets file to this rule's declared
	// requirements.
	Secrets map[string]string

	// Accessory is the merged accessory-data map: universal, overridden by
	// per-log-type, overridden by per-filename, per the loader's merge rule.
	Accessory map[string]string

	// TestModeExempt, when true, lets this rule use any capability
	// regardless of the capability's own AvailableInTestMode flag.
	TestModeExempt bool

	// SerialExecution, when true, forbids the executor from running two
	// invocations of this rule concurrently (supplemented from the
	// original runtime's single_threaded_rules list; absent from the
	// distilled spec but present in both original source trees).
	SerialExecution bool

	// SignaturesVerified records how many distinct authorized signers
	// validated this module's bytecode at load time, for diagnostics.
	SignaturesVerified int
}

// DefaultBudget snapshots the artifact's quotas into a fresh ExecBudget for
// a single invocation, so the executor never adjusts the artifact itself.
func (a *Artifact) DefaultBudget(logbacksAllowed message.Limit) message.ExecBudget {
	return message.ExecBudget{
		Computation:       a.ComputationLimit,
		MemoryPages:       a.MemoryPages,
		StorageBytes:      a.StorageLimit,
		LogbacksRemaining: logbacksAllowed,
	}
}
