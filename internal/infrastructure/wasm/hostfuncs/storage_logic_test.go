package hostfuncs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/storage"
)

func TestStorageCapabilitySharedDB(t *testing.T) {
	inv := &Invocation{Filename: "rule.wasm"}
	req := &StorageRequestWire{DB: "shared1", Key: "k"}
	cap := storageCapability(inv, req)
	assert.Equal(t, capabilities.Capability{Kind: capabilities.KindStorage, Name: "shared1"}, cap)
}

func TestStorageCapabilityRuleScoped(t *testing.T) {
	inv := &Invocation{Filename: "rule.wasm"}
	req := &StorageRequestWire{Key: "k"}
	cap := storageCapability(inv, req)
	assert.Equal(t, capabilities.Capability{Kind: capabilities.KindStorage, Name: "self:rule.wasm"}, cap)
}

func TestStorageErrCodeSizeLimit(t *testing.T) {
	assert.Equal(t, uint64(uint32(int32(ErrStorageLimitReached))), storageErrCode(storage.ErrSizeLimitExceeded))
}

func TestStorageErrCodeOther(t *testing.T) {
	assert.Equal(t, uint64(uint32(int32(ErrInternalAPIError))), storageErrCode(assertError{}))
}

func TestDenialCodeTestMode(t *testing.T) {
	assert.Equal(t, uint64(uint32(int32(ErrTestMode))), denialCode(capabilities.DeniedTestMode))
}

func TestDenialCodeAllowlistAndNotFound(t *testing.T) {
	assert.Equal(t, uint64(uint32(int32(ErrAllowlistDenied))), denialCode(capabilities.DeniedAllowlist))
	assert.Equal(t, uint64(uint32(int32(ErrAllowlistDenied))), denialCode(capabilities.DeniedNotFound))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
