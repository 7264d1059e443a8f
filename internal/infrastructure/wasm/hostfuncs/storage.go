package hostfuncs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/storage"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

const storageCallCost = 5

func decodeStorageRequest(ctx context.Context, mod api.Module, stack []uint64) (*StorageRequestWire, error) {
	raw, err := wasm.ReadPacked(mod, stack[0])
	if err != nil {
		return nil, err
	}
	var req StorageRequestWire
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func writeStorageResponse(ctx context.Context, mod api.Module, stack []uint64, resp *StorageResponseWire) {
	data, err := json.Marshal(resp)
	if err != nil {
		stack[0] = uint64(uint32(int32(ErrCouldNotSerialize)))
		return
	}
	packed, err := wasm.WriteBytes(ctx, mod, data)
	if err != nil {
		stack[0] = uint64(uint32(int32(ErrCouldNotGetMemory)))
		return
	}
	stack[0] = packed
}

// storageCapability returns the Capability the request targets: the
// caller's own rule-scoped namespace (KindStorage with the rule's own
// filename) or a named shared DB.
func storageCapability(inv *Invocation, req *StorageRequestWire) capabilities.Capability {
	if req.DB != "" {
		return capabilities.Capability{Kind: capabilities.KindStorage, Name: req.DB}
	}
	return capabilities.Capability{Kind: capabilities.KindStorage, Name: "self:" + inv.Filename}
}

func storageInsert(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		req, err := decodeStorageRequest(ctx, mod, stack)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(storageCallCost)

		if req.DB != "" {
			decision, _ := checkCapability(ctx, checker, storageCapability(inv, req))
			if decision != capabilities.Allowed {
				stack[0] = denialCode(decision)
				return
			}
			if services == nil || services.Storage == nil {
				stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
				return
			}
			if err := services.Storage.SharedInsert(ctx, req.DB, inv.Filename, req.Key, req.Value); err != nil {
				stack[0] = storageErrCode(err)
				return
			}
			stack[0] = 0
			return
		}

		if services == nil || services.Storage == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}
		if err := services.Storage.Insert(ctx, inv.Filename, req.Key, req.Value); err != nil {
			stack[0] = storageErrCode(err)
			return
		}
		stack[0] = 0
	}
}

func storageGet(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		req, err := decodeStorageRequest(ctx, mod, stack)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(storageCallCost)

		if services == nil || services.Storage == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}

		var value []byte
		var found bool
		if req.DB != "" {
			decision, _ := checkCapability(ctx, checker, storageCapability(inv, req))
			if decision != capabilities.Allowed {
				stack[0] = denialCode(decision)
				return
			}
			value, found, err = services.Storage.SharedGet(ctx, req.DB, inv.Filename, req.Key)
		} else {
			value, found, err = services.Storage.Get(ctx, inv.Filename, req.Key)
		}
		if err != nil {
			stack[0] = storageErrCode(err)
			return
		}
		writeStorageResponse(ctx, mod, stack, &StorageResponseWire{Value: value, Found: found})
	}
}

func storageDelete(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		req, err := decodeStorageRequest(ctx, mod, stack)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(storageCallCost)

		if services == nil || services.Storage == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}

		var value []byte
		var found bool
		if req.DB != "" {
			decision, _ := checkCapability(ctx, checker, storageCapability(inv, req))
			if decision != capabilities.Allowed {
				stack[0] = denialCode(decision)
				return
			}
			value, found, err = services.Storage.SharedDelete(ctx, req.DB, inv.Filename, req.Key)
		} else {
			value, found, err = services.Storage.Delete(ctx, inv.Filename, req.Key)
		}
		if err != nil {
			stack[0] = storageErrCode(err)
			return
		}
		writeStorageResponse(ctx, mod, stack, &StorageResponseWire{Value: value, Found: found})
	}
}

func storageListKeys(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		req, err := decodeStorageRequest(ctx, mod, stack)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(storageCallCost)

		mode, prefix := "all", ""
		if strings.HasPrefix(req.Mode, "prefix:") {
			mode, prefix = "prefix", strings.TrimPrefix(req.Mode, "prefix:")
		}

		if services == nil || services.Storage == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}

		var keys []string
		if req.DB != "" {
			decision, _ := checkCapability(ctx, checker, storageCapability(inv, req))
			if decision != capabilities.Allowed {
				stack[0] = denialCode(decision)
				return
			}
			keys, err = services.Storage.SharedListKeys(ctx, req.DB, inv.Filename, mode, prefix)
		} else {
			keys, err = services.Storage.ListKeys(ctx, inv.Filename, mode, prefix)
		}
		if err != nil {
			stack[0] = storageErrCode(err)
			return
		}
		writeStorageResponse(ctx, mod, stack, &StorageResponseWire{Keys: keys, Found: true})
	}
}

func storageErrCode(err error) uint64 {
	if err == storage.ErrSizeLimitExceeded {
		return uint64(uint32(int32(ErrStorageLimitReached)))
	}
	return uint64(uint32(int32(ErrInternalAPIError)))
}

func denialCode(decision capabilities.AccessDecision) uint64 {
	switch decision {
	case capabilities.DeniedTestMode:
		return uint64(uint32(int32(ErrTestMode)))
	default:
		return uint64(uint32(int32(ErrAllowlistDenied)))
	}
}
