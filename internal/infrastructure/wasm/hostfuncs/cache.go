package hostfuncs

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

const cacheCallCost = 3

func decodeCacheRequest(mod api.Module, stack []uint64) (*CacheRequestWire, error) {
	raw, err := wasm.ReadPacked(mod, stack[0])
	if err != nil {
		return nil, err
	}
	var req CacheRequestWire
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func cacheInsert(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		req, err := decodeCacheRequest(mod, stack)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(cacheCallCost)

		decision, _ := checkCapability(ctx, checker, capabilities.Capability{Kind: capabilities.KindCache, Name: req.Cache})
		if decision != capabilities.Allowed {
			stack[0] = denialCode(decision)
			return
		}
		if services == nil || services.Cache == nil {
			stack[0] = uint64(uint32(int32(ErrCacheDisabled)))
			return
		}

		evictedKey, evicted := services.Cache.Insert(ctx, req.Cache, req.Key, req.Value, req.TTL)
		resp := &CacheResponseWire{Evicted: evicted, EvictedKey: evictedKey}
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
}

func cacheGet(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		req, err := decodeCacheRequest(mod, stack)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(cacheCallCost)

		decision, _ := checkCapability(ctx, checker, capabilities.Capability{Kind: capabilities.KindCache, Name: req.Cache})
		if decision != capabilities.Allowed {
			stack[0] = denialCode(decision)
			return
		}
		if services == nil || services.Cache == nil {
			stack[0] = uint64(uint32(int32(ErrCacheDisabled)))
			return
		}

		value, found := services.Cache.Get(ctx, req.Cache, req.Key)
		data, err := json.Marshal(&CacheResponseWire{Value: value, Found: found})
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
}
