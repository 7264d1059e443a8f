package hostfuncs

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/domain/capabilities"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

// networkCallCost is deliberately higher than storage/cache: outbound HTTP
// crosses the process boundary and blocks a worker on the I/O runtime.
const networkCallCost = 20

func makeNamedRequest(checker *wasm.CapabilityChecker, services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		raw, err := wasm.ReadPacked(mod, stack[0])
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		var req NetworkRequestWire
		if err := json.Unmarshal(raw, &req); err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}

		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(networkCallCost)

		decision, _ := checkCapability(ctx, checker, capabilities.Capability{Kind: capabilities.KindNetwork, Name: req.Name})
		if decision != capabilities.Allowed {
			stack[0] = denialCode(decision)
			return
		}
		if services == nil || services.Network == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}

		status, body, err := services.Network.MakeNamedRequest(ctx, req.Name, req.URLVars, req.BodyVars, req.HeadersOverride)
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}

		data, err := json.Marshal(&NetworkResponseWire{Status: status, Body: body})
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
