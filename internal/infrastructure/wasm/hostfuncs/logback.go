package hostfuncs

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

const logbackCallCost = 5

// logBack implements log_back(request_ptr_len i64) -> i32, enqueuing a new
// Logback message with the caller's remaining budget decremented. The
// dispatcher enqueues before this call returns, satisfying the invariant
// that logback messages are visible before the caller's invocation ends.
func logBack(services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.Meter.Charge(logbackCallCost)

		if inv.LogbacksRemaining.Exhausted() {
			stack[0] = uint64(uint32(int32(ErrAllowlistDenied)))
			return
		}

		raw, err := wasm.ReadPacked(mod, stack[0])
		if err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}
		var req LogBackRequestWire
		if err := json.Unmarshal(raw, &req); err != nil {
			stack[0] = uint64(uint32(int32(ErrParametersNotUTF8)))
			return
		}

		if services == nil || services.Logback == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}
		if err := services.Logback.LogBack(ctx, inv, req.LogType, req.Payload, req.Delay); err != nil {
			stack[0] = uint64(uint32(int32(ErrInternalAPIError)))
			return
		}
		inv.LogbacksRemaining = inv.LogbacksRemaining.Decrement()
		stack[0] = 0
	}
}
