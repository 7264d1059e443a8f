package hostfuncs

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

const messageMetaCost = 1

// getHeaders implements get_headers() -> packed_i64, a JSON object of the
// triggering webhook's allowlisted request headers. Returns 0 (empty) for
// messages with no headers, matching the original's "0 if absent" getters.
func getHeaders(ctx context.Context, mod api.Module, stack []uint64) {
	writeStringMap(ctx, mod, stack, func(inv *Invocation) map[string]string { return inv.Headers })
}

// getQueryParams implements get_query_params() -> packed_i64.
func getQueryParams(ctx context.Context, mod api.Module, stack []uint64) {
	writeStringMap(ctx, mod, stack, func(inv *Invocation) map[string]string { return inv.Query })
}

func writeStringMap(ctx context.Context, mod api.Module, stack []uint64, pick func(*Invocation) map[string]string) {
	inv, ok := InvocationFromContext(ctx)
	if !ok {
		stack[0] = 0
		return
	}
	inv.Meter.Charge(messageMetaCost)

	m := pick(inv)
	if len(m) == 0 {
		stack[0] = 0
		return
	}
	data, err := json.Marshal(m)
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

// persistentResponseGet implements persistent_response::get() -> packed_i64,
// the supplemented capability letting a rule read back its own last stored
// GET-mode response (original runtime: PlaidModule::get_persistent_response_data).
func persistentResponseGet(services *Services) apiFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		inv, ok := InvocationFromContext(ctx)
		if !ok {
			stack[0] = 0
			return
		}
		inv.Meter.Charge(messageMetaCost)

		if services == nil || services.PersistentResponse == nil {
			stack[0] = uint64(uint32(int32(ErrAPINotConfigured)))
			return
		}
		data, found := services.PersistentResponse.Get(ctx, inv.Filename)
		if !found {
			stack[0] = 0
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
