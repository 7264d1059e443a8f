package hostfuncs

import (
	"context"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

// debugCost is the fixed computation charge for print_debug_string, well
// below a real capability's cost since it performs no host I/O.
const debugCost = 1

// printDebugString implements print_debug_string(msg_ptr_len i64).
func printDebugString(ctx context.Context, mod api.Module, stack []uint64) {
	inv, ok := InvocationFromContext(ctx)
	if !ok {
		return
	}
	inv.Meter.Charge(debugCost)

	msg, err := wasm.ReadPacked(mod, stack[0])
	if err != nil {
		slog.WarnContext(ctx, "plaid: could not read debug string from guest memory", "module", inv.Filename, "error", err)
		return
	}
	slog.InfoContext(ctx, "rule debug output", "module", inv.Filename, "message", string(msg))
}

// getTime implements get_time() -> i64, seconds since the Unix epoch.
func getTime(ctx context.Context, mod api.Module, stack []uint64) {
	inv, ok := InvocationFromContext(ctx)
	if !ok {
		stack[0] = 0
		return
	}
	inv.Meter.Charge(debugCost)
	stack[0] = uint64(time.Now().Unix())
}
