package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

func TestRegisterExportsEveryHostFunction(t *testing.T) {
	ctx := context.Background()
	rt, err := wasm.NewRuntime(ctx, nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	checker := &wasm.CapabilityChecker{}
	require.NoError(t, Register(ctx, rt.Underlying(), checker, &Services{}))

	mod := rt.Underlying().Module(hostModuleName)
	require.NotNil(t, mod)

	expected := []string{
		"print_debug_string",
		"get_time",
		"get_headers",
		"get_query_params",
		"persistent_response_get",
		"storage_insert",
		"storage_get",
		"storage_delete",
		"storage_list_keys",
		"cache_insert",
		"cache_get",
		"make_named_request",
		"log_back",
	}
	for _, name := range expected {
		assert.NotNilf(t, mod.ExportedFunction(name), "expected export %q", name)
	}
}

func TestRegisterWithNilServicesStillExports(t *testing.T) {
	ctx := context.Background()
	rt, err := wasm.NewRuntime(ctx, nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.NoError(t, Register(ctx, rt.Underlying(), nil, nil))
	mod := rt.Underlying().Module(hostModuleName)
	require.NotNil(t, mod)
	assert.NotNil(t, mod.ExportedFunction("storage_insert"))
}
