package hostfuncs

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

// hostModuleName is the import module name rule bytecode links against.
const hostModuleName = "plaid_host"

// Register builds the plaid_host module against r, wiring every capability
// family named in spec.md §4.C. checker enforces the allowlist/test-mode
// gate; services supplies the storage/cache/network/logback backends.
func Register(ctx context.Context, r wazero.Runtime, checker *wasm.CapabilityChecker, services *Services) error {
	builder := r.NewHostModuleBuilder(hostModuleName)

	exportI64ToI64 := func(name string, fn apiFunc) {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(name)
	}
	exportVoidToI64 := func(name string, fn apiFunc) {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn), []api.ValueType{}, []api.ValueType{api.ValueTypeI64}).
			Export(name)
	}
	exportI64ToVoid := func(name string, fn apiFunc) {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn), []api.ValueType{api.ValueTypeI64}, []api.ValueType{}).
			Export(name)
	}

	exportI64ToVoid("print_debug_string", printDebugString)
	exportVoidToI64("get_time", getTime)
	exportVoidToI64("get_headers", getHeaders)
	exportVoidToI64("get_query_params", getQueryParams)
	exportVoidToI64("persistent_response_get", persistentResponseGet(services))

	exportI64ToI64("storage_insert", storageInsert(checker, services))
	exportI64ToI64("storage_get", storageGet(checker, services))
	exportI64ToI64("storage_delete", storageDelete(checker, services))
	exportI64ToI64("storage_list_keys", storageListKeys(checker, services))

	exportI64ToI64("cache_insert", cacheInsert(checker, services))
	exportI64ToI64("cache_get", cacheGet(checker, services))

	exportI64ToI64("make_named_request", makeNamedRequest(checker, services))
	exportI64ToI64("log_back", logBack(services))

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("hostfuncs: instantiating %s module: %w", hostModuleName, err)
	}
	return nil
}
