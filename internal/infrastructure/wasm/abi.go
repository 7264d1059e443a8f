package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Plaid rules exchange data with the host using the teacher's packed-i64
// pointer/length convention: a WASM linear-memory offset and byte length
// packed into one uint64 (ptr<<32 | len) and passed as a single i64
// parameter or return value, alongside allocate/deallocate exports the
// host calls to request and release guest memory.

// PackPtr combines a pointer and length into the packed i64 wire form.
func PackPtr(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtr splits a packed i64 into its pointer and length.
func UnpackPtr(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}

// entrypointNames lists the four recognized entry-point export names, in
// the arity precedence order the executor probes them: (payload only),
// (payload+source), (payload+source, optional response), (payload bytes as
// a second buffer + source). Exactly one is expected per module.
var entrypointNames = []string{
	"plaid_entrypoint",
	"plaid_entrypoint_with_source",
	"plaid_entrypoint_with_source_and_response",
	"plaid_entrypoint_bytes_with_source",
}

// ResolveEntrypoint finds which of the four recognized exports a module
// provides. An error means the module exports none or more than one; the
// executor calls it on every invocation and fails that invocation.
func ResolveEntrypoint(mod api.Module) (name string, fn api.Function, err error) {
	var found []string
	for _, n := range entrypointNames {
		if f := mod.ExportedFunction(n); f != nil {
			found = append(found, n)
		}
	}
	switch len(found) {
	case 0:
		return "", nil, fmt.Errorf("wasm: module exports no recognized entry point")
	case 1:
		return found[0], mod.ExportedFunction(found[0]), nil
	default:
		return "", nil, fmt.Errorf("wasm: module exports multiple entry points %v, ambiguous arity", found)
	}
}

// WriteBytes allocates guest memory via the module's exported `allocate`
// function, writes data into it, and returns the packed pointer/length.
// The caller is responsible for eventually calling FreeBytes.
func WriteBytes(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		return 0, fmt.Errorf("wasm: module does not export allocate")
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("wasm: calling allocate: %w", err)
	}
	ptr := uint32(results[0])
	if len(data) > 0 && !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("wasm: writing %d bytes at offset %d out of range", len(data), ptr)
	}
	return PackPtr(ptr, uint32(len(data))), nil
}

// FreeBytes releases memory previously returned by WriteBytes via the
// module's exported `deallocate` function, if present.
func FreeBytes(ctx context.Context, mod api.Module, packed uint64) {
	dealloc := mod.ExportedFunction("deallocate")
	if dealloc == nil {
		return
	}
	ptr, length := UnpackPtr(packed)
	_, _ = dealloc.Call(ctx, uint64(ptr), uint64(length))
}

// ReadBytes copies length bytes at ptr out of the module's linear memory.
func ReadBytes(mod api.Module, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("wasm: reading %d bytes at offset %d out of range", length, ptr)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// ReadPacked reads the bytes described by a packed pointer/length value.
func ReadPacked(mod api.Module, packed uint64) ([]byte, error) {
	ptr, length := UnpackPtr(packed)
	return ReadBytes(mod, ptr, length)
}
