// Package loader implements component B: scanning the module directory,
// verifying signatures, compiling bytecode, and publishing module.Artifact
// values into a Registry the dispatcher and executor read from.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/domain/module"
	"github.com/plaidhost/plaid/internal/infrastructure/config"
	"github.com/plaidhost/plaid/internal/infrastructure/secrets"
	"github.com/plaidhost/plaid/internal/infrastructure/signing"
	"github.com/plaidhost/plaid/internal/infrastructure/wasm"
)

// ErrSignerMisconfigured is returned by Load when signatures_required > 0
// but no authorized signer is configured (spec.md §4.B: fatal at boot).
var ErrSignerMisconfigured = fmt.Errorf("loader: signatures_required > 0 but authorized_signers is empty")

// Load scans cfg.ModuleDir for *.wasm files, verifies their signatures,
// compiles surviving bytecode via rt, and returns one Artifact per module
// that passed both checks. Individual module failures are logged and the
// module is skipped; only signer misconfiguration is fatal.
func Load(ctx context.Context, cfg config.LoadingConfig, rt *wasm.Runtime, resolver *secrets.Resolver) ([]*module.Artifact, error) {
	var authorized []signing.AuthorizedSigner
	if cfg.Signing.SignaturesRequired > 0 {
		if len(cfg.Signing.AuthorizedSigners) == 0 {
			return nil, ErrSignerMisconfigured
		}
		var err error
		authorized, err = signing.ParseAuthorizedSigners(cfg.Signing.AuthorizedSigners)
		if err != nil {
			return nil, fmt.Errorf("loader: parsing authorized signers: %w", err)
		}
	}

	entries, err := os.ReadDir(cfg.ModuleDir)
	if err != nil {
		return nil, fmt.Errorf("loader: reading module_dir %s: %w", cfg.ModuleDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wasm") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	serial := make(map[string]bool, len(cfg.SingleThreadedRules))
	for _, f := range cfg.SingleThreadedRules {
		serial[f] = true
	}

	var artifacts []*module.Artifact
	for _, name := range names {
		art, err := loadOne(ctx, cfg, rt, resolver, authorized, name, serial[name])
		if err != nil {
			slog.WarnContext(ctx, "module load failed, skipping", "module", name, "error", err)
			continue
		}
		artifacts = append(artifacts, art)
		slog.InfoContext(ctx, "module loaded", "module", name, "log_type", art.LogType, "signatures", art.SignaturesVerified)
	}
	return artifacts, nil
}

func loadOne(ctx context.Context, cfg config.LoadingConfig, rt *wasm.Runtime, resolver *secrets.Resolver, authorized []signing.AuthorizedSigner, name string, serialExecution bool) (*module.Artifact, error) {
	path := filepath.Join(cfg.ModuleDir, name)
	bytecode, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module bytes: %w", err)
	}

	sum := sha256.Sum256(bytecode)
	digestHex := hex.EncodeToString(sum[:])

	signaturesVerified := 0
	if cfg.Signing.SignaturesRequired > 0 {
		if err := signing.CheckModuleSignatures(cfg.Signing.SignaturesDir, name, bytecode, authorized, cfg.Signing.SignaturesRequired); err != nil {
			return nil, fmt.Errorf("signature check failed (sha256 %s): %w", digestHex, err)
		}
		signaturesVerified = cfg.Signing.SignaturesRequired
	}

	if _, err := rt.Compile(wasm.NewMeteringListenerContext(ctx), name, bytecode); err != nil {
		return nil, fmt.Errorf("compiling module: %w", err)
	}

	logType := deriveLogType(name, cfg.LogTypeOverrides)
	accessory := mergeAccessory(cfg, name, logType)
	ruleSecrets := filterSecrets(resolver, cfg.SecretsAllowed[name])

	return &module.Artifact{
		Filename:               name,
		LogType:                logType,
		Bytecode:               bytecode,
		ComputationLimit:       cfg.ComputationAmount.Resolve(name, logType),
		MemoryPages:            uint32(cfg.MemoryPageCount.Resolve(name, logType)),
		StorageLimit:           limitFromAmount(cfg.StorageSizeLimit, name, logType),
		PersistentResponseSize: cfg.PersistentResponseSize.Resolve(name, logType),
		Secrets:                ruleSecrets,
		Accessory:              accessory,
		TestModeExempt:         containsString(cfg.TestModeExemptions, name),
		SerialExecution:        serialExecution,
		SignaturesVerified:     signaturesVerified,
	}, nil
}

// deriveLogType implements spec.md §4.B's log-type derivation: override
// table first, else the filename prefix before the first underscore.
func deriveLogType(filename string, overrides map[string]string) string {
	if lt, ok := overrides[filename]; ok {
		return lt
	}
	base := strings.TrimSuffix(filename, ".wasm")
	if idx := strings.Index(base, "_"); idx >= 0 {
		return base[:idx]
	}
	return base
}

// mergeAccessory implements the three-tier accessory merge: universal,
// overridden per log-type, overridden per filename.
func mergeAccessory(cfg config.LoadingConfig, filename, logType string) map[string]string {
	merged := make(map[string]string)
	for k, v := range cfg.AccessoryUniversal {
		merged[k] = v
	}
	for k, v := range cfg.AccessoryLogTypeOverrides[logType] {
		merged[k] = v
	}
	for k, v := range cfg.AccessoryFileOverrides[filename] {
		merged[k] = v
	}
	return merged
}

func filterSecrets(resolver *secrets.Resolver, declared []string) map[string]string {
	out := make(map[string]string, len(declared))
	for _, key := range declared {
		if v, err := resolver.Resolve(key); err == nil {
			out[key] = v
		}
	}
	return out
}

func limitFromAmount(a config.AmountConfig, filename, logType string) message.Limit {
	if v, ok := a.ModuleOverrides[filename]; ok {
		return message.Limited(v)
	}
	if v, ok := a.LogType[logType]; ok {
		return message.Limited(v)
	}
	if a.Default == 0 {
		return message.Unlimited()
	}
	return message.Limited(a.Default)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
