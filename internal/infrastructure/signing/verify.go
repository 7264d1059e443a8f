package signing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotEnoughSignatures is returned when fewer distinct authorized
// signers validated a module than required.
type ErrNotEnoughSignatures struct {
	Found, Required int
}

func (e *ErrNotEnoughSignatures) Error() string {
	return fmt.Sprintf("signing: %d valid distinct signatures, %d required", e.Found, e.Required)
}

// CheckModuleSignatures verifies filename's bytecode against every *.sig
// file under <signaturesDir>/<filename>/, following the original loader's
// per-module signature directory convention. It succeeds once at least
// `required` DISTINCT authorized signers are found (spec.md Open Question
// c: a single signer producing multiple signatures does not count twice).
func CheckModuleSignatures(signaturesDir, filename string, moduleBytes []byte, authorized []AuthorizedSigner, required int) error {
	if required <= 0 {
		return nil
	}

	sigDir := filepath.Join(signaturesDir, filename)
	entries, err := os.ReadDir(sigDir)
	if err != nil {
		return &ErrNotEnoughSignatures{Found: 0, Required: required}
	}

	var sigFiles []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sig") {
			continue
		}
		sigFiles = append(sigFiles, e.Name())
	}
	sort.Strings(sigFiles)

	seen := make(map[string]struct{})
	for _, name := range sigFiles {
		data, err := os.ReadFile(filepath.Join(sigDir, name))
		if err != nil {
			continue
		}
		signer, err := VerifyModuleSignature(data, moduleBytes, authorized)
		if err != nil {
			continue
		}
		seen[signer.Fingerprint] = struct{}{}
		if len(seen) >= required {
			return nil
		}
	}

	return &ErrNotEnoughSignatures{Found: len(seen), Required: required}
}
