package signing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSignature(t *testing.T, sigDir, name string, armored []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(sigDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sigDir, name), armored, 0o644))
}

func TestCheckModuleSignaturesZeroRequiredSkipsVerification(t *testing.T) {
	err := CheckModuleSignatures(t.TempDir(), "rule.wasm", []byte("bytecode"), nil, 0)
	assert.NoError(t, err)
}

func TestCheckModuleSignaturesMissingDirectory(t *testing.T) {
	err := CheckModuleSignatures(t.TempDir(), "rule.wasm", []byte("bytecode"), nil, 1)
	var notEnough *ErrNotEnoughSignatures
	require.ErrorAs(t, err, &notEnough)
	assert.Equal(t, 0, notEnough.Found)
	assert.Equal(t, 1, notEnough.Required)
}

func TestCheckModuleSignaturesSucceedsWithOneValidSignature(t *testing.T) {
	root := t.TempDir()
	moduleBytes := []byte("rule bytecode")
	armored, authorizedLine, _ := buildTestSignature(t, Namespace, moduleBytes)
	authorized, err := ParseAuthorizedSigners([]string{authorizedLine})
	require.NoError(t, err)

	writeSignature(t, filepath.Join(root, "rule.wasm"), "signer1.sig", armored)

	err = CheckModuleSignatures(root, "rule.wasm", moduleBytes, authorized, 1)
	assert.NoError(t, err)
}

func TestCheckModuleSignaturesRequiresDistinctSigners(t *testing.T) {
	root := t.TempDir()
	moduleBytes := []byte("rule bytecode")
	armored, authorizedLine, _ := buildTestSignature(t, Namespace, moduleBytes)
	authorized, err := ParseAuthorizedSigners([]string{authorizedLine})
	require.NoError(t, err)

	sigDir := filepath.Join(root, "rule.wasm")
	writeSignature(t, sigDir, "signer1.sig", armored)
	// Same signer's signature copied under a second filename must not count twice.
	writeSignature(t, sigDir, "signer1-copy.sig", armored)

	err = CheckModuleSignatures(root, "rule.wasm", moduleBytes, authorized, 2)
	var notEnough *ErrNotEnoughSignatures
	require.ErrorAs(t, err, &notEnough)
	assert.Equal(t, 1, notEnough.Found)
	assert.Equal(t, 2, notEnough.Required)
}

func TestCheckModuleSignaturesSucceedsWithTwoDistinctSigners(t *testing.T) {
	root := t.TempDir()
	moduleBytes := []byte("rule bytecode")

	armored1, line1, _ := buildTestSignature(t, Namespace, moduleBytes)
	armored2, line2, _ := buildTestSignature(t, Namespace, moduleBytes)
	authorized, err := ParseAuthorizedSigners([]string{line1, line2})
	require.NoError(t, err)

	sigDir := filepath.Join(root, "rule.wasm")
	writeSignature(t, sigDir, "signer1.sig", armored1)
	writeSignature(t, sigDir, "signer2.sig", armored2)

	err = CheckModuleSignatures(root, "rule.wasm", moduleBytes, authorized, 2)
	assert.NoError(t, err)
}

func TestCheckModuleSignaturesIgnoresNonSigFilesAndUnauthorizedSigners(t *testing.T) {
	root := t.TempDir()
	moduleBytes := []byte("rule bytecode")

	armored, _, _ := buildTestSignature(t, Namespace, moduleBytes)
	_, otherLine, _ := buildTestSignature(t, Namespace, moduleBytes)
	authorized, err := ParseAuthorizedSigners([]string{otherLine})
	require.NoError(t, err)

	sigDir := filepath.Join(root, "rule.wasm")
	writeSignature(t, sigDir, "signer1.sig", armored)
	writeSignature(t, sigDir, "readme.txt", []byte("not a signature"))

	err = CheckModuleSignatures(root, "rule.wasm", moduleBytes, authorized, 1)
	var notEnough *ErrNotEnoughSignatures
	require.ErrorAs(t, err, &notEnough)
	assert.Equal(t, 0, notEnough.Found)
}
