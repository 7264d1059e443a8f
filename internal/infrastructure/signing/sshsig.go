// Package signing verifies OpenSSH PROTOCOL.sshsig signatures over module
// bytecode, the mechanism spec.md's "Authorized signer set" requires.
// golang.org/x/crypto/ssh supplies key parsing and wire (un)marshaling
// primitives; no library in the retrieved corpus implements the sshsig
// envelope itself (the original Rust implementation used the third-party
// `sshcerts` crate for exactly this), so the envelope framing below is a
// direct, minimal transcription of PROTOCOL.sshsig on top of that library.
package signing

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Namespace is the fixed sshsig namespace Plaid signatures must carry.
const Namespace = "PlaidRule"

const magicPreamble = "SSHSIG"

var (
	errBadMagic     = errors.New("signing: not an sshsig blob")
	errBadNamespace = errors.New("signing: signature namespace mismatch")
	errBadHashAlgo  = errors.New("signing: unsupported sshsig hash algorithm")
)

// envelope is the decoded body of an sshsig blob, following PROTOCOL.sshsig:
//
//	byte[6]  MAGIC_PREAMBLE
//	uint32   SIG_VERSION
//	string   publickey
//	string   namespace
//	string   reserved
//	string   hash_algorithm
//	string   signature
type envelope struct {
	Version       uint32
	PublicKey     []byte
	Namespace     string
	Reserved      string
	HashAlgorithm string
	Signature     []byte
}

// AuthorizedSigner is one parsed member of the authorized signer set.
type AuthorizedSigner struct {
	Key         ssh.PublicKey
	Fingerprint string
	Comment     string
}

// ParseAuthorizedSigners parses the `authorized_signers` config entries,
// each an OpenSSH public-key line ("ssh-ed25519 AAAA... comment").
func ParseAuthorizedSigners(lines []string) ([]AuthorizedSigner, error) {
	signers := make([]AuthorizedSigner, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("authorized_signers[%d]: %w", i, err)
		}
		signers = append(signers, AuthorizedSigner{
			Key:         key,
			Fingerprint: ssh.FingerprintSHA256(key),
			Comment:     comment,
		})
	}
	return signers, nil
}

// VerifyModuleSignature checks one armored sshsig blob (the decoded
// contents of a .sig file) against moduleBytes, requiring the signature's
// namespace to equal Namespace and its signer to appear in authorized.
// It returns the matching signer on success.
func VerifyModuleSignature(armored []byte, moduleBytes []byte, authorized []AuthorizedSigner) (AuthorizedSigner, error) {
	env, err := decodeArmored(armored)
	if err != nil {
		return AuthorizedSigner{}, err
	}
	if env.Namespace != Namespace {
		return AuthorizedSigner{}, errBadNamespace
	}

	pub, err := ssh.ParsePublicKey(env.PublicKey)
	if err != nil {
		return AuthorizedSigner{}, fmt.Errorf("signing: parsing embedded public key: %w", err)
	}

	digest := sha256.Sum256(moduleBytes)
	message := []byte(hex.EncodeToString(digest[:]))

	h, err := newHash(env.HashAlgorithm)
	if err != nil {
		return AuthorizedSigner{}, err
	}
	h.Write(message)
	messageHash := h.Sum(nil)

	toSign := buildSignedData(env.Namespace, env.Reserved, env.HashAlgorithm, messageHash)

	var sig ssh.Signature
	if err := ssh.Unmarshal(env.Signature, &sig); err != nil {
		return AuthorizedSigner{}, fmt.Errorf("signing: parsing signature blob: %w", err)
	}
	if err := pub.Verify(toSign, &sig); err != nil {
		return AuthorizedSigner{}, fmt.Errorf("signing: signature does not verify: %w", err)
	}

	fp := ssh.FingerprintSHA256(pub)
	for _, signer := range authorized {
		if signer.Fingerprint == fp {
			return signer, nil
		}
	}
	return AuthorizedSigner{}, fmt.Errorf("signing: key %s is not an authorized signer", fp)
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, errBadHashAlgo
	}
}

// buildSignedData reconstructs the bytes the signer actually signed:
//
//	byte[6]  MAGIC_PREAMBLE
//	string   namespace
//	string   reserved
//	string   hash_algorithm
//	string   hash
func buildSignedData(namespace, reserved, hashAlgorithm string, digest []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(magicPreamble)
	writeString(&buf, []byte(namespace))
	writeString(&buf, []byte(reserved))
	writeString(&buf, []byte(hashAlgorithm))
	writeString(&buf, digest)
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s []byte) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(s)))
	buf.Write(lenBytes[:])
	buf.Write(s)
}

// decodeArmored strips the "-----BEGIN SSH SIGNATURE-----" PEM-like framing,
// base64-decodes the body, and parses the envelope.
func decodeArmored(armored []byte) (*envelope, error) {
	text := strings.TrimSpace(string(armored))
	text = strings.TrimPrefix(text, "-----BEGIN SSH SIGNATURE-----")
	text = strings.TrimSuffix(text, "-----END SSH SIGNATURE-----")
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("signing: base64 decoding sshsig body: %w", err)
	}
	if len(raw) < len(magicPreamble) || string(raw[:len(magicPreamble)]) != magicPreamble {
		return nil, errBadMagic
	}
	rest := raw[len(magicPreamble):]

	var env envelope
	if err := ssh.Unmarshal(rest, &env); err != nil {
		return nil, fmt.Errorf("signing: parsing sshsig envelope: %w", err)
	}
	return &env, nil
}
