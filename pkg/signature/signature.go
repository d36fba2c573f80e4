// Package signature provides Ed25519 package signing/verification and the
// SHA-256 content checksum used for archive integrity.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// Signature is a detached 64-byte Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// Bytes returns the raw 64-byte signature.
func (s Signature) Bytes() []byte { return s[:] }

// Base64 encodes the signature with standard base64.
func (s Signature) Base64() string { return base64.StdEncoding.EncodeToString(s[:]) }

// ParseSignature decodes a base64 signature, failing if the decoded length
// is not exactly 64 bytes.
func ParseSignature(b64 string) (Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Signature{}, rpgerrors.Wrap(rpgerrors.SignatureVerification, err, "decoding signature")
	}
	if len(raw) != ed25519.SignatureSize {
		return Signature{}, rpgerrors.New(rpgerrors.SignatureVerification,
			"signature must be %d bytes, got %d", ed25519.SignatureSize, len(raw))
	}
	var sig Signature
	copy(sig[:], raw)
	return sig, nil
}

// KeyPair is an Ed25519 signing keypair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, rpgerrors.Wrap(rpgerrors.Other, err, "generating keypair")
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a detached signature over data.
func (k KeyPair) Sign(data []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.Private, data))
	return sig
}

// PublicKeyBase64 encodes the 32-byte public key.
func (k KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.Public)
}

// PrivateKeyBase64 encodes the 32-byte seed of the private key. Callers
// must never embed this in archives or logs.
func (k KeyPair) PrivateKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.Private.Seed())
}

// ImportPrivateKeyBase64 reconstructs a KeyPair from a base64-encoded
// 32-byte seed.
func ImportPrivateKeyBase64(b64 string) (KeyPair, error) {
	seed, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return KeyPair{}, rpgerrors.Wrap(rpgerrors.Other, err, "decoding private key")
	}
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, rpgerrors.New(rpgerrors.Other, "private key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Verifier checks Ed25519 signatures against a known public key.
type Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewVerifierFromBase64 decodes a base64 32-byte public key.
func NewVerifierFromBase64(b64 string) (Verifier, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Verifier{}, rpgerrors.Wrap(rpgerrors.SignatureVerification, err, "decoding public key")
	}
	if len(raw) != ed25519.PublicKeySize {
		return Verifier{}, rpgerrors.New(rpgerrors.SignatureVerification,
			"public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return Verifier{PublicKey: ed25519.PublicKey(raw)}, nil
}

// Verify checks sig against data, failing with SignatureVerification on
// mismatch.
func (v Verifier) Verify(data []byte, sig Signature) error {
	if !ed25519.Verify(v.PublicKey, data, sig.Bytes()) {
		return rpgerrors.New(rpgerrors.SignatureVerification, "signature does not match data")
	}
	return nil
}

// Checksum computes the 64-character lowercase hex SHA-256 digest of data,
// the integrity hash embedded in package manifests.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
