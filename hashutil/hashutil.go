// Package hashutil implements the fixed hash derivations of spec.md §3:
// SHA-1 over tag name/value bytes, and SHA-256 over a wallet's public
// modulus to derive its address.
package hashutil

import (
	"crypto/sha1" //nolint:gosec // spec-mandated: tag name/value keys are SHA-1, not a security boundary.
	"crypto/sha256"
)

// TagHash returns the 20-byte SHA-1 hash of raw tag name or value bytes,
// the key used by tag_names/tag_values, per spec.md §3.
func TagHash(raw []byte) []byte {
	var h = sha1.Sum(raw) //nolint:gosec
	return h[:]
}

// WalletAddress returns the SHA-256 hash of an owner's public modulus,
// per spec.md §3 ("A wallet address is SHA-256 of the owner's public
// modulus.").
func WalletAddress(publicModulus []byte) []byte {
	var h = sha256.Sum256(publicModulus)
	return h[:]
}
