// Package canonical implements the single determinism primitive the rest of
// the run engine is built on: a canonical JSON encoding and the SHA-256
// digest taken over it. Every hash, checksum, cache key, and exported
// manifest in this module is computed through these two functions so that
// two processes given the same logical input always agree byte-for-byte.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// JSON returns the canonical encoding of v: object keys sorted
// lexicographically, no insignificant whitespace, UTF-8 throughout.
//
// v is round-tripped through a generic map/slice representation rather than
// encoded directly, so canonicalisation never depends on struct field
// declaration order or on encoding/json's (non-sorted) struct-field
// emission order.
func JSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal input: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical: normalize input: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal normalized input: %w", err)
	}
	return out, nil
}

// MustJSON is JSON for call sites that have already validated v is
// JSON-marshalable (e.g. a literal payload built from this module's own
// types). It panics on error.
func MustJSON(v interface{}) []byte {
	out, err := JSON(v)
	if err != nil {
		panic(err)
	}
	return out
}

// SHA256Hex returns the lowercase hex SHA-256 digest of the canonical
// encoding of v.
func SHA256Hex(v interface{}) (string, error) {
	payload, err := JSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// SHA256HexBytes returns the lowercase hex SHA-256 digest of raw bytes,
// bypassing canonicalisation. Used for hashing document/file contents,
// which are never JSON.
func SHA256HexBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256HexString is a convenience wrapper over SHA256HexBytes for string
// inputs (e.g. a rendered prompt) that are hashed directly, not as JSON.
func SHA256HexString(s string) string {
	return SHA256HexBytes([]byte(s))
}
