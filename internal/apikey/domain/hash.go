package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const secretPrefix = "ak"

// GenerateSecret produces a new raw API key, its display prefix and the
// hash that gets persisted. The raw key leaves the process exactly once.
func GenerateSecret() (raw, prefix, hash string, err error) {
	buf := make([]byte, 24)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}
	raw = secretPrefix + "_" + hex.EncodeToString(buf)
	prefix = raw[:11]
	return raw, prefix, HashSecret(raw), nil
}

// HashSecret hashes a raw API key with the same strategy used at creation.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
