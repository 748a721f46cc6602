package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a short random hex id, optionally prefixed ("v-3f9a...").
func NewID(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	if prefix == "" {
		return hex.EncodeToString(b)
	}
	return prefix + "-" + hex.EncodeToString(b)
}
