// Package contentstore persists metadata documents and rendered artifacts in
// content-addressed storage. Identical bytes always resolve to the same address.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Store is the content-addressed persistence boundary.
type Store interface {
	// Put stores data and returns its content address.
	Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error)
	// Get returns the bytes stored under address or sentinel.ErrNotFound.
	Get(ctx context.Context, address string) ([]byte, error)
	// URL returns a retrievable location for address.
	URL(address string) string
}

// Digest is the hex SHA-256 address used by stores that derive addresses locally.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Served resolves URLs through this service's /content route instead of the
// backend's own scheme.
type Served struct {
	Store
	BaseURL string
}

func (s Served) URL(address string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/content/" + address
}
