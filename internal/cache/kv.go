package cache

import "errors"

// ErrNotFound is returned by KV.Get for a missing key.
var ErrNotFound = errors.New("cache: key not found")

// KV is the raw byte store behind Store.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}
