// Package storage persists the serialized token set between runs of the host
// application. Implementations store opaque strings under a key and never
// inspect them.
package storage

import "context"

// Storage is a key/value store for session state.
type Storage interface {
	// Get returns the stored value and whether one exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
