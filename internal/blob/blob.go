package blob

import (
	"context"
)

// Store is the opaque content-addressed blob service document bodies live
// in. Keys are namespaced by owner id so the store stays walkable per tenant
// even without marker enforcement.
type Store interface {
	// Put writes the blob and returns its locator.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Remove deletes the given locators. Removing an absent locator is not
	// an error.
	Remove(ctx context.Context, locators ...string) error
}
