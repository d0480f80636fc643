// Package registry holds the allow-list of identities permitted to append
// alert records. Mutation is gated to a single owner identity fixed at
// construction; ownership does not by itself grant append rights.
package registry

import (
	"context"
	"errors"
)

// ErrNotOwner is returned when a non-owner identity attempts to mutate
// the registry.
var ErrNotOwner = errors.New("registry: caller is not the owner")

// Registry is the authoritative reporter allow-list.
type Registry interface {
	// IsAuthorized reports whether identity may append to the ledger.
	IsAuthorized(ctx context.Context, identity string) (bool, error)
	// AddReporter admits identity. Only the owner may call it; adding an
	// existing member is a no-op success.
	AddReporter(ctx context.Context, identity, requestedBy string) error
	// RemoveReporter revokes identity. Only the owner may call it;
	// removing a non-member is a no-op success.
	RemoveReporter(ctx context.Context, identity, requestedBy string) error
	// Owner returns the fixed administrative identity.
	Owner() string
}
