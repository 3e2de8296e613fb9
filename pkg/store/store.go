// Package store keeps the committed dataset snapshots of every session
// behind opaque handles. Each handle holds exactly one version: a commit
// replaces whatever the handle held before.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Handle identifies a stored dataset. Handles are opaque to callers.
type Handle string

// NewHandle allocates a fresh handle.
func NewHandle() Handle { return Handle(uuid.NewString()) }

// Store holds dataset snapshots. Implementations are safe for concurrent
// use; ordering between commits to the same handle is the caller's concern.
type Store interface {
	// Create stores ds under a new handle.
	Create(ctx context.Context, ds *dataset.Dataset) (Handle, error)
	// Commit replaces the dataset held by h.
	Commit(ctx context.Context, h Handle, ds *dataset.Dataset) error
	// Current returns the dataset held by h.
	Current(ctx context.Context, h Handle) (*dataset.Dataset, error)
	// Touch marks handles as in use so backends with expiry keep them.
	// Unknown handles are ignored.
	Touch(ctx context.Context, handles ...Handle) error
	// Delete forgets h. Deleting an unknown handle is not an error.
	Delete(ctx context.Context, h Handle) error
	// Close releases backend resources.
	Close() error
}

func notFound(h Handle) error {
	return errors.Newf(errors.ErrorTypeNotFound, "dataset %s not found", h).WithDetail("handle", string(h))
}
