// Package blob stores auxiliary media (pal thumbnails) on the local
// filesystem. Each blob is exclusively owned by the pal that references it.
package blob

import "context"

// Store is the blob capability consumed by the store facade.
type Store interface {
	// Store downloads remoteURL and keeps it locally under the owner's id,
	// returning a local reference usable as Pal.ThumbnailRef.
	Store(ctx context.Context, ownerID, remoteURL string) (string, error)

	// Delete removes a previously stored blob. Deleting a missing ref is
	// not an error.
	Delete(localRef string) error

	// Exists reports whether the local reference still resolves to a file.
	Exists(localRef string) bool
}
