package phash

import "context"

// Hasher computes a fingerprint from raw screenshot bytes.
type Hasher interface {
	Hash(screenshot []byte) (Fingerprint, error)
}

// Repository persists cache entries so the index survives restarts.
// All writes are best effort from the cache's point of view.
type Repository interface {
	Upsert(ctx context.Context, e *Entry) error
	Touch(ctx context.Context, fp Fingerprint, e *Entry) error
	Delete(ctx context.Context, fp Fingerprint) error
	LoadAll(ctx context.Context) ([]*Entry, error)
}
