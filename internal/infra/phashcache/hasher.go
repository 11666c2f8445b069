package phashcache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"

	"github.com/gamesight/visualqa/internal/domain/phash"
)

// DifferenceHasher computes a 64-bit difference hash over the decoded
// image, so recompressed or near-identical frames land on the same or a
// nearby fingerprint.
type DifferenceHasher struct{}

func NewDifferenceHasher() *DifferenceHasher { return &DifferenceHasher{} }

func (DifferenceHasher) Hash(screenshot []byte) (phash.Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return 0, fmt.Errorf("decode screenshot: %w", err)
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, fmt.Errorf("difference hash: %w", err)
	}
	return phash.Fingerprint(h.GetHash()), nil
}
