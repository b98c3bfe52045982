package trace

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/TritonDataCenter/toshstomp/pkg/types"
)

// Fingerprint accumulates a 128-bit murmur3 hash over the canonical form
// of every parsed record. Two byte-identical traces always hash the same,
// as do a compressed and an uncompressed copy of the same capture. The
// canonical form uses the values as captured, before any clamping.
type Fingerprint struct {
	h murmur3.Hash128
}

// NewFingerprint returns an empty fingerprint.
func NewFingerprint() *Fingerprint {
	return &Fingerprint{h: murmur3.New128()}
}

// Add folds one record into the fingerprint.
func (f *Fingerprint) Add(sched int64, dir types.Direction, blkno, size int64) {
	fmt.Fprintf(f.h, "%d %c %d %d\n", sched, byte(dir), blkno, size)
}

// Sum returns the fingerprint as 32 hex digits.
func (f *Fingerprint) Sum() string {
	h1, h2 := f.h.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2)
}
