package sketch

import (
	"encoding/binary"

	"github.com/minio/highwayhash"
)

// keyedHashKey is a fixed 32-byte key used to decorrelate the reference and
// contamination sketches from the case/control sketches built with
// farm+seahash. Two sketches built with independent hash families are
// unlikely to share false positives at the same k-mer, which is what lets
// the Filter stage (spec.md §4.D) treat a reference-sketch hit as reliable
// evidence that a "novel" k-mer is, in fact, not novel.
var keyedHashKey = [32]byte{
	'd', 'e', 'n', 'o', 'v', 'a', 'r', '-', 'r', 'e', 'f', '-', 's', 'k', 'e', 't',
	'c', 'h', '-', 'k', 'e', 'y', '-', 'v', '1', 0, 0, 0, 0, 0, 0, 0,
}

// NewKeyed builds a Sketch that hashes with a HighwayHash keyed on
// keyedHashKey instead of the farm/seahash pair used by New. Intended for
// the reference-genome mask sketch and the optional contamination sketch
// consumed by the Filter stage (spec.md §4.D), where collision-independence
// from the case/control sketches matters more than raw speed.
func NewKeyed(opts Opts) *Sketch {
	s := New(opts)
	s.keyed = true
	return s
}

func highwayHashPair(data []byte) (h1, h2 uint64) {
	h1 = highwayhash.Sum64(data, keyedHashKey[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], h1)
	h2 = highwayhash.Sum64(buf[:], keyedHashKey[:])
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}
