package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PerceptualHashAlgo names the scheme implemented by PerceptualHash. It is
// stored next to every hash; hashes with different names are never
// comparable.
const PerceptualHashAlgo = "stride-v1"

const perceptualSamples = 64

// ContentHash is the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PerceptualHash samples 64 bytes at a fixed stride, sets a bit for every
// sample above the sample mean and packs the bits into 16 hex characters.
//
// It works on the encoded bytes, not on pixels: identical files always
// match, but it says nothing reliable about visual similarity. It is a
// placeholder until a DCT-based hash replaces it under a new algorithm name.
func PerceptualHash(data []byte) string {
	stride := len(data) / perceptualSamples
	if stride < 1 {
		stride = 1
	}
	samples := make([]int, 0, perceptualSamples)
	for i := 0; i < perceptualSamples && i*stride < len(data); i++ {
		samples = append(samples, int(data[i*stride]))
	}
	if len(samples) == 0 {
		return fmt.Sprintf("%016x", uint64(0))
	}

	sum := 0
	for _, s := range samples {
		sum += s
	}
	mean := float64(sum) / float64(len(samples))

	var bits uint64
	for i, s := range samples {
		if float64(s) > mean {
			bits |= 1 << (63 - uint(i))
		}
	}
	return fmt.Sprintf("%016x", bits)
}
