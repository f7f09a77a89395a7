// Package hasher fingerprints uploaded screenshots two ways: a sha256 over
// the raw bytes for byte-identical re-uploads, and a 64-bit average-intensity
// perceptual hash for re-uploads that were resized, re-compressed, or lightly
// edited. Both are deterministic, so recomputing under at-least-once job
// execution is safe.
package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/disintegration/imaging"
)

const phashGrid = 8

// SHA256Hex returns the exact-content digest of data as lowercase hex.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PerceptualHash computes the 64-bit average hash of an encoded image:
// downsample to an 8x8 grid, grayscale, threshold each cell against the mean
// intensity, bits packed row-major with the top-left cell as the MSB.
// The result is a fixed-width 16-char hex string.
func PerceptualHash(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return PerceptualHashImage(img), nil
}

// PerceptualHashImage hashes an already-decoded image.
func PerceptualHashImage(img image.Image) string {
	small := imaging.Grayscale(imaging.Resize(img, phashGrid, phashGrid, imaging.Lanczos))

	var levels [phashGrid * phashGrid]uint32
	var total uint64
	for y := 0; y < phashGrid; y++ {
		for x := 0; x < phashGrid; x++ {
			// Grayscale output has equal channels; red carries the intensity.
			r, _, _, _ := small.At(x, y).RGBA()
			levels[y*phashGrid+x] = r
			total += uint64(r)
		}
	}
	mean := uint32(total / uint64(len(levels)))

	var hash uint64
	for i, v := range levels {
		if v >= mean {
			hash |= 1 << (63 - i)
		}
	}
	return fmt.Sprintf("%016x", hash)
}

// HammingDistance counts differing bits between two 64-bit hex digests.
func HammingDistance(a, b string) (int, error) {
	pa, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse digest %q: %w", a, err)
	}
	pb, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse digest %q: %w", b, err)
	}
	return bits.OnesCount64(pa ^ pb), nil
}
