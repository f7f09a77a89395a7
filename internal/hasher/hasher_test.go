package hasher

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func splitImage(w, h int, top, bottom color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := top
		if y >= h/2 {
			c = bottom
		}
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPerceptualHashDeterministic(t *testing.T) {
	data := encodePNG(t, splitImage(64, 64, color.White, color.Black))

	h1, err := PerceptualHash(data)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := PerceptualHash(data)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("same bytes produced different hashes: %s vs %s", h1, h2)
	}
	if len(h1) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%s)", len(h1), h1)
	}
}

func TestPerceptualHashSurvivesResize(t *testing.T) {
	// The same scene at two resolutions should land within a handful of bits.
	big := encodePNG(t, splitImage(128, 128, color.White, color.Black))
	small := encodePNG(t, splitImage(32, 32, color.White, color.Black))

	h1, err := PerceptualHash(big)
	if err != nil {
		t.Fatalf("hash big: %v", err)
	}
	h2, err := PerceptualHash(small)
	if err != nil {
		t.Fatalf("hash small: %v", err)
	}
	d, err := HammingDistance(h1, h2)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d > 5 {
		t.Fatalf("resized copy too far: distance %d", d)
	}
}

func TestPerceptualHashDistinguishesScenes(t *testing.T) {
	a := encodePNG(t, splitImage(64, 64, color.White, color.Black))
	b := encodePNG(t, splitImage(64, 64, color.Black, color.White))

	h1, _ := PerceptualHash(a)
	h2, _ := PerceptualHash(b)
	d, err := HammingDistance(h1, h2)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d <= 5 {
		t.Fatalf("inverted scene unexpectedly close: distance %d", d)
	}
}

func TestHammingDistanceSymmetric(t *testing.T) {
	a := "ffffffff00000000"
	b := "ffffffff0000000f"

	ab, err := HammingDistance(a, b)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	ba, err := HammingDistance(b, a)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if ab != ba {
		t.Fatalf("distance not symmetric: %d vs %d", ab, ba)
	}
	if ab != 4 {
		t.Fatalf("expected distance 4, got %d", ab)
	}

	if d, _ := HammingDistance(a, a); d != 0 {
		t.Fatalf("distance(a,a) = %d, want 0", d)
	}
}

func TestHammingDistanceRejectsGarbage(t *testing.T) {
	if _, err := HammingDistance("not-hex", "ffffffff00000000"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSHA256Hex(t *testing.T) {
	got := SHA256Hex([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("sha256 mismatch: %s", got)
	}
}
