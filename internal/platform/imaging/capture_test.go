package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestCaptureRejectsOversizedImage(t *testing.T) {
	c := NewCapturer()
	data := make([]byte, 6<<20)

	_, pending, err := c.Capture(context.Background(), "big.jpg", data)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if pending != nil {
		t.Fatal("expected no pending preview for rejected image")
	}
}

func TestCaptureAcceptsExactlyFiveMiB(t *testing.T) {
	c := NewCapturer()
	data := make([]byte, MaxImageBytes)
	copy(data, encodePNG(t, 4, 4))

	img, pending, err := c.Capture(context.Background(), "edge.png", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Size() != MaxImageBytes {
		t.Fatalf("unexpected size %d", img.Size())
	}
	if _, err := pending.Result(); err != nil {
		t.Fatalf("preview failed: %v", err)
	}
}

func TestCaptureRejectsNonImage(t *testing.T) {
	c := NewCapturer()
	for name, data := range map[string][]byte{
		"note.txt":  bytes.Repeat([]byte("a"), 1024),
		"page.html": []byte("<html><script>alert(1)</script></html>"),
	} {
		_, pending, err := c.Capture(context.Background(), name, data)
		if !errors.Is(err, ErrNotImage) {
			t.Fatalf("%s: expected ErrNotImage, got %v", name, err)
		}
		if pending != nil {
			t.Fatalf("%s: expected no pending preview", name)
		}
	}
}

func TestCaptureUndecodableImageKeepsRawPreview(t *testing.T) {
	c := NewCapturer()
	// BMP sniffs as an image but has no registered decoder
	data := append([]byte("BM"), bytes.Repeat([]byte("a"), 1022)...)

	img, pending, err := c.Capture(context.Background(), "scan.bmp", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Size() != 1024 {
		t.Fatalf("expected 1024 bytes held, got %d", img.Size())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	preview, err := pending.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !strings.HasPrefix(preview.DataURL, "data:image/bmp;base64,") {
		t.Fatalf("unexpected data url prefix: %.40s", preview.DataURL)
	}
}

func TestCaptureScalesLargeImage(t *testing.T) {
	c := NewCapturer()
	data := encodePNG(t, 600, 300)

	img, pending, err := c.Capture(context.Background(), "site.png", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.MIME != "image/png" {
		t.Fatalf("expected image/png, got %s", img.MIME)
	}
	preview, err := pending.Result()
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Width != 256 || preview.Height != 128 {
		t.Fatalf("expected 256x128 preview, got %dx%d", preview.Width, preview.Height)
	}
	if !strings.HasPrefix(preview.DataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix: %.40s", preview.DataURL)
	}
}

func TestCaptureCanceledOwnerGetsNoPreview(t *testing.T) {
	c := NewCapturer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, pending, err := c.Capture(ctx, "x.png", encodePNG(t, 4, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pending.Result(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCaptureCopiesInput(t *testing.T) {
	c := NewCapturer()
	data := encodePNG(t, 2, 2)
	img, pending, err := c.Capture(context.Background(), "x", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data[0] = 'j'
	if img.Data[0] != 0x89 {
		t.Fatal("held image must not alias caller buffer")
	}
	_, _ = pending.Result()
}

func TestFit(t *testing.T) {
	cases := []struct {
		w, h, edge, wantW, wantH int
	}{
		{100, 50, 256, 100, 50},
		{512, 512, 256, 256, 256},
		{300, 900, 256, 85, 256},
		{2000, 1, 256, 256, 1},
	}
	for _, tc := range cases {
		w, h := fit(tc.w, tc.h, tc.edge)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("fit(%d,%d,%d)=%dx%d want %dx%d", tc.w, tc.h, tc.edge, w, h, tc.wantW, tc.wantH)
		}
	}
}
