package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageBytes caps a profile image at 5 MiB.
	MaxImageBytes = 5 << 20

	defaultPreviewEdge = 256
)

var (
	ErrTooLarge = errors.New("image must be 5 MB or smaller")
	ErrNotImage = errors.New("file is not an image")
)

// Image is the binary held by a form until submit.
type Image struct {
	Name string
	MIME string
	Data []byte
}

func (i Image) Size() int {
	return len(i.Data)
}

// Base64 is the encoding used on the wire.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

type Preview struct {
	DataURL string `json:"dataUrl"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

func (p Preview) Empty() bool {
	return p.DataURL == ""
}

// Pending is the future returned by Capture. Done is closed once the
// preview (or its error) is available.
type Pending struct {
	done    chan struct{}
	preview Preview
	err     error
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the decode finishes.
func (p *Pending) Result() (Preview, error) {
	<-p.done
	return p.preview, p.err
}

// Wait is Result bounded by ctx.
func (p *Pending) Wait(ctx context.Context) (Preview, error) {
	select {
	case <-p.done:
		return p.preview, p.err
	case <-ctx.Done():
		return Preview{}, ctx.Err()
	}
}

type Capturer struct {
	MaxBytes    int
	PreviewEdge int
}

func NewCapturer() *Capturer {
	return &Capturer{MaxBytes: MaxImageBytes, PreviewEdge: defaultPreviewEdge}
}

// Capture accepts a user-selected binary. Oversized input is rejected with
// ErrTooLarge and content that does not sniff as an image with ErrNotImage,
// both before anything is retained. Otherwise the binary is returned
// immediately and the preview is produced on its own goroutine; ctx
// belongs to the owner and cancels delivery when the owner goes away.
func (c *Capturer) Capture(ctx context.Context, name string, data []byte) (Image, *Pending, error) {
	limit := c.MaxBytes
	if limit <= 0 {
		limit = MaxImageBytes
	}
	if len(data) > limit {
		return Image{}, nil, ErrTooLarge
	}
	if len(data) == 0 {
		return Image{}, nil, errors.New("image is empty")
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, nil, ErrNotImage
	}

	held := make([]byte, len(data))
	copy(held, data)
	img := Image{Name: name, MIME: mime, Data: held}

	pending := &Pending{done: make(chan struct{})}
	go func() {
		defer close(pending.done)
		if err := ctx.Err(); err != nil {
			pending.err = err
			return
		}
		preview := c.preview(img)
		if err := ctx.Err(); err != nil {
			pending.err = err
			return
		}
		pending.preview = preview
	}()

	return img, pending, nil
}

func (c *Capturer) preview(img Image) Preview {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		// not something we can rasterise; hand the raw bytes back like a file reader would
		return Preview{DataURL: dataURL(img.MIME, img.Data)}
	}

	edge := c.PreviewEdge
	if edge <= 0 {
		edge = defaultPreviewEdge
	}
	bounds := src.Bounds()
	w, h := fit(bounds.Dx(), bounds.Dy(), edge)
	if w <= 0 || h <= 0 {
		return Preview{DataURL: dataURL(img.MIME, img.Data)}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return Preview{DataURL: dataURL(img.MIME, img.Data)}
	}
	return Preview{DataURL: dataURL("image/png", out.Bytes()), Width: w, Height: h}
}

// fit scales w x h down so neither side exceeds edge, keeping the aspect ratio.
func fit(w, h, edge int) (int, int) {
	if w <= edge && h <= edge {
		return w, h
	}
	if w >= h {
		return edge, max(h*edge/w, 1)
	}
	return max(w*edge/h, 1), edge
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
