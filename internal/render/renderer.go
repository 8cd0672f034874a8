// Package render rasterizes SVG markup into caller-owned ARGB32 frame memory.
//
// Frames are premultiplied alpha, BGRA byte order (the little-endian layout
// of ARGB32), rows StrideForWidth(width) bytes apart or wider.
package render

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

var (
	// ErrContent indicates markup that could not be parsed or drawn.
	ErrContent = errors.New("render: invalid content")

	// ErrResource indicates the renderer refused the document because it would
	// exceed its resource limits.
	ErrResource = errors.New("render: resource limit exceeded")

	// ErrDestination indicates a destination smaller than stride × height or a
	// stride narrower than the pixel rows.
	ErrDestination = errors.New("render: destination too small")
)

// ErrorKind classifies a RenderError.
type ErrorKind int

const (
	// KindParse is a markup syntax or structure failure.
	KindParse ErrorKind = iota
	// KindResource is a resource limit refusal.
	KindResource
)

// String returns the log label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// RenderError is returned by Render for content failures.
//
// errors.Is(err, ErrContent) holds for every RenderError; resource refusals
// additionally match ErrResource.
type RenderError struct {
	Kind ErrorKind
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %s error: %v", e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Is makes every RenderError match ErrContent, and resource errors ErrResource.
func (e *RenderError) Is(target error) bool {
	switch target {
	case ErrContent:
		return true
	case ErrResource:
		return e.Kind == KindResource
	}
	return false
}

// Renderer maps markup plus target geometry to pixels in dst.
//
// Implementations hold no state shared between calls and must not retain dst.
// dst is expected to be zeroed by the caller.
type Renderer interface {
	Render(content string, dst []byte, width, height, stride int) error
}

// SVGRenderer renders SVG documents with oksvg + rasterx.
//
// The document is drawn at its intrinsic size, anchored at the frame origin.
// The viewBox is fitted into the root width x height per preserveAspectRatio
// (default xMidYMid meet). A missing width or height follows the viewBox
// aspect ratio; with neither, the viewBox size is used, and without a viewBox
// the frame size.
type SVGRenderer struct {
	// MaxContentBytes rejects larger documents with ErrResource (0 = unlimited).
	MaxContentBytes int

	// MaxPaths rejects documents with more drawable paths (0 = unlimited).
	MaxPaths int
}

// NewSVGRenderer returns a renderer with the given content size limit.
func NewSVGRenderer(maxContentBytes int) *SVGRenderer {
	return &SVGRenderer{MaxContentBytes: maxContentBytes}
}

// Render implements Renderer.
func (r *SVGRenderer) Render(content string, dst []byte, width, height, stride int) (err error) {
	if width <= 0 || height <= 0 || stride < width*BytesPerPixel {
		return fmt.Errorf("%w: %dx%d stride %d", ErrDestination, width, height, stride)
	}
	if len(dst) < stride*height {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrDestination, len(dst), stride*height)
	}
	if r.MaxContentBytes > 0 && len(content) > r.MaxContentBytes {
		return &RenderError{
			Kind: KindResource,
			Err:  fmt.Errorf("document is %d bytes, limit %d", len(content), r.MaxContentBytes),
		}
	}

	// oksvg and rasterx panic on some degenerate geometry.
	defer func() {
		if p := recover(); p != nil {
			err = &RenderError{Kind: KindParse, Err: fmt.Errorf("rasterizer panic: %v", p)}
		}
	}()

	icon, err := oksvg.ReadIconStream(strings.NewReader(content), oksvg.IgnoreErrorMode)
	if err != nil {
		return &RenderError{Kind: KindParse, Err: err}
	}
	if r.MaxPaths > 0 && len(icon.SVGPaths) > r.MaxPaths {
		return &RenderError{
			Kind: KindResource,
			Err:  fmt.Errorf("document has %d paths, limit %d", len(icon.SVGPaths), r.MaxPaths),
		}
	}

	root, err := readRootAttrs(strings.NewReader(content))
	if err != nil {
		return &RenderError{Kind: KindParse, Err: err}
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	w, h := intrinsicSize(root, vw, vh, width, height)
	if vw <= 0 || vh <= 0 {
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		vw, vh = w, h
	}
	icon.Transform = viewportTransform(icon.ViewBox.X, icon.ViewBox.Y, vw, vh, w, h,
		parseAspectRatio(root.aspect))

	img := &image.RGBA{
		Pix:    dst[:stride*height],
		Stride: stride,
		Rect:   image.Rect(0, 0, width, height),
	}
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)

	swapRedBlue(dst, width, height, stride)
	return nil
}

// swapRedBlue converts premultiplied RGBA rows to BGRA in place.
func swapRedBlue(pix []byte, width, height, stride int) {
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*BytesPerPixel]
		for i := 0; i < len(row); i += BytesPerPixel {
			row[i], row[i+2] = row[i+2], row[i]
		}
	}
}

// ToRGBA copies a BGRA frame into a new premultiplied RGBA image.
func ToRGBA(pix []byte, width, height, stride int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		copy(img.Pix[y*img.Stride:(y+1)*img.Stride], pix[y*stride:y*stride+width*BytesPerPixel])
	}
	swapRedBlue(img.Pix, width, height, img.Stride)
	return img
}
