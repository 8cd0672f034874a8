package render

import (
	"fmt"
	"math"
)

const (
	// BytesPerPixel for premultiplied ARGB32 (BGRA byte order in memory).
	BytesPerPixel = 4

	// StrideAlignment is the row alignment of the ARGB32 format.
	StrideAlignment = 4

	// PixelFormat is the raw video format name of the produced frames.
	PixelFormat = "BGRA"
)

// StrideForWidth returns the minimum row stride in bytes for an ARGB32 image of
// the given width: width × 4, rounded up to StrideAlignment.
//
// Returns an error for non-positive widths or widths whose stride would not
// fit in an int32.
func StrideForWidth(width int) (int, error) {
	if width <= 0 {
		return 0, fmt.Errorf("render: invalid width %d", width)
	}
	if width > (math.MaxInt32-(StrideAlignment-1))/BytesPerPixel {
		return 0, fmt.Errorf("render: width %d overflows stride", width)
	}

	stride := width * BytesPerPixel
	stride = (stride + StrideAlignment - 1) &^ (StrideAlignment - 1)
	return stride, nil
}
