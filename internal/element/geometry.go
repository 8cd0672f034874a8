package element

import (
	"fmt"
	"math"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
)

// ConfigureGeometry records the negotiated frame size and returns the minimum
// row stride. Replaces any previous geometry.
func (e *Element) ConfigureGeometry(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}

	stride, err := render.StrideForWidth(width)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if height > math.MaxInt32/stride {
		return 0, fmt.Errorf("%w: frame %dx%d too large", ErrInvalidGeometry, width, height)
	}

	g := Geometry{Width: width, Height: height, MinStride: stride}

	e.geoMu.Lock()
	e.geometry = g
	e.geoMu.Unlock()

	e.logger.Info("geometry configured",
		"width", width,
		"height", height,
		"min_stride", stride,
		"format", render.PixelFormat,
	)

	return stride, nil
}

// Geometry returns the current negotiated geometry.
func (e *Element) Geometry() Geometry {
	e.geoMu.RLock()
	defer e.geoMu.RUnlock()
	return e.geometry
}

// NegotiateGeometry fixes a size from downstream constraints: each dimension
// is the value in range nearest the default. Unconstrained ranges keep the
// default. The result is not applied; call ConfigureGeometry with it.
func (e *Element) NegotiateGeometry(width, height SizeRange) (int, int) {
	return nearest(e.cfg.Width, width), nearest(e.cfg.Height, height)
}

func nearest(def int, r SizeRange) int {
	lo, hi := r.Min, r.Max
	if lo <= 0 {
		lo = 1
	}
	if hi <= 0 {
		hi = math.MaxInt32
	}
	if hi < lo {
		return lo
	}
	return min(max(def, lo), hi)
}
