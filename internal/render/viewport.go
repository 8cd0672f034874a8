package render

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/rasterx"
)

// rootAttrs holds the outer <svg> attributes oksvg does not apply when a
// viewBox is present.
type rootAttrs struct {
	width, height string
	aspect        string
}

// readRootAttrs returns the attributes of the first element of the document.
// A document without a start element yields empty attributes.
func readRootAttrs(r io.Reader) (rootAttrs, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return rootAttrs{}, nil
		}
		if err != nil {
			return rootAttrs{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var a rootAttrs
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				a.width = attr.Value
			case "height":
				a.height = attr.Value
			case "preserveAspectRatio":
				a.aspect = attr.Value
			}
		}
		return a, nil
	}
}

// parseLength converts an SVG length to pixels at 96 dpi. Percentages are
// relative to ref. ok is false for empty, unknown or non-positive values.
func parseLength(s string, ref float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	scale := 1.0
	for _, u := range []struct {
		suffix string
		px     float64
	}{
		{"px", 1}, {"pt", 96.0 / 72}, {"pc", 16}, {"in", 96},
		{"cm", 96 / 2.54}, {"mm", 96 / 25.4}, {"%", ref / 100},
	} {
		if strings.HasSuffix(s, u.suffix) {
			s, scale = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.px
			break
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v * scale, true
}

// aspectRatio is a parsed preserveAspectRatio value.
type aspectRatio struct {
	none   bool
	alignX float64 // 0 min, 0.5 mid, 1 max
	alignY float64
	slice  bool
}

func parseAspectRatio(s string) aspectRatio {
	ar := aspectRatio{alignX: 0.5, alignY: 0.5}
	fields := strings.Fields(s)
	if len(fields) > 0 && fields[0] == "defer" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return ar
	}

	align := fields[0]
	if align == "none" {
		ar.none = true
	} else if len(align) == 8 {
		if x, ok := alignFactor(align[1:4]); ok {
			if y, ok := alignFactor(align[5:8]); ok {
				ar.alignX, ar.alignY = x, y
			}
		}
	}
	if len(fields) > 1 && fields[1] == "slice" {
		ar.slice = true
	}
	return ar
}

func alignFactor(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "min":
		return 0, true
	case "mid":
		return 0.5, true
	case "max":
		return 1, true
	}
	return 0, false
}

// viewportTransform maps the viewBox (vx, vy, vw, vh) onto a viewport of
// w x h pixels at the origin.
func viewportTransform(vx, vy, vw, vh, w, h float64, ar aspectRatio) rasterx.Matrix2D {
	sx, sy := w/vw, h/vh
	tx, ty := 0.0, 0.0
	if !ar.none {
		s := math.Min(sx, sy)
		if ar.slice {
			s = math.Max(sx, sy)
		}
		sx, sy = s, s
		tx = (w - vw*s) * ar.alignX
		ty = (h - vh*s) * ar.alignY
	}
	return rasterx.Identity.Translate(tx, ty).Scale(sx, sy).Translate(-vx, -vy)
}

// intrinsicSize resolves the document viewport in pixels. Missing dimensions
// come from the viewBox aspect ratio, then the viewBox size, then the frame.
func intrinsicSize(a rootAttrs, vw, vh float64, frameW, frameH int) (float64, float64) {
	w, wok := parseLength(a.width, float64(frameW))
	h, hok := parseLength(a.height, float64(frameH))
	hasViewBox := vw > 0 && vh > 0

	switch {
	case wok && hok:
	case wok && hasViewBox:
		h = w * vh / vw
	case hok && hasViewBox:
		w = h * vw / vh
	case hasViewBox && !wok && !hok:
		w, h = vw, vh
	default:
		if !wok {
			w = float64(frameW)
		}
		if !hok {
			h = float64(frameH)
		}
	}
	return w, h
}
