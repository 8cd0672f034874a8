package gstsrc

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
)

// peerSizeRanges asks the element linked after appsrc which frame sizes it
// accepts. Unknown or unconstrained sizes come back as open ranges.
func peerSizeRanges(appsrc *app.Source) (element.SizeRange, element.SizeRange) {
	pad := appsrc.GetStaticPad("src")
	if pad == nil {
		return element.SizeRange{}, element.SizeRange{}
	}
	caps := pad.PeerQueryCaps(nil)
	if caps == nil {
		return element.SizeRange{}, element.SizeRange{}
	}
	s := caps.String()
	return parseSizeRange(s, "width"), parseSizeRange(s, "height")
}

// applyGeometry sets the fixated caps and the queue bound on appsrc.
func applyGeometry(appsrc *app.Source, width, height int, maxBytes uint64) {
	appsrc.SetCaps(gst.NewCapsFromString(BuildCaps(width, height)))
	if maxBytes > 0 {
		appsrc.SetMaxBytes(maxBytes)
	}
}

// parseSizeRange reads an int field from the first raw video structure of a
// caps string. Fixed values give a one-value range, [ lo, hi ] ranges are
// kept; lists, ANY and missing fields are open.
func parseSizeRange(caps, field string) element.SizeRange {
	fixed := regexp.MustCompile(`\b` + field + `=(?:\(int\))?(\d+)`)
	ranged := regexp.MustCompile(`\b` + field + `=(?:\(int\))?\[\s*(\d+)\s*,\s*(\d+)\s*\]`)

	for _, structure := range strings.Split(caps, ";") {
		if !strings.HasPrefix(strings.TrimSpace(structure), "video/x-raw") {
			continue
		}
		if m := ranged.FindStringSubmatch(structure); m != nil {
			return element.SizeRange{Min: atoi(m[1]), Max: atoi(m[2])}
		}
		if m := fixed.FindStringSubmatch(structure); m != nil {
			return element.Fixed(atoi(m[1]))
		}
		return element.SizeRange{}
	}
	return element.SizeRange{}
}

// atoi parses a caps integer, saturating values beyond int range to 0 (open).
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
