// Package svgoverlay implements a live video source that turns a stream of SVG
// documents into transparent ARGB32 overlay frames.
//
// # Philosophy
//
// "The newest caption wins." A live overlay that lags behind the scene is
// worse than one that skips a stale document. In live mode the source keeps
// at most one pending document and renders it on demand; in backlog mode
// every document is rendered in submission order.
//
// # Design Principles
//
//  1. Non-blocking Submit: producers never wait on the renderer
//  2. Blocking Fill: the consumer waits on a sync.Cond until an item,
//     end-of-stream or a flush applies
//  3. Flush is a veto: while flushing, no frame is delivered and nothing is
//     consumed
//  4. Content errors are not stream errors: a malformed document yields a
//     fully transparent frame
//  5. Caller-owned memory: Fill renders into the buffer it is given
//
// # Architecture
//
//	producer ──Submit──▶ Queue + FlowController ──Take──▶ Fill ──▶ Renderer
//	(captions, files,          (sync.Cond)              (consumer)   (oksvg)
//	 HTTP, msgpack)
//
// Adapters in internal/ drive the same Source from different edges:
// internal/gstsrc pushes frames into a GStreamer appsrc, internal/feed reads
// msgpack frames and watched files, internal/control exposes an HTTP API.
//
// # Basic Usage
//
//	src, err := svgoverlay.New(svgoverlay.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = src.Start()
//	defer src.Stop()
//
//	go func() {
//	    src.Submit(`<svg viewBox="0 0 480 640">...</svg>`, uint64(time.Second))
//	    src.RequestEndOfStream()
//	}()
//
//	geo := src.Geometry()
//	buf := make([]byte, geo.FrameSize())
//	for {
//	    res, err := src.Fill(svgoverlay.FrameBuffer{Data: buf})
//	    if err != nil || res.Status == svgoverlay.StatusEOS {
//	        break
//	    }
//	    push(buf, res.PTS)
//	}
//
// # Pixel Format
//
// Frames are premultiplied-alpha ARGB32 in native little-endian order, which
// is BGRA in memory. Rows are at least StrideForWidth(width) bytes apart;
// buffers may use a wider stride.
//
// # Thread Safety
//
// Submit, RequestEndOfStream, SetFlushing, Reset and HandleSeek may be called
// from any goroutine. Fill must be called from a single consumer goroutine.
package svgoverlay
