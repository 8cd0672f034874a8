package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
)

func newTestServer(t *testing.T, live bool, opts ...Option) (*element.Element, *httptest.Server) {
	t.Helper()

	cfg := element.DefaultConfig()
	cfg.Width, cfg.Height = 8, 4
	cfg.IsLive = live
	e, err := element.New(cfg, render.NewSVGRenderer(0),
		element.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	ts := httptest.NewServer(NewServer(e, opts...).Handler())
	t.Cleanup(ts.Close)
	return e, ts
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestSubmitQueuesDocument(t *testing.T) {
	e, ts := newTestServer(t, false)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/svg?pts=42", "<svg/>")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 42, body["pts"])
	assert.EqualValues(t, 1, body["queue_depth"])

	geo := e.Geometry()
	res, err := e.Fill(element.FrameBuffer{Data: make([]byte, geo.FrameSize())})
	require.NoError(t, err)
	assert.Equal(t, element.StatusOK, res.Status)
	assert.EqualValues(t, 42, res.PTS)
}

func TestSubmitDefaultsPTSToServerClock(t *testing.T) {
	_, ts := newTestServer(t, true)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/svg", "<svg/>")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, body, "pts")
}

func TestSubmitRejections(t *testing.T) {
	_, ts := newTestServer(t, true, WithMaxBodyBytes(16))

	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"empty body", "/v1/svg", "", http.StatusBadRequest},
		{"bad pts", "/v1/svg?pts=-3", "<svg/>", http.StatusBadRequest},
		{"too large", "/v1/svg", strings.Repeat("x", 64), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+tt.url, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.EqualValues(t, tt.status, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestEndOfStreamAndFlush(t *testing.T) {
	e, ts := newTestServer(t, true)

	resp, _ := do(t, http.MethodPost, ts.URL+"/v1/eos", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, e.Stats().EndOfStreamPending)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/flush?active=true", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["flushing"])
	assert.True(t, e.Stats().Flushing)

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/flush?active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	do(t, http.MethodPost, ts.URL+"/v1/flush?active=false", "")
	assert.False(t, e.Stats().Flushing)
}

func TestSeekClearsState(t *testing.T) {
	e, ts := newTestServer(t, false)
	e.Submit("<svg/>", 1)
	e.Submit("<svg/>", 2)
	e.RequestEndOfStream()

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/seek", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["handled"])

	st := e.Stats()
	assert.Zero(t, st.QueueDepth)
	assert.False(t, st.EndOfStreamPending)
	assert.False(t, st.Flushing)

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/seek?flush=nope", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLiveToggle(t *testing.T) {
	e, ts := newTestServer(t, true)

	resp, body := do(t, http.MethodPut, ts.URL+"/v1/live?enabled=false", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["live"])
	assert.False(t, e.IsLive())

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/live?enabled=true", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStats(t *testing.T) {
	e, ts := newTestServer(t, false)
	e.Submit("<svg/>", 1)

	resp, body := do(t, http.MethodGet, ts.URL+"/v1/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["submitted"])
	assert.EqualValues(t, 1, body["queue_depth"])
	assert.EqualValues(t, 8, body["width"])
	assert.EqualValues(t, 4, body["height"])
	assert.EqualValues(t, 32, body["min_stride"])
	assert.Equal(t, false, body["live"])
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewPromObserver(reg)
	require.NoError(t, err)
	obs.Submitted(0)

	_, ts := newTestServer(t, true, WithGatherer(reg))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(raw))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	raw, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "svgoverlay_documents_submitted_total")
}

func TestServerClockAdvances(t *testing.T) {
	now := time.Unix(100, 0)
	e, err := element.New(element.Config{Width: 8, Height: 4}, render.NewSVGRenderer(0))
	require.NoError(t, err)

	s := NewServer(e)
	s.now = func() time.Time { return now }
	s.start = now
	now = now.Add(250 * time.Millisecond)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/svg", strings.NewReader("<svg/>")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var out submitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, uint64(250*time.Millisecond), out.PTS)
}
