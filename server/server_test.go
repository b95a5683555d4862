package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/inference"
	"github.com/nvr-ai/go-waste/ledger"
	"github.com/nvr-ai/go-waste/profiler"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func newTestServer(t *testing.T, cands ...detection.Candidate) (*Server, *ledger.Ledger) {
	t.Helper()
	return newHistoryServer(t, nil, cands...)
}

func newHistoryServer(t *testing.T, hist *history.Store, cands ...detection.Candidate) (*Server, *ledger.Ledger) {
	t.Helper()
	return newDetectorServer(t, hist, inference.InferencerFunc(func(context.Context, *images.Image) ([]detection.Candidate, error) {
		return cands, nil
	}))
}

func newDetectorServer(t *testing.T, hist *history.Store, detector inference.Inferencer) (*Server, *ledger.Ledger) {
	t.Helper()
	tax := waste.Default()
	reg := inference.NewRegistry()
	reg.Register("detector", detector)
	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
	engine, err := classifier.New(classifier.Options{
		Config:   classifier.DefaultConfig(),
		Taxonomy: tax,
		Models:   reg,
		Profiler: prof,
	})
	require.NoError(t, err)

	l := ledger.New(tax)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Options{
		CORSOrigins:    []string{"http://localhost:3000"},
		MaxUploadBytes: 1 << 20,
		Models:         []string{"detector"},
		History:        hist,
	}, engine, l, prof, logger)
	return s, l
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = do(t, s.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	box := detection.FromXYWH(4, 4, 8, 8)
	s, _ := newTestServer(t,
		detection.Candidate{Label: "bottle", Confidence: 0.9, Box: &box},
		detection.Candidate{Label: "banana", Confidence: 0.1},
	)

	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	rec := do(t, s.Handler(), http.MethodPost, "/api/classify", `{"image_data":"`+payload+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "non-organic", body["category"])
	assert.InDelta(t, 0.9, body["confidence"], 1e-6)
	assert.Equal(t, true, body["recyclable"])
	assert.Nil(t, body["error"])
	assert.Equal(t, true, body["success"])

	dets, ok := body["detections"].([]any)
	require.True(t, ok)
	require.Len(t, dets, 1)
	first := dets[0].(map[string]any)
	assert.Equal(t, "bottle", first["label"])
	assert.InDelta(t, 8, first["width"], 1e-6)
}

func TestClassifyMissingImage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, "/api/classify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image data provided", decode(t, rec)["error"])

	rec = do(t, s.Handler(), http.MethodPost, "/api/classify", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyUndecodable(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, "/api/classify", `{"image_data":"aGVsbG8="}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Nil(t, body["category"])
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestClassifyNoDetection(t *testing.T) {
	s, _ := newTestServer(t, detection.Candidate{Label: "bottle", Confidence: 0.1})

	payload := base64.StdEncoding.EncodeToString(pngBytes(t))
	rec := do(t, s.Handler(), http.MethodPost, "/api/classify", `{"image_data":"`+payload+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Nil(t, body["category"])
	assert.Nil(t, body["error"])
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body, "detections")
}

func TestUpload(t *testing.T) {
	s, _ := newTestServer(t, detection.Candidate{Label: "apple", Confidence: 0.8})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "apple.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/classify/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "compost", decode(t, rec)["category"])

	req = httptest.NewRequest(http.MethodPost, "/api/classify/upload", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeights(t *testing.T) {
	s, l := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/update-weight", `{"category":"compost","weight":1.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 1.5, body["total_weight"], 1e-9)
	assert.InDelta(t, 1.5, body["weights"].(map[string]any)["compost"], 1e-9)

	rec = do(t, h, http.MethodPost, "/api/update-weight", `{"category":"biogas","weight":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 3.5, decode(t, rec)["total_weight"], 1e-9)

	rec = do(t, h, http.MethodGet, "/api/weight-summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.InDelta(t, 3.5, body["total_weight"], 1e-9)
	assert.Len(t, body["weights"], len(l.Taxonomy().Categories()))

	for _, bad := range []string{
		`{"category":"glass","weight":1}`,
		`{"category":"compost","weight":-1}`,
		`{"category":"compost"}`,
		`{"weight":1}`,
	} {
		rec = do(t, h, http.MethodPost, "/api/update-weight", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	assert.InDelta(t, 3.5, l.Summary().TotalWeight, 1e-9)

	rec = do(t, h, http.MethodPost, "/api/reset-weights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode(t, rec)["total_weight"])
	assert.Zero(t, l.Summary().TotalWeight)
}

func TestCategories(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out categoriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, waste.DefaultSchema, out.Version)
	require.Len(t, out.Categories, 6)
	for _, c := range out.Categories {
		assert.Equal(t, c.Name == waste.Unknown, c.Fallback, c.Name)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t, detection.Candidate{Label: "cup", Confidence: 0.9})
	payload := base64.StdEncoding.EncodeToString(pngBytes(t))
	do(t, s.Handler(), http.MethodPost, "/api/classify", `{"image_data":"`+payload+`"}`)

	rec := do(t, s.Handler(), http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats profiler.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	names := []string{}
	for _, op := range stats.Operations {
		names = append(names, op.Name)
	}
	assert.Contains(t, names, "classify")
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/classify", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagation(t *testing.T) {
	s, _ := newTestServer(t)
	id := "6f1c1c3e-2b7a-4d1c-9a55-0d8f4b7e2a10"

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeDrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s, _ := newDetectorServer(t, nil, inference.InferencerFunc(func(ctx context.Context, _ *images.Image) ([]detection.Candidate, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []detection.Candidate{{Label: "bottle", Confidence: 0.9}}, nil
	}))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	type reply struct {
		body map[string]any
		err  error
	}
	replies := make(chan reply, 1)
	payload := base64.StdEncoding.EncodeToString(pngBytes(t))
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/api/classify", "application/json",
			strings.NewReader(`{"image_data":"`+payload+`"}`))
		if err != nil {
			replies <- reply{err: err}
			return
		}
		defer resp.Body.Close()
		var body map[string]any
		err = json.NewDecoder(resp.Body).Decode(&body)
		replies <- reply{body: body, err: err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("inference did not start")
	}
	cancel()
	close(release)

	select {
	case r := <-replies:
		require.NoError(t, r.err)
		assert.Equal(t, true, r.body["success"])
		assert.Equal(t, "non-organic", r.body["category"])
		assert.Nil(t, r.body["error"])
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request did not complete")
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHistoryDisabled(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer hist.Close()

	s, _ := newHistoryServer(t, hist, detection.Candidate{Label: "bottle", Confidence: 0.9})
	h := s.Handler()

	payload := base64.StdEncoding.EncodeToString(pngBytes(t))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/classify", `{"image_data":"`+payload+`"}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/classify", `{"image_data":"bm90IGFuIGltYWdl"}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/update-weight", `{"category":"non-organic","weight":2}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/reset-weights", "").Code)

	rec := do(t, h, http.MethodGet, "/api/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Classifications, 2)
	assert.NotNil(t, body.Classifications[0].Error)
	require.NotNil(t, body.Classifications[1].Category)
	assert.Equal(t, waste.NonOrganic, *body.Classifications[1].Category)
	assert.Equal(t, classifier.ModeDetector, body.Classifications[1].Mode)
	assert.Equal(t, history.SourceAPI, body.Classifications[1].Source)
	assert.Equal(t, map[waste.Category]int{waste.NonOrganic: 1}, body.Counts)

	require.Len(t, body.Weights, 2)
	assert.Equal(t, history.KindReset, body.Weights[0].Kind)
	assert.Equal(t, waste.NonOrganic, body.Weights[1].Category)
	assert.Equal(t, 2.0, body.Weights[1].TotalWeight)

	rec = do(t, h, http.MethodGet, "/api/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
