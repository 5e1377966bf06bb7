package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/engine"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/resilience"
	"github.com/sells-group/metalsense/internal/standards"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/worker"
)

// syncDispatcher assesses immediately, or fails with err.
type syncDispatcher struct {
	mu       sync.Mutex
	assessor *worker.Assessor
	err      error
	ids      []string
}

func (d *syncDispatcher) Dispatch(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	if d.assessor != nil {
		_, err := d.assessor.Assess(ctx, id)
		return err
	}
	return nil
}

type testEnv struct {
	store store.Store
	disp  *syncDispatcher
	srv   *httptest.Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	eng := engine.New(standards.Default())
	disp := &syncDispatcher{assessor: worker.NewAssessor(st, eng, resilience.Policy{Attempts: 1})}
	srv := httptest.NewServer(NewServer(st, eng, disp).Handler(opts))
	t.Cleanup(srv.Close)
	return &testEnv{store: st, disp: disp, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

const aligarhSample = `{
	"lat": 27.8974, "lon": 78.0880,
	"location_name": "Aligarh",
	"timestamp": "2025-03-01T10:00:00Z",
	"source_type": "Groundwater",
	"measurements": [
		{"metal": "Ni", "concentration": 1.87, "unit": "mg/L"},
		{"metal": "Cu", "concentration": 980, "unit": "µg/L"},
		{"metal": "As", "concentration": 0.005, "unit": "mg/L"}
	]
}`

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestStandards(t *testing.T) {
	env := newTestEnv(t, Options{})
	resp, body := env.do(t, http.MethodGet, "/v1/standards", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, standards.Version, body["version"])
	assert.Len(t, body["metals"], 10)
	assert.Contains(t, body["profiles"], "child")
}

func TestAssess(t *testing.T) {
	env := newTestEnv(t, Options{})

	t.Run("measurements", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/assess",
			`{"measurements":[{"metal":"Pb","concentration":20,"unit":"µg/L"}]}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		idx := body["indices"].(map[string]any)
		assert.InDelta(t, 200, idx["hpi"], 1e-9)
		cls := body["classification"].(map[string]any)
		assert.Equal(t, "Hazardous", cls["category"])
	})

	t.Run("concentrations with unknown key", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/assess",
			`{"concentrations":{"lead":0.01,"uranium":0.5}}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.InDelta(t, 100, body["indices"].(map[string]any)["hpi"], 1e-9)
		assert.Equal(t, []any{"uranium"}, body["excluded"])
		assert.Equal(t, true, body["classification"].(map[string]any)["is_safe"])
	})

	t.Run("unknown symbol", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/assess",
			`{"measurements":[{"metal":"Xx","concentration":1,"unit":"mg/L"}]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "unknown metal symbol")
	})

	t.Run("negative concentration", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/v1/assess", `{"concentrations":{"lead":-1}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("overflowing concentration", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/assess", `{"concentrations":{"lead":1e308}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "exceeds 1 kg/L")

		resp, body = env.do(t, http.MethodPost, "/v1/assess",
			`{"measurements":[{"metal":"Pb","concentration":1e308,"unit":"mg/L"}]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "exceeds 1 kg/L")
	})

	t.Run("largest accepted concentration", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/assess", `{"concentrations":{"mercury":1e6}}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.InDelta(t, 1e11, body["indices"].(map[string]any)["hpi"], 1)
	})

	t.Run("empty", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/v1/assess", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/v1/assess", `{"measurements":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSampleLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodPost, "/v1/samples", aligarhSample)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", body["status"])
	id, _ := body["sample_id"].(string)
	require.NotEmpty(t, id)

	resp, body = env.do(t, http.MethodGet, "/v1/samples/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	smp := body["sample"].(map[string]any)
	assert.Equal(t, "complete", smp["status"])
	assert.Len(t, smp["measurements"], 3)
	a := body["assessment"].(map[string]any)
	assert.InDelta(t, 3010, a["hpi"], 1e-6)
	assert.Equal(t, false, a["is_safe"])

	resp, body = env.do(t, http.MethodGet, "/v1/samples/"+id+"/assessment", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 15.4959, body["hazard_index_child"], 1e-4)

	resp, body = env.do(t, http.MethodGet, "/v1/samples?status=complete&bbox=27,77,29,79", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = env.do(t, http.MethodGet, "/v1/samples?bbox=0,0,1,1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])

	resp, body = env.do(t, http.MethodGet, "/v1/alerts", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	alerts := body["alerts"].([]any)
	require.Len(t, alerts, 1)
	assert.Equal(t, id, alerts[0].(map[string]any)["sample_id"])

	resp, body = env.do(t, http.MethodPost, "/v1/samples/"+id+"/reassess", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, id, body["sample_id"])
	assert.Len(t, env.disp.ids, 2)
}

func TestCreateSample_Validation(t *testing.T) {
	env := newTestEnv(t, Options{})

	cases := map[string]string{
		"latitude":     strings.Replace(aligarhSample, "27.8974", "91", 1),
		"source type":  strings.Replace(aligarhSample, `"Groundwater"`, `"Rainwater"`, 1),
		"no readings":  `{"lat":1,"lon":1,"source_type":"Groundwater","measurements":[]}`,
		"duplicate":    `{"lat":1,"lon":1,"source_type":"Groundwater","measurements":[{"metal":"Pb","concentration":1,"unit":"mg/L"},{"metal":"Pb","concentration":2,"unit":"mg/L"}]}`,
		"bad unit":     `{"lat":1,"lon":1,"source_type":"Groundwater","measurements":[{"metal":"Pb","concentration":1,"unit":"ppm"}]}`,
		"bad standard": `{"lat":1,"lon":1,"source_type":"Groundwater","standard_preference":"EPA","measurements":[{"metal":"Pb","concentration":1}]}`,
		"overflowing":  `{"lat":1,"lon":1,"source_type":"Groundwater","measurements":[{"metal":"Pb","concentration":1e308,"unit":"mg/L"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, out := env.do(t, http.MethodPost, "/v1/samples", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}

	samples, err := env.store.ListSamples(context.Background(), store.SampleFilter{})
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestCreateSample_QueueFull(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.disp.err = worker.ErrQueueFull

	resp, body := env.do(t, http.MethodPost, "/v1/samples", aligarhSample)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	id, _ := body["sample_id"].(string)
	require.NotEmpty(t, id)

	smp, err := env.store.GetSample(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SampleStatusPending, smp.Status)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, path := range []string{"/v1/samples/nope", "/v1/samples/nope/assessment"} {
		resp, body := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.NotEmpty(t, body["error"])
	}
	resp, _ := env.do(t, http.MethodPost, "/v1/samples/nope/reassess", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSamples_BadQuery(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, q := range []string{"limit=-1", "offset=x", "bbox=1,2,3", "source_type=Rain"} {
		resp, _ := env.do(t, http.MethodGet, "/v1/samples?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
	resp, _ := env.do(t, http.MethodGet, "/v1/alerts?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodGet, "/v1/standards", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodGet, "/v1/standards", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", body["error"])

	// Health is outside the limited group.
	resp, _ = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigins: []string{"https://maps.example.org"}})

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/v1/samples", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "https://maps.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"hpi": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "response could not be encoded", out["error"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(worker.ErrStopped))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
