package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/critic/internal/config"
	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/history"
	"github.com/kingrea/critic/internal/pipeline"
)

func TestLoadSettingsHonorsEnv(t *testing.T) {
	t.Setenv("CRITIC_BRIDGE_PORT", "9001")
	t.Setenv("CRITIC_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("CRITIC_BRIDGE_ENABLED", "false")
	t.Setenv("CRITIC_BRIDGE_MAX_BODY_BYTES", "2048")
	t.Setenv("CRITIC_BRIDGE_TIMEOUT", "2s")
	t.Setenv("CRITIC_MIN_LENGTH_RATIO", "0.9")
	t.Setenv("CRITIC_MAX_LENGTH_RATIO", " 1.5 ")
	t.Setenv("CRITIC_MIN_HEADING_PRESERVATION", "1")
	settings, err := LoadSettings(&config.Config{})
	require.NoError(t, err)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
	assert.Equal(t, int64(2048), settings.MaxBodyBytes)
	assert.Equal(t, 2*time.Second, settings.Timeout)
	assert.Equal(t, 0.9, settings.Thresholds.MinLengthRatio)
	assert.Equal(t, 1.5, settings.Thresholds.MaxLengthRatio)
	assert.Equal(t, 1.0, settings.Thresholds.MinHeadingPreservation)
}

func TestLoadSettingsRejectsBadEnv(t *testing.T) {
	cases := map[string]string{
		"CRITIC_BRIDGE_ENABLED":           "maybe",
		"CRITIC_BRIDGE_PORT":              "70000",
		"CRITIC_BRIDGE_MAX_BODY_BYTES":    "0",
		"CRITIC_BRIDGE_TIMEOUT":           "soon",
		"CRITIC_MIN_LENGTH_RATIO":         "half",
		"CRITIC_MIN_HEADING_PRESERVATION": "1.5",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := LoadSettings(nil)
			require.Error(t, err)
		})
	}
}

func TestLoadSettingsUsesProjectValues(t *testing.T) {
	enabled := false
	cfg := &config.Config{Project: config.ProjectConfig{
		Thresholds: pipeline.Thresholds{MinLengthRatio: 0.7, MaxLengthRatio: 3, MinHeadingPreservation: 0.2},
		Bridge:     config.BridgeConfig{Enabled: &enabled, Host: "localhost", Port: 7000, MaxBodyBytes: 512, Timeout: "5s"},
	}}
	settings, err := LoadSettings(cfg)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, "localhost", settings.Host)
	assert.Equal(t, 7000, settings.Port)
	assert.Equal(t, int64(512), settings.MaxBodyBytes)
	assert.Equal(t, 5*time.Second, settings.Timeout)
	assert.Equal(t, DefaultIdleTimeout, settings.IdleTimeout)
	assert.Equal(t, 0.7, settings.Thresholds.MinLengthRatio)
	assert.Equal(t, "http://localhost:7000", settings.URL())

	defaults, err := LoadSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBodyBytes, defaults.MaxBodyBytes)
	assert.Equal(t, pipeline.DefaultThresholds(), defaults.Thresholds)
}

func TestServerValidatesWithSettingsThresholds(t *testing.T) {
	req := GenerateRequest{Original: "the quick fox", Edited: "the fox"}

	rec := postJSON(t, NewServer(testSettings()).Handler(), "/v1/generate", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var loose GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loose))
	assert.True(t, loose.Valid)

	strict := testSettings()
	strict.Thresholds = pipeline.DefaultThresholds()
	strict.Thresholds.MinLengthRatio = 0.9
	rec = postJSON(t, NewServer(strict).Handler(), "/v1/generate", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, pipeline.StatusFail, resp.Run.Report.Status(pipeline.StageApply, pipeline.CheckLengthRatio))
}

func testSettings() Settings {
	return Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: 1 << 16, Timeout: time.Second, IdleTimeout: time.Second}
}

func postJSON(t *testing.T, h http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestImportReturnsTree(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	rec := postJSON(t, h, "/v1/import", ImportRequest{Text: "Hello {++world++}"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Changes)
	require.NotNil(t, resp.Document)
	assert.Equal(t, document.KindRoot, resp.Document.Kind)
}

func TestExportModes(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	text := "a {~~old~>new~~} b {++x++}{--y--}"
	cases := []struct {
		mode ExportMode
		want string
	}{
		{ModeMarkup, text},
		{ModeAccept, "a new b x"},
		{ModeReject, "a old b y"},
		{ModeBefore, "a old b xy"},
		{ModeAfter, "a new b xy"},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			rec := postJSON(t, h, "/v1/export", ExportRequest{Text: text, Mode: tc.mode})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp ExportResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.want, resp.Text)
		})
	}
}

func TestExportAcceptsImportedTree(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	rec := postJSON(t, h, "/v1/import", ImportRequest{Text: "# Title\n\nbody {--gone--}"})
	require.Equal(t, http.StatusOK, rec.Code)
	var imported ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))

	rec = postJSON(t, h, "/v1/export", ExportRequest{Document: imported.Document, Mode: "ACCEPT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "# Title\n\nbody ", resp.Text)
}

func TestExportRejectsBadRequests(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	rec := postJSON(t, h, "/v1/export", ExportRequest{Text: "x", Mode: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = postJSON(t, h, "/v1/export", ExportRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/export", strings.NewReader("{"))
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestExportRejectsMalformedTree(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	for _, body := range []string{
		`{"document":{"kind":"root","children":[null]}}`,
		`{"document":{"kind":"root","children":[{"kind":"paragraph","children":[null]}]},"mode":"accept"}`,
		`{"document":{"kind":"root","children":[{"kind":"diff","tag":"update"}]},"mode":"before"}`,
	} {
		rec := postJSON(t, h, "/v1/export", json.RawMessage(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "malformed tree")
	}
}

func TestExportRenderOptions(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	cases := []struct {
		name string
		req  ExportRequest
		want string
	}{
		{"markup keeps breaks", ExportRequest{Text: "x {++y++}<br><br>"}, "x {++y++}<br><br>"},
		{"markup cleanup", ExportRequest{Text: "x {++y++}<br><br>", Cleanup: true}, "x {++y++}"},
		{"accept drops trailing breaks", ExportRequest{Text: "x {++y++}<br><br>", Mode: ModeAccept}, "x y"},
		{"newlines", ExportRequest{Text: "a<br><br>b {--c--}", Mode: ModeAccept, Newlines: true}, "a\nb "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/v1/export", tc.req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp ExportResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.want, resp.Text)
		})
	}
}

func TestResolveSingleChange(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	rec := postJSON(t, h, "/v1/import", ImportRequest{Text: "a {++b++} {--c--}"})
	require.Equal(t, http.StatusOK, rec.Code)
	var imported ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	diffs := document.Diffs(imported.Document)
	require.Len(t, diffs, 2)

	rec = postJSON(t, h, "/v1/resolve", ResolveRequest{Document: imported.Document, Key: diffs[0].Key, Decision: "Accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a b {--c--}", resp.Text)
	assert.Equal(t, 1, resp.Remaining)

	rec = postJSON(t, h, "/v1/resolve", ResolveRequest{Document: resp.Document, Key: diffs[1].Key, Decision: "reject"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a b c", resp.Text)
	assert.Equal(t, 0, resp.Remaining)
}

func TestResolveErrors(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	root := document.NewRoot(document.NewParagraph(document.NewText("a ", 0), document.NewDiff(document.TagIns, document.NewText("b", 0))))
	textKey := root.Children[0].Children[0].Key
	diffKey := document.Diffs(root)[0].Key

	cases := []struct {
		name string
		req  any
		want int
	}{
		{"unknown key", ResolveRequest{Document: root, Key: "missing", Decision: "accept"}, http.StatusNotFound},
		{"not a diff", ResolveRequest{Document: root, Key: textKey, Decision: "accept"}, http.StatusBadRequest},
		{"bad decision", ResolveRequest{Document: root, Key: diffKey, Decision: "maybe"}, http.StatusBadRequest},
		{"missing key", ResolveRequest{Document: root, Decision: "accept"}, http.StatusBadRequest},
		{"missing document", ResolveRequest{Key: diffKey, Decision: "accept"}, http.StatusBadRequest},
		{"nil child", json.RawMessage(`{"document":{"kind":"root","children":[null]},"key":"k","decision":"accept"}`), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/v1/resolve", tc.req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestValidateRecordsHistory(t *testing.T) {
	hist, err := history.New(filepath.Join(t.TempDir(), "history.jsonl"))
	require.NoError(t, err)
	fixed := time.Unix(1730000000, 0).UTC()
	h := NewServer(testSettings(), WithHistory(hist), WithClock(func() time.Time { return fixed })).Handler()

	rec := postJSON(t, h, "/v1/validate", ValidateRequest{Snapshots: []pipeline.Snapshot{
		{Stage: pipeline.StageDiff, Before: "", After: "broken {++insert"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, pipeline.StatusFail, resp.Report.Status(pipeline.StageDiff, pipeline.CheckBalancedInsertions))

	entries, total := hist.Tail(5)
	require.Equal(t, 1, total)
	assert.Equal(t, "bridge", entries[0].Source)
	assert.Equal(t, fixed, entries[0].Time)
	assert.False(t, entries[0].Valid)
}

func TestValidateRequiresSnapshots(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	rec := postJSON(t, h, "/v1/validate", ValidateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateProducesMarkup(t *testing.T) {
	h := NewServer(testSettings()).Handler()
	rec := postJSON(t, h, "/v1/generate", GenerateRequest{Original: "the quick fox", Edited: "the slow fox"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "the {~~quick~>slow~~} fox", resp.Markup)
	assert.True(t, resp.Valid)
	assert.Len(t, resp.Run.Snapshots, 3)
}

func TestMethodAndSizeLimits(t *testing.T) {
	settings := testSettings()
	settings.MaxBodyBytes = 16
	h := NewServer(settings).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/import", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	rec = postJSON(t, h, "/v1/import", ImportRequest{Text: strings.Repeat("x", 64)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	t.Parallel()
	srv := NewServer(testSettings())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StatusReady, srv.Status())
	require.Error(t, srv.Start(context.Background()))

	resp, err := http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", health.Status)
	assert.Equal(t, ProtocolVersion, health.Version)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StatusDraining, srv.Status())
	assert.Equal(t, "", srv.Addr())
}

func TestStartDisabled(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	err := NewServer(settings).Start(context.Background())
	assert.ErrorIs(t, err, ErrServerDisabled)
}
