package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dgallion1/bratgest/internal/apperr"
	"github.com/dgallion1/bratgest/internal/config"
	"github.com/dgallion1/bratgest/internal/dataset"
	"github.com/dgallion1/bratgest/internal/document"
	"github.com/dgallion1/bratgest/internal/metrics"
	"github.com/dgallion1/bratgest/internal/store"
)

const (
	testKey    = "secret"
	copperText = "Copper wires were used."
	copperAnn  = "T1\tMaterial 0 6\tCopper\nT2\tObject 7 12\twires\nR1\tMade-of Arg1:T2 Arg2:T1\n"
)

func newTestServer(t *testing.T) (*Server, *dataset.Dataset, store.Store) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ds := dataset.New(dataset.WithMetrics(m))
	doc, err := document.New(copperText, copperAnn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ds.Insert("copper", doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := store.NewMemory()
	cfg := config.Config{APIKey: testKey, MaxUploadBytes: 1 << 20, StoreTimeout: 5 * time.Second}
	log := slog.New(slog.DiscardHandler)
	return NewServer(ds, st, reg, log, cfg), ds, st
}

func do(t *testing.T, srv http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][2]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for field, f := range files {
		fw, err := mw.CreateFormFile(field, f[0])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(f[1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealthIsPublic(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["documents"]; got != float64(1) {
		t.Errorf("expected 1 document, got %v", got)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bratgest_documents 1") {
		t.Errorf("expected documents gauge in:\n%s", rec.Body.String())
	}
}

func TestListAndGetDocument(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/documents", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	docs := decode(t, rec)["documents"].([]any)
	if len(docs) != 1 || docs[0].(map[string]any)["key"] != "copper" {
		t.Fatalf("unexpected documents %v", docs)
	}

	rec = do(t, srv, http.MethodGet, "/api/documents/copper", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["text"] != copperText {
		t.Errorf("expected text %q, got %v", copperText, body["text"])
	}
	records := body["records"].([]any)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	first := records[0].(map[string]any)
	if first["tag"] != "T1" || first["start"] != float64(0) || first["end"] != float64(6) {
		t.Errorf("unexpected first record %v", first)
	}

	rec = do(t, srv, http.MethodGet, "/api/documents/brass", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetAndDeleteRecord(t *testing.T) {
	srv, ds, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/documents/copper/records/R1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if arg1 := body["arg1"].(map[string]any); arg1["text"] != "wires" {
		t.Errorf("expected arg1 wires, got %v", arg1)
	}

	rec = do(t, srv, http.MethodDelete, "/api/documents/copper/records/T1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc, _ := ds.Get("copper")
	if doc.Contains("T1") {
		t.Error("expected T1 removed")
	}

	rec = do(t, srv, http.MethodDelete, "/api/documents/copper/records/T1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	srv, ds, _ := newTestServer(t)

	body, ct := multipartBody(t, nil, map[string][2]string{
		"text": {"dir/steel.txt", "Steel beams"},
		"ann":  {"steel.ann", "T1\tMaterial 0 5\tSteel\n"},
	})
	rec := do(t, srv, http.MethodPost, "/api/documents", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["key"]; got != "steel" {
		t.Errorf("expected key steel, got %v", got)
	}
	if !ds.Contains("steel") {
		t.Error("expected steel in dataset")
	}

	// Same key again.
	body, ct = multipartBody(t, nil, map[string][2]string{
		"text": {"steel.txt", "x"},
		"ann":  {"steel.ann", ""},
	})
	if rec := do(t, srv, http.MethodPost, "/api/documents", body, ct); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	// Malformed annotations.
	body, ct = multipartBody(t, map[string]string{"key": "bad"}, map[string][2]string{
		"text": {"bad.txt", "x"},
		"ann":  {"bad.ann", "X1\tFoo 0 1\tx\n"},
	})
	rec = do(t, srv, http.MethodPost, "/api/documents", body, ct)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	if ds.Contains("bad") {
		t.Error("malformed upload was inserted")
	}

	// Missing ann part.
	body, ct = multipartBody(t, nil, map[string][2]string{"text": {"only.txt", "x"}})
	if rec := do(t, srv, http.MethodPost, "/api/documents", body, ct); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	srv, ds, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodDelete, "/api/documents/copper", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ds.Len() != 0 {
		t.Error("expected empty dataset")
	}
	if rec := do(t, srv, http.MethodDelete, "/api/documents/copper", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDocumentHTMLAndReport(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/documents/copper/html", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ">Copper</mark>") {
		t.Errorf("unexpected html response %d:\n%s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/report", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<table>") {
		t.Errorf("unexpected report %d:\n%s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/report?format=md", nil, "")
	if !strings.Contains(rec.Body.String(), "| copper | 2 | 1 | 0 |") {
		t.Errorf("unexpected markdown:\n%s", rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/stats", nil, "")
	stats := decode(t, rec)
	if stats["entities"] != float64(2) || stats["relations"] != float64(1) {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestSnapshotSaveRestoreList(t *testing.T) {
	srv, ds, st := newTestServer(t)

	if rec := do(t, srv, http.MethodPost, "/api/snapshots/first", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, _, err := st.Get(t.Context(), dataset.SnapshotKey("first")); err != nil {
		t.Fatalf("expected stored snapshot: %v", err)
	}

	if err := ds.Remove("copper"); err != nil {
		t.Fatal(err)
	}
	rec := do(t, srv, http.MethodPost, "/api/snapshots/first/restore", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !ds.Contains("copper") {
		t.Error("expected copper after restore")
	}

	rec = do(t, srv, http.MethodGet, "/api/snapshots", nil, "")
	snaps := decode(t, rec)["snapshots"].([]any)
	if len(snaps) != 1 || snaps[0].(map[string]any)["name"] != "first" {
		t.Errorf("unexpected snapshots %v", snaps)
	}

	if rec := do(t, srv, http.MethodPost, "/api/snapshots/missing/restore", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/snapshots/a..b", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("tag", "T9"), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", apperr.Structural(3, "T1", "bad")), http.StatusUnprocessableEntity},
		{&apperr.DuplicateKeyError{Key: "k"}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"doc.txt", "doc.txt"},
		{"/etc/passwd", "passwd"},
		{"a/../b.txt", "b.txt"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
