package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/LeadSheetML/core/render"
	"github.com/FocuswithJustin/LeadSheetML/internal/catalog"
	"github.com/FocuswithJustin/LeadSheetML/internal/convert"
)

const testSong = `@title: Hello
@artist: World
@key: C Major

#Intro
[C]Hello, [G]world!`

func newTestServer(t *testing.T, cat *catalog.Catalog) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Version = "test"
	return New(cfg, convert.New(convert.DefaultOptions()), cat)
}

func serve(s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decode unmarshals the response envelope, decoding Data into data when
// data is non-nil.
func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	var raw struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return raw.APIResponse
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, http.MethodGet, "/", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var data map[string]interface{}
	resp := decode(t, w, &data)
	if !resp.Success {
		t.Error("expected success response")
	}
	if data["version"] != "test" {
		t.Errorf("version = %v, want test", data["version"])
	}
}

func TestHandleRootNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, http.MethodGet, "/nope", "", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	resp := decode(t, w, nil)
	if resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", resp.Error)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var info HealthInfo
	decode(t, w, &info)
	if info.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", info.Status)
	}
	if info.Version != "test" {
		t.Errorf("Version = %q, want test", info.Version)
	}
	if info.Driver.DriverName == "" {
		t.Error("sqlite driver not reported")
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header not set")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); got != apiCSP {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodPost, "/health", http.MethodGet},
		{http.MethodDelete, "/formats", http.MethodGet},
		{http.MethodGet, "/render", http.MethodPost},
		{http.MethodPut, "/songs", http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(s, tt.method, tt.path, "", "")
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
			}
			if got := w.Header().Get("Allow"); got != tt.allow {
				t.Errorf("Allow = %q, want %q", got, tt.allow)
			}
		})
	}
}

func TestHandleFormats(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, http.MethodGet, "/formats", "", "")

	var formats []FormatInfo
	resp := decode(t, w, &formats)
	if resp.Meta == nil || resp.Meta.Total != len(formatInfos) {
		t.Errorf("Meta = %+v, want total %d", resp.Meta, len(formatInfos))
	}

	names := map[string]bool{}
	for _, f := range formats {
		names[f.ID] = true
		for _, a := range f.Aliases {
			names[a] = true
		}
	}
	for _, name := range render.Formats() {
		if !names[name] {
			t.Errorf("render format %q missing from /formats", name)
		}
	}
	if len(names) != len(render.Formats()) {
		t.Errorf("/formats lists %d names, render has %d", len(names), len(render.Formats()))
	}
}

func TestHandleRenderJSON(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"source": ` + quote(testSong) + `, "format": "html", "semitones": 2}`
	w := serve(s, http.MethodPost, "/render", "application/json", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res convert.Result
	decode(t, w, &res)
	if res.Format != "html" {
		t.Errorf("Format = %q, want html", res.Format)
	}
	if res.Key != "D Major" {
		t.Errorf("Key = %q, want D Major", res.Key)
	}
	if !strings.Contains(res.Output, "<h1>Hello</h1>") {
		t.Errorf("Output missing title:\n%s", res.Output)
	}
}

func TestHandleRenderText(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, http.MethodPost, "/render?format=md&layout=pre&transpose=-1", "text/plain; charset=utf-8", testSong)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res convert.Result
	decode(t, w, &res)
	if res.Format != "markdown" || res.Layout != "pre" {
		t.Errorf("Format/Layout = %s/%s, want markdown/pre", res.Format, res.Layout)
	}
	if res.Key != "B Major" {
		t.Errorf("Key = %q, want B Major", res.Key)
	}
}

func TestHandleRenderErrors(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		status      int
		code        string
	}{
		{"bad json", "/render", "application/json", "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"syntax error", "/render", "text/plain", "#S\n[H7]", http.StatusBadRequest, "PARSE_ERROR"},
		{"missing key", "/render?transpose=3", "text/plain", "#S\n[C]la", http.StatusUnprocessableEntity, "TRANSPOSE_ERROR"},
		{"malformed key", "/render?transpose=3", "text/plain", "@key: C\n#S\n[C]la", http.StatusUnprocessableEntity, "TRANSPOSE_ERROR"},
		{"unknown format", "/render?format=pdf", "text/plain", testSong, http.StatusBadRequest, "UNSUPPORTED"},
		{"bad transpose", "/render?transpose=up", "text/plain", testSong, http.StatusBadRequest, "INVALID_INPUT"},
		{"too large", "/render", "text/plain", strings.Repeat("x", int(DefaultConfig().MaxSourceBytes)+1), http.StatusRequestEntityTooLarge, "TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, http.MethodPost, tt.target, tt.contentType, tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			resp := decode(t, w, nil)
			if resp.Success {
				t.Error("expected failure response")
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestRenderSyntaxErrorPosition(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, http.MethodPost, "/render", "text/plain", "#S\n[H7]")

	resp := decode(t, w, nil)
	if resp.Error == nil {
		t.Fatal("expected an error")
	}
	if resp.Error.Line != 2 || resp.Error.Column != 2 {
		t.Errorf("position = %d:%d, want 2:2", resp.Error.Line, resp.Error.Column)
	}
}

func TestSongsWithoutCatalog(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/songs", "/songs/abc", "/songs/abc/render"} {
		w := serve(s, http.MethodGet, path, "", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestSongsWithCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cat, err := catalog.Open(ctx, filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open() error = %v", err)
	}
	defer cat.Close()

	songPath := filepath.Join(dir, "hello.lmpl")
	if err := os.WriteFile(songPath, []byte(testSong), 0o644); err != nil {
		t.Fatal(err)
	}
	stored, err := cat.Upsert(ctx, catalog.Entry{
		Path:   songPath,
		Title:  "Hello",
		Artist: "World",
		Key:    "C Major",
		Hash:   catalog.Hash([]byte(testSong)),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	missing, err := cat.Upsert(ctx, catalog.Entry{
		Path:  filepath.Join(dir, "deleted.lmpl"),
		Title: "Deleted",
		Hash:  catalog.Hash([]byte("gone")),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	s := newTestServer(t, cat)

	t.Run("list", func(t *testing.T) {
		var entries []catalog.Entry
		resp := decode(t, serve(s, http.MethodGet, "/songs?q=hello", "", ""), &entries)
		if len(entries) != 1 || entries[0].ID != stored.ID {
			t.Errorf("entries = %+v", entries)
		}
		if resp.Meta.Total != 1 {
			t.Errorf("Meta.Total = %d, want 1", resp.Meta.Total)
		}
	})

	t.Run("get", func(t *testing.T) {
		var entry catalog.Entry
		decode(t, serve(s, http.MethodGet, "/songs/"+stored.ID, "", ""), &entry)
		if entry.Path != songPath {
			t.Errorf("Path = %q, want %q", entry.Path, songPath)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		w := serve(s, http.MethodGet, "/songs/does-not-exist", "", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("render", func(t *testing.T) {
		w := serve(s, http.MethodGet, "/songs/"+stored.ID+"/render?transpose=2", "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var res convert.Result
		decode(t, w, &res)
		if !strings.Contains(res.Output, "    D      A         \n") {
			t.Errorf("Output not transposed:\n%s", res.Output)
		}
	})

	t.Run("render deleted file", func(t *testing.T) {
		w := serve(s, http.MethodGet, "/songs/"+missing.ID+"/render", "", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("health counts songs", func(t *testing.T) {
		var info HealthInfo
		decode(t, serve(s, http.MethodGet, "/health", "", ""), &info)
		if info.Songs != 2 {
			t.Errorf("Songs = %d, want 2", info.Songs)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, http.MethodPost, "/render", "text/plain", testSong)
	serve(s, http.MethodPost, "/render", "text/plain", testSong)
	serve(s, http.MethodPost, "/render", "text/plain", "#S\n[H7]")

	w := serve(s, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`leadsheet_renders_total{cached="false",format="markdown"} 1`,
		`leadsheet_renders_total{cached="true",format="markdown"} 1`,
		`leadsheet_render_failures_total{code="PARSE_ERROR"} 1`,
		`leadsheet_websocket_clients 0`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Run("permissive", func(t *testing.T) {
		s := newTestServer(t, nil)
		req := httptest.NewRequest(http.MethodOptions, "/render", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
	})

	t.Run("restricted", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AllowedOrigins = []string{"https://songs.example.com"}
		s := New(cfg, convert.New(convert.DefaultOptions()), nil)

		tests := []struct {
			origin string
			status int
			allow  string
		}{
			{"https://songs.example.com", http.StatusNoContent, "https://songs.example.com"},
			{"https://evil.example.com", http.StatusForbidden, ""},
		}
		for _, tt := range tests {
			req := httptest.NewRequest(http.MethodOptions, "/render", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("%s: status = %d, want %d", tt.origin, w.Code, tt.status)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.allow {
				t.Errorf("%s: Access-Control-Allow-Origin = %q, want %q", tt.origin, got, tt.allow)
			}
		}
	})
}

func TestClassify(t *testing.T) {
	status, apiErr := classify(os.ErrPermission)
	if status != http.StatusInternalServerError || apiErr.Code != "INTERNAL_ERROR" {
		t.Errorf("classify(ErrPermission) = %d %+v", status, apiErr)
	}
	if apiErr.Message != "internal error" {
		t.Errorf("internal errors should not leak details, got %q", apiErr.Message)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
