package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/internal/catalog"
	"github.com/FocuswithJustin/LeadSheetML/internal/convert"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error. Line and Column are set for syntax
// errors.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status    string       `json:"status"`
	Version   string       `json:"version"`
	Uptime    string       `json:"uptime"`
	Songs     int          `json:"songs"`
	CacheSize int          `json:"cache_size"`
	Clients   int          `json:"websocket_clients"`
	Driver    catalog.Info `json:"sqlite_driver"`
}

// FormatInfo describes an output format.
type FormatInfo struct {
	ID        string   `json:"id"`
	Aliases   []string `json:"aliases,omitempty"`
	MediaType string   `json:"media_type"`
	Layouts   []string `json:"layouts"`
}

var formatInfos = []FormatInfo{
	{ID: "html", MediaType: "text/html", Layouts: []string{"rows", "pre"}},
	{ID: "markdown", Aliases: []string{"md"}, MediaType: "text/markdown", Layouts: []string{"rows", "pre"}},
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "LeadSheetML API",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /health",
			"GET /formats",
			"POST /render",
			"GET /songs",
			"GET /songs/{id}",
			"GET /songs/{id}/render",
			"WS /ws",
			"GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	info := HealthInfo{
		Status:    "healthy",
		Version:   s.cfg.Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		CacheSize: s.conv.CacheLen(),
		Clients:   s.hub.ClientCount(),
		Driver:    catalog.DriverInfo(),
	}
	if s.cat != nil {
		n, err := s.cat.Count(r.Context())
		if err != nil {
			logging.ErrorContext(r.Context(), "health check catalog count failed", "error", err)
			info.Status = "degraded"
		}
		info.Songs = n
	}
	respond(w, http.StatusOK, info)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondWithMeta(w, http.StatusOK, formatInfos, len(formatInfos))
}

// handleRender renders a song posted as JSON (convert.Request) or as plain
// text with format, layout and transpose in the query string.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxSourceBytes)
	var req convert.Request

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			respondBodyError(w, err)
			return
		}
		req, err = requestFromQuery(r, string(data))
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			respondBodyError(w, err)
			return
		}
	}
	if req.Name == "" {
		req.Name = "http"
	}

	s.render(w, r, req)
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !s.requireCatalog(w) {
		return
	}
	entries, err := s.cat.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*catalog.Entry{}
	}
	respondWithMeta(w, http.StatusOK, entries, len(entries))
}

func (s *Server) handleSongByID(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !s.requireCatalog(w) {
		return
	}
	entry, err := s.cat.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, entry)
}

// handleSongRender renders a catalogued song from disk.
func (s *Server) handleSongRender(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !s.requireCatalog(w) {
		return
	}
	entry, err := s.cat.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	src, err := os.ReadFile(entry.Path)
	if err != nil {
		s.fail(w, r, errors.NewIO("read", entry.Path, err))
		return
	}
	req, err := requestFromQuery(r, string(src))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req.Name = entry.Path
	s.render(w, r, req)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, req convert.Request) {
	res, err := s.conv.Convert(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.observeRender("http", res.Format, res.CacheHit, res.Duration)
	respond(w, http.StatusOK, res)
}

// requestFromQuery builds a render request for source from the format,
// layout and transpose query parameters.
func requestFromQuery(r *http.Request, source string) (convert.Request, error) {
	q := r.URL.Query()
	req := convert.Request{
		Source: source,
		Format: q.Get("format"),
		Layout: q.Get("layout"),
	}
	if t := q.Get("transpose"); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil {
			return req, errors.NewValidation("transpose", "must be an integer")
		}
		req.Semitones = n
	}
	return req, nil
}

func (s *Server) requireCatalog(w http.ResponseWriter) bool {
	if s.cat == nil {
		respondError(w, http.StatusServiceUnavailable, "NO_CATALOG", "Server was started without a catalog")
		return false
	}
	return true
}

// fail maps err onto an HTTP status and error code and records it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classify(err)
	s.metrics.observeFailure(apiErr.Code)
	if status >= 500 {
		logging.ErrorContext(r.Context(), "request failed", "error", err)
	}
	respondAPIError(w, status, apiErr)
}

// classify maps an error onto a status code and API error.
func classify(err error) (int, *APIError) {
	apiErr := &APIError{Message: err.Error()}

	var syn *errors.SyntaxError
	switch {
	case errors.As(err, &syn):
		apiErr.Code = "PARSE_ERROR"
		apiErr.Line = syn.Line
		apiErr.Column = syn.Column
		return http.StatusBadRequest, apiErr
	case errors.Is(err, errors.ErrTranspose):
		apiErr.Code = "TRANSPOSE_ERROR"
		return http.StatusUnprocessableEntity, apiErr
	case errors.Is(err, errors.ErrUnsupported):
		apiErr.Code = "UNSUPPORTED"
		return http.StatusBadRequest, apiErr
	case errors.Is(err, errors.ErrInvalidInput):
		apiErr.Code = "INVALID_INPUT"
		return http.StatusBadRequest, apiErr
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, os.ErrNotExist):
		apiErr.Code = "NOT_FOUND"
		return http.StatusNotFound, apiErr
	default:
		apiErr.Code = "INTERNAL_ERROR"
		apiErr.Message = "internal error"
		return http.StatusInternalServerError, apiErr
	}
}

func respondBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Request body too large")
		return
	}
	respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body: "+err.Error())
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only "+method+" is allowed")
	return false
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	respondWithMeta(w, status, data, 0)
}

func respondWithMeta(w http.ResponseWriter, status int, data interface{}, total int) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondAPIError(w, status, &APIError{Code: code, Message: message})
}

func respondAPIError(w http.ResponseWriter, status int, apiErr *APIError) {
	response := APIResponse{
		Success: false,
		Error:   apiErr,
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
