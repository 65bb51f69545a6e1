// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/ingest"
	"docrag/internal/parser"
	"docrag/internal/service"
)

// Server serves the document API.
type Server struct {
	pipeline *service.Pipeline
	queue    *ingest.Queue
	cfg      config.ServerConfig
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server. The queue must already be started.
func New(p *service.Pipeline, q *ingest.Queue, cfg config.ServerConfig) *Server {
	s := &Server{
		pipeline: p,
		queue:    q,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/documents", s.handleDocuments)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/progress", s.handleProgress)
	mux.HandleFunc("GET /api/progress/ws", s.handleProgressWS)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	return mux
}

// ListenAndServe blocks until ctx is done, then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	return req, true
}

// handleSearch handles POST /api/search
// Request: {"query": "text", "top_k": 3}
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	results, err := s.pipeline.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	type result struct {
		Text       string  `json:"text"`
		Filename   string  `json:"filename"`
		Source     string  `json:"source"`
		ChunkIndex uint32  `json:"chunk_index"`
		Distance   float32 `json:"distance"`
	}
	out := make([]result, len(results))
	for i, res := range results {
		out[i] = result{
			Text:       res.Entry.Text,
			Filename:   res.Entry.Filename,
			Source:     res.Entry.Source,
			ChunkIndex: res.Entry.ChunkIndex,
			Distance:   res.Distance,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"query":   req.Query,
		"results": out,
	})
}

// handleAsk handles POST /api/ask
// Request: {"query": "question", "top_k": 3}
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	ans, err := s.pipeline.Ask(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"query":   ans.Query,
		"answer":  ans.Answer,
		"sources": ans.Sources,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": s.pipeline.Documents(),
	})
}

// handleClear empties the index and removes uploaded files.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Clear(); err != nil {
		writeError(w, err)
		return
	}
	if s.cfg.UploadDir != "" {
		if err := os.RemoveAll(s.cfg.UploadDir); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to remove uploads: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "index cleared",
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Progress())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.queue.Status(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ingest.Status
		Pending int `json:"pending"`
	}{st, s.queue.Pending()})
}

// handleUpload handles POST /api/upload with multipart field "files". Files
// are stored under the upload directory and indexed through the queue. With
// ?async=1 the job id is returned immediately.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSONError(w, http.StatusBadRequest, "no files provided")
		return
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create upload directory: "+err.Error())
		return
	}

	var (
		inputs  []service.FileInput
		skipped []service.FileResult
	)
	for _, fh := range headers {
		name := safeFilename(fh.Filename)
		if name == "" {
			continue
		}
		if !parser.Allowed(name) {
			skipped = append(skipped, service.FileResult{Filename: name, Error: "unsupported file type"})
			continue
		}
		dst := filepath.Join(s.cfg.UploadDir, uuid.NewString()[:8]+"_"+name)
		if err := saveUpload(fh, dst); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to store "+name+": "+err.Error())
			return
		}
		inputs = append(inputs, service.FileInput{Path: dst, Filename: name})
	}
	if len(inputs) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"files":          nonNil(skipped),
			"indexed_chunks": 0,
		})
		return
	}

	if r.URL.Query().Get("async") == "1" {
		id, err := s.queue.Submit(inputs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"job_id":  id,
			"files":   nonNil(skipped),
		})
		return
	}

	report, err := s.queue.SubmitWait(r.Context(), inputs)
	if err != nil {
		status := statusFor(err)
		body := map[string]interface{}{"error": "indexing failed: " + err.Error()}
		if report != nil {
			body["files"] = append(report.Files, skipped...)
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"run_id":         report.RunID,
		"files":          append(report.Files, skipped...),
		"indexed_chunks": report.IndexedChunks,
		"total_vectors":  report.TotalVectors,
		"summary":        report.Summary,
	})
}

// handleProgressWS streams snapshots whenever they change. A final snapshot
// is sent once a run is no longer active.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	interval := time.Duration(s.cfg.ProgressIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	// Reader goroutine notices client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastVersion uint64
	sent := false
	for {
		snap := s.pipeline.Progress()
		if !sent || snap.Version != lastVersion {
			if err := conn.WriteJSON(snap); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("server: websocket write: %v", err)
				}
				return
			}
			sent = true
			lastVersion = snap.Version
			if !snap.Active && !snap.StartedAt.IsZero() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
					time.Now().Add(time.Second))
				return
			}
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// safeFilename strips directories and replaces characters outside letters,
// digits, dot, dash and underscore.
func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.TrimLeft(name, "._")
	if name == "" || name == "_" {
		return ""
	}
	return name
}

func nonNil(files []service.FileResult) []service.FileResult {
	if files == nil {
		return []service.FileResult{}
	}
	return files
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch domain.KindOf(err) {
	case domain.KindConfig, domain.KindInvalidInput, domain.KindUnsupportedFormat:
		return http.StatusBadRequest
	case domain.KindDimensionMismatch, domain.KindLengthMismatch:
		return http.StatusUnprocessableEntity
	case domain.KindBusy:
		return http.StatusConflict
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
