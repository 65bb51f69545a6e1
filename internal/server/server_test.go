package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding/hashing"
	"docrag/internal/ingest"
	"docrag/internal/parser"
	"docrag/internal/progress"
	"docrag/internal/service"
	"docrag/internal/vectorstore"
)

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, string, string) (string, error) {
	return "goroutines are cheap", nil
}

type testServer struct {
	*httptest.Server
	uploadDir string
	queue     *ingest.Queue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	ch, err := chunker.NewRecursive(64, 8, nil)
	require.NoError(t, err)
	p := service.New(service.Deps{
		Parser:    parser.New(),
		Chunker:   ch,
		Embedder:  hashing.NewEmbedder(64),
		Completer: stubCompleter{},
		Store:     vectorstore.New(filepath.Join(dir, "index")),
	}, service.Options{})
	q := ingest.NewQueue(p, 4)
	q.Start()
	t.Cleanup(q.Stop)

	cfg := config.ServerConfig{
		UploadDir:          filepath.Join(dir, "uploads"),
		MaxUploadMB:        1,
		ProgressIntervalMS: 10,
	}
	ts := httptest.NewServer(New(p, q, cfg).Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, uploadDir: cfg.UploadDir, queue: q}
}

func (ts *testServer) upload(t *testing.T, query string, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(ts.URL+"/api/upload"+query, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) postJSON(t *testing.T, path string, v interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadSearchAsk(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.upload(t, "", map[string]string{
		"go.txt":    "Goroutines are lightweight threads. Channels connect goroutines.",
		"image.png": "not text",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["indexed_chunks"])
	files := body["files"].([]interface{})
	require.Len(t, files, 2)

	entries, err := os.ReadDir(ts.uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_go.txt"))
	assert.Len(t, entries[0].Name(), len("12345678_go.txt"))

	resp = ts.postJSON(t, "/api/search", map[string]interface{}{"query": "goroutines channels", "top_k": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode(t, resp)["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "go.txt", results[0].(map[string]interface{})["filename"])

	resp = ts.postJSON(t, "/api/ask", map[string]interface{}{"query": "what are goroutines?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ans := decode(t, resp)
	assert.Equal(t, "goroutines are cheap", ans["answer"])
	assert.Len(t, ans["sources"], 1)

	resp, err = http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats domain.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, domain.Stats{TotalVectors: 1, TotalDocuments: 1, TotalChunks: 1, Dimension: 64}, stats)
}

func TestSearchValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/search", map[string]string{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSearchEmptyIndex(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.postJSON(t, "/api/search", map[string]string{"query": "anything"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode(t, resp)["results"])

	resp = ts.postJSON(t, "/api/ask", map[string]string{"query": "anything"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, service.NoContextAnswer, decode(t, resp)["answer"])
}

func TestUploadWithoutFiles(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.upload(t, "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsyncUploadAndJobStatus(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.upload(t, "?async=1", map[string]string{"notes.md": "# Notes\n\nSome notes about channels."})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decode(t, resp)["job_id"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		st, ok := ts.queue.Status(id)
		return ok && st.State == ingest.StateDone
	}, 2*time.Second, 10*time.Millisecond)

	r, err := http.Get(ts.URL + "/api/jobs/" + id)
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)
	job := decode(t, r)
	assert.Equal(t, id, job["id"])
	assert.Equal(t, string(ingest.StateDone), job["state"])
	assert.EqualValues(t, 0, job["pending"])

	r3, err := http.Get(ts.URL + "/api/documents")
	require.NoError(t, err)
	defer r3.Body.Close()
	docs := decode(t, r3)["documents"].([]interface{})
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.md", docs[0].(map[string]interface{})["filename"])

	r2, err := http.Get(ts.URL + "/api/jobs/missing")
	require.NoError(t, err)
	defer r2.Body.Close()
	assert.Equal(t, http.StatusNotFound, r2.StatusCode)
}

func TestClearRemovesIndexAndUploads(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.upload(t, "", map[string]string{"a.txt": "alpha beta gamma"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.postJSON(t, "/api/clear", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := os.Stat(ts.uploadDir)
	assert.True(t, os.IsNotExist(err))

	r, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer r.Body.Close()
	var stats domain.Stats
	require.NoError(t, json.NewDecoder(r.Body).Decode(&stats))
	assert.Zero(t, stats.TotalVectors)
}

func TestProgressEndpoints(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.upload(t, "", map[string]string{"a.txt": "alpha beta gamma"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r, err := http.Get(ts.URL + "/api/progress")
	require.NoError(t, err)
	defer r.Body.Close()
	var snap progress.Snapshot
	require.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
	assert.False(t, snap.Active)
	assert.Equal(t, progress.StatusCompleted, snap.Step(progress.StepIndexing).Status)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/progress/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var pushed progress.Snapshot
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, snap.RunID, pushed.RunID)
	assert.False(t, pushed.Active)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.Kind]int{
		domain.KindConfig:            http.StatusBadRequest,
		domain.KindInvalidInput:      http.StatusBadRequest,
		domain.KindUnsupportedFormat: http.StatusBadRequest,
		domain.KindDimensionMismatch: http.StatusUnprocessableEntity,
		domain.KindLengthMismatch:    http.StatusUnprocessableEntity,
		domain.KindBusy:              http.StatusConflict,
		domain.KindUpstream:          http.StatusBadGateway,
		domain.KindCorruptIndex:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(domain.E(kind, "op", "failed")), kind.String())
	}
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", safeFilename("../../report.pdf"))
	assert.Equal(t, "my_file.txt", safeFilename(`C:\docs\my file.txt`))
	assert.Equal(t, "отчёт.docx", safeFilename("отчёт.docx"))
	assert.Equal(t, "", safeFilename(".."))
}
