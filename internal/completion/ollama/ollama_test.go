package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string    `json:"model"`
			Messages []message `json:"messages"`
			Stream   bool      `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, message{Role: "system", Content: "be brief"}, req.Messages[0])
		assert.Equal(t, "user", req.Messages[1].Role)

		_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"42"},"done":true}`))
	}))
	defer srv.Close()

	out, err := NewClient(Config{BaseURL: srv.URL}).Complete(context.Background(), "be brief", "answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestCompleteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model missing", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUpstream))

	srv.Close()
	_, err = NewClient(Config{BaseURL: srv.URL}).Complete(context.Background(), "s", "u")
	assert.True(t, domain.IsKind(err, domain.KindUpstream))
}
