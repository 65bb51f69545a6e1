package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m","choices":[
			{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}
		]}`))
	}))
	defer srv.Close()

	t.Setenv("DOCRAG_TEST_KEY", "k")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "DOCRAG_TEST_KEY", Model: "m"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
