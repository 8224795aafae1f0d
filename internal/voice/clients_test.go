package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personad/internal/prompt"
)

func TestOllamaChatErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		ctype  string
		body   string
	}{
		{"plain text", http.StatusServiceUnavailable, "text/plain", "model not loaded\n"},
		{"error field", http.StatusNotFound, "application/json", `{"error":"model \"gemma:2b\" not found"}` + "\n"},
		{"json without error", http.StatusInternalServerError, "application/json", `{}` + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewOllamaChat(srv.URL, "gemma:2b", 16, nil)
			require.NoError(t, err)
			_, err = c.Chat(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
			var ue *UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, "llm", ue.Service)
			assert.Equal(t, tc.status, ue.Status)
		})
	}
}

func TestOllamaChatStatusPerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Fail") != "" {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewOllamaChat(srv.URL, "gemma:2b", 16, &http.Client{Transport: failHeader{}})
	require.NoError(t, err)
	ok, err := NewOllamaChat(srv.URL, "gemma:2b", 16, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.Chat(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
			var ue *UpstreamError
			if assert.ErrorAs(t, err, &ue) {
				assert.Equal(t, http.StatusTooManyRequests, ue.Status)
			}
		}()
		go func() {
			defer wg.Done()
			out, err := ok.Chat(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
			assert.NoError(t, err)
			assert.Equal(t, "ok", out)
		}()
	}
	wg.Wait()
}

// failHeader marks requests so the test server rejects them.
type failHeader struct{}

func (failHeader) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-Fail", "1")
	return http.DefaultTransport.RoundTrip(r)
}
