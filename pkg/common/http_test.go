package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "H2Integrate/"+Version(), r.Header.Get("User-Agent"), "User-Agent should match expected format")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	timeout := 5 * time.Second
	client := HTTPClient(timeout)

	assert.Equal(t, timeout, client.Timeout, "Timeout should be set correctly")
	assert.NotNil(t, client.Transport, "Transport should not be nil")

	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.csv":
			w.Write([]byte("1\n2\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := HTTPClient(time.Second)

	t.Run("ok", func(t *testing.T) {
		body, err := Download(context.Background(), client, server.URL+"/ok.csv")
		require.NoError(t, err)
		assert.Equal(t, "1\n2\n", string(body))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := Download(context.Background(), client, server.URL+"/missing.csv")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}
