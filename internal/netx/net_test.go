package netx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	t.Run("success streams body and names file", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Disposition", `attachment; filename="spiral_tangle_print.png"`)
			_, _ = w.Write([]byte("png-bytes"))
		}))
		defer ts.Close()

		d, err := Fetch(context.Background(), ts.Client(), ts.URL+"/download?token=t&file=x.png")
		require.NoError(t, err)
		defer d.Body.Close()

		body, err := io.ReadAll(d.Body)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(body))
		assert.Equal(t, "spiral_tangle_print.png", d.FileName)
		assert.Equal(t, "image/png", d.ContentType)
		assert.Equal(t, int64(len("png-bytes")), d.Size)
	})

	t.Run("falls back to file query parameter", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("x"))
		}))
		defer ts.Close()

		d, err := Fetch(context.Background(), ts.Client(), ts.URL+"/download?token=t&file=dir%2Fwaves.png")
		require.NoError(t, err)
		defer d.Body.Close()
		assert.Equal(t, "waves.png", d.FileName)
	})

	t.Run("error envelope is decoded", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"error":{"code":"TOKEN_EXPIRED","message":"Download link has expired"}}`))
		}))
		defer ts.Close()

		_, err := Fetch(context.Background(), ts.Client(), ts.URL)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusGone, apiErr.Status)
		assert.Equal(t, "TOKEN_EXPIRED", apiErr.Code)
		assert.Contains(t, apiErr.Error(), "Download link has expired")
	})

	t.Run("non-json error body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer ts.Close()

		_, err := Fetch(context.Background(), ts.Client(), ts.URL)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Empty(t, apiErr.Code)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Fetch(context.Background(), nil, "://nope")
		require.Error(t, err)
	})
}
