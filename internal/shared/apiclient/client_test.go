package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	var gotAuth, gotQuery string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&gotBody)
		}
		switch r.URL.Path {
		case "/api/v1/ok":
			w.Write([]byte(`{"code":0,"message":"success","data":{"draft_key":"abc123"}}`))
		case "/api/v1/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":40400,"message":"Draft not found"}`))
		case "/api/v1/broken":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`<html>bad gateway</html>`))
		case "/api/v1/biz":
			w.Write([]byte(`{"code":40000,"message":"invalid draft type"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/", "tok", time.Second)
	ctx := context.Background()

	t.Run("decodes data and sends auth", func(t *testing.T) {
		var out struct {
			DraftKey string `json:"draft_key"`
		}
		err := c.Do(ctx, http.MethodPost, "/ok", url.Values{"a": {"1"}}, map[string]string{"x": "y"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "abc123", out.DraftKey)
		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, "a=1", gotQuery)
		assert.Equal(t, "y", gotBody["x"])
	})

	t.Run("not found is typed", func(t *testing.T) {
		err := c.Do(ctx, http.MethodDelete, "/missing", nil, nil, nil)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Draft not found", apiErr.Message)
	})

	t.Run("non json error body", func(t *testing.T) {
		err := c.Do(ctx, http.MethodGet, "/broken", nil, nil, nil)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.False(t, IsNotFound(err))
	})

	t.Run("business error with 200", func(t *testing.T) {
		err := c.Do(ctx, http.MethodGet, "/biz", nil, nil, nil)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 40000, apiErr.Code)
	})

	t.Run("transport error", func(t *testing.T) {
		bad := NewClient("http://127.0.0.1:1", "", 200*time.Millisecond)
		err := bad.Do(ctx, http.MethodGet, "/x", nil, nil, nil)
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
	})
}
