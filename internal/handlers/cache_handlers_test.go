package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablecache/tablecache/api"
	config "github.com/tablecache/tablecache/configs"
	"github.com/tablecache/tablecache/internal/cache"
	"github.com/tablecache/tablecache/internal/middleware"
	"github.com/tablecache/tablecache/internal/storage"
)

func setupTestRouter(t *testing.T, auth *config.BasicAuthConfig) (*gin.Engine, *storage.MemoryConnector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewMemoryConnector(&config.MemoryConfig{})
	require.NoError(t, err)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(middleware.Authorization(auth))
	NewCacheHandler(cache.New(store, "cache")).Register(v1)
	return router, store
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) api.CacheResponse {
	t.Helper()
	var resp api.CacheResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSetThenGet(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, "PUT", "/v1/cache/user:1?compress=1&timeout=60", `{"name":"a","age":30,"tags":["x"]}`)
	assert.Equal(t, 200, w.Code)
	assert.True(t, decodeResponse(t, w).Ok)

	w = doRequest(router, "GET", "/v1/cache/user:1", "")
	assert.Equal(t, 200, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "user:1", resp.Key)
	assert.Equal(t, map[string]any{"name": "a", "age": float64(30), "tags": []any{"x"}}, resp.Value)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, "GET", "/v1/cache/nope", "")
	assert.Equal(t, 404, w.Code)
}

func TestGetUndecodableReturnsServerError(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	require.NoError(t, store.InsertOrReplaceEntity(context.Background(), "cache", storage.Entity{
		PartitionKey: "bad",
		RowKey:       "bad",
		Properties:   map[string]string{cache.ValueColumn: "%%%"},
	}))

	w := doRequest(router, "GET", "/v1/cache/bad", "")
	assert.Equal(t, 500, w.Code)

	// a later miss is still a miss even though the last error is set
	w = doRequest(router, "GET", "/v1/cache/nope", "")
	assert.Equal(t, 404, w.Code)
}

func TestSetRejectsInvalidInput(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, "PUT", "/v1/cache/k", `{not json`)
	assert.Equal(t, 400, w.Code)

	w = doRequest(router, "PUT", "/v1/cache/k", "")
	assert.Equal(t, 400, w.Code)

	w = doRequest(router, "PUT", "/v1/cache/k?compress=yes", `"v"`)
	assert.Equal(t, 400, w.Code)
}

func TestReplace(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, "POST", "/v1/cache/k/replace", `"v1"`)
	assert.Equal(t, 409, w.Code)

	w = doRequest(router, "PUT", "/v1/cache/k", `"v1"`)
	require.Equal(t, 200, w.Code)

	w = doRequest(router, "POST", "/v1/cache/k/replace?timeout=soon", `"v2"`)
	assert.Equal(t, 400, w.Code)

	w = doRequest(router, "POST", "/v1/cache/k/replace?compress=1&timeout=30", `"v2"`)
	assert.Equal(t, 200, w.Code)

	w = doRequest(router, "GET", "/v1/cache/k", "")
	assert.Equal(t, "v2", decodeResponse(t, w).Value)
}

func TestDelete(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, "PUT", "/v1/cache/k", `1`)
	require.Equal(t, 200, w.Code)

	w = doRequest(router, "DELETE", "/v1/cache/k", "")
	assert.Equal(t, 200, w.Code)

	w = doRequest(router, "DELETE", "/v1/cache/k", "")
	assert.Equal(t, 404, w.Code)

	w = doRequest(router, "GET", "/v1/cache/k", "")
	assert.Equal(t, 404, w.Code)
}

func TestBasicAuth(t *testing.T) {
	router, _ := setupTestRouter(t, &config.BasicAuthConfig{Username: "admin", Password: "secret"})

	w := doRequest(router, "GET", "/v1/cache/k", "")
	assert.Equal(t, 401, w.Code)

	req, _ := http.NewRequest("GET", "/v1/cache/k", nil)
	req.SetBasicAuth("admin", "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 401, w.Code)

	req, _ = http.NewRequest("GET", "/v1/cache/k", nil)
	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 404, w.Code)
}

func TestNormalizeNumbers(t *testing.T) {
	got := normalizeNumbers(map[string]any{
		"int":   json.Number("42"),
		"float": json.Number("1.5"),
		"list":  []any{json.Number("-3"), "s"},
	})
	assert.Equal(t, map[string]any{
		"int":   int64(42),
		"float": 1.5,
		"list":  []any{int64(-3), "s"},
	}, got)
}

func TestEmptyCollectionsSurvive(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, "PUT", "/v1/cache/k", `{"tags":[],"attrs":{},"nested":[[],{"x":[]}]}`)
	require.Equal(t, 200, w.Code)

	w = doRequest(router, "GET", "/v1/cache/k", "")
	require.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"key":"k","value":{"tags":[],"attrs":{},"nested":[[],{"x":[]}]},"ok":true}`, w.Body.String())

	w = doRequest(router, "PUT", "/v1/cache/list", `[]`)
	require.Equal(t, 200, w.Code)
	w = doRequest(router, "GET", "/v1/cache/list", "")
	assert.JSONEq(t, `{"key":"list","value":[],"ok":true}`, w.Body.String())
}

func TestGetValueNotRepresentableAsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := storage.NewMemoryConnector(&config.MemoryConfig{})
	require.NoError(t, err)
	adapter := cache.New(store, "cache")
	require.True(t, adapter.Set("c", complex(1, 2), 0, 0))

	router := gin.New()
	NewCacheHandler(adapter).Register(router.Group("/v1"))

	w := doRequest(router, "GET", "/v1/cache/c", "")
	assert.Equal(t, 500, w.Code)
	var resp api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 500, resp.Code)
}
