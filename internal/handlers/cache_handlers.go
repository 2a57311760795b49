package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tablecache/tablecache/api"
	"github.com/tablecache/tablecache/internal/cache"
	"github.com/tablecache/tablecache/internal/storage"
)

// CacheHandler serves the adapter over HTTP. The adapter keeps a single last
// error slot, so requests are serialized.
type CacheHandler struct {
	mu      sync.Mutex
	adapter *cache.Adapter
}

func NewCacheHandler(adapter *cache.Adapter) *CacheHandler {
	return &CacheHandler{adapter: adapter}
}

func (h *CacheHandler) Register(r gin.IRouter) {
	r.GET("/cache/:key", h.GetValue)
	r.PUT("/cache/:key", h.SetValue)
	r.POST("/cache/:key/replace", h.ReplaceValue)
	r.DELETE("/cache/:key", h.DeleteValue)
}

// @Summary Get a cached value
// @Tags cache
// @Produce json
// @Security BasicAuth
// @Param key path string true "Cache key"
// @Success 200 {object} api.CacheResponse
// @Failure 404 {object} api.Error
// @Failure 500 {object} api.Error
// @Router /v1/cache/{key} [get]
func (h *CacheHandler) GetValue(c *gin.Context) {
	key := c.Param("key")

	h.mu.Lock()
	before := h.adapter.LastError()
	value, ok := h.adapter.Get(key)
	after := h.adapter.LastError()
	h.mu.Unlock()

	if !ok {
		// Get only records decode faults, a plain miss leaves the slot alone
		if after != nil && after != before {
			log.Error().Err(after).Str("key", key).Msg("Error decoding cached value")
			api.StorageErrorHandler(c, after)
			return
		}
		api.NotFoundErrorHandler(c, fmt.Sprintf("key %q not found", key))
		return
	}

	// stored values may hold types JSON cannot carry, e.g. complex numbers
	body, err := json.Marshal(api.CacheResponse{Key: key, Value: value, Ok: true})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Error encoding cached value as JSON")
		api.InternalErrorHandler(c)
		return
	}
	c.Data(200, "application/json; charset=utf-8", body)
}

// @Summary Store a value
// @Tags cache
// @Accept json
// @Produce json
// @Security BasicAuth
// @Param key path string true "Cache key"
// @Param compress query int false "Accepted and ignored"
// @Param timeout query int false "Accepted and ignored"
// @Success 200 {object} api.CacheResponse
// @Failure 400 {object} api.Error
// @Failure 500 {object} api.Error
// @Router /v1/cache/{key} [put]
func (h *CacheHandler) SetValue(c *gin.Context) {
	h.handleWrite(c, false)
}

// @Summary Replace an existing value
// @Tags cache
// @Accept json
// @Produce json
// @Security BasicAuth
// @Param key path string true "Cache key"
// @Param compress query int false "Accepted and ignored"
// @Param timeout query int false "Accepted and ignored"
// @Success 200 {object} api.CacheResponse
// @Failure 400 {object} api.Error
// @Failure 409 {object} api.Error
// @Failure 500 {object} api.Error
// @Router /v1/cache/{key}/replace [post]
func (h *CacheHandler) ReplaceValue(c *gin.Context) {
	h.handleWrite(c, true)
}

func (h *CacheHandler) handleWrite(c *gin.Context, replace bool) {
	key := c.Param("key")

	params, err := api.ParseWriteParams(c.Request)
	if err != nil {
		api.BadRequestErrorHandler(c, err)
		return
	}

	value, err := decodeBody(c)
	if err != nil {
		api.BadRequestErrorHandler(c, err)
		return
	}

	h.mu.Lock()
	var ok bool
	if replace {
		ok = h.adapter.Replace(key, value, params.Compress, params.Timeout)
	} else {
		ok = h.adapter.Set(key, value, params.Compress, params.Timeout)
	}
	lastErr := h.adapter.LastError()
	h.mu.Unlock()

	if !ok {
		if replace && errors.Is(lastErr, storage.ErrNotFound) {
			api.ConflictErrorHandler(c, fmt.Sprintf("key %q does not exist", key))
			return
		}
		log.Error().Err(lastErr).Str("key", key).Msg("Error writing cached value")
		api.StorageErrorHandler(c, lastErr)
		return
	}
	c.JSON(200, api.CacheResponse{Key: key, Ok: true})
}

// @Summary Delete a value
// @Tags cache
// @Produce json
// @Security BasicAuth
// @Param key path string true "Cache key"
// @Success 200 {object} api.CacheResponse
// @Failure 404 {object} api.Error
// @Failure 500 {object} api.Error
// @Router /v1/cache/{key} [delete]
func (h *CacheHandler) DeleteValue(c *gin.Context) {
	key := c.Param("key")

	h.mu.Lock()
	ok := h.adapter.Delete(key)
	lastErr := h.adapter.LastError()
	h.mu.Unlock()

	if !ok {
		if errors.Is(lastErr, storage.ErrNotFound) {
			api.NotFoundErrorHandler(c, fmt.Sprintf("key %q not found", key))
			return
		}
		log.Error().Err(lastErr).Str("key", key).Msg("Error deleting cached value")
		api.StorageErrorHandler(c, lastErr)
		return
	}
	c.JSON(200, api.CacheResponse{Key: key, Ok: true})
}

func decodeBody(c *gin.Context) (any, error) {
	var value any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("request body must be a JSON value: %w", err)
	}
	return normalizeNumbers(value), nil
}

// normalizeNumbers turns json.Number into int64 when the number is integral
// and float64 otherwise, so integers survive a round trip unchanged.
func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, item := range v {
			v[k] = normalizeNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
		return v
	default:
		return value
	}
}
