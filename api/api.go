package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog/log"
)

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteParams are the memcache write options. They are accepted and passed
// through, the store ignores them.
type WriteParams struct {
	Compress int `schema:"compress"`
	Timeout  int `schema:"timeout"`
}

type CacheResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Ok    bool   `json:"ok"`
}

func writeError(c *gin.Context, message string, code int) {
	resp := Error{
		Code:    code,
		Message: message,
	}
	c.JSON(code, resp)
}

var (
	BadRequestErrorHandler = func(c *gin.Context, err error) {
		writeError(c, err.Error(), http.StatusBadRequest)
	}
	InternalErrorHandler = func(c *gin.Context) {
		writeError(c, "An unexpected error occurred.", http.StatusInternalServerError)
	}
	StorageErrorHandler = func(c *gin.Context, err error) {
		writeError(c, err.Error(), http.StatusInternalServerError)
	}
	UnauthorizedErrorHandler = func(c *gin.Context, err error) {
		writeError(c, err.Error(), http.StatusUnauthorized)
	}
	NotFoundErrorHandler = func(c *gin.Context, message string) {
		writeError(c, message, http.StatusNotFound)
	}
	ConflictErrorHandler = func(c *gin.Context, message string) {
		writeError(c, message, http.StatusConflict)
	}
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

func ParseWriteParams(r *http.Request) (WriteParams, error) {
	var params WriteParams
	if err := decoder.Decode(&params, r.URL.Query()); err != nil {
		log.Debug().Err(err).Msg("Error decoding write params")
		return WriteParams{}, err
	}
	return params, nil
}
