package cmd

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	config "github.com/tablecache/tablecache/configs"
	"github.com/tablecache/tablecache/internal/handlers"
	"github.com/tablecache/tablecache/internal/middleware"
)

var (
	apiCmd = &cobra.Command{
		Use:   "api",
		Short: "Serve the cache over HTTP",
		Long:  "Serve get, set, replace and delete over HTTP, plus health and Prometheus metrics endpoints.",
		Run: func(cmd *cobra.Command, args []string) {
			RunApi(cmd, args)
		},
	}
)

func RunApi(cmd *cobra.Command, args []string) {
	adapter, cleanup, err := newAdapter()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create cache adapter")
	}
	defer cleanup()

	r := gin.New()
	r.Use(middleware.Logger())
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.Use(middleware.Authorization(config.Cfg.API.Auth))
		handlers.NewCacheHandler(adapter).Register(v1)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%d", config.Cfg.API.Host, config.Cfg.API.Port)
	log.Info().Str("addr", addr).Str("table", adapter.Table()).Msg("Starting API server")
	if err := r.Run(addr); err != nil {
		log.Error().Err(err).Msg("API server stopped")
	}
}
