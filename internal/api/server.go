// Package api is the HTTP boundary: gin routes, bearer-token auth and the
// translation between flow errors and LNURL wire responses.
package api

import (
	"context"
	"net/http"
	"time"

	"ln-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the listen address and auth settings of the HTTP server.
type Config struct {
	Host         string
	Port         string
	Environment  string
	JWTSecret    string
	JWTAlgorithm string
}

// NewRouter builds the gin engine with all gateway routes mounted.
func NewRouter(cfg Config, h *Handler, db, cache Pinger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	authed := router.Group("/", Authenticate(cfg.JWTSecret, cfg.JWTAlgorithm))
	authed.GET("/withdraw/ln/request", h.WithdrawRequest)
	authed.GET("/deposit/ln/request", h.DepositRequest)

	// wallet-facing endpoints, capability held by k1
	router.GET("/withdraw/ln/cb", h.WithdrawCallback)
	router.GET("/withdraw/ln", h.WithdrawSubmit)
	router.GET("/deposit/ln/cb", h.DepositCallback)
	router.GET("/deposit/ln", h.DepositInvoice)

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := cache.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "cache unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// NewServer wraps the router in an http.Server ready for graceful shutdown.
func NewServer(cfg Config, router *gin.Engine) *http.Server {
	addr := cfg.Host + ":" + cfg.Port
	logger.Info("HTTP server configured on " + addr)
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
