package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"finsight/internal/provider"
	"finsight/internal/store"
)

// Server exposes the dashboard read API: predictions, positions, orders,
// portfolio summary, and live quotes
type Server struct {
	store    store.Store
	provider provider.Provider
	userID   string
	srv      *http.Server
}

// NewServer creates the dashboard API server. userID scopes the portfolio
// routes to the configured account.
func NewServer(s store.Store, p provider.Provider, userID string) *Server {
	return &Server{
		store:    s,
		provider: p,
		userID:   userID,
	}
}

// Router builds the gin router with all API routes registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/quote/:symbol", s.handleQuote)
		api.GET("/predictions/:symbol", s.handlePredictions)
		api.GET("/history/:symbol", s.handleHistory)
		api.GET("/positions", s.handlePositions)
		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/orders", s.handleOrders)
	}

	return router
}

// Start starts the API server on the specified port
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("[WEB] dashboard API listening on http://localhost:%d", port)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers for local dashboard development
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
