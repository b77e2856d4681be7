package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"finsight/internal/store"
)

// defaultLookbackDays bounds prediction and history queries when the caller
// gives no range
const defaultLookbackDays = 30

func (s *Server) handleQuote(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	quote, err := s.provider.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, quote)
}

func (s *Server) handlePredictions(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	predictions, err := s.store.GetPredictions(c.Request.Context(), symbol, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load predictions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "predictions": predictions})
}

func (s *Server) handleHistory(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bars, err := s.store.GetPricePoints(c.Request.Context(), symbol, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "bars": bars})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.store.ListPositions(c.Request.Context(), s.userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load positions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	summary, err := s.store.GetSummary(c.Request.Context(), s.userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no portfolio for user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load portfolio"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleOrders(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	orders, err := s.store.ListOrders(c.Request.Context(), s.userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// parseRange reads optional from/to query params (YYYY-MM-DD), defaulting to
// the last defaultLookbackDays days
func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -defaultLookbackDays)
	to := now

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from date, want YYYY-MM-DD")
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to date, want YYYY-MM-DD")
		}
		// Include the whole end day
		to = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	return from, to, nil
}
