package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dhananjaym182/stock-app-backend/services"
)

// StockController handles stock data requests
type StockController struct {
	stocks *services.StockService
}

// NewStockController creates a new stock controller
func NewStockController(stocks *services.StockService) *StockController {
	return &StockController{stocks: stocks}
}

// GetQuote returns a real-time quote for a symbol
// GET /api/v1/stocks/:symbol/quote
func (sc *StockController) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")

	result, err := sc.stocks.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(statusFor(err), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetHistory returns historical bars for a symbol over a period
// GET /api/v1/stocks/:symbol/history?period=6M
func (sc *StockController) GetHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	period := c.DefaultQuery("period", "6M")

	result, err := sc.stocks.GetHistory(c.Request.Context(), symbol, period)
	if err != nil {
		c.JSON(statusFor(err), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SearchStocks searches stocks by symbol or name substring
// GET /api/v1/stocks/search?q=...
func (sc *StockController) SearchStocks(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	result, err := sc.stocks.SearchStocks(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// statusFor maps the service error taxonomy to an HTTP status
func statusFor(err error) int {
	if errors.Is(err, services.ErrSymbolNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
