// Package http 挂单市场接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/application"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/domain"
	"github.com/wyfcoding/yieldmarket/pkg/metrics"
)

type Handler struct {
	service *application.MarketplaceService
	metrics *metrics.Metrics
}

func NewHandler(service *application.MarketplaceService, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/marketplace")
	{
		g.POST("/listings", h.ListYT)
		g.POST("/listings/:key/buy", h.BuyYT)
		g.POST("/listings/:key/cancel", h.CancelListing)
		g.GET("/listings/:key", h.GetListing)
		g.GET("/listings", h.ListActive)
	}
}

// statusOf 领域错误到 HTTP 状态码的映射；未识别的一律 500
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrMintNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateListing):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrListingNotActive),
		errors.Is(err, domain.ErrListingExpired),
		errors.Is(err, domain.ErrCannotBuyOwnListing),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, ledger.ErrMintMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) syncActiveGauge(c *gin.Context) {
	if count, err := h.service.CountActiveListings(c.Request.Context()); err == nil {
		h.metrics.ListingsActive.Set(float64(count))
	}
}

type ListYTReq struct {
	Seller      string `json:"seller" binding:"required"`
	YTMint      string `json:"yt_mint" binding:"required"`
	PaymentMint string `json:"payment_mint" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Price       string `json:"price" binding:"required"`
}

func (h *Handler) ListYT(c *gin.Context) {
	var req ListYTReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	listing, err := h.service.ListYT(c.Request.Context(), application.ListYTCmd{
		Seller:      req.Seller,
		YTMint:      req.YTMint,
		PaymentMint: req.PaymentMint,
		Amount:      amount,
		Price:       price,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.syncActiveGauge(c)
	c.JSON(http.StatusCreated, listing)
}

type BuyYTReq struct {
	Buyer string `json:"buyer" binding:"required"`
}

func (h *Handler) BuyYT(c *gin.Context) {
	var req BuyYTReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.BuyYT(c.Request.Context(), req.Buyer, c.Param("key"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.metrics.ListingsFilled.Inc()
	h.syncActiveGauge(c)
	c.JSON(http.StatusOK, listing)
}

type CancelListingReq struct {
	Caller string `json:"caller" binding:"required"`
}

func (h *Handler) CancelListing(c *gin.Context) {
	var req CancelListingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.CancelListing(c.Request.Context(), req.Caller, c.Param("key"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.metrics.ListingsCancelled.Inc()
	h.syncActiveGauge(c)
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) GetListing(c *gin.Context) {
	listing, err := h.service.GetListing(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (h *Handler) ListActive(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	listings, total, err := h.service.ListActiveListings(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings, "total": total})
}
