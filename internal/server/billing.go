package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/creditledger/internal/billing/domain"
	billingoverview "github.com/smallbiznis/creditledger/internal/billingoverview/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
)

// Amount accepts a JSON number or a decimal string.
type addCreditsRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Server) AddCredits(c *gin.Context) {
	var req addCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	info, err := s.billingSvc.AddCredits(c.Request.Context(), billingdomain.AddCreditsRequest{
		UserID:      userIDFromContext(c),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "credits added",
		"billing": info,
	})
}

func (s *Server) GetBillingInfo(c *gin.Context) {
	info, err := s.billingSvc.GetInfo(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"billing": info,
		"usage":   info.RecentUsage,
	})
}

func (s *Server) ListUsage(c *gin.Context) {
	days, err := parseIntQuery(c.Query("days"), defaultUsageWindowDays)
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "days must be an integer"))
		return
	}
	page, err := parsePageQuery(c.Query("page"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.ListUsage(c.Request.Context(), billingoverview.ListUsageRequest{
		UserID:     userIDFromContext(c),
		WindowDays: days,
		Page:       page.Page,
		Limit:      page.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListTransactions(c *gin.Context) {
	page, err := parsePageQuery(c.Query("page"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.ListTransactions(c.Request.Context(), ledgerdomain.ListTransactionsRequest{
		UserID: userIDFromContext(c),
		Page:   page.Page,
		Limit:  page.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
