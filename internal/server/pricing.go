package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
)

func (s *Server) ListPricing(c *gin.Context) {
	rules, err := s.billingSvc.ListPricing(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if rules == nil {
		rules = []pricingdomain.PricingRule{}
	}

	c.JSON(http.StatusOK, gin.H{"pricing_rules": rules})
}

func (s *Server) CreatePricingRule(c *gin.Context) {
	var req pricingdomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.billingSvc.CreatePricingRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"pricing_rule": rule})
}

func (s *Server) DeactivatePricingRule(c *gin.Context) {
	if err := s.billingSvc.DeactivatePricingRule(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func isPricingValidationError(err error) bool {
	return errors.Is(err, pricingdomain.ErrInvalidProvider) ||
		errors.Is(err, pricingdomain.ErrInvalidModelName) ||
		errors.Is(err, pricingdomain.ErrInvalidPrice) ||
		errors.Is(err, pricingdomain.ErrInvalidID)
}
