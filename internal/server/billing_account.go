package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
)

func (s *Server) ListBillingAccounts(c *gin.Context) {
	resp, err := s.accounts.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Accounts})
}

func (s *Server) CreateBillingAccount(c *gin.Context) {
	var req billingaccountdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.accounts.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateBillingAccount(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))

	var req billingaccountdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.accounts.Update(c.Request.Context(), code, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
