package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	"github.com/smallbiznis/worksuite/internal/providers/pdf"
	"go.uber.org/zap"
)

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledger.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.ledger.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// RenderInvoicePDF renders the document on demand. Nothing is stored.
func (s *Server) RenderInvoicePDF(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	item, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc := pdf.Document{
		Issuer: pdf.Issuer{
			Name:    s.cfg.Issuer.Name,
			Address: s.cfg.Issuer.Address,
			Email:   s.cfg.Issuer.Email,
			TaxID:   s.cfg.Issuer.TaxID,
		},
		Invoice:       item,
		BankDetails:   s.cfg.Issuer.BankDetails,
		ServicePeriod: metadataString(item.Metadata, "period"),
	}

	contact, err := s.contacts.Get(ctx, item.ContactID)
	switch {
	case err == nil:
		doc.BillToName = contact.Name
		doc.BillToEmail = contact.Email
		doc.BillToTaxID = contact.TaxID
	case errors.Is(err, contactdomain.ErrContactNotFound):
		s.log.Warn("invoice contact missing, rendering without bill-to",
			zap.String("invoice_id", item.ID.String()),
			zap.String("contact_id", item.ContactID.String()),
		)
	default:
		AbortWithError(c, err)
		return
	}

	body, err := s.renderer.RenderInvoice(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := item.Number
	if strings.TrimSpace(filename) == "" {
		filename = item.ID.String()
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename+".pdf"))
	c.Data(http.StatusOK, "application/pdf", body)
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	value, ok := meta[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
