// Package stripe mirrors local invoices as Stripe invoices sent to the customer.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
)

type Provider struct {
	client *stripeapi.Client
	log    *zap.Logger
}

func New(cfg config.ProviderConfig, log *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: stripe api key is required", billingdomain.ErrNotConfigured)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        tracing.WrapHTTPClient(&http.Client{Timeout: timeout}),
		MaxNetworkRetries: stripeapi.Int64(int64(cfg.Retries)),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripeapi.String(cfg.BaseURL)
	}

	client := stripeapi.NewClient(cfg.APIKey,
		stripeapi.WithBackends(stripeapi.NewBackendsWithConfig(backendCfg)))

	return &Provider{client: client, log: log.Named("billing.stripe")}, nil
}

func (p *Provider) Name() string { return config.ProviderKindStripe }

func (p *Provider) CreateInvoice(ctx context.Context, req billingdomain.RemoteInvoiceRequest) (billingdomain.RemoteInvoice, error) {
	if err := req.Validate(); err != nil {
		return billingdomain.RemoteInvoice{}, err
	}

	customerID, err := p.ensureCustomer(ctx, req)
	if err != nil {
		return billingdomain.RemoteInvoice{}, classify(err)
	}

	dueInDays := int64(req.DueInDays)
	if dueInDays <= 0 {
		dueInDays = 1
	}

	invParams := &stripeapi.InvoiceCreateParams{
		Customer:         stripeapi.String(customerID),
		CollectionMethod: stripeapi.String(string(stripeapi.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:     stripeapi.Int64(dueInDays),
		Description:      stripeapi.String(req.Description),
		AutoAdvance:      stripeapi.Bool(false),
	}
	invParams.SetIdempotencyKey(req.IdempotencyKey())
	for k, v := range req.Metadata {
		invParams.AddMetadata(k, v)
	}
	invParams.AddMetadata("worksuite_invoice_id", req.InvoiceID)
	invParams.AddMetadata("worksuite_invoice_number", req.Number)

	inv, err := p.client.V1Invoices.Create(ctx, invParams)
	if err != nil {
		return billingdomain.RemoteInvoice{}, classify(err)
	}

	itemParams := &stripeapi.InvoiceItemCreateParams{
		Customer:    stripeapi.String(customerID),
		Invoice:     stripeapi.String(inv.ID),
		Amount:      stripeapi.Int64(req.AmountMinor),
		Currency:    stripeapi.String(strings.ToLower(req.Currency)),
		Description: stripeapi.String(req.Description),
	}
	itemParams.SetIdempotencyKey(req.IdempotencyKey() + "-item")
	if _, err := p.client.V1InvoiceItems.Create(ctx, itemParams); err != nil {
		return billingdomain.RemoteInvoice{}, classify(err)
	}

	finalized, err := p.client.V1Invoices.FinalizeInvoice(ctx, inv.ID, &stripeapi.InvoiceFinalizeInvoiceParams{})
	if err != nil {
		return billingdomain.RemoteInvoice{}, classify(err)
	}

	p.log.Info("remote invoice created",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("stripe_invoice_id", finalized.ID),
	)
	return billingdomain.RemoteInvoice{ID: finalized.ID, DocumentURL: finalized.InvoicePDF}, nil
}

func (p *Provider) ResolveDocumentURL(ctx context.Context, externalInvoiceID string) (string, error) {
	externalInvoiceID = strings.TrimSpace(externalInvoiceID)
	if externalInvoiceID == "" {
		return "", billingdomain.ErrInvalidData
	}
	inv, err := p.client.V1Invoices.Retrieve(ctx, externalInvoiceID, &stripeapi.InvoiceRetrieveParams{})
	if err != nil {
		return "", classify(err)
	}
	if inv.InvoicePDF != "" {
		return inv.InvoicePDF, nil
	}
	return inv.HostedInvoiceURL, nil
}

func (p *Provider) ensureCustomer(ctx context.Context, req billingdomain.RemoteInvoiceRequest) (string, error) {
	listParams := &stripeapi.CustomerListParams{Email: stripeapi.String(req.CustomerEmail)}
	listParams.Limit = stripeapi.Int64(1)
	for customer, err := range p.client.V1Customers.List(ctx, listParams) {
		if err != nil {
			return "", err
		}
		if customer != nil && customer.ID != "" {
			return customer.ID, nil
		}
	}

	params := &stripeapi.CustomerCreateParams{
		Email: stripeapi.String(req.CustomerEmail),
	}
	if req.CustomerName != "" {
		params.Name = stripeapi.String(req.CustomerName)
	}
	params.SetIdempotencyKey("worksuite-customer-" + strings.ToLower(req.CustomerEmail))
	customer, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", billingdomain.ErrUnavailable, stripeErr.Msg)
		}
		return fmt.Errorf("%w: %s", billingdomain.ErrRejected, stripeErr.Msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", billingdomain.ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", billingdomain.ErrUnavailable, err)
}
