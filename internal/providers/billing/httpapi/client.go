// Package httpapi talks to a generic JSON invoicing API.
//
//	POST {base}/invoices      -> {"id": "...", "pdfUrl": "..."}
//	GET  {base}/invoices/{id} -> {"id": "...", "pdfUrl": "..."}
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	log     *zap.Logger
}

type createInvoiceBody struct {
	Reference     string            `json:"reference"`
	CustomerEmail string            `json:"customerEmail"`
	CustomerName  string            `json:"customerName,omitempty"`
	AmountCents   int64             `json:"amountCents"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	DueInDays     int               `json:"dueInDays"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type invoiceResponse struct {
	ID     string `json:"id"`
	PDFURL string `json:"pdfUrl"`
}

func New(cfg config.ProviderConfig, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base url is required", billingdomain.ErrNotConfigured)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", billingdomain.ErrNotConfigured, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient = tracing.WrapHTTPClient(&http.Client{Timeout: timeout})
	rc.Logger = leveledLogger{log: log.Named("billing.httpapi")}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    rc,
		log:     log.Named("billing.httpapi"),
	}, nil
}

func (c *Client) Name() string { return config.ProviderKindHTTP }

func (c *Client) CreateInvoice(ctx context.Context, req billingdomain.RemoteInvoiceRequest) (billingdomain.RemoteInvoice, error) {
	if err := req.Validate(); err != nil {
		return billingdomain.RemoteInvoice{}, err
	}

	payload, err := json.Marshal(createInvoiceBody{
		Reference:     req.Number,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		AmountCents:   req.AmountMinor,
		Currency:      strings.ToLower(req.Currency),
		Description:   req.Description,
		DueInDays:     req.DueInDays,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return billingdomain.RemoteInvoice{}, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", payload)
	if err != nil {
		return billingdomain.RemoteInvoice{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey())

	var out invoiceResponse
	if err := c.do(httpReq, &out); err != nil {
		return billingdomain.RemoteInvoice{}, err
	}
	if out.ID == "" {
		return billingdomain.RemoteInvoice{}, fmt.Errorf("%w: response carried no invoice id", billingdomain.ErrRejected)
	}
	return billingdomain.RemoteInvoice{ID: out.ID, DocumentURL: out.PDFURL}, nil
}

func (c *Client) ResolveDocumentURL(ctx context.Context, externalInvoiceID string) (string, error) {
	externalInvoiceID = strings.TrimSpace(externalInvoiceID)
	if externalInvoiceID == "" {
		return "", billingdomain.ErrInvalidData
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/invoices/"+url.PathEscape(externalInvoiceID), nil)
	if err != nil {
		return "", err
	}

	var out invoiceResponse
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	return out.PDFURL, nil
}

func (c *Client) do(req *retryablehttp.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", billingdomain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", billingdomain.ErrRejected, err)
	}
	return nil
}

func classifyStatus(status int, body []byte) error {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d: %s", billingdomain.ErrUnavailable, status, body)
	}
	return fmt.Errorf("%w: status %d: %s", billingdomain.ErrRejected, status, body)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log *zap.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Sugar().Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Sugar().Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Sugar().Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Sugar().Debugw(msg, kv...) }
