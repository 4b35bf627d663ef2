package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/worksuite/internal/config"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	stripeapi "github.com/stripe/stripe-go/v83"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"server error", &stripeapi.Error{HTTPStatusCode: http.StatusBadGateway, Msg: "upstream"}, billingdomain.ErrUnavailable},
		{"rate limited", &stripeapi.Error{HTTPStatusCode: http.StatusTooManyRequests}, billingdomain.ErrUnavailable},
		{"bad request", &stripeapi.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "No such customer"}, billingdomain.ErrRejected},
		{"deadline", context.DeadlineExceeded, billingdomain.ErrUnavailable},
		{"network", errors.New("connection reset"), billingdomain.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tc.err), tc.want)
		})
	}
	assert.NoError(t, classify(nil))
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.ProviderConfig{Kind: config.ProviderKindStripe}, zap.NewNop())
	require.ErrorIs(t, err, billingdomain.ErrNotConfigured)

	p, err := New(config.ProviderConfig{Kind: config.ProviderKindStripe, APIKey: "sk_test_123"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "stripe", p.Name())
}

func TestCreateInvoiceValidatesBeforeCallingStripe(t *testing.T) {
	p, err := New(config.ProviderConfig{APIKey: "sk_test_123"}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.CreateInvoice(context.Background(), billingdomain.RemoteInvoiceRequest{InvoiceID: "1"})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidData)

	_, err = p.ResolveDocumentURL(context.Background(), " ")
	assert.ErrorIs(t, err, billingdomain.ErrInvalidData)
}
