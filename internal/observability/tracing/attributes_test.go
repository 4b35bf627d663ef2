package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("webhook_secret", "s3cret"),
		attribute.String("customer_email", "a@b.c"),
		attribute.String("http.route", "/webhooks/billing/invoice"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(errors.New("password=hunter2"))
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Nil(t, SafeError(nil))
}
