package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/billingcycle"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	"github.com/smallbiznis/worksuite/internal/providers/pdf"
	reconciliationdomain "github.com/smallbiznis/worksuite/internal/reconciliation/domain"
	"github.com/smallbiznis/worksuite/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/worksuite/internal/webhook/domain"
	"github.com/smallbiznis/worksuite/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrGone               = errors.New("gone")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, webhookdomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrGone),
		errors.Is(err, subscriptiondomain.ErrSubscriptionInactive):
		return http.StatusGone, errorPayload{
			Type:    "gone",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		db.IsTransient(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and a low-cardinality code for request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if status == http.StatusBadRequest && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		code = "deadline_exceeded"
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, webhookdomain.ErrInvalidPayload),
		errors.Is(err, billingcycle.ErrInvalidPeriod),
		errors.Is(err, pdf.ErrNoLines):
		return true
	case isBillingAccountValidationError(err),
		isContactValidationError(err),
		isBookingValidationError(err),
		isSubscriptionValidationError(err),
		isInvoiceValidationError(err),
		isReconciliationValidationError(err):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, scheduler.ErrLockHeld),
		errors.Is(err, billingaccountdomain.ErrAccountInactive),
		errors.Is(err, billingaccountdomain.ErrDuplicateCode),
		errors.Is(err, invoicedomain.ErrDuplicateInvoiceNumber),
		errors.Is(err, invoicedomain.ErrDuplicateExternalInvoice),
		errors.Is(err, subscriptiondomain.ErrSubscriptionAlreadyBound),
		errors.Is(err, subscriptiondomain.ErrDuplicateExternalID),
		errors.Is(err, subscriptiondomain.ErrAlreadyInvoiced),
		errors.Is(err, bookingdomain.ErrBookingsAlreadyClaimed):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingaccountdomain.ErrAccountNotFound),
		errors.Is(err, contactdomain.ErrContactNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isBillingAccountValidationError(err error) bool {
	switch {
	case errors.Is(err, billingaccountdomain.ErrInvalidCode),
		errors.Is(err, billingaccountdomain.ErrInvalidName),
		errors.Is(err, billingaccountdomain.ErrInvalidCounter):
		return true
	default:
		return false
	}
}

func isContactValidationError(err error) bool {
	switch {
	case errors.Is(err, contactdomain.ErrInvalidName),
		errors.Is(err, contactdomain.ErrInvalidEmail):
		return true
	default:
		return false
	}
}

func isBookingValidationError(err error) bool {
	switch {
	case errors.Is(err, bookingdomain.ErrInvalidContact),
		errors.Is(err, bookingdomain.ErrInvalidWindow),
		errors.Is(err, bookingdomain.ErrInvalidPrice):
		return true
	default:
		return false
	}
}

func isSubscriptionValidationError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidContact),
		errors.Is(err, subscriptiondomain.ErrInvalidAmount),
		errors.Is(err, subscriptiondomain.ErrInvalidVATPercent),
		errors.Is(err, subscriptiondomain.ErrInvalidBillingMethod),
		errors.Is(err, subscriptiondomain.ErrInvalidExternalID):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidInvoice),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, invoicedomain.ErrEmptyInvoice),
		errors.Is(err, invoicedomain.ErrInvalidLine),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, invoicedomain.ErrInvalidVATPercent),
		errors.Is(err, invoicedomain.ErrMissingReference),
		errors.Is(err, invoicedomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isReconciliationValidationError(err error) bool {
	switch {
	case errors.Is(err, reconciliationdomain.ErrInvalidEventStatus),
		errors.Is(err, reconciliationdomain.ErrInvalidEventAmount),
		errors.Is(err, reconciliationdomain.ErrInvalidEventPeriod):
		return true
	default:
		return false
	}
}

// validationErrorCode finds the sentinel code inside a wrapped error chain.
func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		return webhookdomain.ErrInvalidPayload.Error()
	}
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		return msg[:idx]
	}
	return msg
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
