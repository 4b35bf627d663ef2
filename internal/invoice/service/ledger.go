package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	"github.com/smallbiznis/worksuite/pkg/db"
	"github.com/smallbiznis/worksuite/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxMirrorAttempts   = 8
	maxMirrorErrorBytes = 512
)

type Ledger struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      invoicedomain.Repository
	allocator billingaccountdomain.Allocator
	metrics   *obsmetrics.Metrics
	currency  string
}

type LedgerParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      invoicedomain.Repository
	Allocator billingaccountdomain.Allocator
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func NewLedger(p LedgerParam) invoicedomain.Ledger {
	return &Ledger{
		db:        p.DB,
		log:       p.Log.Named("invoice.ledger"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		allocator: p.Allocator,
		metrics:   p.Metrics,
		currency:  p.Cfg.Billing.DefaultCurrency,
	}
}

// Create allocates the next number for the draft's account and writes the invoice,
// its lines and every hook in one transaction. Nothing persists unless all succeed.
func (l *Ledger) Create(ctx context.Context, draft invoicedomain.Draft, hooks ...invoicedomain.TxHook) (invoicedomain.Invoice, error) {
	if err := l.validateDraft(&draft); err != nil {
		return invoicedomain.Invoice{}, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "invoice.ledger.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("billing_account.code", draft.AccountCode),
		attribute.String("invoice.source", draft.Source),
	)

	unlock := l.allocator.Lock(draft.AccountCode)
	defer unlock()

	var created invoicedomain.Invoice
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if draft.Guard != nil {
			if err := draft.Guard(ctx, tx); err != nil {
				return err
			}
		}

		allocation, err := l.allocator.NextNumberTx(ctx, tx, draft.AccountCode)
		if err != nil {
			return err
		}

		invoice := l.buildInvoice(draft, allocation)
		if err := l.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}
		if err := l.repo.InsertLines(ctx, tx, invoice.Lines); err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(ctx, tx, invoice); err != nil {
				return err
			}
		}

		created = invoice
		return nil
	})
	if err != nil {
		err = l.classifyCreateError(ctx, draft, err)
		if !errors.Is(err, invoicedomain.ErrDuplicateExternalInvoice) {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "create invoice failed")
		}
		return invoicedomain.Invoice{}, err
	}

	span.SetAttributes(attribute.String("invoice.number", created.Number))
	l.metrics.RecordInvoiceCreated(ctx, draft.Source)
	l.log.Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("number", created.Number),
		zap.String("contact_id", created.ContactID.String()),
		zap.String("status", string(created.Status)),
		zap.String("total", created.Total.StringFixed(2)),
		zap.String("source", draft.Source),
	)
	return created, nil
}

func (l *Ledger) validateDraft(draft *invoicedomain.Draft) error {
	draft.AccountCode = strings.ToUpper(strings.TrimSpace(draft.AccountCode))
	if draft.AccountCode == "" {
		return billingaccountdomain.ErrInvalidCode
	}
	if draft.ContactID == 0 {
		return fmt.Errorf("%w: contact is required", invoicedomain.ErrInvalidInvoice)
	}
	if len(draft.Lines) == 0 {
		return invoicedomain.ErrEmptyInvoice
	}
	for _, line := range draft.Lines {
		if strings.TrimSpace(line.Concept) == "" || line.Quantity.Sign() <= 0 || line.UnitPrice.IsNegative() {
			return invoicedomain.ErrInvalidLine
		}
	}
	if draft.VATPercent.IsNegative() || draft.VATPercent.GreaterThan(decimal.NewFromInt(100)) {
		return invoicedomain.ErrInvalidVATPercent
	}
	if draft.Status == "" {
		draft.Status = invoicedomain.InvoiceStatusPending
	}
	if !draft.Status.Valid() {
		return invoicedomain.ErrInvalidStatus
	}
	if draft.Currency == "" {
		draft.Currency = l.currency
	}
	draft.Currency = strings.ToUpper(draft.Currency)
	if draft.IssuedAt.IsZero() {
		draft.IssuedAt = l.clock.Now()
	}
	if draft.RemoteSync == "" {
		draft.RemoteSync = invoicedomain.RemoteSyncSkipped
	}
	return nil
}

func (l *Ledger) buildInvoice(draft invoicedomain.Draft, allocation billingaccountdomain.Allocation) invoicedomain.Invoice {
	now := l.clock.Now()
	invoiceID := l.genID.Generate()

	lines := make([]invoicedomain.InvoiceLine, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		lines = append(lines, invoicedomain.InvoiceLine{
			ID:        l.genID.Generate(),
			InvoiceID: invoiceID,
			Concept:   strings.TrimSpace(line.Concept),
			UnitPrice: line.UnitPrice.Round(2),
			Quantity:  line.Quantity,
			LineTotal: invoicedomain.LineTotal(line.UnitPrice, line.Quantity),
			BookingID: line.BookingID,
			CreatedAt: now,
		})
	}

	totals := invoicedomain.ComputeTotals(lo.Map(lines, func(line invoicedomain.InvoiceLine, _ int) decimal.Decimal {
		return line.LineTotal
	}), draft.VATPercent)

	metadata := datatypes.JSONMap{}
	for k, v := range draft.Metadata {
		metadata[k] = v
	}
	if draft.Source != "" {
		metadata["source"] = draft.Source
	}

	reference := draft.Reference
	if reference == "" {
		reference = allocation.Number
	}

	invoice := invoicedomain.Invoice{
		ID:                invoiceID,
		BillingAccountID:  allocation.AccountID,
		Sequence:          allocation.Sequence,
		Number:            allocation.Number,
		ContactID:         draft.ContactID,
		SubscriptionID:    draft.SubscriptionID,
		Description:       strings.TrimSpace(draft.Description),
		Subtotal:          totals.Subtotal,
		VATPercent:        draft.VATPercent,
		VATAmount:         totals.VATAmount,
		Total:             totals.Total,
		Currency:          draft.Currency,
		Status:            draft.Status,
		IssuedAt:          draft.IssuedAt,
		DueAt:             draft.DueAt,
		Reference:         &reference,
		ExternalInvoiceID: optionalString(draft.ExternalInvoiceID),
		ExternalPaymentID: optionalString(draft.ExternalPaymentID),
		DocumentURL:       optionalString(draft.DocumentURL),
		RemoteSyncStatus:  draft.RemoteSync,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
		Lines:             lines,
	}
	if invoice.Status == invoicedomain.InvoiceStatusPaid {
		invoice.PaidAt = &now
	}
	return invoice
}

func (l *Ledger) classifyCreateError(ctx context.Context, draft invoicedomain.Draft, err error) error {
	if !db.IsDuplicateKeyErr(err) {
		return err
	}
	if draft.ExternalInvoiceID != "" {
		existing, findErr := l.repo.FindByExternalInvoiceID(ctx, l.db, draft.ExternalInvoiceID)
		if findErr == nil && existing != nil {
			return fmt.Errorf("%w: %s", invoicedomain.ErrDuplicateExternalInvoice, draft.ExternalInvoiceID)
		}
	}
	return fmt.Errorf("%w: %v", invoicedomain.ErrDuplicateInvoiceNumber, err)
}

func (l *Ledger) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	invoice, err := l.repo.FindByID(ctx, l.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	lines, err := l.repo.FindLines(ctx, l.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Lines = lines
	return *invoice, nil
}

func (l *Ledger) FindByExternalInvoiceID(ctx context.Context, externalID string) (invoicedomain.Invoice, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	invoice, err := l.repo.FindByExternalInvoiceID(ctx, l.db, externalID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (l *Ledger) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	limit := req.Limit()
	filter := invoicedomain.ListFilter{Limit: limit + 1}

	if raw := strings.TrimSpace(req.ContactID); raw != "" {
		id, err := ParseID(raw)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		filter.ContactID = &id
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		if !status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = status
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		before, err := ParseID(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		filter.BeforeID = &before
	}

	items, err := l.repo.List(ctx, l.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	page, info, err := pagination.BuildPageInfo(items, limit, func(inv invoicedomain.Invoice) string {
		return inv.ID.String()
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	if page == nil {
		page = []invoicedomain.Invoice{}
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: page}, nil
}

func (l *Ledger) MarkPaid(ctx context.Context, id snowflake.ID, req invoicedomain.MarkPaidRequest) (invoicedomain.Invoice, bool, error) {
	affected, err := l.repo.MarkPaid(ctx, l.db, id, invoicedomain.PaidUpdate{
		PaymentID:   optionalString(req.PaymentID),
		DocumentURL: optionalString(req.DocumentURL),
		PaidAt:      l.clock.Now(),
	})
	if err != nil {
		return invoicedomain.Invoice{}, false, err
	}
	invoice, err := l.GetByID(ctx, id)
	if err != nil {
		return invoicedomain.Invoice{}, false, err
	}
	if affected > 0 {
		l.log.Info("invoice marked paid",
			zap.String("invoice_id", id.String()),
			zap.String("number", invoice.Number),
		)
	}
	return invoice, affected > 0, nil
}

func (l *Ledger) MarkPaidByReference(ctx context.Context, req invoicedomain.MarkPaidByReferenceRequest) (int64, error) {
	reference := strings.TrimSpace(req.Reference)
	externalID := strings.TrimSpace(req.ExternalInvoiceID)
	if reference == "" && externalID == "" {
		return 0, invoicedomain.ErrMissingReference
	}

	affected, err := l.repo.MarkPaidByReference(ctx, l.db, reference, externalID, invoicedomain.PaidUpdate{
		PaymentID: optionalString(req.PaymentID),
		PaidAt:    l.clock.Now(),
	})
	if err != nil {
		return 0, err
	}
	l.log.Info("invoices marked paid by reference",
		zap.String("reference", reference),
		zap.String("external_invoice_id", externalID),
		zap.Int64("count", affected),
	)
	return affected, nil
}

func (l *Ledger) AttachRemote(ctx context.Context, id snowflake.ID, remoteID, documentURL string) error {
	affected, err := l.repo.AttachRemote(ctx, l.db, id, optionalString(remoteID), optionalString(documentURL), l.clock.Now())
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return fmt.Errorf("%w: %s", invoicedomain.ErrDuplicateExternalInvoice, remoteID)
		}
		return err
	}
	if affected == 0 {
		return invoicedomain.ErrInvoiceNotFound
	}
	return nil
}

func (l *Ledger) AttachDocument(ctx context.Context, id snowflake.ID, documentURL string) error {
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return nil
	}
	_, err := l.repo.AttachDocument(ctx, l.db, id, documentURL, l.clock.Now())
	return err
}

func (l *Ledger) ListPendingMirror(ctx context.Context, limit int) ([]invoicedomain.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.repo.ListPendingMirror(ctx, l.db, maxMirrorAttempts, limit)
}

func (l *Ledger) RecordMirrorFailure(ctx context.Context, id snowflake.ID, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	if len(message) > maxMirrorErrorBytes {
		message = message[:maxMirrorErrorBytes]
	}
	_, err := l.repo.RecordMirrorFailure(ctx, l.db, id, message, l.clock.Now())
	return err
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// ParseID parses an id from its decimal string form.
func ParseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return snowflake.ID(value), nil
}
