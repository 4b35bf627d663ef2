package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	batchdomain "github.com/smallbiznis/worksuite/internal/batchinvoice/domain"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	"go.uber.org/zap"
)

const defaultMirrorBatch = 100

func (s *Invoicer) mirrorEnabled() bool {
	_, disabled := s.provider.(billingdomain.Noop)
	return !disabled
}

// mirror registers a committed invoice with the remote provider. The local
// invoice is never touched on failure beyond its remote sync bookkeeping.
func (s *Invoicer) mirror(ctx context.Context, invoice invoicedomain.Invoice, contact contactdomain.Contact, dueInDays int) invoicedomain.RemoteSyncStatus {
	timeout := s.providerCfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := s.providerCfg.Retries
	if retries < 0 {
		retries = 0
	}
	// The budget covers every attempt and the waits between them.
	mirrorCtx, cancel := context.WithTimeout(ctx, timeout*time.Duration(retries+1))
	defer cancel()

	req := billingdomain.RemoteInvoiceRequest{
		InvoiceID:     invoice.ID.String(),
		Number:        invoice.Number,
		CustomerEmail: contact.Email,
		CustomerName:  contact.Name,
		AmountMinor:   invoicedomain.ToMinorUnits(invoice.Total),
		Currency:      invoice.Currency,
		Description:   invoice.Description,
		DueInDays:     dueInDays,
		Metadata:      map[string]string{"number": invoice.Number},
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	var remote billingdomain.RemoteInvoice
	err := backoff.Retry(func() error {
		attemptCtx, cancelAttempt := context.WithTimeout(mirrorCtx, timeout)
		defer cancelAttempt()

		out, err := s.provider.CreateInvoice(attemptCtx, req)
		if err != nil {
			if errors.Is(err, billingdomain.ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		remote = out
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), mirrorCtx))

	log := s.log.With(
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.String("provider", s.provider.Name()),
	)
	if err == nil {
		err = s.ledger.AttachRemote(ctx, invoice.ID, remote.ID, remote.DocumentURL)
	}
	if err != nil {
		log.Warn("remote invoice mirror failed", zap.Error(err))
		if recErr := s.ledger.RecordMirrorFailure(ctx, invoice.ID, err); recErr != nil {
			log.Error("remote mirror failure not recorded", zap.Error(recErr))
		}
		s.metrics.RecordRemoteMirror(ctx, s.provider.Name(), string(invoicedomain.RemoteSyncFailed))
		return invoicedomain.RemoteSyncFailed
	}

	log.Info("remote invoice mirrored", zap.String("remote_invoice_id", remote.ID))
	s.metrics.RecordRemoteMirror(ctx, s.provider.Name(), string(invoicedomain.RemoteSyncSynced))
	return invoicedomain.RemoteSyncSynced
}

// RetryMirrors re-attempts invoices whose remote mirroring is pending or failed.
func (s *Invoicer) RetryMirrors(ctx context.Context, limit int) (batchdomain.MirrorReport, error) {
	var report batchdomain.MirrorReport
	if !s.mirrorEnabled() {
		return report, nil
	}
	if limit <= 0 {
		limit = defaultMirrorBatch
	}

	pending, err := s.ledger.ListPendingMirror(ctx, limit)
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		return report, nil
	}

	contactIDs := lo.Uniq(lo.Map(pending, func(inv invoicedomain.Invoice, _ int) snowflake.ID { return inv.ContactID }))
	contacts, err := s.contacts.GetMany(ctx, contactIDs)
	if err != nil {
		return report, err
	}

	for _, inv := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		contact, ok := contacts[inv.ContactID]
		if !ok || contact.Email == "" {
			continue
		}
		override := s.billingCfg.Get().ForContact(contact.ID.String())

		report.Attempted++
		if s.mirror(ctx, inv, contact, s.dueInDays(override)) == invoicedomain.RemoteSyncSynced {
			report.Synced++
		} else {
			report.Failed++
		}
	}

	s.log.Info("remote mirror retry finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
