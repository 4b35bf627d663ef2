package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"github.com/smallbiznis/worksuite/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.BillingDefaults
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Cfg.Billing,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	contactID, err := parseID(req.ContactID, subscriptiondomain.ErrInvalidContact)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if !req.BillingMethod.Valid() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidBillingMethod
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.MonthlyAmount))
	if err != nil || !amount.IsPositive() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}

	var vat decimal.NullDecimal
	if req.VATPercent != nil && strings.TrimSpace(*req.VATPercent) != "" {
		value, err := decimal.NewFromString(strings.TrimSpace(*req.VATPercent))
		if err != nil || value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidVATPercent
		}
		vat = decimal.NewNullDecimal(value)
	}

	now := s.clock.Now()
	start := now
	if req.StartDate != nil && !req.StartDate.IsZero() {
		start = req.StartDate.UTC()
	}

	sub := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		ContactID:          contactID,
		Description:        strings.TrimSpace(req.Description),
		MonthlyAmount:      amount.Round(2),
		Currency:           defaultString(strings.ToUpper(strings.TrimSpace(req.Currency)), s.cfg.DefaultCurrency),
		BillingAccountCode: defaultString(strings.ToUpper(strings.TrimSpace(req.BillingAccountCode)), s.cfg.DefaultAccountCode),
		VATPercent:         vat,
		BillingMethod:      req.BillingMethod,
		Active:             true,
		StartDate:          start,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if sub.Description == "" {
		sub.Description = s.cfg.RecurringDescription
	}
	if externalID := strings.TrimSpace(req.ExternalSubscriptionID); externalID != "" {
		sub.ExternalSubscriptionID = &externalID
	}

	if err := s.repo.Insert(ctx, s.db, &sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrDuplicateExternalID
		}
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("contact_id", sub.ContactID.String()),
		zap.String("billing_method", string(sub.BillingMethod)),
	)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) FindByExternalID(ctx context.Context, externalID string) (subscriptiondomain.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidExternalID
	}
	item, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

// Activate binds the provider subscription id to a pending local subscription.
// Re-delivering the same binding is a no-op.
func (s *Service) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (subscriptiondomain.Subscription, error) {
	id, err := parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	externalID := strings.TrimSpace(req.ExternalSubscriptionID)
	if externalID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidExternalID
	}

	var out subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !current.Active {
			return subscriptiondomain.ErrSubscriptionInactive
		}
		if current.ExternalSubscriptionID != nil && *current.ExternalSubscriptionID != externalID {
			return subscriptiondomain.ErrSubscriptionAlreadyBound
		}

		now := s.clock.Now()
		if _, err := s.repo.BindExternalID(ctx, tx, id, externalID, now); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return subscriptiondomain.ErrDuplicateExternalID
			}
			return err
		}
		current.ExternalSubscriptionID = &externalID
		current.UpdatedAt = now
		out = *current
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription activated",
		zap.String("subscription_id", id.String()),
		zap.String("external_subscription_id", externalID),
	)
	return out, nil
}

// Deactivate is a soft delete: end date set, active cleared. Repeating it is a no-op.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if !current.Active {
		return current, nil
	}

	if _, err := s.repo.Deactivate(ctx, s.db, id, s.clock.Now()); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	s.log.Info("subscription deactivated", zap.String("subscription_id", id.String()))
	return s.Get(ctx, id)
}

func (s *Service) ListDueBankTransfer(ctx context.Context, period string, periodEnd time.Time) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListDueBankTransfer(ctx, s.db, period, periodEnd)
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, invalid
	}
	return snowflake.ID(value), nil
}

func defaultString(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
