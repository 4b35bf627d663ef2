package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	"github.com/smallbiznis/worksuite/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  bookingdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  bookingdomain.Repository
}

func NewService(p ServiceParam) bookingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("booking.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req bookingdomain.CreateBookingRequest) (bookingdomain.Booking, error) {
	contactID, err := strconv.ParseInt(strings.TrimSpace(req.ContactID), 10, 64)
	if err != nil || contactID <= 0 {
		return bookingdomain.Booking{}, bookingdomain.ErrInvalidContact
	}
	if req.StartsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return bookingdomain.Booking{}, bookingdomain.ErrInvalidWindow
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.UnitPrice))
	if err != nil || price.IsNegative() {
		return bookingdomain.Booking{}, bookingdomain.ErrInvalidPrice
	}
	quantity := decimal.NewFromInt(1)
	if raw := strings.TrimSpace(req.Quantity); raw != "" {
		quantity, err = decimal.NewFromString(raw)
		if err != nil || quantity.Sign() <= 0 {
			return bookingdomain.Booking{}, bookingdomain.ErrInvalidPrice
		}
	}

	now := s.clock.Now()
	booking := bookingdomain.Booking{
		ID:        s.genID.Generate(),
		ContactID: snowflake.ID(contactID),
		Resource:  strings.TrimSpace(req.Resource),
		Concept:   strings.TrimSpace(req.Concept),
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		UnitPrice: price,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &booking); err != nil {
		return bookingdomain.Booking{}, err
	}
	return booking, nil
}

func (s *Service) ListUninvoiced(ctx context.Context, start, end time.Time) ([]bookingdomain.Booking, error) {
	return s.repo.ListUninvoiced(ctx, s.db, start.UTC(), end.UTC())
}

func (s *Service) ClaimTx(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	affected, err := s.repo.Claim(ctx, tx, ids, invoiceID, s.clock.Now())
	if err != nil {
		return err
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("%w: claimed %d of %d", bookingdomain.ErrBookingsAlreadyClaimed, affected, len(ids))
	}
	return nil
}
