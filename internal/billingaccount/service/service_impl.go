package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/clock"
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
	repo  billingaccountdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  billingaccountdomain.Repository
}

func NewService(p ServiceParam) billingaccountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billingaccount.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req billingaccountdomain.CreateRequest) (billingaccountdomain.BillingAccount, error) {
	code := normalizeCode(req.Code)
	if code == "" || len(code) > 16 {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrInvalidName
	}
	if req.StartingCount < 0 {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrInvalidCounter
	}

	now := s.clock.Now()
	account := billingaccountdomain.BillingAccount{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Prefix:    strings.TrimSpace(req.Prefix),
		Counter:   req.StartingCount,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrDuplicateCode
		}
		return billingaccountdomain.BillingAccount{}, err
	}

	s.log.Info("billing account created", zap.String("code", code), zap.String("prefix", account.Prefix))
	return account, nil
}

func (s *Service) List(ctx context.Context) (billingaccountdomain.ListResponse, error) {
	accounts, err := s.repo.List(ctx, s.db)
	if err != nil {
		return billingaccountdomain.ListResponse{}, err
	}
	if accounts == nil {
		accounts = []billingaccountdomain.BillingAccount{}
	}
	return billingaccountdomain.ListResponse{Accounts: accounts}, nil
}

func (s *Service) Get(ctx context.Context, code string) (billingaccountdomain.BillingAccount, error) {
	code = normalizeCode(code)
	if code == "" {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrInvalidCode
	}
	account, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return billingaccountdomain.BillingAccount{}, err
	}
	if account == nil {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrAccountNotFound
	}
	return *account, nil
}

// Update edits name and active flag. The counter and prefix are not editable.
func (s *Service) Update(ctx context.Context, code string, req billingaccountdomain.UpdateRequest) (billingaccountdomain.BillingAccount, error) {
	code = normalizeCode(code)
	if code == "" {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrInvalidCode
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrInvalidName
		}
		req.Name = &name
	}

	affected, err := s.repo.UpdateAttributes(ctx, s.db, code, billingaccountdomain.UpdateAttributes{
		Name:   req.Name,
		Active: req.Active,
	})
	if err != nil {
		return billingaccountdomain.BillingAccount{}, err
	}
	if affected == 0 {
		return billingaccountdomain.BillingAccount{}, billingaccountdomain.ErrAccountNotFound
	}
	if req.Active != nil && !*req.Active {
		s.log.Warn("billing account deactivated", zap.String("code", code))
	}
	return s.Get(ctx, code)
}
