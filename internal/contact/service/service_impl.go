package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/worksuite/internal/clock"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	"github.com/smallbiznis/worksuite/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	store repository.Repository[contactdomain.Contact]
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) contactdomain.Service {
	return &Service{
		log:   p.Log.Named("contact.service"),
		genID: p.GenID,
		clock: p.Clock,
		store: repository.ProvideStore[contactdomain.Contact](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req contactdomain.CreateContactRequest) (contactdomain.Contact, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return contactdomain.Contact{}, contactdomain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return contactdomain.Contact{}, contactdomain.ErrInvalidEmail
		}
	}

	now := s.clock.Now()
	contact := contactdomain.Contact{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     strings.ToLower(email),
		TaxID:     strings.TrimSpace(req.TaxID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, &contact); err != nil {
		return contactdomain.Contact{}, err
	}
	return contact, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (contactdomain.Contact, error) {
	if id == 0 {
		return contactdomain.Contact{}, contactdomain.ErrContactNotFound
	}
	contact, err := s.store.FindOne(ctx, &contactdomain.Contact{ID: id})
	if err != nil {
		return contactdomain.Contact{}, err
	}
	if contact == nil {
		return contactdomain.Contact{}, contactdomain.ErrContactNotFound
	}
	return *contact, nil
}

func (s *Service) GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]contactdomain.Contact, error) {
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return map[snowflake.ID]contactdomain.Contact{}, nil
	}
	rows, err := s.store.Find(ctx, &contactdomain.Contact{}, repository.WithWhere("id IN ?", ids))
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(rows, func(c *contactdomain.Contact) (snowflake.ID, contactdomain.Contact) {
		return c.ID, *c
	}), nil
}
