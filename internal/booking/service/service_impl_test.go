package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	"github.com/smallbiznis/worksuite/internal/booking/repository"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestListUninvoicedAndClaim(t *testing.T) {
	conn := storetest.Open(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	svc := NewService(ServiceParam{
		DB: conn, Log: zap.NewNop(), GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	ctx := context.Background()

	mk := func(day int) bookingdomain.Booking {
		start := time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC)
		b, err := svc.Create(ctx, bookingdomain.CreateBookingRequest{
			ContactID: "55", Resource: "Room A", StartsAt: start, EndsAt: start.Add(2 * time.Hour), UnitPrice: "15",
		})
		require.NoError(t, err)
		return b
	}
	first := mk(2)
	second := mk(20)

	_, err = svc.Create(ctx, bookingdomain.CreateBookingRequest{
		ContactID: "55", StartsAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC), EndsAt: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC), UnitPrice: "1",
	})
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidWindow)

	items, err := svc.ListUninvoiced(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Room A 2026-03-02", items[0].LineConcept())

	invoiceID := node.Generate()
	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.ClaimTx(ctx, tx, []snowflake.ID{first.ID}, invoiceID)
	})
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.ClaimTx(ctx, tx, []snowflake.ID{first.ID, second.ID}, node.Generate())
	})
	require.ErrorIs(t, err, bookingdomain.ErrBookingsAlreadyClaimed)

	items, err = svc.ListUninvoiced(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)
}
