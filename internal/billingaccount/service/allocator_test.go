package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/billingaccount/repository"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestAllocator(t *testing.T) (*Allocator, billingaccountdomain.Service, *gorm.DB) {
	t.Helper()
	conn := storetest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide()
	cfg := config.Config{Billing: config.BillingDefaults{NumberPadding: 3}}
	alloc := NewAllocator(AllocatorParam{DB: conn, Log: zap.NewNop(), Cfg: cfg, Repo: repo})
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repo,
	})
	return alloc, svc, conn
}

func TestNextNumberFormatsPrefixAndPadding(t *testing.T) {
	alloc, svc, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, billingaccountdomain.CreateRequest{Code: "PT", Name: "Portugal", Prefix: "F", StartingCount: 41})
	require.NoError(t, err)

	got, err := alloc.NextNumber(ctx, "PT")
	require.NoError(t, err)
	assert.Equal(t, "F042", got.Number)
	assert.Equal(t, int64(42), got.Sequence)

	account, err := svc.Get(ctx, "PT")
	require.NoError(t, err)
	assert.Equal(t, int64(42), account.Counter)
}

func TestNextNumberGrowsPastPaddingWidth(t *testing.T) {
	alloc, svc, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, billingaccountdomain.CreateRequest{Code: "ES", Name: "Spain", Prefix: "E", StartingCount: 999})
	require.NoError(t, err)

	got, err := alloc.NextNumber(ctx, "es")
	require.NoError(t, err)
	assert.Equal(t, "E1000", got.Number)
}

func TestNextNumberUnknownAndInactiveAccounts(t *testing.T) {
	alloc, svc, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := alloc.NextNumber(ctx, "NOPE")
	assert.ErrorIs(t, err, billingaccountdomain.ErrAccountNotFound)

	_, err = svc.Create(ctx, billingaccountdomain.CreateRequest{Code: "OLD", Name: "Old entity", Prefix: "O"})
	require.NoError(t, err)
	inactive := false
	_, err = svc.Update(ctx, "OLD", billingaccountdomain.UpdateRequest{Active: &inactive})
	require.NoError(t, err)

	_, err = alloc.NextNumber(ctx, "OLD")
	assert.ErrorIs(t, err, billingaccountdomain.ErrAccountInactive)

	account, err := svc.Get(ctx, "OLD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Counter)
}

func TestNextNumberConcurrentCallersGetContiguousDistinctNumbers(t *testing.T) {
	alloc, svc, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, billingaccountdomain.CreateRequest{Code: "PT", Name: "Portugal", Prefix: "F", StartingCount: 10})
	require.NoError(t, err)

	const callers = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs []int64
		errs []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := alloc.NextNumber(ctx, "PT")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seqs = append(seqs, got.Sequence)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		assert.Equal(t, int64(11+i), seq)
	}
}

func TestNextNumberTxRollsBackWithCaller(t *testing.T) {
	alloc, svc, conn := newTestAllocator(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, billingaccountdomain.CreateRequest{Code: "PT", Name: "Portugal", Prefix: "F", StartingCount: 5})
	require.NoError(t, err)

	boom := errors.New("insert failed")
	err = conn.Transaction(func(tx *gorm.DB) error {
		got, err := alloc.NextNumberTx(ctx, tx, "PT")
		require.NoError(t, err)
		assert.Equal(t, "F006", got.Number)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := alloc.NextNumber(ctx, "PT")
	require.NoError(t, err)
	assert.Equal(t, "F006", got.Number)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "F001", FormatNumber("F", 1, 3))
	assert.Equal(t, "A00007", FormatNumber("A", 7, 5))
	assert.Equal(t, "12345", FormatNumber("", 12345, 3))
	assert.Equal(t, "X002", FormatNumber("X", 2, 0))
}
