package coloyalty

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	db "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/db"
	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func vnd(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSeed() db.Seed {
	return db.Seed{
		Users: []models.User{
			{ID: "u1", Name: "Hieu", Email: "hieu@example.com", Role: models.MEMBER, Points: 50},
			{ID: "u2", Name: "Admin", Email: "admin@co-loyalty.com", Role: models.ADMIN},
			{ID: "u3", Name: "Owner", Email: "owner@brewbloom.com", Role: models.DIRECTOR, MerchantID: "c1"},
			{ID: "u5", Name: "Blocked", Email: "blocked@example.com", Role: models.MEMBER, Points: 100, Blacklisted: true},
		},
		Merchants: []models.Merchant{
			{ID: "c1", Name: "Brew & Bloom", PointRate: vnd("0.1"), Balance: vnd("5000000")},
			{ID: "c2", Name: "Tiny", PointRate: vnd("0.1"), Balance: vnd("5000")},
		},
		Products: []models.Product{
			{ID: "p1", MerchantID: "c1", Name: "Beans", PointPrice: 30, Stock: 1},
			{ID: "p2", MerchantID: "c1", Name: "Mug", PointPrice: 10, Stock: 0},
			{ID: "p3", MerchantID: "c1", Name: "Machine", PointPrice: 500, Stock: 5},
		},
	}
}

func newTestLedger(t *testing.T) (*LedgerService, *db.LedgerDB) {
	t.Helper()
	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	return NewLedgerService(zap.NewNop(), store, nil, nil), store
}

func requireState(t *testing.T, store *db.LedgerDB, userId string, points int64, merchantId string, balance string) {
	t.Helper()
	u, err := store.GetUser(context.Background(), userId)
	require.NoError(t, err)
	require.Equal(t, points, u.Points)
	if merchantId != "" {
		m, err := store.GetMerchant(context.Background(), merchantId)
		require.NoError(t, err)
		require.True(t, vnd(balance).Equal(m.Balance), "balance %s, expected %s", m.Balance, balance)
	}
}

func TestEarn(t *testing.T) {
	s, store := newTestLedger(t)

	tx, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("100000"), MerchantID: "c1"})
	require.NoError(t, err)
	require.Equal(t, int64(10), tx.PointsEarned)
	require.Equal(t, models.EARN, tx.Type)
	require.Equal(t, models.COMPLETED, tx.Status)
	require.True(t, tx.PlatformFee.IsZero())

	requireState(t, store, "u1", 60, "c1", "4990000")
	m, _ := store.GetMerchant(context.Background(), "c1")
	require.Equal(t, int64(10), m.TotalPointsIssued)
	u, _ := store.GetUser(context.Background(), "u1")
	require.Equal(t, int64(100), u.Exp)
}

func TestEarnRoundsDown(t *testing.T) {
	s, store := newTestLedger(t)

	tx, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("19999"), MerchantID: "c1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), tx.PointsEarned)
	requireState(t, store, "u1", 51, "c1", "4999000")
}

func TestEarnInsufficientEscrow(t *testing.T) {
	s, store := newTestLedger(t)

	_, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("100000"), MerchantID: "c2"})
	require.ErrorIs(t, err, models.ErrInsufficientEscrow)
	requireState(t, store, "u1", 50, "c2", "5000")

	tnxs, err := store.Transactions(context.Background(), models.TxFilter{})
	require.NoError(t, err)
	require.Empty(t, tnxs)
}

func TestBurn(t *testing.T) {
	s, store := newTestLedger(t)

	tx, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.BURN, Amount: vnd("50"), MerchantID: "c1", BurnPoints: 50})
	require.NoError(t, err)
	require.Equal(t, int64(50), tx.PointsSpent)
	require.True(t, vnd("750").Equal(tx.PlatformFee), "fee %s", tx.PlatformFee)

	requireState(t, store, "u1", 0, "c1", "5049250")
	m, _ := store.GetMerchant(context.Background(), "c1")
	require.Equal(t, int64(50), m.TotalPointsRedeemed)
}

func TestBurnAmountAsPoints(t *testing.T) {
	s, store := newTestLedger(t)

	_, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.BURN, Amount: vnd("20"), MerchantID: "c1"})
	require.NoError(t, err)
	requireState(t, store, "u1", 30, "c1", "5019700")

	_, err = s.Process(context.Background(), "u1", models.TxRequest{Type: models.BURN, Amount: vnd("2.5"), MerchantID: "c1"})
	require.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestBurnInsufficientPoints(t *testing.T) {
	s, store := newTestLedger(t)

	_, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.BURN, Amount: vnd("51"), MerchantID: "c1", BurnPoints: 51})
	require.ErrorIs(t, err, models.ErrInsufficientPoints)
	requireState(t, store, "u1", 50, "c1", "5000000")
}

func TestDepositWithdraw(t *testing.T) {
	s, store := newTestLedger(t)
	ctx := context.Background()

	_, err := s.Process(ctx, "u3", models.TxRequest{Type: models.DEPOSIT, Amount: vnd("1000000"), MerchantID: "c1"})
	require.NoError(t, err)
	requireState(t, store, "u3", 0, "c1", "6000000")

	_, err = s.Process(ctx, "u3", models.TxRequest{Type: models.WITHDRAW, Amount: vnd("2500000"), MerchantID: "c1"})
	require.NoError(t, err)
	requireState(t, store, "u3", 0, "c1", "3500000")
}

func TestWithdrawInsufficientEscrow(t *testing.T) {
	s, store := newTestLedger(t)

	_, err := s.Process(context.Background(), "u2", models.TxRequest{Type: models.WITHDRAW, Amount: vnd("1000000"), MerchantID: "c2"})
	require.ErrorIs(t, err, models.ErrInsufficientEscrow)
	requireState(t, store, "u2", 0, "c2", "5000")
}

func TestEscrowRequiresMerchantStaffOrAdmin(t *testing.T) {
	s, store := newTestLedger(t)
	ctx := context.Background()

	_, err := s.Process(ctx, "u1", models.TxRequest{Type: models.WITHDRAW, Amount: vnd("5000000"), MerchantID: "c1"})
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = s.Process(ctx, "u3", models.TxRequest{Type: models.WITHDRAW, Amount: vnd("1000"), MerchantID: "c2"})
	require.ErrorIs(t, err, models.ErrForbidden)
	requireState(t, store, "u1", 50, "c1", "5000000")
	requireState(t, store, "u3", 0, "c2", "5000")

	_, err = s.Process(ctx, "u2", models.TxRequest{Type: models.DEPOSIT, Amount: vnd("1000"), MerchantID: "c2"})
	require.NoError(t, err)
	requireState(t, store, "u2", 0, "c2", "6000")
}

func TestEarnRejectsUnrepresentablePoints(t *testing.T) {
	s, store := newTestLedger(t)

	_, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("92233720368547758090000"), MerchantID: "c1"})
	require.ErrorIs(t, err, models.ErrInvalidAmount)
	requireState(t, store, "u1", 50, "c1", "5000000")
	m, _ := store.GetMerchant(context.Background(), "c1")
	require.Equal(t, int64(0), m.TotalPointsIssued)
}

func TestEarnRejectsBalanceOverflow(t *testing.T) {
	store, err := db.NewLedgerDB(db.Seed{
		Users:     []models.User{{ID: "rich", Points: math.MaxInt64 - 5}},
		Merchants: []models.Merchant{{ID: "c1", PointRate: vnd("0.1"), Balance: vnd("5000000")}},
	})
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, nil, nil)

	_, err = s.Process(context.Background(), "rich", models.TxRequest{Type: models.EARN, Amount: vnd("100000"), MerchantID: "c1"})
	require.ErrorIs(t, err, models.ErrInvalidAmount)
	requireState(t, store, "rich", math.MaxInt64-5, "c1", "5000000")
}

func TestProcessRejections(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		req      models.TxRequest
		expected error
	}{
		{"blacklisted", "u5", models.TxRequest{Type: models.EARN, Amount: vnd("100000"), MerchantID: "c1"}, models.ErrBlacklisted},
		{"zero amount", "u1", models.TxRequest{Type: models.EARN, Amount: decimal.Zero, MerchantID: "c1"}, models.ErrInvalidAmount},
		{"negative deposit", "u3", models.TxRequest{Type: models.DEPOSIT, Amount: vnd("-10"), MerchantID: "c1"}, models.ErrInvalidAmount},
		{"transfer type", "u1", models.TxRequest{Type: models.TRANSFER, Amount: vnd("10"), MerchantID: "c1"}, models.ErrUnsupportedType},
		{"refund type", "u1", models.TxRequest{Type: models.REFUND, Amount: vnd("10"), MerchantID: "c1"}, models.ErrUnsupportedType},
		{"unknown merchant", "u1", models.TxRequest{Type: models.EARN, Amount: vnd("10000"), MerchantID: "c9"}, models.ErrNotFound},
		{"system merchant", "u1", models.TxRequest{Type: models.EARN, Amount: vnd("10000"), MerchantID: models.SystemMerchant}, models.ErrNotFound},
		{"unknown user", "u9", models.TxRequest{Type: models.EARN, Amount: vnd("10000"), MerchantID: "c1"}, models.ErrNotFound},
		{"huge earn", "u1", models.TxRequest{Type: models.EARN, Amount: vnd("92233720368547758090000"), MerchantID: "c1"}, models.ErrInvalidAmount},
		{"huge burn points", "u1", models.TxRequest{Type: models.BURN, Amount: vnd("1"), MerchantID: "c1", BurnPoints: math.MaxInt64}, models.ErrInvalidAmount},
		{"huge burn amount", "u1", models.TxRequest{Type: models.BURN, Amount: vnd("92233720368547758090000"), MerchantID: "c1"}, models.ErrInvalidAmount},
		{"member withdraw", "u1", models.TxRequest{Type: models.WITHDRAW, Amount: vnd("10"), MerchantID: "c1"}, models.ErrForbidden},
		{"director of other merchant", "u3", models.TxRequest{Type: models.DEPOSIT, Amount: vnd("10"), MerchantID: "c2"}, models.ErrForbidden},
	}

	for _, ts := range tests {
		s, store := newTestLedger(t)
		before, err := store.Snapshot(context.Background())
		require.NoError(t, err)

		_, err = s.Process(context.Background(), ts.user, ts.req)
		require.ErrorIs(t, err, ts.expected, ts.name)

		after, err := store.Snapshot(context.Background())
		require.NoError(t, err)
		require.Equal(t, before, after, ts.name)
	}
}

func TestBlacklistedAfterLookup(t *testing.T) {
	s, store := newTestLedger(t)
	ctx := context.Background()

	_, err := s.SetBlacklisted(ctx, "u2", "u1", true)
	require.NoError(t, err)
	_, err = s.Process(ctx, "u1", models.TxRequest{Type: models.BURN, Amount: vnd("10"), MerchantID: "c1"})
	require.ErrorIs(t, err, models.ErrBlacklisted)
	requireState(t, store, "u1", 50, "c1", "5000000")

	_, err = s.SetBlacklisted(ctx, "u2", "u1", false)
	require.NoError(t, err)
	_, err = s.Process(ctx, "u1", models.TxRequest{Type: models.BURN, Amount: vnd("10"), MerchantID: "c1"})
	require.NoError(t, err)
}

func TestSetBlacklistedRequiresAdmin(t *testing.T) {
	s, store := newTestLedger(t)

	_, err := s.SetBlacklisted(context.Background(), "u3", "u1", true)
	require.ErrorIs(t, err, models.ErrForbidden)
	u, _ := store.GetUser(context.Background(), "u1")
	require.False(t, u.Blacklisted)
}

func TestTransfer(t *testing.T) {
	s, store := newTestLedger(t)

	tx, err := s.Transfer(context.Background(), "u1", "Owner@BrewBloom.com", 20)
	require.NoError(t, err)
	require.Equal(t, models.TRANSFER, tx.Type)
	require.Equal(t, models.SystemMerchant, tx.MerchantID)
	require.Equal(t, "u3", tx.ReceiverID)
	require.Equal(t, int64(20), tx.PointsSpent)
	require.Contains(t, tx.ID, "TX-P2P-")

	requireState(t, store, "u1", 30, "", "")
	requireState(t, store, "u3", 20, "", "")

	// получатель видит перевод в своей истории
	history, err := s.History(context.Background(), "u3", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestTransferRejections(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		receiver string
		points   int64
		expected error
	}{
		{"unknown receiver", "u1", "nobody@example.com", 10, models.ErrReceiverNotFound},
		{"self", "u1", "hieu@example.com", 10, models.ErrSelfTransfer},
		{"too many", "u1", "owner@brewbloom.com", 51, models.ErrInsufficientPoints},
		{"zero", "u1", "owner@brewbloom.com", 0, models.ErrInvalidAmount},
		{"blacklisted sender", "u5", "owner@brewbloom.com", 10, models.ErrBlacklisted},
	}

	for _, ts := range tests {
		s, store := newTestLedger(t)
		before, err := store.Snapshot(context.Background())
		require.NoError(t, err)

		_, err = s.Transfer(context.Background(), ts.sender, ts.receiver, ts.points)
		require.ErrorIs(t, err, ts.expected, ts.name)

		after, err := store.Snapshot(context.Background())
		require.NoError(t, err)
		require.Equal(t, before, after, ts.name)
	}
}

func TestConcurrentTransfers(t *testing.T) {
	seed := db.Seed{
		Users: []models.User{
			{ID: "a", Email: "a@example.com", Points: 1000},
			{ID: "b", Email: "b@example.com", Points: 1000},
		},
	}
	store, err := db.NewLedgerDB(seed)
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Transfer(context.Background(), "a", "b@example.com", 7)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Transfer(context.Background(), "b", "a@example.com", 5)
		}()
	}
	wg.Wait()

	a, _ := store.GetUser(context.Background(), "a")
	b, _ := store.GetUser(context.Background(), "b")
	require.Equal(t, int64(2000), a.Points+b.Points)
	require.GreaterOrEqual(t, a.Points, int64(0))
	require.GreaterOrEqual(t, b.Points, int64(0))
}

func TestConcurrentEarnConservesValue(t *testing.T) {
	s, store := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("10000"), MerchantID: "c2"})
		}()
	}
	wg.Wait()

	// c2 может оплатить ровно 5 баллов
	requireState(t, store, "u1", 55, "c2", "0")
}

func TestHandlePurchase(t *testing.T) {
	s, store := newTestLedger(t)

	eventId, err := s.HandlePurchase(context.Background(), `{"eventId":"e1","userId":"u1","merchantId":"c1","type":"EARN","amount":"100000"}`)
	require.NoError(t, err)
	require.Equal(t, "e1", eventId)
	requireState(t, store, "u1", 60, "c1", "4990000")

	eventId, err = s.HandlePurchase(context.Background(), `{"eventId":"e2","userId":"u1","merchantId":"c1","type":"DEPOSIT","amount":"100"}`)
	require.ErrorIs(t, err, models.ErrUnsupportedType)
	require.Equal(t, "e2", eventId)

	_, err = s.HandlePurchase(context.Background(), `{"eventId":`)
	require.Error(t, err)
}

func TestHandleFinance(t *testing.T) {
	s, store := newTestLedger(t)

	requestId, err := s.HandleFinance(context.Background(), `{"requestId":"r1","userId":"u3","merchantId":"c1","type":"DEPOSIT","amount":"500000"}`)
	require.NoError(t, err)
	require.Equal(t, "r1", requestId)
	requireState(t, store, "u3", 0, "c1", "5500000")

	_, err = s.HandleFinance(context.Background(), `{"requestId":"r2","userId":"u3","merchantId":"c1","type":"EARN","amount":"500000"}`)
	require.ErrorIs(t, err, models.ErrUnsupportedType)
}

func TestSideEffectFailuresDoNotRollback(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	journal := NewMockTransactionJournal(cont)
	cache := NewMockBalanceCache(cont)
	journal.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
	cache.EXPECT().InvalidateBalance(gomock.Any(), "u1").Return(errors.New("connection refused"))

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, journal, cache)

	_, err = s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("100000"), MerchantID: "c1"})
	require.NoError(t, err)
	requireState(t, store, "u1", 60, "c1", "4990000")
}

func TestFinanceSkipsCache(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	journal := NewMockTransactionJournal(cont)
	cache := NewMockBalanceCache(cont)
	journal.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, tx models.Transaction) error {
		require.Equal(t, models.DEPOSIT, tx.Type)
		return nil
	})

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, journal, cache)

	_, err = s.Process(context.Background(), "u3", models.TxRequest{Type: models.DEPOSIT, Amount: vnd("1000"), MerchantID: "c1"})
	require.NoError(t, err)
}

func TestGetBalanceCache(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	cache := NewMockBalanceCache(cont)
	gomock.InOrder(
		cache.EXPECT().GetBalance(gomock.Any(), "u1").Return(int64(0), errors.New("redis: nil")),
		cache.EXPECT().SetBalance(gomock.Any(), "u1", int64(50)).Return(nil),
		cache.EXPECT().GetBalance(gomock.Any(), "u1").Return(int64(50), nil),
	)

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, nil, cache)

	for i := 0; i < 2; i++ {
		points, err := s.GetBalance(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, int64(50), points)
	}
}

func TestGetBalanceDropsStaleFill(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	cache := NewMockBalanceCache(cont)
	gomock.InOrder(
		cache.EXPECT().GetBalance(gomock.Any(), "u1").Return(int64(0), models.ErrNotFound),
		cache.EXPECT().SetBalance(gomock.Any(), "u1", int64(50)).DoAndReturn(func(ctx context.Context, user string, points int64) error {
			// начисление фиксируется между чтением баланса и записью в кэш
			_, err := store.Apply(ctx, interf.AccountKeys{UserID: user}, func(acc *interf.Accounts) (*models.Transaction, error) {
				acc.User.Points += 10
				return nil, nil
			})
			return err
		}),
		cache.EXPECT().InvalidateBalance(gomock.Any(), "u1").Return(nil),
	)
	s := NewLedgerService(zap.NewNop(), store, nil, cache)

	points, err := s.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), points)
}

func TestGetBalanceCacheSetError(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	cache := NewMockBalanceCache(cont)
	cache.EXPECT().GetBalance(gomock.Any(), "u1").Return(int64(0), models.ErrNotFound)
	cache.EXPECT().SetBalance(gomock.Any(), "u1", int64(50)).Return(errors.New("connection refused"))

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, nil, cache)

	before := testutil.ToFloat64(ledgerSideEffectErrors.WithLabelValues("cache"))
	points, err := s.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), points)
	require.Equal(t, before+1, testutil.ToFloat64(ledgerSideEffectErrors.WithLabelValues("cache")))
}

func TestHistoryReadsJournalBeforeStart(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	journal := NewMockTransactionJournal(cont)
	s := NewLedgerService(zap.NewNop(), store, journal, nil)
	s.started = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return s.started.Add(time.Hour) }

	old := models.Transaction{ID: "TX-old", UserID: "u1", MerchantID: "c1", Type: models.EARN, Timestamp: s.started.AddDate(0, 0, -2)}
	journal.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	journal.EXPECT().History(gomock.Any(), "u1", time.Time{}, s.started.Add(-time.Nanosecond)).Return([]models.Transaction{old}, nil)

	tx, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd("100000"), MerchantID: "c1"})
	require.NoError(t, err)

	history, err := s.History(context.Background(), "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, tx.ID, history[0].ID)
	require.Equal(t, "TX-old", history[1].ID)

	// период после запуска журнал не читает
	history, err = s.History(context.Background(), "u1", s.started, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRedeem(t *testing.T) {
	s, store := newTestLedger(t)
	ctx := context.Background()

	tx, err := s.Redeem(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, models.BURN, tx.Type)
	require.Equal(t, int64(30), tx.PointsSpent)
	require.True(t, vnd("450").Equal(tx.PlatformFee), "fee %s", tx.PlatformFee)

	// 30 баллов = 30 000 VND, партнер получает за вычетом 1.5%
	requireState(t, store, "u1", 20, "c1", "5029550")
	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), p.Stock)
}

func TestRedeemRejections(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		product  string
		expected error
	}{
		{"out of stock", "u1", "p2", models.ErrOutOfStock},
		{"insufficient points", "u1", "p3", models.ErrInsufficientPoints},
		{"blacklisted", "u5", "p1", models.ErrBlacklisted},
		{"unknown product", "u1", "p9", models.ErrNotFound},
	}
	for _, ts := range tests {
		s, store := newTestLedger(t)
		before, err := store.Snapshot(context.Background())
		require.NoError(t, err)

		_, err = s.Redeem(context.Background(), ts.user, ts.product)
		require.ErrorIs(t, err, ts.expected, ts.name)

		after, err := store.Snapshot(context.Background())
		require.NoError(t, err)
		require.Equal(t, before, after, ts.name)
	}
}

func TestConcurrentRedeemRespectsStock(t *testing.T) {
	users := make([]models.User, 0, 20)
	for i := 0; i < 20; i++ {
		users = append(users, models.User{ID: fmt.Sprintf("u%d", i), Points: 1000})
	}
	store, err := db.NewLedgerDB(db.Seed{
		Users:     users,
		Merchants: []models.Merchant{{ID: "c1", PointRate: vnd("0.1")}},
		Products:  []models.Product{{ID: "p1", MerchantID: "c1", PointPrice: 100, Stock: 3}},
	})
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, nil, nil)

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(userId string) {
			defer wg.Done()
			_, _ = s.Redeem(context.Background(), userId, "p1")
		}(u.ID)
	}
	wg.Wait()

	p, _ := store.GetProduct(context.Background(), "p1")
	require.Equal(t, int64(0), p.Stock)
	m, _ := store.GetMerchant(context.Background(), "c1")
	require.Equal(t, int64(300), m.TotalPointsRedeemed)
	tnxs, _ := store.Transactions(context.Background(), models.TxFilter{})
	require.Len(t, tnxs, 3)
}

func TestProducts(t *testing.T) {
	s, _ := newTestLedger(t)

	products, err := s.Products(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, products, 3)
	require.Equal(t, "p1", products[0].ID)

	products, err = s.Products(context.Background(), "c2")
	require.NoError(t, err)
	require.Empty(t, products)

	_, err = s.Products(context.Background(), "c9")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestHistoryFallsBackToMemory(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	journal := NewMockTransactionJournal(cont)
	journal.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	journal.EXPECT().History(gomock.Any(), "u1", gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	store, err := db.NewLedgerDB(testSeed())
	require.NoError(t, err)
	s := NewLedgerService(zap.NewNop(), store, journal, nil)

	for i := 0; i < 3; i++ {
		_, err := s.Process(context.Background(), "u1", models.TxRequest{Type: models.EARN, Amount: vnd(fmt.Sprint((i + 1) * 10000)), MerchantID: "c1"})
		require.NoError(t, err)
	}

	history, err := s.History(context.Background(), "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	// от новых к старым
	require.Equal(t, int64(3), history[0].PointsEarned)
	require.Equal(t, int64(1), history[2].PointsEarned)
}
