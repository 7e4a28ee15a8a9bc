package coloyalty

import (
	"context"

	"github.com/shopspring/decimal"
	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"go.uber.org/zap"
)

var (
	safetyRatioNoLiability = decimal.NewFromInt(2)
	breakageRate           = decimal.RequireFromString("0.05")
	forecastBurnRate       = decimal.RequireFromString("0.1")
)

// Показатели платежеспособности; чистая функция от трех коллекций
func ComputeStats(users []models.User, merchants []models.Merchant, tnxs []models.Transaction) models.TreasuryStats {
	var points int64
	for _, u := range users {
		points += u.Points
	}
	liability := decimal.NewFromInt(points).Mul(decimal.NewFromInt(models.PointValue))

	escrow := decimal.Zero
	for _, m := range merchants {
		escrow = escrow.Add(m.Balance)
	}

	revenue := decimal.Zero
	for _, t := range tnxs {
		revenue = revenue.Add(t.PlatformFee)
	}

	ratio := safetyRatioNoLiability
	if !liability.IsZero() {
		ratio = escrow.Div(liability)
	}

	return models.TreasuryStats{
		TotalLiability:  liability,
		EscrowFund:      escrow,
		SafetyRatio:     ratio,
		PlatformRevenue: revenue,
		BreakageProfit:  liability.Mul(breakageRate),
		ForecastBurn:    liability.Mul(forecastBurnRate),
	}
}

type TreasuryService struct {
	logger *zap.Logger
	store  interf.LedgerStore
}

func NewTreasuryService(logger *zap.Logger, store interf.LedgerStore) *TreasuryService {
	return &TreasuryService{logger, store}
}

// Пересчет по согласованному срезу, без кэширования
func (t *TreasuryService) Stats(ctx context.Context) (models.TreasuryStats, error) {
	snap, err := t.store.Snapshot(ctx)
	if err != nil {
		t.logger.Error("Treasury",
			zap.String("service", "Stats"),
			zap.Error(err),
		)
		return models.TreasuryStats{}, err
	}
	stats := ComputeStats(snap.Users, snap.Merchants, snap.Transactions)
	treasurySafetyRatio.Set(stats.SafetyRatio.InexactFloat64())
	return stats, nil
}
