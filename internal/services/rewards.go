package coloyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
)

const CheckInPoints = 10

var SpinRewards = []int64{50, 100, 200, 500, 1000}

// Ежедневная отметка: +10 баллов, +1 к серии, +1 попытка колеса
func (s *LedgerService) CheckIn(ctx context.Context, userId string) (*models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.CheckIn")
	defer span.End()

	tx, err := s.store.Apply(ctx, interf.AccountKeys{UserID: userId}, func(acc *interf.Accounts) (*models.Transaction, error) {
		u := acc.User
		if u.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", u.ID, models.ErrBlacklisted)
		}
		now := s.now()
		today := day(now)
		if !u.LastCheckIn.IsZero() {
			last := day(u.LastCheckIn)
			switch {
			case !last.Before(today):
				return nil, fmt.Errorf("user %s: %w", u.ID, models.ErrAlreadyCheckedIn)
			case last.AddDate(0, 0, 1).Equal(today):
				u.Streak++
			default:
				u.Streak = 1 // серия прервалась
			}
		} else {
			u.Streak++
		}
		points, err := addPoints(u.Points, CheckInPoints)
		if err != nil {
			return nil, err
		}
		u.LastCheckIn = now
		u.Points = points
		u.LuckySpins++

		tx := s.newTx(u.ID, models.SystemMerchant, models.BONUS, decimal.Zero)
		tx.PointsEarned = CheckInPoints
		return tx, nil
	})
	if err != nil {
		s.rejected(models.BONUS, err)
		span.RecordError(err)
		return nil, err
	}
	s.committed(ctx, *tx)
	return tx, nil
}

// Колесо удачи: списывает попытку, начисляет случайный приз
func (s *LedgerService) Spin(ctx context.Context, userId string) (*models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Spin")
	defer span.End()

	tx, err := s.store.Apply(ctx, interf.AccountKeys{UserID: userId}, func(acc *interf.Accounts) (*models.Transaction, error) {
		u := acc.User
		if u.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", u.ID, models.ErrBlacklisted)
		}
		if u.LuckySpins <= 0 {
			return nil, fmt.Errorf("user %s: %w", u.ID, models.ErrNoSpins)
		}
		win := SpinRewards[s.random(len(SpinRewards))]
		points, err := addPoints(u.Points, win)
		if err != nil {
			return nil, err
		}
		u.LuckySpins--
		u.Points = points

		tx := s.newTx(u.ID, models.SystemMerchant, models.GAME_WIN, decimal.Zero)
		tx.PointsEarned = win
		return tx, nil
	})
	if err != nil {
		s.rejected(models.GAME_WIN, err)
		span.RecordError(err)
		return nil, err
	}
	s.committed(ctx, *tx)
	return tx, nil
}

// начало суток по UTC
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
