package coloyalty

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const sideEffectTimeout = 5 * time.Second

// стоимость баллов в VND должна помещаться в int64
const maxPoints = math.MaxInt64 / models.PointValue

var tracer = otel.Tracer("ledger")

type LedgerService struct {
	logger  *zap.Logger
	store   interf.LedgerStore
	journal interf.TransactionJournal
	cache   interf.BalanceCache
	now     func() time.Time
	random  func(n int) int
	started time.Time // записи раньше этого момента есть только в журнале
}

// journal и cache необязательны (nil)
func NewLedgerService(logger *zap.Logger, store interf.LedgerStore, journal interf.TransactionJournal, cache interf.BalanceCache) *LedgerService {
	return &LedgerService{
		logger:  logger,
		store:   store,
		journal: journal,
		cache:   cache,
		now:     time.Now,
		random:  rand.IntN,
		started: time.Now(),
	}
}

func (s *LedgerService) Log(msg string, service string, err error) {
	s.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

// Операция по кошельку партнера: EARN, BURN, DEPOSIT, WITHDRAW
func (s *LedgerService) Process(ctx context.Context, userId string, req models.TxRequest) (*models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Process", trace.WithAttributes(
		attribute.String("type", string(req.Type)),
		attribute.String("merchant", req.MerchantID),
	))
	defer span.End()

	tx, err := s.process(ctx, userId, req)
	if err != nil {
		s.rejected(req.Type, err)
		span.RecordError(err)
		return nil, err
	}
	s.committed(ctx, *tx)
	return tx, nil
}

func (s *LedgerService) process(ctx context.Context, userId string, req models.TxRequest) (*models.Transaction, error) {
	keys, mutation, err := s.prepare(ctx, userId, req)
	if err != nil {
		return nil, err
	}
	return s.store.Apply(ctx, keys, mutation)
}

func (s *LedgerService) prepare(ctx context.Context, userId string, req models.TxRequest) (interf.AccountKeys, interf.Mutation, error) {
	var keys interf.AccountKeys
	// блокировка проверяется до любых расчетов
	user, err := s.store.GetUser(ctx, userId)
	if err != nil {
		return keys, nil, err
	}
	if user.Blacklisted {
		return keys, nil, fmt.Errorf("user %s: %w", userId, models.ErrBlacklisted)
	}
	if !req.Amount.IsPositive() {
		return keys, nil, fmt.Errorf("%s amount %s: %w", req.Type, req.Amount, models.ErrInvalidAmount)
	}

	var mutation interf.Mutation
	switch req.Type {
	case models.EARN:
		mutation = s.earn(req.Amount)
	case models.BURN:
		points := req.BurnPoints
		if points == 0 {
			if !req.Amount.IsInteger() || req.Amount.GreaterThan(decimal.NewFromInt(maxPoints)) {
				return keys, nil, fmt.Errorf("burn of %s points: %w", req.Amount, models.ErrInvalidAmount)
			}
			points = req.Amount.IntPart()
		}
		if points <= 0 || points > maxPoints {
			return keys, nil, fmt.Errorf("burn of %d points: %w", points, models.ErrInvalidAmount)
		}
		mutation = s.burn(req.Amount, points)
	case models.DEPOSIT:
		mutation = s.deposit(req.Amount)
	case models.WITHDRAW:
		mutation = s.withdraw(req.Amount)
	default:
		return keys, nil, fmt.Errorf("%q: %w", req.Type, models.ErrUnsupportedType)
	}
	if req.MerchantID == "" || req.MerchantID == models.SystemMerchant {
		return keys, nil, fmt.Errorf("merchant %q %w", req.MerchantID, models.ErrNotFound)
	}

	return interf.AccountKeys{UserID: userId, MerchantID: req.MerchantID}, mutation, nil
}

// Начисление: баллы оплачиваются из эскроу партнера
func (s *LedgerService) earn(amount decimal.Decimal) interf.Mutation {
	return func(acc *interf.Accounts) (*models.Transaction, error) {
		if acc.User.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", acc.User.ID, models.ErrBlacklisted)
		}
		m := acc.Merchant
		pointsEarned, err := toPoints(amount.Mul(m.PointRate))
		if err != nil {
			return nil, err
		}
		exp, err := toPoints(amount)
		if err != nil {
			return nil, err
		}
		pointCost := decimal.NewFromInt(pointsEarned * models.PointValue)
		if m.Balance.LessThan(pointCost) {
			return nil, fmt.Errorf("merchant %s escrow %s, payout %s: %w", m.ID, m.Balance, pointCost, models.ErrInsufficientEscrow)
		}
		points, err := addPoints(acc.User.Points, pointsEarned)
		if err != nil {
			return nil, err
		}
		issued, err := addPoints(m.TotalPointsIssued, pointsEarned)
		if err != nil {
			return nil, err
		}
		userExp, err := addPoints(acc.User.Exp, exp)
		if err != nil {
			return nil, err
		}
		m.Balance = m.Balance.Sub(pointCost)
		m.TotalPointsIssued = issued
		acc.User.Points = points
		acc.User.Exp = userExp

		tx := s.newTx(acc.User.ID, m.ID, models.EARN, amount)
		tx.PointsEarned = pointsEarned
		return tx, nil
	}
}

// Списание: партнер получает стоимость баллов за вычетом комиссии платформы
func (s *LedgerService) burn(amount decimal.Decimal, points int64) interf.Mutation {
	return func(acc *interf.Accounts) (*models.Transaction, error) {
		if acc.User.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", acc.User.ID, models.ErrBlacklisted)
		}
		if acc.User.Points < points {
			return nil, fmt.Errorf("user %s has %d, needs %d: %w", acc.User.ID, acc.User.Points, points, models.ErrInsufficientPoints)
		}
		m := acc.Merchant
		redeemed, err := addPoints(m.TotalPointsRedeemed, points)
		if err != nil {
			return nil, err
		}
		cashValue := decimal.NewFromInt(points * models.PointValue)
		platformFee := cashValue.Mul(models.PlatformFeeRate)

		acc.User.Points -= points
		m.Balance = m.Balance.Add(cashValue.Sub(platformFee))
		m.TotalPointsRedeemed = redeemed

		tx := s.newTx(acc.User.ID, m.ID, models.BURN, amount)
		tx.PointsSpent = points
		tx.PlatformFee = platformFee
		return tx, nil
	}
}

func (s *LedgerService) deposit(amount decimal.Decimal) interf.Mutation {
	return func(acc *interf.Accounts) (*models.Transaction, error) {
		if acc.User.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", acc.User.ID, models.ErrBlacklisted)
		}
		if err := canManageEscrow(acc.User, acc.Merchant.ID); err != nil {
			return nil, err
		}
		acc.Merchant.Balance = acc.Merchant.Balance.Add(amount)
		return s.newTx(acc.User.ID, acc.Merchant.ID, models.DEPOSIT, amount), nil
	}
}

func (s *LedgerService) withdraw(amount decimal.Decimal) interf.Mutation {
	return func(acc *interf.Accounts) (*models.Transaction, error) {
		if acc.User.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", acc.User.ID, models.ErrBlacklisted)
		}
		if err := canManageEscrow(acc.User, acc.Merchant.ID); err != nil {
			return nil, err
		}
		m := acc.Merchant
		if m.Balance.LessThan(amount) {
			return nil, fmt.Errorf("merchant %s escrow %s, withdraw %s: %w", m.ID, m.Balance, amount, models.ErrInsufficientEscrow)
		}
		m.Balance = m.Balance.Sub(amount)
		return s.newTx(acc.User.ID, m.ID, models.WITHDRAW, amount), nil
	}
}

// Эскроу пополняют и выводят администратор и руководство самого партнера
func canManageEscrow(u *models.User, merchantId string) error {
	switch {
	case u.Role == models.ADMIN:
		return nil
	case (u.Role == models.DIRECTOR || u.Role == models.MANAGER) && u.MerchantID == merchantId:
		return nil
	}
	return fmt.Errorf("user %s (%s) on merchant %s escrow: %w", u.ID, u.Role, merchantId, models.ErrForbidden)
}

// Обмен баллов на подарок: BURN по цене товара у его партнера, остаток уменьшается на 1
func (s *LedgerService) Redeem(ctx context.Context, userId string, productId string) (*models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Redeem", trace.WithAttributes(
		attribute.String("product", productId),
	))
	defer span.End()

	tx, err := s.redeem(ctx, userId, productId)
	if err != nil {
		s.rejected(models.BURN, err)
		span.RecordError(err)
		return nil, err
	}
	s.committed(ctx, *tx)
	return tx, nil
}

func (s *LedgerService) redeem(ctx context.Context, userId string, productId string) (*models.Transaction, error) {
	product, err := s.store.GetProduct(ctx, productId)
	if err != nil {
		return nil, err
	}
	keys, burn, err := s.prepare(ctx, userId, models.TxRequest{
		Type:       models.BURN,
		Amount:     decimal.NewFromInt(product.PointPrice),
		MerchantID: product.MerchantID,
		BurnPoints: product.PointPrice,
	})
	if err != nil {
		return nil, err
	}
	keys.ProductID = productId
	return s.store.Apply(ctx, keys, func(acc *interf.Accounts) (*models.Transaction, error) {
		if acc.Product.Stock <= 0 {
			return nil, fmt.Errorf("product %s: %w", productId, models.ErrOutOfStock)
		}
		tx, err := burn(acc)
		if err != nil {
			return nil, err
		}
		acc.Product.Stock--
		return tx, nil
	})
}

// Каталог; пустой merchantId означает все товары
func (s *LedgerService) Products(ctx context.Context, merchantId string) ([]models.Product, error) {
	if merchantId != "" {
		if _, err := s.store.GetMerchant(ctx, merchantId); err != nil {
			return nil, err
		}
	}
	return s.store.Products(ctx, merchantId)
}

// Перевод баллов другому участнику по email
func (s *LedgerService) Transfer(ctx context.Context, senderId string, receiverEmail string, points int64) (*models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Transfer")
	defer span.End()

	tx, err := s.transfer(ctx, senderId, receiverEmail, points)
	if err != nil {
		s.rejected(models.TRANSFER, err)
		span.RecordError(err)
		return nil, err
	}
	s.committed(ctx, *tx)
	return tx, nil
}

func (s *LedgerService) transfer(ctx context.Context, senderId string, receiverEmail string, points int64) (*models.Transaction, error) {
	sender, err := s.store.GetUser(ctx, senderId)
	if err != nil {
		return nil, err
	}
	if sender.Blacklisted {
		return nil, fmt.Errorf("user %s: %w", senderId, models.ErrBlacklisted)
	}
	if points <= 0 {
		return nil, fmt.Errorf("transfer of %d points: %w", points, models.ErrInvalidAmount)
	}
	receiver, err := s.store.FindUserByEmail(ctx, receiverEmail)
	if err != nil {
		return nil, err
	}
	if receiver.ID == senderId {
		return nil, fmt.Errorf("user %s: %w", senderId, models.ErrSelfTransfer)
	}

	keys := interf.AccountKeys{UserID: senderId, ReceiverID: receiver.ID}
	return s.store.Apply(ctx, keys, func(acc *interf.Accounts) (*models.Transaction, error) {
		if acc.User.Blacklisted {
			return nil, fmt.Errorf("user %s: %w", acc.User.ID, models.ErrBlacklisted)
		}
		if acc.User.Points < points {
			return nil, fmt.Errorf("user %s has %d, needs %d: %w", acc.User.ID, acc.User.Points, points, models.ErrInsufficientPoints)
		}
		received, err := addPoints(acc.Receiver.Points, points)
		if err != nil {
			return nil, err
		}
		acc.User.Points -= points
		acc.Receiver.Points = received

		tx := s.newTx(acc.User.ID, models.SystemMerchant, models.TRANSFER, decimal.Zero)
		tx.PointsSpent = points
		tx.ReceiverID = acc.Receiver.ID
		return tx, nil
	})
}

// Событие покупки из кассы (Kafka)
type PurchaseEvent struct {
	EventId    string          `json:"eventId"`
	UserId     string          `json:"userId"`
	MerchantId string          `json:"merchantId"`
	Type       models.TxType   `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	BurnPoints int64           `json:"burnPoints"`
}

func (s *LedgerService) HandlePurchase(ctx context.Context, eventJson string) (eventId string, err error) {
	event := &PurchaseEvent{}
	err = json.Unmarshal([]byte(eventJson), event)
	if err != nil {
		return "", err
	}
	if event.Type != models.EARN && event.Type != models.BURN {
		return event.EventId, fmt.Errorf("purchase event %s %q: %w", event.EventId, event.Type, models.ErrUnsupportedType)
	}
	_, err = s.Process(ctx, event.UserId, models.TxRequest{
		Type:       event.Type,
		Amount:     event.Amount,
		MerchantID: event.MerchantId,
		BurnPoints: event.BurnPoints,
	})
	return event.EventId, err
}

// Заявка партнера на пополнение/вывод эскроу (RabbitMQ)
type FinanceRequest struct {
	RequestId  string          `json:"requestId"`
	UserId     string          `json:"userId"`
	MerchantId string          `json:"merchantId"`
	Type       models.TxType   `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
}

func (s *LedgerService) HandleFinance(ctx context.Context, requestJson string) (requestId string, err error) {
	req := &FinanceRequest{}
	err = json.Unmarshal([]byte(requestJson), req)
	if err != nil {
		return "", err
	}
	if req.Type != models.DEPOSIT && req.Type != models.WITHDRAW {
		return req.RequestId, fmt.Errorf("finance request %s %q: %w", req.RequestId, req.Type, models.ErrUnsupportedType)
	}
	_, err = s.Process(ctx, req.UserId, models.TxRequest{
		Type:       req.Type,
		Amount:     req.Amount,
		MerchantID: req.MerchantId,
	})
	return req.RequestId, err
}

// Блокировка пользователя администратором
func (s *LedgerService) SetBlacklisted(ctx context.Context, actorId string, userId string, blocked bool) (models.User, error) {
	actor, err := s.store.GetUser(ctx, actorId)
	if err != nil {
		return models.User{}, err
	}
	if actor.Role != models.ADMIN {
		return models.User{}, fmt.Errorf("user %s is %s: %w", actorId, actor.Role, models.ErrForbidden)
	}
	user, err := s.store.SetBlacklisted(ctx, userId, blocked)
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("blacklist",
		zap.String("admin", actorId),
		zap.String("user", userId),
		zap.Bool("blocked", blocked),
	)
	return user, nil
}

// баланс
func (s *LedgerService) GetBalance(ctx context.Context, userId string) (points int64, err error) {
	if s.cache != nil {
		points, err = s.cache.GetBalance(ctx, userId)
		if err == nil {
			return points, nil
		}
	}
	user, err := s.store.GetUser(ctx, userId)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.fillBalance(ctx, userId, user.Points)
	}
	return user.Points, nil
}

// Запись в кэш после промаха. Если баланс успел измениться, операция могла
// сбросить ключ раньше нашей записи, поэтому ключ сбрасывается повторно.
func (s *LedgerService) fillBalance(ctx context.Context, userId string, points int64) {
	err := s.cache.SetBalance(ctx, userId, points)
	if err != nil {
		ledgerSideEffectErrors.WithLabelValues("cache").Inc()
		s.Log("cache set", "GetBalance", err)
		return
	}
	user, err := s.store.GetUser(ctx, userId)
	if err == nil && user.Points == points {
		return
	}
	err = s.cache.InvalidateBalance(ctx, userId)
	if err != nil {
		ledgerSideEffectErrors.WithLabelValues("cache").Inc()
		s.Log("cache invalidate", "GetBalance", err)
	}
}

func (s *LedgerService) GetUser(ctx context.Context, userId string) (models.User, error) {
	return s.store.GetUser(ctx, userId)
}

func (s *LedgerService) GetMerchant(ctx context.Context, merchantId string) (models.Merchant, error) {
	return s.store.GetMerchant(ctx, merchantId)
}

// История операций пользователя: текущий запуск из памяти,
// более ранние записи из журнала Postgres
func (s *LedgerService) History(ctx context.Context, userId string, from time.Time, to time.Time) ([]models.Transaction, error) {
	if _, err := s.store.GetUser(ctx, userId); err != nil {
		return nil, err
	}
	tnxs, err := s.store.Transactions(ctx, models.TxFilter{UserID: userId, From: from, To: to})
	if err != nil {
		return nil, err
	}
	if s.journal == nil || (!from.IsZero() && !from.Before(s.started)) {
		return tnxs, nil
	}
	end := s.started.Add(-time.Nanosecond)
	if !to.IsZero() && to.Before(end) {
		end = to
	}
	older, err := s.journal.History(ctx, userId, from, end)
	if err != nil {
		s.Log("journal history", "History", err)
		return tnxs, nil
	}
	return append(tnxs, older...), nil
}

func (s *LedgerService) Transactions(ctx context.Context, filter models.TxFilter) ([]models.Transaction, error) {
	return s.store.Transactions(ctx, filter)
}

func (s *LedgerService) newTx(userId string, merchantId string, txType models.TxType, amount decimal.Decimal) *models.Transaction {
	prefix := "TX-"
	if txType == models.TRANSFER {
		prefix = "TX-P2P-"
	}
	return &models.Transaction{
		ID:          prefix + uuid.NewString(),
		UserID:      userId,
		MerchantID:  merchantId,
		Amount:      amount,
		PlatformFee: decimal.Zero,
		Type:        txType,
		Timestamp:   s.now(),
		Status:      models.COMPLETED,
	}
}

// после фиксации: журнал, кэш, метрики. Ошибки не откатывают операцию
func (s *LedgerService) committed(ctx context.Context, tx models.Transaction) {
	ledgerTransactionsTotal.WithLabelValues(string(tx.Type)).Inc()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.journal != nil {
		err := s.journal.Append(sctx, tx)
		if err != nil {
			ledgerSideEffectErrors.WithLabelValues("journal").Inc()
			s.logger.Error("journal append",
				zap.String("service", "committed"),
				zap.String("tx", tx.ID),
				zap.Error(err),
			)
		}
	}

	if s.cache != nil && tx.Type != models.DEPOSIT && tx.Type != models.WITHDRAW {
		users := []string{tx.UserID}
		if tx.ReceiverID != "" {
			users = append(users, tx.ReceiverID)
		}
		for _, u := range users {
			err := s.cache.InvalidateBalance(sctx, u)
			if err != nil {
				ledgerSideEffectErrors.WithLabelValues("cache").Inc()
				s.Log("cache invalidate", "committed", err)
			}
		}
	}
}

func (s *LedgerService) rejected(txType models.TxType, err error) {
	ledgerRejectionsTotal.WithLabelValues(string(txType), models.Reason(err)).Inc()
	s.logger.Info("rejected",
		zap.String("type", string(txType)),
		zap.String("reason", models.Reason(err)),
		zap.Error(err),
	)
}

// целое число баллов в сумме VND (с округлением вниз)
func toPoints(amount decimal.Decimal) (int64, error) {
	q, _ := amount.QuoRem(decimal.NewFromInt(models.PointValue), 0)
	if q.GreaterThan(decimal.NewFromInt(maxPoints)) {
		return 0, fmt.Errorf("%s VND exceeds point limit: %w", amount, models.ErrInvalidAmount)
	}
	return q.IntPart(), nil
}

func addPoints(balance int64, points int64) (int64, error) {
	if points > 0 && balance > math.MaxInt64-points {
		return 0, fmt.Errorf("balance %d + %d points overflows: %w", balance, points, models.ErrInvalidAmount)
	}
	return balance + points, nil
}
