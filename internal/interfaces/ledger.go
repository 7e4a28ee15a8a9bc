package coloyalty

import (
	"context"
	"time"

	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
)

//go:generate mockgen -destination=./../services/mock_ledger_test.go -package=coloyalty . TransactionJournal,BalanceCache,Advisor,ReportStorage

// Ключи счетов, блокируемых на время операции
type AccountKeys struct {
	UserID     string
	ReceiverID string
	MerchantID string
	ProductID  string
}

// Рабочие копии счетов внутри операции
type Accounts struct {
	User     *models.User
	Receiver *models.User
	Merchant *models.Merchant
	Product  *models.Product
}

// Операция над заблокированными счетами. Ошибка отменяет все изменения.
type Mutation func(acc *Accounts) (*models.Transaction, error)

type LedgerStore interface {
	Apply(ctx context.Context, keys AccountKeys, fn Mutation) (*models.Transaction, error)
	GetUser(ctx context.Context, userId string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	GetMerchant(ctx context.Context, merchantId string) (models.Merchant, error)
	GetProduct(ctx context.Context, productId string) (models.Product, error)
	Products(ctx context.Context, merchantId string) ([]models.Product, error)
	SetBlacklisted(ctx context.Context, userId string, blocked bool) (models.User, error)
	Transactions(ctx context.Context, filter models.TxFilter) ([]models.Transaction, error)
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

type TransactionJournal interface {
	Append(ctx context.Context, tx models.Transaction) error
	History(ctx context.Context, userId string, from time.Time, to time.Time) ([]models.Transaction, error)
}

type BalanceCache interface {
	GetBalance(ctx context.Context, user string) (points int64, err error)
	SetBalance(ctx context.Context, user string, points int64) (err error)
	InvalidateBalance(ctx context.Context, user string) error
}

type Advisor interface {
	GenerateAdvice(ctx context.Context, prompt string, contextData any) (string, error)
	FastAdvice(ctx context.Context, prompt string) (string, error)
}

type ReportStorage interface {
	SaveReport(ctx context.Context, report models.Report) error
	GetReports(ctx context.Context, kind string, limit int64) ([]models.Report, error)
}
