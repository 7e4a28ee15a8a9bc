package coloyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PointValue     = 1000     // VND за один балл
	SystemMerchant = "SYSTEM" // контрагент для переводов и наград платформы
)

var (
	PlatformFeeRate  = decimal.RequireFromString("0.015")
	DefaultPointRate = decimal.RequireFromString("0.1")
	ReserveRate      = decimal.RequireFromString("0.05")
)

type Role string

const (
	ADMIN     Role = "ADMIN"
	DIRECTOR  Role = "DIRECTOR"
	MANAGER   Role = "MANAGER"
	CASHIER   Role = "CASHIER"
	MEMBER    Role = "MEMBER"
	AFFILIATE Role = "AFFILIATE"
)

type MemberTier string
type MerchantTier string

// Участник программы
type User struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	MerchantID  string          `json:"merchantId,omitempty"`
	Points      int64           `json:"points"`
	Exp         int64           `json:"exp"`
	Tier        MemberTier      `json:"tier"`
	WalletVND   decimal.Decimal `json:"walletVND"`
	Streak      int             `json:"streak"`
	LuckySpins  int             `json:"luckySpins"`
	LastCheckIn time.Time       `json:"lastCheckIn,omitempty"`
	Blacklisted bool            `json:"isBlacklisted"`
}

// Партнер с эскроу-кошельком
type Merchant struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Category            string          `json:"category"`
	Tier                MerchantTier    `json:"tier"`
	PointRate           decimal.Decimal `json:"pointRate"`
	Balance             decimal.Decimal `json:"balance"`
	Reserve             decimal.Decimal `json:"reserve"`
	TotalPointsIssued   int64           `json:"totalPointsIssued"`
	TotalPointsRedeemed int64           `json:"totalPointsRedeemed"`
}

// Подарок в каталоге партнера, оплачивается баллами
type Product struct {
	ID            string          `json:"id"`
	MerchantID    string          `json:"merchantId"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	PointPrice    int64           `json:"pointPrice"`
	Image         string          `json:"image"`
	Category      string          `json:"category"`
	Stock         int64           `json:"stock"`
	IsFlashSale   bool            `json:"isFlashSale,omitempty"`
	FlashSaleEnds time.Time       `json:"flashSaleEnds,omitempty"`
}

type TxType string

const (
	EARN       TxType = "EARN"
	BURN       TxType = "BURN"
	TRANSFER   TxType = "TRANSFER"
	REFUND     TxType = "REFUND"
	DEPOSIT    TxType = "DEPOSIT"
	WITHDRAW   TxType = "WITHDRAW"
	COMMISSION TxType = "COMMISSION"
	BONUS      TxType = "BONUS"
	GAME_WIN   TxType = "GAME_WIN"
)

type TxStatus string

const (
	COMPLETED TxStatus = "COMPLETED"
	PENDING   TxStatus = "PENDING"
	VOIDED    TxStatus = "VOIDED"
	FLAGGED   TxStatus = "FLAGGED"
)

// Запись журнала, после создания не меняется
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	MerchantID   string          `json:"merchantId"`
	Amount       decimal.Decimal `json:"amount"`
	PointsEarned int64           `json:"pointsEarned,omitempty"`
	PointsSpent  int64           `json:"pointsSpent,omitempty"`
	PlatformFee  decimal.Decimal `json:"platformFee"`
	Type         TxType          `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       TxStatus        `json:"status"`
	ReceiverID   string          `json:"receiverId,omitempty"`
}

// Запрос на операцию по кошельку партнера
type TxRequest struct {
	Type       TxType          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	MerchantID string          `json:"merchantId"`
	BurnPoints int64           `json:"burnPoints,omitempty"`
}

// Фильтр журнала
type TxFilter struct {
	UserID     string
	MerchantID string
	From       time.Time
	To         time.Time
	Limit      int
}

// Пользователь подходит как инициатор или как получатель перевода
func (f TxFilter) Match(tx Transaction) bool {
	if f.UserID != "" && tx.UserID != f.UserID && tx.ReceiverID != f.UserID {
		return false
	}
	if f.MerchantID != "" && tx.MerchantID != f.MerchantID {
		return false
	}
	if !f.From.IsZero() && tx.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Состояние казначейства
type TreasuryStats struct {
	TotalLiability  decimal.Decimal `json:"totalLiability"`
	EscrowFund      decimal.Decimal `json:"escrowFund"`
	SafetyRatio     decimal.Decimal `json:"safetyRatio"`
	PlatformRevenue decimal.Decimal `json:"platformRevenue"`
	BreakageProfit  decimal.Decimal `json:"breakageProfit"`
	ForecastBurn    decimal.Decimal `json:"forecastBurn"`
}

// Согласованный срез состояния реестра
type Snapshot struct {
	Users        []User
	Merchants    []Merchant
	Products     []Product
	Transactions []Transaction
}
