package coloyalty

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"go.uber.org/zap"
)

const (
	DeepFallback = "Hệ thống phân tích sâu đang bận xử lý dữ liệu lớn. Vui lòng thử lại sau."
	FastFallback = "Lỗi phản hồi nhanh."

	treasuryPrompt = "Thực hiện Stress-test toàn diện hệ thống: Giả định 30% Merchant rời bỏ và 50% User đổi điểm cùng lúc. Hãy suy nghĩ thật sâu về thanh khoản và đề xuất biện pháp can thiệp."
	merchantPrompt = "Hãy phân tích hiệu quả vận hành thực tế và đề xuất 3 chiến lược tăng trưởng doanh thu dựa trên dữ liệu này."

	recentTransactions = 10
)

// Советник только читает срезы реестра; его ошибки и задержки не влияют на операции
type AdvisorService struct {
	logger      *zap.Logger
	advisor     interf.Advisor
	reports     interf.ReportStorage
	store       interf.LedgerStore
	deepTimeout time.Duration
	fastTimeout time.Duration
	now         func() time.Time
}

func NewAdvisorService(logger *zap.Logger, advisor interf.Advisor, reports interf.ReportStorage, store interf.LedgerStore) *AdvisorService {
	return &AdvisorService{
		logger:      logger,
		advisor:     advisor,
		reports:     reports,
		store:       store,
		deepTimeout: envSeconds("ADVISOR_TIMEOUT_SEC", 30),
		fastTimeout: envSeconds("ADVISOR_FAST_TIMEOUT_SEC", 10),
		now:         time.Now,
	}
}

func envSeconds(name string, def int) time.Duration {
	sec := def
	env := os.Getenv(name)
	if env != "" {
		v, err := strconv.Atoi(env)
		if err == nil && v > 0 {
			sec = v
		}
	}
	return time.Duration(sec) * time.Second
}

// Ответ на вопрос; при любой ошибке возвращается статичный текст
func (a *AdvisorService) Ask(ctx context.Context, prompt string, deep bool) (text string, fallback bool) {
	if deep {
		return a.deep(ctx, prompt, nil)
	}
	if a.advisor == nil {
		return FastFallback, true
	}
	ctx, cancel := context.WithTimeout(ctx, a.fastTimeout)
	defer cancel()
	text, err := a.advisor.FastAdvice(ctx, prompt)
	if err != nil || text == "" {
		a.logger.Warn("advisor fallback", zap.String("service", "Ask"), zap.Error(err))
		return FastFallback, true
	}
	return text, false
}

func (a *AdvisorService) deep(ctx context.Context, prompt string, contextData any) (string, bool) {
	if a.advisor == nil {
		return DeepFallback, true
	}
	ctx, cancel := context.WithTimeout(ctx, a.deepTimeout)
	defer cancel()
	text, err := a.advisor.GenerateAdvice(ctx, prompt, contextData)
	if err != nil || text == "" {
		a.logger.Warn("advisor fallback", zap.String("service", "deep"), zap.Error(err))
		return DeepFallback, true
	}
	return text, false
}

type treasuryContext struct {
	TreasuryStats models.TreasuryStats `json:"treasuryStats"`
	MerchantCount int                  `json:"merchantCount"`
	UserCount     int                  `json:"userCount"`
	Blacklisted   int                  `json:"blacklistCount"`
}

// Стресс-тест казначейства
func (a *AdvisorService) TreasuryReport(ctx context.Context) (models.Report, error) {
	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		return models.Report{}, err
	}
	data := treasuryContext{
		TreasuryStats: ComputeStats(snap.Users, snap.Merchants, snap.Transactions),
		MerchantCount: len(snap.Merchants),
		UserCount:     len(snap.Users),
	}
	for _, u := range snap.Users {
		if u.Blacklisted {
			data.Blacklisted++
		}
	}
	return a.report(ctx, models.TreasuryReport, "", treasuryPrompt, data), nil
}

type merchantContext struct {
	MerchantName       string               `json:"merchantName"`
	Balance            string               `json:"balance"`
	Issued             int64                `json:"issued"`
	Redeemed           int64                `json:"redeemed"`
	RecentTransactions []models.Transaction `json:"recentTransactions"`
}

// Анализ работы партнера
func (a *AdvisorService) MerchantReport(ctx context.Context, merchantId string) (models.Report, error) {
	m, err := a.store.GetMerchant(ctx, merchantId)
	if err != nil {
		return models.Report{}, err
	}
	tnxs, err := a.store.Transactions(ctx, models.TxFilter{MerchantID: merchantId, Limit: recentTransactions})
	if err != nil {
		return models.Report{}, err
	}
	data := merchantContext{
		MerchantName:       m.Name,
		Balance:            m.Balance.String(),
		Issued:             m.TotalPointsIssued,
		Redeemed:           m.TotalPointsRedeemed,
		RecentTransactions: tnxs,
	}
	return a.report(ctx, models.MerchantReport, merchantId, merchantPrompt, data), nil
}

func (a *AdvisorService) report(ctx context.Context, kind string, merchantId string, prompt string, data any) models.Report {
	text, fallback := a.deep(ctx, prompt, data)
	contextJson, _ := json.Marshal(data)
	report := models.Report{
		ID:         uuid.New(),
		Kind:       kind,
		MerchantID: merchantId,
		Prompt:     prompt,
		Context:    string(contextJson),
		Text:       text,
		Fallback:   fallback,
		CreatedAt:  a.now(),
	}
	if a.reports != nil {
		err := a.reports.SaveReport(context.WithoutCancel(ctx), report)
		if err != nil {
			a.logger.Error("save report",
				zap.String("service", "report"),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}
	return report
}

// Сохраненные отчеты; без хранилища список пуст
func (a *AdvisorService) Reports(ctx context.Context, kind string, limit int64) ([]models.Report, error) {
	if a.reports == nil {
		return []models.Report{}, nil
	}
	return a.reports.GetReports(ctx, kind, limit)
}
