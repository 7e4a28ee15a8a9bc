package grpc

import (
	context "context"
	"time"

	api "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/api"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	services "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/services"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"

	"go.uber.org/zap"
)

type LedgerService struct {
	logger   *zap.Logger
	ledger   *services.LedgerService
	treasury *services.TreasuryService
}

func NewLedgerService(logger *zap.Logger, ledger *services.LedgerService, treasury *services.TreasuryService) *LedgerService {
	return &LedgerService{logger, ledger, treasury}
}

func (p *LedgerService) toStatus(method string, err error) error {
	switch models.Reason(err) {
	case "NotFound", "ReceiverNotFound":
		return status.Error(codes.NotFound, err.Error())
	case "Forbidden", "BlacklistedActor":
		return status.Error(codes.PermissionDenied, err.Error())
	case "InvalidAmount", "UnsupportedType", "SelfTransferRejected":
		return status.Error(codes.InvalidArgument, err.Error())
	}
	p.logger.Error("gRPC",
		zap.String("service", method),
		zap.Error(err),
	)
	return status.Error(codes.Internal, err.Error())
}

// Баланс
func (p *LedgerService) GetBalance(ctx context.Context, in *BalanceRequest) (*BalanceResponse, error) {
	points, err := p.ledger.GetBalance(ctx, in.User)
	if err != nil {
		return nil, p.toStatus("GetBalance", err)
	}
	return &BalanceResponse{
		Points: points,
	}, nil
}

// История транзакций
func (p *LedgerService) GetTransactions(ctx context.Context, in *TnxRequest) (*TnxResponse, error) {
	from, to, err := api.ParsePeriod(in.Datefrom, in.Dateto)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	tnxs, err := p.ledger.History(ctx, in.User, from, to)
	if err != nil {
		return nil, p.toStatus("GetTransactions", err)
	}
	// сформировать ответ
	resp := make([]*TnxMessage, len(tnxs))
	for i, v := range tnxs {
		resp[i] = &TnxMessage{
			ID:           v.ID,
			UserID:       v.UserID,
			MerchantID:   v.MerchantID,
			Amount:       v.Amount.String(),
			PointsEarned: v.PointsEarned,
			PointsSpent:  v.PointsSpent,
			PlatformFee:  v.PlatformFee.String(),
			Type:         string(v.Type),
			Timestamp:    v.Timestamp.Format(time.RFC3339),
			Status:       string(v.Status),
			ReceiverID:   v.ReceiverID,
		}
	}
	return &TnxResponse{Tnx: resp}, nil
}

// Казначейство
func (p *LedgerService) GetTreasury(ctx context.Context, in *TreasuryRequest) (*TreasuryResponse, error) {
	stats, err := p.treasury.Stats(ctx)
	if err != nil {
		return nil, p.toStatus("GetTreasury", err)
	}
	return &TreasuryResponse{
		TotalLiability:  stats.TotalLiability.String(),
		EscrowFund:      stats.EscrowFund.String(),
		SafetyRatio:     stats.SafetyRatio.String(),
		PlatformRevenue: stats.PlatformRevenue.String(),
		BreakageProfit:  stats.BreakageProfit.String(),
		ForecastBurn:    stats.ForecastBurn.String(),
	}, nil
}
