package grpc

import (
	"context"

	"google.golang.org/grpc"
)

type BalanceRequest struct {
	User string `json:"user"`
}

type BalanceResponse struct {
	Points int64 `json:"points"`
}

type TnxRequest struct {
	User     string `json:"user"`
	Datefrom string `json:"datefrom"`
	Dateto   string `json:"dateto"`
}

type TnxMessage struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	MerchantID   string `json:"merchantId"`
	Amount       string `json:"amount"`
	PointsEarned int64  `json:"pointsEarned"`
	PointsSpent  int64  `json:"pointsSpent"`
	PlatformFee  string `json:"platformFee"`
	Type         string `json:"type"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
	ReceiverID   string `json:"receiverId,omitempty"`
}

type TnxResponse struct {
	Tnx []*TnxMessage `json:"tnx"`
}

type TreasuryRequest struct{}

type TreasuryResponse struct {
	TotalLiability  string `json:"totalLiability"`
	EscrowFund      string `json:"escrowFund"`
	SafetyRatio     string `json:"safetyRatio"`
	PlatformRevenue string `json:"platformRevenue"`
	BreakageProfit  string `json:"breakageProfit"`
	ForecastBurn    string `json:"forecastBurn"`
}

// Сервис только для чтения
type LedgerServer interface {
	GetBalance(ctx context.Context, in *BalanceRequest) (*BalanceResponse, error)
	GetTransactions(ctx context.Context, in *TnxRequest) (*TnxResponse, error)
	GetTreasury(ctx context.Context, in *TreasuryRequest) (*TreasuryResponse, error)
}

const serviceName = "coloyalty.Ledger"

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: getBalanceHandler},
		{MethodName: "GetTransactions", Handler: getTransactionsHandler},
		{MethodName: "GetTreasury", Handler: getTreasuryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger",
}

func getBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetBalance"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetBalance(ctx, req.(*BalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getTransactionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TnxRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetTransactions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetTransactions"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetTransactions(ctx, req.(*TnxRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getTreasuryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TreasuryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetTreasury(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetTreasury"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetTreasury(ctx, req.(*TreasuryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Клиент сервиса
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc}
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JsonCodec{}.Name())}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}

func (c *LedgerClient) GetBalance(ctx context.Context, in *BalanceRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	out := new(BalanceResponse)
	err := c.invoke(ctx, "GetBalance", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetTransactions(ctx context.Context, in *TnxRequest, opts ...grpc.CallOption) (*TnxResponse, error) {
	out := new(TnxResponse)
	err := c.invoke(ctx, "GetTransactions", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetTreasury(ctx context.Context, in *TreasuryRequest, opts ...grpc.CallOption) (*TreasuryResponse, error) {
	out := new(TreasuryResponse)
	err := c.invoke(ctx, "GetTreasury", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
