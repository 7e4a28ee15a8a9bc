package coloyalty

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	services "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/services"
	"go.uber.org/zap"
)

type LedgerHandler struct {
	router   *mux.Router
	ledger   *services.LedgerService
	treasury *services.TreasuryService
	advisor  *services.AdvisorService
	logger   *zap.Logger
}

type TransferRequest struct {
	ReceiverEmail string `json:"receiverEmail"`
	Points        int64  `json:"points"`
}

type BalanceResponse struct {
	UserID string `json:"userId"`
	Points int64  `json:"points"`
}

type AskRequest struct {
	Prompt string `json:"prompt"`
	Deep   bool   `json:"deep"`
}

type AskResponse struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

type BlacklistRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

// Ответ при отказе
type RejectionResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func NewHandler(logger *zap.Logger, ledger *services.LedgerService, treasury *services.TreasuryService, advisor *services.AdvisorService, authSecret string, limiter *RateLimiter) *LedgerHandler {
	router := mux.NewRouter()
	handler := &LedgerHandler{router, ledger, treasury, advisor, logger}
	router.Use(MiddlewareLog(), MiddlewareAuth(authSecret, logger))

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/transactions", handler.ProcessHandler).Methods(http.MethodPost)
	router.HandleFunc("/transactions", handler.LogHandler).Methods(http.MethodGet)
	router.HandleFunc("/transfers", handler.TransferHandler).Methods(http.MethodPost)
	router.HandleFunc("/checkin", handler.CheckInHandler).Methods(http.MethodPost)
	router.HandleFunc("/spin", handler.SpinHandler).Methods(http.MethodPost)

	router.HandleFunc("/products", handler.ProductsHandler).Methods(http.MethodGet)
	router.HandleFunc("/products/{id}/redeem", handler.RedeemHandler).Methods(http.MethodPost)

	router.HandleFunc("/users/{id}", handler.GetUserHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}/balance", handler.GetBalanceHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}/transactions", handler.HistoryHandler).Methods(http.MethodGet)

	router.HandleFunc("/merchants/{id}", handler.GetMerchantHandler).Methods(http.MethodGet)
	router.HandleFunc("/merchants/{id}/transactions", handler.MerchantTransactionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/merchants/{id}/products", handler.MerchantProductsHandler).Methods(http.MethodGet)
	router.HandleFunc("/treasury", handler.TreasuryHandler).Methods(http.MethodGet)

	router.Handle("/advisor/ask", limiter.Middleware(http.HandlerFunc(handler.AskHandler))).Methods(http.MethodPost)
	router.HandleFunc("/advisor/treasury", handler.TreasuryReportHandler).Methods(http.MethodPost)
	router.HandleFunc("/advisor/merchants/{id}", handler.MerchantReportHandler).Methods(http.MethodPost)
	router.HandleFunc("/advisor/reports", handler.ReportsHandler).Methods(http.MethodGet)

	router.HandleFunc("/admin/users/{id}/blacklist", handler.BlacklistHandler).Methods(http.MethodPost)

	return handler
}

func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *LedgerHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

func statusOf(err error) int {
	switch models.Reason(err) {
	case "BlacklistedActor", "Forbidden":
		return http.StatusForbidden
	case "InsufficientMerchantEscrow", "InsufficientUserPoints":
		return http.StatusPaymentRequired
	case "ReceiverNotFound", "NotFound":
		return http.StatusNotFound
	case "SelfTransferRejected", "InvalidAmount", "UnsupportedType":
		return http.StatusBadRequest
	case "AlreadyCheckedIn", "NoLuckySpins", "OutOfStock":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, service string, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		h.Log("Internal", service, err)
	}
	h.writeJson(w, service, code, &RejectionResponse{models.Reason(err), err.Error()})
}

func (h *LedgerHandler) writeJson(w http.ResponseWriter, service string, code int, v any) {
	j, err := json.Marshal(v)
	if err != nil {
		h.Log("Marshal", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(j)
}

func (h *LedgerHandler) readJson(w http.ResponseWriter, req *http.Request, service string, v any) bool {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", service, err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return false
	}
	defer req.Body.Close()
	err = json.Unmarshal(body, v)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return false
	}
	return true
}

// Доступ: сам пользователь, сотрудник партнера или администратор
func (h *LedgerHandler) authorize(req *http.Request, userId string, merchantId string) error {
	actorId := Actor(req.Context())
	if userId != "" && actorId == userId {
		return nil
	}
	actor, err := h.ledger.GetUser(req.Context(), actorId)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrForbidden
		}
		return err
	}
	if actor.Role == models.ADMIN {
		return nil
	}
	if merchantId != "" && actor.MerchantID == merchantId {
		return nil
	}
	return models.ErrForbidden
}

// Операция по кошельку партнера
func (h *LedgerHandler) ProcessHandler(w http.ResponseWriter, req *http.Request) {
	txReq := &models.TxRequest{}
	if !h.readJson(w, req, "ProcessHandler", txReq) {
		return
	}
	tx, err := h.ledger.Process(req.Context(), Actor(req.Context()), *txReq)
	if err != nil {
		h.writeError(w, "ProcessHandler", err)
		return
	}
	h.writeJson(w, "ProcessHandler", http.StatusOK, tx)
}

// Перевод баллов
func (h *LedgerHandler) TransferHandler(w http.ResponseWriter, req *http.Request) {
	tr := &TransferRequest{}
	if !h.readJson(w, req, "TransferHandler", tr) {
		return
	}
	tx, err := h.ledger.Transfer(req.Context(), Actor(req.Context()), tr.ReceiverEmail, tr.Points)
	if err != nil {
		h.writeError(w, "TransferHandler", err)
		return
	}
	h.writeJson(w, "TransferHandler", http.StatusOK, tx)
}

func (h *LedgerHandler) CheckInHandler(w http.ResponseWriter, req *http.Request) {
	tx, err := h.ledger.CheckIn(req.Context(), Actor(req.Context()))
	if err != nil {
		h.writeError(w, "CheckInHandler", err)
		return
	}
	h.writeJson(w, "CheckInHandler", http.StatusOK, tx)
}

func (h *LedgerHandler) SpinHandler(w http.ResponseWriter, req *http.Request) {
	tx, err := h.ledger.Spin(req.Context(), Actor(req.Context()))
	if err != nil {
		h.writeError(w, "SpinHandler", err)
		return
	}
	h.writeJson(w, "SpinHandler", http.StatusOK, tx)
}

// Каталог подарков
func (h *LedgerHandler) ProductsHandler(w http.ResponseWriter, req *http.Request) {
	products, err := h.ledger.Products(req.Context(), "")
	if err != nil {
		h.writeError(w, "ProductsHandler", err)
		return
	}
	h.writeJson(w, "ProductsHandler", http.StatusOK, products)
}

func (h *LedgerHandler) MerchantProductsHandler(w http.ResponseWriter, req *http.Request) {
	products, err := h.ledger.Products(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, "MerchantProductsHandler", err)
		return
	}
	h.writeJson(w, "MerchantProductsHandler", http.StatusOK, products)
}

// Обмен баллов на подарок
func (h *LedgerHandler) RedeemHandler(w http.ResponseWriter, req *http.Request) {
	tx, err := h.ledger.Redeem(req.Context(), Actor(req.Context()), mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, "RedeemHandler", err)
		return
	}
	h.writeJson(w, "RedeemHandler", http.StatusOK, tx)
}

func (h *LedgerHandler) GetUserHandler(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := h.authorize(req, id, "")
	if err != nil {
		h.writeError(w, "GetUserHandler", err)
		return
	}
	user, err := h.ledger.GetUser(req.Context(), id)
	if err != nil {
		h.writeError(w, "GetUserHandler", err)
		return
	}
	h.writeJson(w, "GetUserHandler", http.StatusOK, user)
}

func (h *LedgerHandler) GetBalanceHandler(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := h.authorize(req, id, "")
	if err != nil {
		h.writeError(w, "GetBalanceHandler", err)
		return
	}
	points, err := h.ledger.GetBalance(req.Context(), id)
	if err != nil {
		h.writeError(w, "GetBalanceHandler", err)
		return
	}
	h.writeJson(w, "GetBalanceHandler", http.StatusOK, &BalanceResponse{id, points})
}

// Период YYYY-MM-DD включительно; пустые границы не ограничивают
func ParsePeriod(from string, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		start, err = time.Parse("2006-01-02 15:04:05", from+" 00:00:00")
		if err != nil {
			return start, end, err
		}
	}
	if to != "" {
		end, err = time.Parse("2006-01-02 15:04:05", to+" 23:59:59")
		if err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}

// История пользователя
func (h *LedgerHandler) HistoryHandler(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := h.authorize(req, id, "")
	if err != nil {
		h.writeError(w, "HistoryHandler", err)
		return
	}
	from, to, err := ParsePeriod(req.URL.Query().Get("from"), req.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "Period is not correct", http.StatusBadRequest)
		return
	}
	tnxs, err := h.ledger.History(req.Context(), id, from, to)
	if err != nil {
		h.writeError(w, "HistoryHandler", err)
		return
	}
	h.writeJson(w, "HistoryHandler", http.StatusOK, tnxs)
}

// Журнал целиком, только администратор
func (h *LedgerHandler) LogHandler(w http.ResponseWriter, req *http.Request) {
	err := h.authorize(req, "", "")
	if err != nil {
		h.writeError(w, "LogHandler", err)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	tnxs, err := h.ledger.Transactions(req.Context(), models.TxFilter{Limit: limit})
	if err != nil {
		h.writeError(w, "LogHandler", err)
		return
	}
	h.writeJson(w, "LogHandler", http.StatusOK, tnxs)
}

func (h *LedgerHandler) GetMerchantHandler(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := h.authorize(req, "", id)
	if err != nil {
		h.writeError(w, "GetMerchantHandler", err)
		return
	}
	merchant, err := h.ledger.GetMerchant(req.Context(), id)
	if err != nil {
		h.writeError(w, "GetMerchantHandler", err)
		return
	}
	h.writeJson(w, "GetMerchantHandler", http.StatusOK, merchant)
}

func (h *LedgerHandler) MerchantTransactionsHandler(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := h.authorize(req, "", id)
	if err != nil {
		h.writeError(w, "MerchantTransactionsHandler", err)
		return
	}
	_, err = h.ledger.GetMerchant(req.Context(), id)
	if err != nil {
		h.writeError(w, "MerchantTransactionsHandler", err)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	tnxs, err := h.ledger.Transactions(req.Context(), models.TxFilter{MerchantID: id, Limit: limit})
	if err != nil {
		h.writeError(w, "MerchantTransactionsHandler", err)
		return
	}
	h.writeJson(w, "MerchantTransactionsHandler", http.StatusOK, tnxs)
}

// Показатели казначейства
func (h *LedgerHandler) TreasuryHandler(w http.ResponseWriter, req *http.Request) {
	err := h.authorize(req, "", "")
	if err != nil {
		h.writeError(w, "TreasuryHandler", err)
		return
	}
	stats, err := h.treasury.Stats(req.Context())
	if err != nil {
		h.writeError(w, "TreasuryHandler", err)
		return
	}
	h.writeJson(w, "TreasuryHandler", http.StatusOK, stats)
}

// Вопрос советнику
func (h *LedgerHandler) AskHandler(w http.ResponseWriter, req *http.Request) {
	ask := &AskRequest{}
	if !h.readJson(w, req, "AskHandler", ask) {
		return
	}
	if ask.Prompt == "" {
		http.Error(w, "Prompt is empty", http.StatusBadRequest)
		return
	}
	text, fallback := h.advisor.Ask(req.Context(), ask.Prompt, ask.Deep)
	h.writeJson(w, "AskHandler", http.StatusOK, &AskResponse{text, fallback})
}

func (h *LedgerHandler) TreasuryReportHandler(w http.ResponseWriter, req *http.Request) {
	err := h.authorize(req, "", "")
	if err != nil {
		h.writeError(w, "TreasuryReportHandler", err)
		return
	}
	report, err := h.advisor.TreasuryReport(req.Context())
	if err != nil {
		h.writeError(w, "TreasuryReportHandler", err)
		return
	}
	h.writeJson(w, "TreasuryReportHandler", http.StatusOK, report)
}

func (h *LedgerHandler) MerchantReportHandler(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := h.authorize(req, "", id)
	if err != nil {
		h.writeError(w, "MerchantReportHandler", err)
		return
	}
	report, err := h.advisor.MerchantReport(req.Context(), id)
	if err != nil {
		h.writeError(w, "MerchantReportHandler", err)
		return
	}
	h.writeJson(w, "MerchantReportHandler", http.StatusOK, report)
}

func (h *LedgerHandler) ReportsHandler(w http.ResponseWriter, req *http.Request) {
	err := h.authorize(req, "", "")
	if err != nil {
		h.writeError(w, "ReportsHandler", err)
		return
	}
	limit, err := strconv.ParseInt(req.URL.Query().Get("limit"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 20
	}
	reports, err := h.advisor.Reports(req.Context(), req.URL.Query().Get("kind"), limit)
	if err != nil {
		h.writeError(w, "ReportsHandler", err)
		return
	}
	h.writeJson(w, "ReportsHandler", http.StatusOK, reports)
}

// Блокировка пользователя
func (h *LedgerHandler) BlacklistHandler(w http.ResponseWriter, req *http.Request) {
	bl := &BlacklistRequest{}
	if !h.readJson(w, req, "BlacklistHandler", bl) {
		return
	}
	user, err := h.ledger.SetBlacklisted(req.Context(), Actor(req.Context()), mux.Vars(req)["id"], bl.Blacklisted)
	if err != nil {
		h.writeError(w, "BlacklistHandler", err)
		return
	}
	h.writeJson(w, "BlacklistHandler", http.StatusOK, user)
}
