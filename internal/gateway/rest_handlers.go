package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/inspire-tradequest/trade-quest/internal/auth"
	"github.com/inspire-tradequest/trade-quest/internal/domain"
	"github.com/inspire-tradequest/trade-quest/internal/execution"
	"github.com/inspire-tradequest/trade-quest/internal/pricefeed"
	"github.com/inspire-tradequest/trade-quest/internal/storage"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 3650
	bcryptCost         = 12
)

// AssetBoard serves the current quote board.
type AssetBoard interface {
	Assets() []domain.Asset
}

type Handlers struct {
	users    *storage.UserRepo
	orderSvc *execution.OrderService
	assets   AssetBoard
	history  *pricefeed.Generator
	jwtSvc   *auth.JWTService
	logger   *slog.Logger
}

func NewHandlers(
	users *storage.UserRepo,
	orderSvc *execution.OrderService,
	assets AssetBoard,
	history *pricefeed.Generator,
	jwtSvc *auth.JWTService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		users:    users,
		orderSvc: orderSvc,
		assets:   assets,
		history:  history,
		jwtSvc:   jwtSvc,
		logger:   logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string            `json:"token"`
	User    *domain.User      `json:"user"`
	Account execution.Account `json:"account"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		h.logger.Error("hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &domain.User{Email: req.Email, PasswordHash: string(hash)}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("create user", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.respondWithToken(w, r, http.StatusCreated, user)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Error("load user", "err", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.respondWithToken(w, r, http.StatusOK, user)
}

// respondWithToken also restores the user's ledger, so a corrupt record is
// noticed at login rather than at the first trade.
func (h *Handlers) respondWithToken(w http.ResponseWriter, r *http.Request, code int, user *domain.User) {
	account, err := h.orderSvc.Account(r.Context(), user.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	token, err := h.jwtSvc.Sign(user.ID)
	if err != nil {
		h.logger.Error("sign token", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	h.writeJSON(w, code, authResponse{Token: token, User: user, Account: account})
}

func (h *Handlers) GetAssets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.assets.Assets())
}

type historyResponse struct {
	Symbol  string              `json:"symbol"`
	Class   domain.AssetClass   `json:"class"`
	Days    int                 `json:"days"`
	Points  []domain.PricePoint `json:"points"`
	Summary pricefeed.Summary   `json:"summary"`
}

// GetHistory renders a synthetic daily chart. With ?seed= the series is
// reproducible; without it the shared generator is used.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	asset, ok := pricefeed.Lookup(chi.URLParam(r, "symbol"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol")
		return
	}

	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n > maxHistoryDays {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	gen := h.history
	if v := r.URL.Query().Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid seed")
			return
		}
		gen = pricefeed.NewGenerator(seed)
	}

	points, err := gen.Series(asset.Class, days)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	summary, err := pricefeed.Summarize(points)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, historyResponse{
		Symbol:  asset.Symbol,
		Class:   asset.Class,
		Days:    days,
		Points:  points,
		Summary: summary,
	})
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.orderSvc.Account(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) GetPositions(w http.ResponseWriter, r *http.Request) {
	status := domain.PositionStatus(strings.ToLower(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be open or closed")
		return
	}
	positions, err := h.orderSvc.Positions(r.Context(), auth.UserIDFromCtx(r.Context()), status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, positions)
}

// Side is taken as a plain string so an unknown side is reported by the
// validator instead of failing the JSON decode.
type createOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

type tradeResponse struct {
	*execution.TradeResult
	Warning string `json:"warning,omitempty"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.orderSvc.PlaceOrder(r.Context(), auth.UserIDFromCtx(r.Context()), execution.OrderRequest{
		Symbol:   req.Symbol,
		Side:     domain.OrderSide(req.Side),
		Quantity: req.Quantity,
	})
	h.writeTrade(w, http.StatusCreated, result, err)
}

func (h *Handlers) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}
	result, err := h.orderSvc.ClosePosition(r.Context(), auth.UserIDFromCtx(r.Context()), id)
	h.writeTrade(w, http.StatusOK, result, err)
}

// writeTrade reports a trade that was applied but not saved as a success
// carrying a warning.
func (h *Handlers) writeTrade(w http.ResponseWriter, code int, result *execution.TradeResult, err error) {
	if err != nil {
		if result != nil && errors.Is(err, domain.ErrPersistenceWriteFailed) {
			h.writeJSON(w, code, tradeResponse{
				TradeResult: result,
				Warning:     "trade applied but could not be saved; it will be lost on restart",
			})
			return
		}
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, code, tradeResponse{TradeResult: result})
}

func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidDays):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrShortSellingDisabled):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPositionAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes before writing the header so an unencodable value turns
// into a 500 instead of an empty success.
func (h *Handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("encode response", "status", code, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
