package handlers

import (
	"net/http"
	"strconv"

	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/campuspay/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// TransferRequest moves money to another user
type TransferRequest struct {
	To     string          `json:"to" validate:"required" example:"3f1c1e9a-6a63-4c7e-9a0e-2f0c3b1f5d11"`
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"150.00"`
}

// PayFeesRequest starts a fee settlement
type PayFeesRequest struct {
	Amount  decimal.Decimal `json:"amount" swaggertype:"string" example:"50000"`
	FeeType string          `json:"feeType" validate:"omitempty,max=64" example:"Tuition Fee"`
}

// BalanceResponse is the caller's current balance
type BalanceResponse struct {
	Balance  decimal.Decimal `json:"balance" swaggertype:"string" example:"1520.75"`
	Currency string          `json:"currency" example:"INR"`
}

type AccountHandler struct {
	ledger    *services.LedgerService
	iso       *services.ISO20022Service
	validator *services.ValidationHelper
	currency  string
}

func NewAccountHandler(ledger *services.LedgerService, iso *services.ISO20022Service, currency string) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		iso:       iso,
		validator: services.NewValidationHelper(),
		currency:  currency,
	}
}

// Balance returns the caller's balance
// @Summary Get balance
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} BalanceResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /account/balance [get]
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{Balance: balance, Currency: h.currency})
}

// Transfer moves money between two user accounts
// @Summary Transfer funds
// @Description Atomically debit the caller and credit the recipient
// @Tags account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay-safe request key"
// @Param request body TransferRequest true "Transfer request"
// @Success 200 {object} services.TransferResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /account/transfer [post]
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Transfer(r.Context(), userID, req.To, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Transfer successful",
		"data":    result,
	})
}

// PayFees debits a fee now and queues it for admin approval
// @Summary Pay fees
// @Description Debit the caller and create a pending fee owed to the fee-collecting admin
// @Tags account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay-safe request key"
// @Param request body PayFeesRequest true "Fee payment"
// @Success 200 {object} services.FeeInitiation
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /account/pay-fees [post]
func (h *AccountHandler) PayFees(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req PayFeesRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.InitiateFeeSettlement(r.Context(), userID, req.Amount, req.FeeType)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Fee payment submitted for approval",
		"data":    result,
	})
}

// ApproveFees credits a pending fee to the admin collection account
// @Summary Approve a fee payment
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Fee transaction id"
// @Success 200 {object} services.FeeApproval
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /account/approve-fees/{transactionId} [post]
func (h *AccountHandler) ApproveFees(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	if transactionID == "" {
		services.SendErrorResponse(w, "transactionId is required", http.StatusBadRequest, nil)
		return
	}

	result, err := h.ledger.ApproveFeeSettlement(r.Context(), transactionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Fee payment approved",
		"data":    result,
	})
}

// Transactions lists fee records the caller sent or received
// @Summary List transactions
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.FeeTransaction
// @Router /account/transactions [get]
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txns, err := h.ledger.ListTransactions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// PaymentStatus reports the latest approved payment per fee type
// @Summary Fee payment status
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.PaymentStatus
// @Router /account/payment-status [get]
func (h *AccountHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status, err := h.ledger.PaymentStatus(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Statement lists the caller's ledger entries
// @Summary Account statement
// @Tags account
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries (default 50, max 200)"
// @Success 200 {array} models.LedgerEntry
// @Router /account/statement [get]
func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			services.SendErrorResponse(w, "limit must be a non-negative integer", http.StatusBadRequest, nil)
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.Statement(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// FeeAdvice exports the ISO 20022 settlement advice for a fee record
// @Summary Fee settlement advice
// @Description pacs.008 credit transfer and pacs.002 status (PDNG or ACSC)
// @Tags account
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Fee transaction id"
// @Success 200 {object} services.SettlementAdvice
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /account/fees/{transactionId}/advice [get]
func (h *AccountHandler) FeeAdvice(w http.ResponseWriter, r *http.Request) {
	txn, ok := participantTransaction(w, r, h.ledger)
	if !ok {
		return
	}

	advice, err := h.iso.BuildAdvice(txn)
	if err != nil {
		services.SendErrorResponse(w, "Failed to build settlement advice", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, advice)
}

// participantTransaction loads the fee record named in the path and checks
// that the caller is its sender or receiver.
func participantTransaction(w http.ResponseWriter, r *http.Request, ledger *services.LedgerService) (*models.FeeTransaction, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return nil, false
	}

	txn, err := ledger.GetTransaction(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if txn.SenderID != userID && txn.ReceiverID != userID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return nil, false
	}
	return txn, true
}
