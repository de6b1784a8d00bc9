package handlers

import (
	"errors"
	"net/http"

	"github.com/campuspay/backend/internal/services"
)

type ReceiptHandler struct {
	ledger       *services.LedgerService
	service      *services.QRService
	validator    *services.ValidationHelper
	publicKeyPEM string
}

// NewReceiptHandler builds the receipt endpoints. publicKeyPEM is the key
// receipts are signed with, empty when signing is disabled.
func NewReceiptHandler(ledger *services.LedgerService, service *services.QRService, publicKeyPEM string) *ReceiptHandler {
	return &ReceiptHandler{
		ledger:       ledger,
		service:      service,
		validator:    services.NewValidationHelper(),
		publicKeyPEM: publicKeyPEM,
	}
}

// Receipt renders a QR receipt for a fee record
// @Summary Fee receipt QR code
// @Tags receipts
// @Produce png
// @Security BearerAuth
// @Param transactionId path string true "Fee transaction id"
// @Success 200 {file} binary
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /account/fees/{transactionId}/receipt.png [get]
func (h *ReceiptHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	txn, ok := participantTransaction(w, r, h.ledger)
	if !ok {
		return
	}

	code, image, err := h.service.GenerateReceipt(r.Context(), txn)
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate receipt", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Receipt-Code", code)
	w.WriteHeader(http.StatusOK)
	w.Write(image)
}

// VerifyReceipt checks a scanned receipt code
// @Summary Verify a receipt
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Receipt code"
// @Success 200 {object} services.Receipt
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /receipts/verify [post]
func (h *ReceiptHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	receipt, err := h.service.VerifyReceipt(r.Context(), req.Code)
	if errors.Is(err, services.ErrReceiptNotFound) {
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to verify receipt", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    receipt,
	})
}

// PublicKey serves the receipt signing key so scanners can verify codes offline
// @Summary Receipt signing key
// @Tags receipts
// @Produce plain
// @Success 200 {string} string "PEM encoded public key"
// @Failure 404 {object} services.ErrorResponse
// @Router /receipts/public-key [get]
func (h *ReceiptHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKeyPEM == "" {
		services.SendErrorResponse(w, "Receipt signing is disabled", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.publicKeyPEM))
}
