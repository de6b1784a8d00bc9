package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/campuspay/backend/internal/hsm"
	"github.com/campuspay/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

var ErrReceiptNotFound = errors.New("invalid or expired receipt code")

// Receipt is the payload encoded in a fee receipt QR code
type Receipt struct {
	TransactionID string          `json:"transactionId"`
	Sender        string          `json:"sender"`
	Receiver      string          `json:"receiver"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string"`
	Currency      string          `json:"currency"`
	FeeType       string          `json:"feeType,omitempty"`
	Status        string          `json:"status"`
	IssuedAt      int64           `json:"issuedAt"`
	Nonce         string          `json:"nonce"`
}

// ReceiptSigner signs receipt payloads so a code can be checked without
// a lookup.
type ReceiptSigner interface {
	SignData(keyID string, data []byte) ([]byte, error)
	VerifySignature(keyID string, data, signature []byte) (bool, error)
}

// QRService renders fee receipts as QR codes. A code is the base64url
// payload, followed by "." and its signature when a signer is configured.
// Issued codes are also kept in Redis until they expire.
type QRService struct {
	redis    *redis.Client
	signer   ReceiptSigner
	currency string
	ttl      time.Duration
	size     int
}

func NewQRService(redisClient *redis.Client, signer ReceiptSigner, currency string, ttl time.Duration) *QRService {
	return &QRService{
		redis:    redisClient,
		signer:   signer,
		currency: currency,
		ttl:      ttl,
		size:     256,
	}
}

// GenerateReceipt returns the receipt code and its QR image as PNG bytes.
func (s *QRService) GenerateReceipt(ctx context.Context, txn *models.FeeTransaction) (string, []byte, error) {
	receipt := Receipt{
		TransactionID: txn.ID,
		Sender:        txn.SenderID,
		Receiver:      txn.ReceiverID,
		Amount:        txn.Amount,
		Currency:      s.currency,
		FeeType:       txn.FeeType,
		Status:        txn.Status,
		IssuedAt:      time.Now().Unix(),
		Nonce:         s.generateNonce(),
	}

	jsonData, err := json.Marshal(receipt)
	if err != nil {
		return "", nil, err
	}

	code := base64.RawURLEncoding.EncodeToString(jsonData)
	if s.signer != nil {
		signature, err := s.signer.SignData(hsm.ReceiptSigningKey, jsonData)
		if err != nil {
			return "", nil, fmt.Errorf("failed to sign receipt: %w", err)
		}
		code += "." + base64.RawURLEncoding.EncodeToString(signature)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, receiptKey(code), jsonData, s.ttl).Err(); err != nil {
			return "", nil, err
		}
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.size)); err != nil {
		return "", nil, err
	}

	return code, buf.Bytes(), nil
}

// VerifyReceipt checks a scanned receipt code. Signed codes are verified
// against the signing key; when Redis is available the code must also
// still be on record.
func (s *QRService) VerifyReceipt(ctx context.Context, code string) (*Receipt, error) {
	payload, signed, err := s.decode(code)
	if err != nil {
		return nil, ErrReceiptNotFound
	}

	switch {
	case s.redis != nil:
		found, err := s.redis.Exists(ctx, receiptKey(code)).Result()
		if err != nil {
			return nil, err
		}
		if found == 0 {
			return nil, ErrReceiptNotFound
		}
	case !signed:
		return nil, ErrReceiptNotFound
	}

	var receipt Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, ErrReceiptNotFound
	}
	if s.redis == nil && time.Since(time.Unix(receipt.IssuedAt, 0)) > s.ttl {
		return nil, ErrReceiptNotFound
	}
	return &receipt, nil
}

// decode splits code into its payload and reports whether a valid
// signature accompanied it.
func (s *QRService) decode(code string) ([]byte, bool, error) {
	encodedPayload, encodedSignature, hasSignature := strings.Cut(code, ".")
	payload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, false, err
	}

	if s.signer == nil {
		return payload, false, nil
	}
	if !hasSignature {
		return nil, false, errors.New("receipt is not signed")
	}

	signature, err := base64.RawURLEncoding.DecodeString(encodedSignature)
	if err != nil {
		return nil, false, err
	}
	ok, err := s.signer.VerifySignature(hsm.ReceiptSigningKey, payload, signature)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, errors.New("receipt signature mismatch")
	}
	return payload, true, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func receiptKey(code string) string {
	return fmt.Sprintf("receipt:%s", code)
}
