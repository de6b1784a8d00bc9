package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/campuspay/backend/internal/hsm"
	"github.com/campuspay/backend/internal/models"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *hsm.HSMServer {
	t.Helper()
	signer, err := hsm.InitHSM(hsm.Config{MasterKey: "receipt-test-key"})
	require.NoError(t, err)
	return signer
}

func TestQRService_GenerateReceipt(t *testing.T) {
	service := NewQRService(nil, nil, "INR", time.Hour)
	txn := feeTransaction(models.TransactionApproved)

	code, image, err := service.GenerateReceipt(context.Background(), txn)

	require.NoError(t, err)
	assert.NotContains(t, code, ".")
	decoded, err := base64.RawURLEncoding.DecodeString(code)
	require.NoError(t, err)

	var receipt Receipt
	require.NoError(t, json.Unmarshal(decoded, &receipt))
	assert.Equal(t, txn.ID, receipt.TransactionID)
	assert.Equal(t, "INR", receipt.Currency)
	assert.Equal(t, models.TransactionApproved, receipt.Status)
	assert.True(t, receipt.Amount.Equal(txn.Amount))
	assert.NotEmpty(t, receipt.Nonce)

	img, err := png.Decode(bytes.NewReader(image))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestQRService_SignedReceipts(t *testing.T) {
	ctx := context.Background()
	service := NewQRService(nil, newTestSigner(t), "INR", time.Hour)
	txn := feeTransaction(models.TransactionPending)

	code, _, err := service.GenerateReceipt(ctx, txn)
	require.NoError(t, err)
	require.Contains(t, code, ".")

	t.Run("verifies without redis", func(t *testing.T) {
		receipt, err := service.VerifyReceipt(ctx, code)

		require.NoError(t, err)
		assert.Equal(t, txn.ID, receipt.TransactionID)
		assert.Equal(t, models.TransactionPending, receipt.Status)
	})

	t.Run("tampered payload", func(t *testing.T) {
		payload, signature, _ := strings.Cut(code, ".")
		raw, err := base64.RawURLEncoding.DecodeString(payload)
		require.NoError(t, err)
		forged := strings.Replace(string(raw), "3000.5", "9000.5", 1)
		require.NotEqual(t, string(raw), forged)

		_, err = service.VerifyReceipt(ctx, base64.RawURLEncoding.EncodeToString([]byte(forged))+"."+signature)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})

	t.Run("signature stripped", func(t *testing.T) {
		payload, _, _ := strings.Cut(code, ".")
		_, err := service.VerifyReceipt(ctx, payload)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})

	t.Run("another key", func(t *testing.T) {
		other := NewQRService(nil, newTestSigner(t), "INR", time.Hour)
		_, err := other.VerifyReceipt(ctx, code)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewQRService(nil, service.signer, "INR", -time.Second)
		_, err := expired.VerifyReceipt(ctx, code)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})
}

func TestQRService_VerifyAgainstRedis(t *testing.T) {
	ctx := context.Background()
	code, _, err := NewQRService(nil, nil, "INR", time.Hour).GenerateReceipt(ctx, feeTransaction(models.TransactionApproved))
	require.NoError(t, err)

	t.Run("known code", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		service := NewQRService(redisClient, nil, "INR", time.Hour)

		mock.ExpectExists("receipt:" + code).SetVal(1)

		receipt, err := service.VerifyReceipt(ctx, code)

		require.NoError(t, err)
		assert.Equal(t, "6f1c1b7e-3f0e-4b8f-9a55-0f0b4c7a2d11", receipt.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired code", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		service := NewQRService(redisClient, nil, "INR", time.Hour)

		mock.ExpectExists("receipt:" + code).SetVal(0)

		_, err := service.VerifyReceipt(ctx, code)

		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})

	t.Run("garbage", func(t *testing.T) {
		redisClient, _ := redismock.NewClientMock()
		_, err := NewQRService(redisClient, nil, "INR", time.Hour).VerifyReceipt(ctx, "%%%")
		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})

	t.Run("unsigned without redis", func(t *testing.T) {
		_, err := NewQRService(nil, nil, "INR", time.Hour).VerifyReceipt(ctx, code)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
	})
}
