package services

import (
	"strings"
	"testing"
	"time"

	"github.com/campuspay/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feeTransaction(status string) *models.FeeTransaction {
	createdAt := time.Date(2024, 8, 1, 9, 30, 0, 0, time.UTC)
	txn := &models.FeeTransaction{
		ID:         "6f1c1b7e-3f0e-4b8f-9a55-0f0b4c7a2d11",
		SenderID:   "student-001",
		ReceiverID: "admin-1",
		Amount:     money("3000.50"),
		FeeType:    "Laboratory Fee",
		Status:     status,
		CreatedAt:  createdAt,
	}
	if status == models.TransactionApproved {
		approvedAt := createdAt.Add(24 * time.Hour)
		txn.ApprovedAt = &approvedAt
	}
	return txn
}

func TestISO20022Service_BuildAdvice(t *testing.T) {
	service := NewISO20022Service("CAMPUSINXXX", "INR")

	t.Run("approved fee settles", func(t *testing.T) {
		advice, err := service.BuildAdvice(feeTransaction(models.TransactionApproved))

		require.NoError(t, err)
		assert.Equal(t, StatusSettlementDone, advice.Status)
		assert.Equal(t, []string{"pacs.008.001.08", "pacs.002.001.08"}, advice.MessageTypes)
		assert.True(t, strings.HasPrefix(advice.CreditTransfer, "<?xml"))
		assert.Contains(t, advice.CreditTransfer, "6f1c1b7e3f0e4b8f9a550f0b4c7a2d11")
		assert.Contains(t, advice.CreditTransfer, "student-001")
		assert.Contains(t, advice.CreditTransfer, "admin-1")
		assert.Contains(t, advice.CreditTransfer, "INR")
		assert.Contains(t, advice.CreditTransfer, "CAMPUSINXXX")
		assert.Contains(t, advice.StatusReport, "ACSC")
	})

	t.Run("pending fee reports PDNG", func(t *testing.T) {
		advice, err := service.BuildAdvice(feeTransaction(models.TransactionPending))

		require.NoError(t, err)
		assert.Equal(t, StatusPending, advice.Status)
		assert.Contains(t, advice.StatusReport, "PDNG")
	})

	t.Run("missing transaction", func(t *testing.T) {
		_, err := service.BuildAdvice(&models.FeeTransaction{})
		assert.Error(t, err)
	})
}

func TestISO20022Service_CreatePacs008(t *testing.T) {
	service := NewISO20022Service("CAMPUSINXXX", "INR")
	txn := feeTransaction(models.TransactionApproved)

	doc, err := service.CreatePacs008(txn)

	require.NoError(t, err)
	assert.Equal(t, "1", string(doc.GrpHdr.NbOfTxs))
	require.Len(t, doc.CdtTrfTxInf, 1)
	assert.Equal(t, 3000.50, doc.CdtTrfTxInf[0].IntrBkSttlmAmt.Value)
	assert.Equal(t, "6f1c1b7e3f0e4b8f9a550f0b4c7a2d11", string(doc.CdtTrfTxInf[0].PmtId.EndToEndId))
	assert.LessOrEqual(t, len(string(doc.GrpHdr.MsgId)), 35)
}

func TestCompactID(t *testing.T) {
	assert.Equal(t, "abc", compactID("a-b-c"))
	assert.Len(t, compactID(strings.Repeat("x", 40)), 35)
}
