package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Audit event types
const (
	EventTransfer     = "TRANSFER"
	EventFeeInitiated = "FEE_INITIATED"
	EventFeeApproved  = "FEE_APPROVED"
	EventError        = "ERROR"
)

type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Reference string            `json:"reference"`
	OwnerID   string            `json:"owner_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    string            `json:"status"`
	Details   map[string]string `json:"details"`
}

type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

func (a *AuditLogger) LogTransfer(reference, fromOwner, toOwner string, amount decimal.Decimal) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTransfer,
		Reference: reference,
		OwnerID:   fromOwner,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"to_owner": toOwner},
	})
}

func (a *AuditLogger) LogFeeInitiated(transactionID, userID, adminID string, amount decimal.Decimal) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventFeeInitiated,
		Reference: transactionID,
		OwnerID:   userID,
		Amount:    amount,
		Status:    "PENDING",
		Details:   map[string]string{"receiver": adminID},
	})
}

func (a *AuditLogger) LogFeeApproved(transactionID, adminID string, amount decimal.Decimal) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventFeeApproved,
		Reference: transactionID,
		OwnerID:   adminID,
		Amount:    amount,
		Status:    "APPROVED",
	})
}

// LogError records a rejected or failed operation with the amount it asked for.
func (a *AuditLogger) LogError(reference, ownerID string, amount decimal.Decimal, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventError,
		Reference: reference,
		OwnerID:   ownerID,
		Amount:    amount,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	a.logger.Info("AUDIT",
		zap.Time("event_time", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("reference", event.Reference),
		zap.String("owner_id", event.OwnerID),
		zap.String("amount", event.Amount.StringFixed(2)),
		zap.String("status", event.Status),
		zap.Any("details", event.Details),
	)
}
