package services

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/campuspay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// pacs.002 transaction status codes used for fee advices
const (
	StatusPending         = "PDNG"
	StatusSettlementDone  = "ACSC"
	pacs008MessageType    = "pacs.008.001.08"
	pacs002MessageType    = "pacs.002.001.08"
	settlementMethodLocal = "INDA" // settled on the institution's own books
)

// SettlementAdvice is the bursar reconciliation export for one fee record
type SettlementAdvice struct {
	TransactionID  string   `json:"transactionId"`
	Status         string   `json:"status" example:"ACSC"`
	MessageTypes   []string `json:"messageTypes"`
	CreditTransfer string   `json:"pacs008"`
	StatusReport   string   `json:"pacs002"`
}

type ISO20022Service struct {
	institutionBIC string
	currency       string
}

func NewISO20022Service(institutionBIC, currency string) *ISO20022Service {
	return &ISO20022Service{
		institutionBIC: institutionBIC,
		currency:       currency,
	}
}

// BuildAdvice renders the pacs.008 credit transfer and pacs.002 status
// report for a fee record.
func (iso *ISO20022Service) BuildAdvice(txn *models.FeeTransaction) (*SettlementAdvice, error) {
	pacs008, err := iso.CreatePacs008(txn)
	if err != nil {
		return nil, err
	}
	creditTransfer, err := iso.ConvertToXML(pacs008)
	if err != nil {
		return nil, err
	}

	status := StatusCode(txn)
	pacs002, err := iso.CreatePacs002(txn, status)
	if err != nil {
		return nil, err
	}
	statusReport, err := iso.ConvertToXML(pacs002)
	if err != nil {
		return nil, err
	}

	return &SettlementAdvice{
		TransactionID:  txn.ID,
		Status:         status,
		MessageTypes:   []string{pacs008MessageType, pacs002MessageType},
		CreditTransfer: creditTransfer,
		StatusReport:   statusReport,
	}, nil
}

// StatusCode maps the fee lifecycle onto ExternalPaymentTransactionStatus1Code.
func StatusCode(txn *models.FeeTransaction) string {
	if txn.IsPending() {
		return StatusPending
	}
	return StatusSettlementDone
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (iso *ISO20022Service) CreatePacs008(txn *models.FeeTransaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if txn == nil || txn.ID == "" {
		return nil, fmt.Errorf("fee transaction is required")
	}

	msgId := messageID()
	creDtTm := time.Now()
	settlementDate := txn.CreatedAt
	if txn.ApprovedAt != nil {
		settlementDate = *txn.ApprovedAt
	}
	txID := compactID(txn.ID)
	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(iso.currency),
		Value: txn.Amount.InexactFloat64(),
	}
	agent := pacs_v08.BranchAndFinancialInstitutionIdentification6{
		FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
			BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(iso.institutionBIC)}[0],
		},
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(msgId),
			CreDtTm:           common.ISODateTime(creDtTm),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: settlementMethodLocal,
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(txID)}[0],
					EndToEndId: common.Max35Text(txID),
					TxId:       &[]common.Max35Text{common.Max35Text(txID)}[0],
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt:        agent,
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(txn.SenderID)}[0],
				},
				CdtrAgt: agent,
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(txn.ReceiverID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates a pacs.002 payment status report
func (iso *ISO20022Service) CreatePacs002(txn *models.FeeTransaction, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	if txn == nil || txn.ID == "" {
		return nil, fmt.Errorf("fee transaction is required")
	}

	txID := compactID(txn.ID)
	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(messageID()),
			CreDtTm: common.ISODateTime(time.Now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(txID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(txID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(txID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

// compactID fits a UUID into Max35Text.
func compactID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 35 {
		id = id[:35]
	}
	return id
}

func messageID() string {
	return compactID(uuid.NewString())
}
