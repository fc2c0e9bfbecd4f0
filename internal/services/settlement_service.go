package services

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SettlementService exports completed repayment transactions as ISO 20022
// messages for the lender payout rail: pacs.008 credit transfers for the net
// amounts owed to lenders, pacs.002 status reports acknowledging processed
// transactions.
type SettlementService struct {
	db   *sql.DB
	bic  string
	clrg string
}

// PayoutExport is one generated settlement batch.
type PayoutExport struct {
	MessageID   string          `json:"messageId"`
	MessageType string          `json:"messageType"`
	TxnCount    int             `json:"transactionCount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	XML         string          `json:"xml"`
}

func NewSettlementService(db *sql.DB) *SettlementService {
	viper.SetDefault("settlement.bic", "PEERFUND")
	viper.SetDefault("settlement.clearing_system", "CLRG")

	return &SettlementService{
		db:   db,
		bic:  viper.GetString("settlement.bic"),
		clrg: viper.GetString("settlement.clearing_system"),
	}
}

type payoutRow struct {
	txnID          string
	loanID         string
	lenderID       int
	netAmount      decimal.Decimal
	payoutAccount  string
	lenderFullName string
}

// ExportLenderPayouts builds one pacs.008 message covering the completed
// repayment transactions created since the given instant, one credit transfer
// per transaction, net of platform fees.
func (s *SettlementService) ExportLenderPayouts(ctx context.Context, since time.Time) (*PayoutExport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.loan_id, t.to_user_id, t.net_amount,
		       COALESCE(u.payout_account_id, ''), u.first_name || ' ' || u.last_name
		FROM transactions t
		JOIN users u ON u.id = t.to_user_id
		WHERE t.type = $1 AND t.status = $2 AND t.created_at >= $3
		ORDER BY t.created_at`,
		models.TxnLoanRepayment, models.TxnCompleted, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query payout transactions: %w", err)
	}
	defer rows.Close()

	payouts := []payoutRow{}
	for rows.Next() {
		var p payoutRow
		err := rows.Scan(&p.txnID, &p.loanID, &p.lenderID, &p.netAmount,
			&p.payoutAccount, &p.lenderFullName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(payouts) == 0 {
		return nil, ErrNoPendingPayments
	}

	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.netAmount)
	}

	msgID := uuid.New().String()
	now := time.Now()
	settlementDate := now

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: common.Max15NumericText(fmt.Sprintf("%d", len(payouts))),
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   "USD",
				Value: total.InexactFloat64(),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: pacs_v08.SettlementMethod1Code(s.clrg),
			},
		},
	}

	for _, p := range payouts {
		txID := common.Max35Text(p.txnID)
		creditorName := common.Max140Text(p.lenderFullName)
		bic := common.BICFIDec2014Identifier(s.bic)

		doc.CdtTrfTxInf = append(doc.CdtTrfTxInf, pacs_v08.CreditTransferTransaction39{
			PmtId: pacs_v08.PaymentIdentification7{
				InstrId:    &txID,
				EndToEndId: common.Max35Text(p.loanID),
				TxId:       &txID,
			},
			IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   "USD",
				Value: p.netAmount.InexactFloat64(),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			ChrgBr:        "SLEV",
			DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					BICFI: &bic,
				},
			},
			Dbtr: pacs_v08.PartyIdentification135{
				Nm: &creditorName,
			},
			CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
						MmbId: common.Max35Text(p.payoutAccount),
					},
				},
			},
			Cdtr: pacs_v08.PartyIdentification135{
				Nm: &creditorName,
			},
		})
	}

	xmlData, err := marshalISO(doc)
	if err != nil {
		return nil, err
	}

	return &PayoutExport{
		MessageID:   msgID,
		MessageType: "pacs.008.001.08",
		TxnCount:    len(payouts),
		TotalAmount: total,
		XML:         xmlData,
	}, nil
}

// AcknowledgeTransaction builds a pacs.002 status report for one transaction.
// Status is an external payment status code, e.g. ACCP or RJCT.
func (s *SettlementService) AcknowledgeTransaction(ctx context.Context, txnID, status string) (*PayoutExport, error) {
	var loanID string
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(loan_id, '') FROM transactions WHERE id = $1`, txnID).
		Scan(&loanID)
	if err == sql.ErrNoRows {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}

	msgID := uuid.New().String()
	origTxID := common.Max35Text(txnID)
	origEndToEnd := common.Max35Text(loanID)
	txSts := pacs_v08.ExternalPaymentTransactionStatus1Code(status)

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(time.Now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &origTxID,
				OrgnlEndToEndId: &origEndToEnd,
				OrgnlTxId:       &origTxID,
				TxSts:           &txSts,
			},
		},
	}

	xmlData, err := marshalISO(doc)
	if err != nil {
		return nil, err
	}

	return &PayoutExport{
		MessageID:   msgID,
		MessageType: "pacs.002.001.08",
		TxnCount:    1,
		XML:         xmlData,
	}, nil
}

func marshalISO(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
