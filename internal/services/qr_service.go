package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// qrTTL bounds how long a repayment QR code stays redeemable.
const qrTTL = 15 * time.Minute

// QRService issues single-use QR codes that deep-link a borrower into paying
// their next installment. The code payload lives in Redis under a TTL and is
// consumed on first redemption.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

// QRPayment is the payload encoded in a repayment QR code.
type QRPayment struct {
	LoanID        string          `json:"loanId"`
	BorrowerID    int             `json:"borrowerId"`
	PaymentNumber int             `json:"paymentNumber"`
	Amount        decimal.Decimal `json:"amount"`
	IssuedAt      int64           `json:"issuedAt"`
	Nonce         string          `json:"nonce"`
}

func NewQRService(db *sql.DB, redisClient *redis.Client) *QRService {
	return &QRService{db: db, redis: redisClient}
}

// GenerateRepaymentQR creates a QR code for the loan's next unpaid
// installment. Returns the opaque code and a base64 PNG rendering. Requires
// Redis; codes cannot be issued while the cache is down.
func (s *QRService) GenerateRepaymentQR(ctx context.Context, loanID string, borrowerID int) (string, string, error) {
	if s.redis == nil {
		return "", "", fmt.Errorf("QR codes unavailable: cache not connected")
	}

	var (
		ownerID       int
		status        string
		paymentNumber int
		amount        decimal.Decimal
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT fl.borrower_id, fl.status, se.payment_number, se.total_amount
		FROM funded_loans fl
		JOIN schedule_entries se ON se.loan_id = fl.id
		WHERE fl.id = $1 AND se.status <> $2
		ORDER BY se.payment_number
		LIMIT 1`, loanID, models.EntryPaid).
		Scan(&ownerID, &status, &paymentNumber, &amount)
	if err == sql.ErrNoRows {
		return "", "", ErrNoPendingPayments
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch next installment: %w", err)
	}
	if ownerID != borrowerID {
		return "", "", ErrNotOwner
	}
	if status != models.LoanActive {
		return "", "", ErrNotActive
	}

	payload := QRPayment{
		LoanID:        loanID,
		BorrowerID:    borrowerID,
		PaymentNumber: paymentNumber,
		Amount:        amount,
		IssuedAt:      time.Now().Unix(),
		Nonce:         generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:repay:%s", code)
	if err := s.redis.Set(ctx, key, jsonData, qrTTL).Err(); err != nil {
		return "", "", fmt.Errorf("failed to store QR payload: %w", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// RedeemRepaymentQR resolves a scanned code back to its installment payload
// and consumes it. A code redeems exactly once.
func (s *QRService) RedeemRepaymentQR(ctx context.Context, code string) (*QRPayment, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("QR codes unavailable: cache not connected")
	}

	key := fmt.Sprintf("qr:repay:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var payload QRPayment
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return &payload, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
