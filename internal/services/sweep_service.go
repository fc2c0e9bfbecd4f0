package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// dueReminderTTL keeps a reminder dedup key alive long enough to cover clock
// skew across restarts within the same day.
const dueReminderTTL = 48 * time.Hour

// SweepService runs the daily pass over active loans: notify borrowers whose
// installment falls due today, and flip entries past their due date from
// pending to overdue. Each loan is processed independently so one bad row
// cannot stall the rest of the portfolio.
type SweepService struct {
	db       *sql.DB
	redis    *redis.Client
	notifier *NotificationService
	now      func() time.Time
}

// SweepSummary reports one pass.
type SweepSummary struct {
	DueCount     int `json:"dueCount"`     // due-today reminders sent
	OverdueCount int `json:"overdueCount"` // loans with newly overdue entries
}

func NewSweepService(db *sql.DB, redisClient *redis.Client, notifier *NotificationService) *SweepService {
	return &SweepService{
		db:       db,
		redis:    redisClient,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run executes both passes as of the given instant. A zero asOf means now.
func (s *SweepService) Run(ctx context.Context, asOf time.Time) (*SweepSummary, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}

	summary := &SweepSummary{}

	due, err := s.notifyDueToday(ctx, asOf)
	if err != nil {
		return nil, err
	}
	summary.DueCount = due

	overdue, err := s.markOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	summary.OverdueCount = overdue

	log.Printf("[SWEEP] Completed: %d due reminders, %d loans with overdue entries", due, overdue)
	return summary, nil
}

// notifyDueToday finds active loans with a pending installment due today and
// sends the borrower a reminder. A Redis SETNX key scoped to loan and day
// prevents duplicate reminders when the sweep runs more than once; without
// Redis the reminder degrades to at-least-once.
func (s *SweepService) notifyDueToday(ctx context.Context, asOf time.Time) (int, error) {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT fl.id, fl.borrower_id, se.payment_number, se.total_amount
		FROM schedule_entries se
		JOIN funded_loans fl ON fl.id = se.loan_id
		WHERE fl.status = $1 AND se.status = $2 AND se.due_date >= $3 AND se.due_date < $4`,
		models.LoanActive, models.EntryPending, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to query due entries: %w", err)
	}
	defer rows.Close()

	type dueEntry struct {
		loanID        string
		borrowerID    int
		paymentNumber int
		amount        decimal.Decimal
	}

	entries := []dueEntry{}
	for rows.Next() {
		var e dueEntry
		if err := rows.Scan(&e.loanID, &e.borrowerID, &e.paymentNumber, &e.amount); err != nil {
			return 0, fmt.Errorf("failed to scan due entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	sent := 0
	day := dayStart.Format("2006-01-02")
	for _, e := range entries {
		if s.redis != nil {
			key := fmt.Sprintf("sweep:due:%s:%s", e.loanID, day)
			ok, err := s.redis.SetNX(ctx, key, "1", dueReminderTTL).Result()
			if err != nil {
				log.Printf("[SWEEP] Redis dedup check failed for loan %s: %v", e.loanID, err)
			} else if !ok {
				continue
			}
		}

		s.notifier.Dispatch(ctx, []models.Notification{{
			UserID:      e.borrowerID,
			Type:        models.NotifyRepaymentDue,
			Title:       "Payment Due Today",
			Message:     fmt.Sprintf("Your payment #%d of $%s is due today.", e.paymentNumber, e.amount.StringFixed(2)),
			Priority:    models.PriorityHigh,
			RelatedLoan: e.loanID,
		}})
		sent++
	}

	return sent, nil
}

// markOverdue transitions pending entries whose due date has passed. All of a
// loan's lapsed entries flip in one transaction and the borrower gets a single
// notification per loan per pass. The status predicate makes the pass
// idempotent: re-running it finds nothing left to flip.
func (s *SweepService) markOverdue(ctx context.Context, asOf time.Time) (int, error) {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT fl.id, fl.borrower_id
		FROM schedule_entries se
		JOIN funded_loans fl ON fl.id = se.loan_id
		WHERE fl.status = $1 AND se.status = $2 AND se.due_date < $3`,
		models.LoanActive, models.EntryPending, dayStart)
	if err != nil {
		return 0, fmt.Errorf("failed to query overdue loans: %w", err)
	}
	defer rows.Close()

	type lapsedLoan struct {
		loanID     string
		borrowerID int
	}

	loans := []lapsedLoan{}
	for rows.Next() {
		var l lapsedLoan
		if err := rows.Scan(&l.loanID, &l.borrowerID); err != nil {
			return 0, fmt.Errorf("failed to scan overdue loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	flipped := 0
	for _, l := range loans {
		changed, err := s.markLoanOverdue(ctx, l.loanID, l.borrowerID, dayStart)
		if err != nil {
			log.Printf("[SWEEP] Failed to mark loan %s overdue: %v", l.loanID, err)
			continue
		}
		if changed {
			flipped++
		}
	}

	return flipped, nil
}

// markLoanOverdue reports whether any entry actually flipped, so a concurrent
// rerun that finds nothing left does not inflate the summary.
func (s *SweepService) markLoanOverdue(ctx context.Context, loanID string, borrowerID int, dayStart time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = $1
		WHERE loan_id = $2 AND status = $3 AND due_date < $4`,
		models.EntryOverdue, loanID, models.EntryPending, dayStart)
	if err != nil {
		return false, fmt.Errorf("failed to update entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Another sweep got here first.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit overdue update: %w", err)
	}

	s.notifier.Dispatch(ctx, []models.Notification{{
		UserID:      borrowerID,
		Type:        models.NotifyRepaymentOverdue,
		Title:       "Payment Overdue",
		Message:     "You have an overdue payment. Please pay as soon as possible to avoid affecting your credit standing.",
		Priority:    models.PriorityUrgent,
		RelatedLoan: loanID,
	}})

	return true, nil
}

// StartScheduler runs the sweep once per day at the configured hour until the
// context is cancelled. It ticks every minute and fires when the local hour
// first matches, so a missed tick only delays the run, never skips the day.
func (s *SweepService) StartScheduler(ctx context.Context) {
	viper.SetDefault("sweep.hour", 9)
	hour := viper.GetInt("sweep.hour")

	log.Printf("[SWEEP] Scheduler started, daily run at %02d:00", hour)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastRun string
	for {
		select {
		case <-ctx.Done():
			log.Printf("[SWEEP] Scheduler stopped")
			return
		case <-ticker.C:
			now := s.now()
			day := now.Format("2006-01-02")
			if now.Hour() == hour && lastRun != day {
				if _, err := s.Run(ctx, now); err != nil {
					log.Printf("[SWEEP] Run failed: %v", err)
					continue
				}
				lastRun = day
			}
		}
	}
}
