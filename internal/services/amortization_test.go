package services

import (
	"testing"
	"time"

	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMonthlyPayment(t *testing.T) {
	t.Run("standard annuity", func(t *testing.T) {
		// $1200 at 12% over 12 months
		payment := MonthlyPayment(decimal.NewFromInt(1200), decimal.NewFromInt(12), 12)
		assert.Equal(t, "106.62", payment.StringFixed(2))
	})

	t.Run("zero rate splits evenly", func(t *testing.T) {
		payment := MonthlyPayment(decimal.NewFromInt(1200), decimal.Zero, 12)
		assert.Equal(t, "100.00", payment.StringFixed(2))
	})

	t.Run("single month", func(t *testing.T) {
		payment := MonthlyPayment(decimal.NewFromInt(1000), decimal.NewFromInt(12), 1)
		assert.Equal(t, "1010.00", payment.StringFixed(2))
	})
}

func TestTotalRepayment(t *testing.T) {
	total := TotalRepayment(decimal.NewFromFloat(106.62), 12)
	assert.Equal(t, "1279.44", total.StringFixed(2))
}

func TestGenerateSchedule(t *testing.T) {
	terms := models.LoanTerms{
		Principal:    decimal.NewFromInt(1200),
		AnnualRate:   decimal.NewFromInt(12),
		TenureMonths: 12,
	}
	payment := MonthlyPayment(terms.Principal, terms.AnnualRate, terms.TenureMonths)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	schedule := GenerateSchedule(terms, payment, start)

	assert.Len(t, schedule, 12)

	t.Run("first entry split", func(t *testing.T) {
		first := schedule[0]
		assert.Equal(t, 1, first.PaymentNumber)
		assert.Equal(t, "12.00", first.InterestAmount.StringFixed(2))
		assert.Equal(t, "94.62", first.PrincipalAmount.StringFixed(2))
		assert.Equal(t, payment.StringFixed(2), first.TotalAmount.StringFixed(2))
		assert.Equal(t, start.AddDate(0, 1, 0), first.DueDate)
		assert.Equal(t, models.EntryPending, first.Status)
	})

	t.Run("due dates advance monthly", func(t *testing.T) {
		for i, entry := range schedule {
			assert.Equal(t, start.AddDate(0, i+1, 0), entry.DueDate)
		}
	})

	t.Run("principal portions sum to principal", func(t *testing.T) {
		sum := decimal.Zero
		for _, entry := range schedule {
			sum = sum.Add(entry.PrincipalAmount)
		}
		assert.True(t, sum.Equal(terms.Principal), "got %s", sum)
	})

	t.Run("interest decreases over the term", func(t *testing.T) {
		for i := 1; i < len(schedule); i++ {
			assert.True(t, schedule[i].InterestAmount.LessThanOrEqual(schedule[i-1].InterestAmount))
		}
	})

	t.Run("final entry absorbs rounding residual", func(t *testing.T) {
		last := schedule[len(schedule)-1]
		assert.Equal(t, last.PrincipalAmount.Add(last.InterestAmount), last.TotalAmount)
	})
}

func TestGenerateScheduleZeroRate(t *testing.T) {
	terms := models.LoanTerms{
		Principal:    decimal.NewFromInt(600),
		AnnualRate:   decimal.Zero,
		TenureMonths: 6,
	}
	payment := MonthlyPayment(terms.Principal, terms.AnnualRate, terms.TenureMonths)

	schedule := GenerateSchedule(terms, payment, time.Now())

	for _, entry := range schedule {
		assert.True(t, entry.InterestAmount.IsZero())
		assert.Equal(t, "100.00", entry.PrincipalAmount.StringFixed(2))
	}
}

func TestPlatformFee(t *testing.T) {
	t.Run("repayment fee", func(t *testing.T) {
		fee := PlatformFee(decimal.NewFromFloat(106.63), decimal.NewFromFloat(0.02))
		assert.Equal(t, "2.13", fee.StringFixed(2))
	})

	t.Run("funding fee", func(t *testing.T) {
		fee := PlatformFee(decimal.NewFromInt(5000), decimal.NewFromFloat(0.05))
		assert.Equal(t, "250.00", fee.StringFixed(2))
	})
}
