package services

import (
	"math"
	"time"

	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// MonthlyPayment computes the fixed monthly installment for a loan using the
// standard annuity formula:
//
//	M = P * r * (1+r)^n / ((1+r)^n - 1), r = annualRate/100/12
//
// rounded to 2 decimal places, half up. A zero rate degrades to an even
// split P/n. Inputs are assumed validated by the caller (positive principal
// and term, rate within platform bounds); the function is total on in-range
// input.
func MonthlyPayment(principal decimal.Decimal, annualRate decimal.Decimal, tenureMonths int) decimal.Decimal {
	n := decimal.NewFromInt(int64(tenureMonths))

	if annualRate.IsZero() {
		return principal.Div(n).Round(2)
	}

	// The power term is not expressible in fixed-point; compute it in
	// float64 and return to decimal for the monetary result.
	monthlyRate := annualRate.Div(hundred).Div(twelve)
	r := monthlyRate.InexactFloat64()
	factor := math.Pow(1+r, float64(tenureMonths))

	payment := principal.InexactFloat64() * r * factor / (factor - 1)
	return decimal.NewFromFloat(payment).Round(2)
}

// TotalRepayment is the monthly payment times the number of installments.
func TotalRepayment(monthlyPayment decimal.Decimal, tenureMonths int) decimal.Decimal {
	return monthlyPayment.Mul(decimal.NewFromInt(int64(tenureMonths))).Round(2)
}

// GenerateSchedule produces the full amortization table for a loan anchored
// at startDate: entry i is due i months after start, its interest portion is
// round(balance * r, 2) and its principal portion is the monthly payment
// minus that interest. The final entry's principal portion absorbs any
// rounding residual so the balance lands on exactly zero; its total may
// therefore differ from the monthly payment by a few cents.
func GenerateSchedule(terms models.LoanTerms, monthlyPayment decimal.Decimal, startDate time.Time) []models.ScheduleEntry {
	monthlyRate := terms.AnnualRate.Div(hundred).Div(twelve)
	remaining := terms.Principal

	schedule := make([]models.ScheduleEntry, 0, terms.TenureMonths)
	for i := 1; i <= terms.TenureMonths; i++ {
		interest := remaining.Mul(monthlyRate).Round(2)
		principal := monthlyPayment.Sub(interest)
		total := monthlyPayment

		if i == terms.TenureMonths {
			principal = remaining
			total = principal.Add(interest)
		}

		remaining = remaining.Sub(principal)

		schedule = append(schedule, models.ScheduleEntry{
			PaymentNumber:   i,
			DueDate:         startDate.AddDate(0, i, 0),
			PrincipalAmount: principal,
			InterestAmount:  interest,
			TotalAmount:     total,
			Status:          models.EntryPending,
		})
	}

	return schedule
}

// PlatformFee computes the platform's cut of an amount at the given rate,
// rounded to 2 decimal places.
func PlatformFee(amount, feeRate decimal.Decimal) decimal.Decimal {
	return amount.Mul(feeRate).Round(2)
}
