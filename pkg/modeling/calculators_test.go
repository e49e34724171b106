package modeling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterTaxIncome(t *testing.T) {
	c := AfterTaxIncome(100000, 0.22, 0.05)
	result, ok := c.Result.(float64)
	require.True(t, ok)
	assert.InDelta(t, 100000*(1-0.22-0.05-0.0765), result, 0.01)
}

func TestCompoundInterest(t *testing.T) {
	// $10,000 at 7% compounded monthly for 10 years
	c := CompoundInterest(10000, 0.07, 10, 12)
	result, ok := c.Result.(float64)
	require.True(t, ok)
	assert.InDelta(t, 20096.61, result, 1.0)
	assert.Equal(t, "A = P(1 + r/n)^(nt)", c.Formula)
}

func TestLoanPayment(t *testing.T) {
	c := LoanPayment(300000, 0.065, 360)
	result := c.Result.(map[string]any)
	assert.InDelta(t, 1896.20, result["monthly_payment"].(float64), 1.0)
}

func TestLoanPayment_ZeroRate(t *testing.T) {
	c := LoanPayment(12000, 0, 12)
	result := c.Result.(map[string]any)
	assert.Equal(t, 1000.0, result["monthly_payment"])
	assert.Equal(t, 0.0, result["total_interest"])
}

func TestRetirementTarget(t *testing.T) {
	c := RetirementTarget(84000, 0.04)
	assert.Equal(t, "$2.1M", c.Result)
}

func TestRetirementTarget_DefaultSWR(t *testing.T) {
	c := RetirementTarget(40000, 0)
	assert.Equal(t, 1000000.0, c.Result)
}

func TestFutureValue_ZeroRateIsLinear(t *testing.T) {
	c := FutureValue(100, 0, 10)
	result := c.Result.(map[string]any)
	assert.Equal(t, 12000.0, result["future_value"])
	assert.Equal(t, 0.0, result["total_gains"])
}

func specDebts() []Debt {
	return []Debt{
		{Name: "Credit Card", Balance: 8000, Rate: 0.22, MinimumPayment: 200},
		{Name: "Car Loan", Balance: 2500, Rate: 0.06, MinimumPayment: 60},
	}
}

func TestDebtPayoff_AvalancheBeatsSnowball(t *testing.T) {
	avalanche := DebtPayoff(specDebts(), 300, "avalanche")
	snowball := DebtPayoff(specDebts(), 300, "snowball")

	assert.Less(t, avalanche.TotalInterest, snowball.TotalInterest)
	assert.Equal(t, []string{"Credit Card", "Car Loan"}, avalanche.Order)
	assert.Equal(t, []string{"Car Loan", "Credit Card"}, snowball.Order)
	assert.Len(t, avalanche.Timeline, 2)
	assert.Less(t, avalanche.Months, maxPayoffMonths)
	assert.Greater(t, avalanche.Months, 0)
}

func TestDebtPayoff_RollOver(t *testing.T) {
	result := DebtPayoff(specDebts(), 300, "snowball")
	// The small debt retires first; its payment then rolls into the big one
	require.Len(t, result.Timeline, 2)
	first, second := result.Timeline[0], result.Timeline[1]
	assert.Equal(t, "Car Loan", first.DebtName)
	assert.Less(t, first.MonthsToPayoff, second.MonthsToPayoff)
}

func TestDebtPayoff_MonthCap(t *testing.T) {
	// Payment below the interest accrual can never finish
	hopeless := []Debt{{Name: "Forever", Balance: 100000, Rate: 0.30, MinimumPayment: 10}}
	result := DebtPayoff(hopeless, 0, "avalanche")
	assert.Equal(t, maxPayoffMonths, result.Months)
}

func TestTrueSavingsCapacity(t *testing.T) {
	expenses := map[string]float64{
		"rent":          2000,
		"groceries":     600,
		"entertainment": 400,
		"dining":        600,
	}
	c := TrueSavingsCapacity(5000, expenses)
	result := c.Result.(SavingsCapacity)

	assert.Equal(t, 2600.0, result.EssentialSpending)
	assert.Equal(t, 1000.0, result.Discretionary)
	assert.Equal(t, 1400.0, result.CurrentSavings)
	assert.Equal(t, 1650.0, result.ModerateSavings)   // +25% of discretionary
	assert.Equal(t, 1900.0, result.AggressiveSavings) // +50% of discretionary
	assert.Equal(t, 2400.0, result.MaxPossibleSavings)
}

func TestAffordability(t *testing.T) {
	c := Affordability(6000, 3500, 500, 15000)
	result := c.Result.(map[string]any)
	assert.Equal(t, true, result["can_afford"])
	assert.Equal(t, 2000.0, result["new_surplus"])
	assert.InDelta(t, 66.67, result["debt_to_income_ratio"].(float64), 0.01)
}

func TestPercentageChange_ZeroBaseline(t *testing.T) {
	c := PercentageChange(0, 50)
	result := c.Result.(map[string]any)
	assert.Equal(t, "undefined (zero baseline)", result["percentage_change"])
	assert.Equal(t, "increase", result["direction"])
}

func TestGuard_Overflow(t *testing.T) {
	assert.Equal(t, OutOfRangeMarker, Guard(2e15))
	assert.Equal(t, "$2.0B", Guard(2e9))
	assert.Equal(t, "$3.5M", Guard(3.5e6))
	assert.Equal(t, 1234.56, Guard(1234.56))
}

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "$62,432.60", FormatCurrency(62432.60))
	assert.Equal(t, "-$119,213.19", FormatCurrency(-119213.19))
	assert.Equal(t, "$0.00", FormatCurrency(0))
	assert.Equal(t, "$1,000,000.00", FormatCurrency(1000000))
}
