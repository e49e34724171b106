// Package modeling is the quantitative engine: deterministic calculators,
// the calculation router, scenario comparisons and the modeling agent that
// assembles the final structured answer. Calculators are pure functions of
// their inputs; every result carries its formula so answers stay auditable.
package modeling

import (
	"math"
	"sort"

	"github.com/finsightai/finsight/pkg/model"
)

const payrollTaxRate = 0.0765

// AfterTaxIncome nets out federal, state and payroll taxes from gross
// income.
func AfterTaxIncome(gross, federalRate, stateRate float64) model.Computation {
	result := gross * (1 - federalRate - stateRate - payrollTaxRate)
	return model.Computation{
		Name:    "after_tax_income",
		Formula: "net = gross × (1 − federal − state − 0.0765)",
		Inputs: map[string]any{
			"gross":        gross,
			"federal_rate": federalRate,
			"state_rate":   stateRate,
			"payroll_rate": payrollTaxRate,
		},
		Result: Guard(result),
	}
}

// CompoundInterest computes A = P(1 + r/n)^(nt).
func CompoundInterest(principal, rate, years float64, n int) model.Computation {
	if n <= 0 {
		n = 12
	}
	amount := principal * math.Pow(1+rate/float64(n), float64(n)*years)
	return model.Computation{
		Name:    "compound_interest",
		Formula: "A = P(1 + r/n)^(nt)",
		Inputs: map[string]any{
			"principal":             principal,
			"rate":                  rate,
			"years":                 years,
			"compounding_frequency": n,
		},
		Result: Guard(round2(amount)),
	}
}

// LoanPayment computes the standard amortized monthly payment. A zero rate
// degrades to straight principal division.
func LoanPayment(principal, annualRate float64, months int) model.Computation {
	var payment, totalInterest float64
	if months <= 0 {
		months = 1
	}
	if annualRate == 0 {
		payment = principal / float64(months)
	} else {
		r := annualRate / 12
		pow := math.Pow(1+r, float64(months))
		payment = principal * (r * pow) / (pow - 1)
		totalInterest = payment*float64(months) - principal
	}
	return model.Computation{
		Name:    "loan_payment",
		Formula: "M = P[r(1+r)^n]/[(1+r)^n−1]",
		Inputs: map[string]any{
			"principal":   principal,
			"annual_rate": annualRate,
			"months":      months,
		},
		Result: map[string]any{
			"monthly_payment": Guard(round2(payment)),
			"total_interest":  Guard(round2(totalInterest)),
			"total_paid":      Guard(round2(payment * float64(months))),
		},
	}
}

// RetirementTarget sizes the portfolio needed to fund annual expenses at a
// safe withdrawal rate.
func RetirementTarget(annualExpenses, withdrawalRate float64) model.Computation {
	if withdrawalRate <= 0 {
		withdrawalRate = 0.04
	}
	return model.Computation{
		Name:    "retirement_target",
		Formula: "portfolio = annual expenses / withdrawal rate",
		Inputs: map[string]any{
			"annual_expenses": annualExpenses,
			"withdrawal_rate": withdrawalRate,
		},
		Result: Guard(round2(annualExpenses / withdrawalRate)),
	}
}

// FutureValue computes contribution growth: FV = PMT·[((1+r)^n − 1)/r],
// linear when r = 0.
func FutureValue(monthlyPayment, annualRate float64, years int) model.Computation {
	months := years * 12
	r := annualRate / 12

	var fv float64
	if r == 0 {
		fv = monthlyPayment * float64(months)
	} else {
		fv = monthlyPayment * ((math.Pow(1+r, float64(months)) - 1) / r)
	}

	invested := monthlyPayment * float64(months)
	return model.Computation{
		Name:    "future_value",
		Formula: "FV = PMT × [((1 + r)^n − 1) / r]",
		Inputs: map[string]any{
			"monthly_payment": monthlyPayment,
			"annual_rate":     annualRate,
			"years":           years,
		},
		Result: map[string]any{
			"future_value":   Guard(round2(fv)),
			"total_invested": Guard(round2(invested)),
			"total_gains":    Guard(round2(fv - invested)),
		},
	}
}

// Debt is one liability fed to the payoff engine.
type Debt struct {
	Name           string  `json:"name"`
	Balance        float64 `json:"balance"`
	Rate           float64 `json:"rate"`
	MinimumPayment float64 `json:"minimum_payment"`
}

// DebtPayoffEntry is one debt's place in the payoff timeline.
type DebtPayoffEntry struct {
	DebtName       string  `json:"debt_name"`
	Balance        float64 `json:"balance"`
	Rate           float64 `json:"rate"`
	MonthsToPayoff int     `json:"months_to_payoff"`
	InterestPaid   float64 `json:"interest_paid"`
}

// DebtPayoffResult summarizes a payoff strategy run.
type DebtPayoffResult struct {
	Strategy      string            `json:"strategy"`
	Order         []string          `json:"order"`
	Timeline      []DebtPayoffEntry `json:"timeline"`
	TotalInterest float64           `json:"total_interest"`
	Months        int               `json:"months_to_freedom"`
}

const maxPayoffMonths = 360

// DebtPayoff runs the month-by-month payoff engine. Strategy "avalanche"
// orders debts by rate descending, "snowball" by balance ascending. Every
// active debt receives its minimum; the first unpaid debt also receives the
// extra plus the full payments of every retired debt. A debt whose balance
// is at or below that month's payment is settled that month; the unused
// part of that payment is not carried to another debt.
func DebtPayoff(debts []Debt, extraPayment float64, strategy string) DebtPayoffResult {
	ordered := append([]Debt(nil), debts...)
	if strategy == "snowball" {
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Balance < ordered[j].Balance })
	} else {
		strategy = "avalanche"
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rate > ordered[j].Rate })
	}

	balances := make([]float64, len(ordered))
	interestPaid := make([]float64, len(ordered))
	payoffMonth := make([]int, len(ordered))
	for i, d := range ordered {
		balances[i] = d.Balance
		payoffMonth[i] = -1
	}

	totalInterest := 0.0
	month := 0

	remaining := func() int {
		n := 0
		for _, b := range balances {
			if b > 0 {
				n++
			}
		}
		return n
	}

	for remaining() > 0 && month < maxPayoffMonths {
		month++

		// Interest accrues on every open balance
		for i := range ordered {
			if balances[i] <= 0 {
				continue
			}
			charge := balances[i] * ordered[i].Rate / 12
			balances[i] += charge
			interestPaid[i] += charge
			totalInterest += charge
		}

		// Retired debts roll their full payment forward
		rolled := extraPayment
		for i := range ordered {
			if balances[i] <= 0 {
				rolled += ordered[i].MinimumPayment
			}
		}

		target := -1
		for i := range ordered {
			if balances[i] > 0 {
				if target == -1 {
					target = i
				}
				payment := ordered[i].MinimumPayment
				if i == target {
					payment += rolled
				}
				if balances[i] <= payment*0.02 || balances[i] <= payment {
					balances[i] = 0
					payoffMonth[i] = month
				} else {
					balances[i] -= payment
				}
			}
		}
	}

	result := DebtPayoffResult{
		Strategy:      strategy,
		TotalInterest: round2(totalInterest),
		Months:        month,
	}
	for i, d := range ordered {
		months := payoffMonth[i]
		if months < 0 {
			months = maxPayoffMonths
		}
		result.Order = append(result.Order, d.Name)
		result.Timeline = append(result.Timeline, DebtPayoffEntry{
			DebtName:       d.Name,
			Balance:        d.Balance,
			Rate:           d.Rate,
			MonthsToPayoff: months,
			InterestPaid:   round2(interestPaid[i]),
		})
	}
	return result
}

// SavingsCapacity reports what monthly savings are possible at increasing
// levels of discretionary cuts.
type SavingsCapacity struct {
	CurrentSavings     float64 `json:"current_savings"`
	CurrentRate        float64 `json:"current_rate"`
	ModerateSavings    float64 `json:"moderate_savings"`
	ModerateRate       float64 `json:"moderate_rate"`
	AggressiveSavings  float64 `json:"aggressive_savings"`
	AggressiveRate     float64 `json:"aggressive_rate"`
	MaxPossibleSavings float64 `json:"max_possible_savings"`
	EssentialSpending  float64 `json:"essential_spending"`
	Discretionary      float64 `json:"discretionary_spending"`
}

// Categories treated as essential when classifying spending.
var essentialCategories = map[string]bool{
	"rent": true, "mortgage": true, "housing": true, "utilities": true,
	"groceries": true, "insurance": true, "healthcare": true, "medical": true,
	"transportation": true, "loan payment": true, "childcare": true,
	"bills": true, "taxes": true,
}

// TrueSavingsCapacity classifies expenses as essential vs discretionary and
// reports current / moderate-cut (25%) / aggressive-cut (50%) / max-possible
// monthly savings.
func TrueSavingsCapacity(monthlyIncome float64, expensesByCategory map[string]float64) model.Computation {
	essential, discretionary := 0.0, 0.0
	for category, amount := range expensesByCategory {
		if essentialCategories[normalizeCategory(category)] {
			essential += amount
		} else {
			discretionary += amount
		}
	}

	current := monthlyIncome - essential - discretionary
	moderate := current + discretionary*0.25
	aggressive := current + discretionary*0.5
	maxPossible := monthlyIncome - essential

	rate := func(v float64) float64 {
		if monthlyIncome <= 0 {
			return 0
		}
		return round2(v / monthlyIncome * 100)
	}

	return model.Computation{
		Name:    "true_savings_capacity",
		Formula: "savings = income − essential − discretionary (cuts applied to discretionary)",
		Inputs: map[string]any{
			"monthly_income": monthlyIncome,
			"categories":     len(expensesByCategory),
		},
		Result: SavingsCapacity{
			CurrentSavings:     round2(current),
			CurrentRate:        rate(current),
			ModerateSavings:    round2(moderate),
			ModerateRate:       rate(moderate),
			AggressiveSavings:  round2(aggressive),
			AggressiveRate:     rate(aggressive),
			MaxPossibleSavings: round2(maxPossible),
			EssentialSpending:  round2(essential),
			Discretionary:      round2(discretionary),
		},
	}
}

func normalizeCategory(c string) string {
	out := make([]rune, 0, len(c))
	for _, r := range c {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// Affordability evaluates a new recurring payment against income, expenses
// and the emergency fund.
func Affordability(income, expenses, newPayment, emergencyFund float64) model.Computation {
	currentSurplus := income - expenses
	newSurplus := income - expenses - newPayment

	const recommendedBuffer = 0.2
	canAfford := newSurplus > 0
	maintainsBuffer := newSurplus >= income*recommendedBuffer

	emergencyMonths := 0.0
	if expenses+newPayment > 0 {
		emergencyMonths = emergencyFund / (expenses + newPayment)
	}

	dti := math.Inf(1)
	if income > 0 {
		dti = (expenses + newPayment) / income
	}

	recommendation := "Risky"
	if canAfford && maintainsBuffer && emergencyMonths >= 3 {
		recommendation = "Affordable"
	}

	return model.Computation{
		Name:    "affordability",
		Formula: "surplus = income − expenses − new payment; DTI = obligations / income",
		Inputs: map[string]any{
			"income":         income,
			"expenses":       expenses,
			"new_payment":    newPayment,
			"emergency_fund": emergencyFund,
		},
		Result: map[string]any{
			"can_afford":            canAfford,
			"maintains_buffer":      maintainsBuffer,
			"current_surplus":       round2(currentSurplus),
			"new_surplus":           round2(newSurplus),
			"debt_to_income_ratio":  Guard(round2(dti * 100)),
			"emergency_fund_months": round2(emergencyMonths),
			"recommendation":        recommendation,
		},
	}
}

// PercentageChange computes the relative change between two values, with
// explicit handling of a zero baseline.
func PercentageChange(oldValue, newValue float64) model.Computation {
	var change any
	switch {
	case oldValue == 0 && newValue == 0:
		change = 0.0
	case oldValue == 0:
		change = "undefined (zero baseline)"
	default:
		change = round2((newValue - oldValue) / math.Abs(oldValue) * 100)
	}

	direction := "no change"
	if newValue > oldValue {
		direction = "increase"
	} else if newValue < oldValue {
		direction = "decrease"
	}

	return model.Computation{
		Name:    "percentage_change",
		Formula: "change = (new − old) / |old| × 100",
		Inputs: map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		},
		Result: map[string]any{
			"percentage_change": change,
			"absolute_change":   round2(newValue - oldValue),
			"direction":         direction,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
