package montecarlo

import (
	"fmt"
	"sort"
)

// RetirementParams configure a retirement adequacy simulation. The
// accumulation and decumulation phases carry distinct return and volatility
// assumptions; withdrawals are inflation-adjusted.
type RetirementParams struct {
	CurrentAge               int
	RetirementAge            int
	LifeExpectancy           int
	CurrentSavings           float64
	MonthlyContribution      float64
	AnnualExpensesRetirement float64
	PreRetirementReturn      float64
	PostRetirementReturn     float64
	InflationRate            float64
	VolatilityPre            float64
	VolatilityPost           float64
}

func (p *RetirementParams) applyDefaults() {
	if p.PreRetirementReturn == 0 {
		p.PreRetirementReturn = 0.07
	}
	if p.PostRetirementReturn == 0 {
		p.PostRetirementReturn = 0.04
	}
	if p.InflationRate == 0 {
		p.InflationRate = 0.03
	}
	if p.VolatilityPre == 0 {
		p.VolatilityPre = 0.15
	}
	if p.VolatilityPost == 0 {
		p.VolatilityPost = 0.08
	}
}

// RetirementResult reports the adequacy simulation.
type RetirementResult struct {
	SuccessRate            float64  `json:"success_rate"`
	MedianFinalBalance     float64  `json:"median_final_balance"`
	AverageDepletionAge    float64  `json:"average_depletion_age"`
	ProbabilityOutliving   float64  `json:"probability_outliving_money"`
	SafeWithdrawalAmount   float64  `json:"safe_withdrawal_amount"`
	RecommendedAdjustments []string `json:"recommended_adjustments"`
}

// SimulateRetirementAdequacy returns the share of paths whose savings
// outlive the retiree, plus a binary-searched safe annual withdrawal hitting
// a 95% target success rate.
func (e *Engine) SimulateRetirementAdequacy(p RetirementParams) (*RetirementResult, error) {
	p.applyDefaults()

	yearsToRetirement := p.RetirementAge - p.CurrentAge
	yearsInRetirement := p.LifeExpectancy - p.RetirementAge
	if yearsToRetirement <= 0 {
		return nil, fmt.Errorf("already at or past retirement age")
	}
	if yearsInRetirement <= 0 {
		return nil, fmt.Errorf("life expectancy must exceed retirement age")
	}

	successRate, medianBalance, avgDepletionAge := e.runRetirement(p, yearsToRetirement, yearsInRetirement)

	safeWithdrawal := e.findSafeWithdrawal(p, yearsToRetirement, yearsInRetirement, 95)

	return &RetirementResult{
		SuccessRate:            successRate,
		MedianFinalBalance:     medianBalance,
		AverageDepletionAge:    avgDepletionAge,
		ProbabilityOutliving:   100 - successRate,
		SafeWithdrawalAmount:   safeWithdrawal,
		RecommendedAdjustments: retirementRecommendations(successRate, yearsToRetirement, p.MonthlyContribution),
	}, nil
}

func (e *Engine) runRetirement(p RetirementParams, yearsToRetirement, yearsInRetirement int) (successRate, medianFinal, avgDepletionAge float64) {
	successes := make([]bool, e.numSimulations)
	finals := make([]float64, e.numSimulations)
	depletionAges := make([]float64, e.numSimulations)

	e.parallelFor(func(sim int) {
		rng := e.pathRNG(2, int64(sim))

		// Accumulation phase, annual steps
		balance := p.CurrentSavings
		contribution := p.MonthlyContribution
		for year := 0; year < yearsToRetirement; year++ {
			annualReturn := rng.NormFloat64()*p.VolatilityPre + p.PreRetirementReturn
			balance = balance*(1+annualReturn) + contribution*12
			contribution *= 1 + p.InflationRate
		}

		// Decumulation phase with inflation-adjusted withdrawals
		withdrawal := p.AnnualExpensesRetirement
		depleted := false
		depletionAge := float64(p.LifeExpectancy)
		for year := 0; year < yearsInRetirement; year++ {
			if balance <= 0 {
				depleted = true
				depletionAge = float64(p.RetirementAge + year)
				break
			}
			annualReturn := rng.NormFloat64()*p.VolatilityPost + p.PostRetirementReturn
			balance = balance*(1+annualReturn) - withdrawal
			withdrawal *= 1 + p.InflationRate
		}

		successes[sim] = !depleted
		if balance < 0 {
			balance = 0
		}
		finals[sim] = balance
		depletionAges[sim] = depletionAge
	})

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}

	sorted := append([]float64(nil), finals...)
	sort.Float64s(sorted)

	return float64(count) / float64(e.numSimulations) * 100,
		percentileSorted(sorted, 50),
		mean(depletionAges)
}

// findSafeWithdrawal binary-searches the annual withdrawal achieving the
// target success rate.
func (e *Engine) findSafeWithdrawal(p RetirementParams, yearsToRetirement, yearsInRetirement int, targetSuccessRate float64) float64 {
	low, high := 0.0, 500000.0
	const tolerance = 100.0

	for high-low > tolerance {
		mid := (low + high) / 2
		trial := p
		trial.AnnualExpensesRetirement = mid
		rate, _, _ := e.runRetirement(trial, yearsToRetirement, yearsInRetirement)
		if rate >= targetSuccessRate {
			low = mid
		} else {
			high = mid
		}
	}
	return low
}

func retirementRecommendations(successRate float64, yearsToRetirement int, monthlyContribution float64) []string {
	var recs []string

	switch {
	case successRate < 50:
		recs = append(recs,
			"Critical: success rate below 50% - major adjustments needed",
			fmt.Sprintf("Consider increasing monthly contributions by %.0f", monthlyContribution*0.5),
			"Consider delaying retirement by 2-3 years",
			"Review and reduce expected retirement expenses")
	case successRate < 75:
		recs = append(recs,
			"Warning: success rate below 75% - adjustments recommended",
			fmt.Sprintf("Consider increasing monthly contributions by %.0f", monthlyContribution*0.25),
			"Consider delaying retirement by 1-2 years")
	case successRate < 90:
		recs = append(recs,
			"Good: success rate above 75% - minor adjustments could help",
			fmt.Sprintf("Consider increasing monthly contributions by %.0f", monthlyContribution*0.1))
	default:
		recs = append(recs,
			"Excellent: success rate above 90% - on track for retirement",
			"Consider diversifying investments for risk management")
	}

	switch {
	case yearsToRetirement > 20:
		recs = append(recs, "Focus on growth-oriented investments given long time horizon")
	case yearsToRetirement > 10:
		recs = append(recs, "Consider gradually shifting to more conservative allocation")
	default:
		recs = append(recs, "Prioritize capital preservation as retirement approaches")
	}

	return recs
}
