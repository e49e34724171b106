package montecarlo

import (
	"fmt"
	"sort"
)

// GoalParams configure a goal achievement simulation.
type GoalParams struct {
	CurrentValue        float64
	TargetValue         float64
	Years               int
	MonthlyContribution float64
	ExpectedReturn      float64
	Volatility          float64
}

func (p *GoalParams) applyDefaults() {
	if p.ExpectedReturn == 0 {
		p.ExpectedReturn = 0.07
	}
	if p.Volatility == 0 {
		p.Volatility = 0.15
	}
}

// GoalResult reports the probability of reaching the target and the monthly
// contribution required for standard success rates.
type GoalResult struct {
	ProbabilityOfSuccess  float64            `json:"probability_of_success"`
	MedianOutcome         float64            `json:"median_outcome"`
	PercentileOutcomes    map[string]float64 `json:"percentile_outcomes"`
	RequiredContributions map[string]float64 `json:"required_monthly_contributions"`
	GapToTarget           float64            `json:"gap_to_target"`
}

// SimulateGoalAchievement runs the monthly simulation and binary-searches the
// contribution needed for 50/75/90/95% success.
func (e *Engine) SimulateGoalAchievement(p GoalParams) (*GoalResult, error) {
	p.applyDefaults()
	if p.Years <= 0 {
		return nil, fmt.Errorf("years must be positive, got %d", p.Years)
	}

	successRate, median, p10, p90 := e.runGoal(p)

	required := map[string]float64{}
	for _, target := range []float64{50, 75, 90, 95} {
		required[fmt.Sprintf("%.0f%%", target)] = e.findRequiredContribution(p, target)
	}

	gap := p.TargetValue - median
	if gap < 0 {
		gap = 0
	}

	return &GoalResult{
		ProbabilityOfSuccess: successRate,
		MedianOutcome:        median,
		PercentileOutcomes: map[string]float64{
			"p10": p10,
			"p50": median,
			"p90": p90,
		},
		RequiredContributions: required,
		GapToTarget:           gap,
	}, nil
}

func (e *Engine) runGoal(p GoalParams) (successRate, median, p10, p90 float64) {
	finals := make([]float64, e.numSimulations)
	months := p.Years * 12
	monthlyReturn := p.ExpectedReturn / 12
	monthlyVol := p.Volatility / sqrt12

	e.parallelFor(func(sim int) {
		rng := e.pathRNG(3, int64(sim))
		value := p.CurrentValue
		for month := 0; month < months; month++ {
			r := rng.NormFloat64()*monthlyVol + monthlyReturn
			value = value*(1+r) + p.MonthlyContribution
		}
		finals[sim] = value
	})

	count := 0
	for _, v := range finals {
		if v >= p.TargetValue {
			count++
		}
	}

	sorted := append([]float64(nil), finals...)
	sort.Float64s(sorted)

	return float64(count) / float64(e.numSimulations) * 100,
		percentileSorted(sorted, 50),
		percentileSorted(sorted, 10),
		percentileSorted(sorted, 90)
}

// findRequiredContribution binary-searches the monthly contribution
// achieving the target success rate.
func (e *Engine) findRequiredContribution(p GoalParams, targetSuccessRate float64) float64 {
	low, high := 0.0, 50000.0
	const tolerance = 10.0

	for high-low > tolerance {
		mid := (low + high) / 2
		trial := p
		trial.MonthlyContribution = mid
		rate, _, _, _ := e.runGoal(trial)
		if rate >= targetSuccessRate {
			high = mid
		} else {
			low = mid
		}
	}
	return high
}
