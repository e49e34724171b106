package montecarlo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portfolioParams() PortfolioParams {
	return PortfolioParams{
		InitialValue:       100000,
		Years:              10,
		ExpectedReturn:     0.07,
		Volatility:         0.15,
		AnnualContribution: 12000,
	}
}

func TestSimulatePortfolio_DeterministicWithSeed(t *testing.T) {
	a, err := New(500, 42).SimulatePortfolio(portfolioParams())
	require.NoError(t, err)
	b, err := New(500, 42).SimulatePortfolio(portfolioParams())
	require.NoError(t, err)

	assert.Equal(t, a.Percentiles, b.Percentiles)
	assert.Equal(t, a.Statistics, b.Statistics)
	assert.Equal(t, a.Paths.Median, b.Paths.Median)
}

func TestSimulatePortfolio_DifferentSeedsDiffer(t *testing.T) {
	a, err := New(500, 42).SimulatePortfolio(portfolioParams())
	require.NoError(t, err)
	b, err := New(500, 7).SimulatePortfolio(portfolioParams())
	require.NoError(t, err)
	assert.NotEqual(t, a.Percentiles["p50"], b.Percentiles["p50"])
}

func TestSimulatePortfolio_Shape(t *testing.T) {
	result, err := New(500, 42).SimulatePortfolio(portfolioParams())
	require.NoError(t, err)

	assert.Len(t, result.Paths.Best, 121) // months + 1
	assert.Equal(t, 100000.0, result.Paths.Best[0])

	assert.LessOrEqual(t, result.Percentiles["p5"], result.Percentiles["p25"])
	assert.LessOrEqual(t, result.Percentiles["p25"], result.Percentiles["p50"])
	assert.LessOrEqual(t, result.Percentiles["p50"], result.Percentiles["p75"])
	assert.LessOrEqual(t, result.Percentiles["p75"], result.Percentiles["p95"])

	for _, p := range result.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
	}

	assert.LessOrEqual(t, result.Statistics.Min, result.Statistics.Median)
	assert.LessOrEqual(t, result.Statistics.Median, result.Statistics.Max)
}

func TestSimulatePortfolio_InvalidYears(t *testing.T) {
	_, err := New(10, 1).SimulatePortfolio(PortfolioParams{InitialValue: 1000, Years: 0})
	assert.Error(t, err)
}

func TestSimulateRetirementAdequacy(t *testing.T) {
	result, err := New(300, 42).SimulateRetirementAdequacy(RetirementParams{
		CurrentAge:               35,
		RetirementAge:            65,
		LifeExpectancy:           85,
		CurrentSavings:           95000,
		MonthlyContribution:      1500,
		AnnualExpensesRetirement: 84000,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.SuccessRate, 0.0)
	assert.LessOrEqual(t, result.SuccessRate, 100.0)
	assert.GreaterOrEqual(t, result.SafeWithdrawalAmount, 0.0)
	assert.NotEmpty(t, result.RecommendedAdjustments)
	assert.InDelta(t, 100-result.SuccessRate, result.ProbabilityOutliving, 0.001)
}

func TestSimulateRetirementAdequacy_Deterministic(t *testing.T) {
	params := RetirementParams{
		CurrentAge: 35, RetirementAge: 65, LifeExpectancy: 85,
		CurrentSavings: 95000, MonthlyContribution: 1500,
		AnnualExpensesRetirement: 84000,
	}
	a, err := New(300, 42).SimulateRetirementAdequacy(params)
	require.NoError(t, err)
	b, err := New(300, 42).SimulateRetirementAdequacy(params)
	require.NoError(t, err)
	assert.Equal(t, a.SuccessRate, b.SuccessRate)
	assert.Equal(t, a.SafeWithdrawalAmount, b.SafeWithdrawalAmount)
}

func TestSimulateRetirementAdequacy_PastRetirement(t *testing.T) {
	_, err := New(100, 1).SimulateRetirementAdequacy(RetirementParams{
		CurrentAge: 70, RetirementAge: 65, LifeExpectancy: 85,
	})
	assert.Error(t, err)
}

func TestSimulateGoalAchievement(t *testing.T) {
	result, err := New(300, 42).SimulateGoalAchievement(GoalParams{
		CurrentValue:        20000,
		TargetValue:         100000,
		Years:               10,
		MonthlyContribution: 400,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.ProbabilityOfSuccess, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfSuccess, 100.0)

	require.Len(t, result.RequiredContributions, 4)
	// Higher confidence requires at least as much contribution
	assert.LessOrEqual(t, result.RequiredContributions["50%"], result.RequiredContributions["75%"])
	assert.LessOrEqual(t, result.RequiredContributions["75%"], result.RequiredContributions["90%"])
	assert.LessOrEqual(t, result.RequiredContributions["90%"], result.RequiredContributions["95%"])
}

func TestStressTestPortfolio(t *testing.T) {
	allocation := map[string]float64{"stocks": 0.6, "bonds": 0.3, "cash": 0.1}
	result := StressTestPortfolio(500000, allocation, nil)

	require.Len(t, result.Outcomes, 5)
	for _, o := range result.Outcomes {
		if o.PortfolioImpactPct < 0 {
			assert.Greater(t, o.LossAmount, 0.0)
			assert.InDelta(t, -o.PortfolioImpactPct/100*24, o.RecoveryMonthsEstimate, 0.001)
		}
	}
	assert.Less(t, result.RiskMetrics["worst_case_loss"], 0.0)
	assert.NotEmpty(t, result.Recommendations)
}

func TestStressTest_AggressiveAllocationFlagged(t *testing.T) {
	allocation := map[string]float64{"stocks": 0.9, "real_estate": 0.1}
	result := StressTestPortfolio(100000, allocation, nil)

	flagged := false
	for _, rec := range result.Recommendations {
		if len(rec) > 0 && (rec[0] == 'V' || rec[0] == 'H') {
			flagged = true
		}
	}
	assert.True(t, flagged)
}

func TestPercentileSorted(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, percentileSorted(xs, 50))
	assert.Equal(t, 1.0, percentileSorted(xs, 0))
	assert.Equal(t, 5.0, percentileSorted(xs, 100))
	assert.Equal(t, 2.0, percentileSorted(xs, 25))
}
