package montecarlo

import (
	"fmt"
	"sort"
)

// Scenario is one historical shock applied to an allocation: per-asset-class
// return fractions for the event.
type Scenario struct {
	Name    string
	Impacts map[string]float64 // asset class -> return fraction
}

// DefaultScenarios are the historical stress events applied when the caller
// supplies none.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "2008 Financial Crisis", Impacts: map[string]float64{
			"stocks": -0.37, "bonds": 0.05, "real_estate": -0.20, "commodities": -0.35, "cash": 0.0}},
		{Name: "2020 COVID Crash", Impacts: map[string]float64{
			"stocks": -0.34, "bonds": 0.08, "real_estate": -0.15, "commodities": -0.20, "cash": 0.0}},
		{Name: "Dot-com Bubble (2000)", Impacts: map[string]float64{
			"stocks": -0.49, "bonds": 0.11, "real_estate": 0.05, "commodities": 0.10, "cash": 0.0}},
		{Name: "Stagflation (1970s style)", Impacts: map[string]float64{
			"stocks": -0.15, "bonds": -0.10, "real_estate": 0.08, "commodities": 0.25, "cash": -0.08}},
		{Name: "Rising Rates Environment", Impacts: map[string]float64{
			"stocks": -0.10, "bonds": -0.15, "real_estate": -0.12, "commodities": 0.05, "cash": 0.02}},
	}
}

// ScenarioOutcome is one scenario applied to the portfolio.
type ScenarioOutcome struct {
	Scenario               string  `json:"scenario"`
	PortfolioImpactPct     float64 `json:"portfolio_impact_pct"`
	NewPortfolioValue      float64 `json:"new_portfolio_value"`
	LossAmount             float64 `json:"loss_amount"`
	RecoveryMonthsEstimate float64 `json:"recovery_months_estimate"`
}

// StressResult aggregates all scenarios with portfolio risk metrics.
type StressResult struct {
	Outcomes        []ScenarioOutcome  `json:"stress_test_results"`
	RiskMetrics     map[string]float64 `json:"risk_metrics"`
	Recommendations []string           `json:"recommendations"`
}

// StressTestPortfolio applies each scenario's per-asset impacts to the
// allocation. The recovery estimate scales with the drawdown: 24 months per
// unit of impact.
func StressTestPortfolio(portfolioValue float64, allocation map[string]float64, scenarios []Scenario) *StressResult {
	if scenarios == nil {
		scenarios = DefaultScenarios()
	}

	outcomes := make([]ScenarioOutcome, 0, len(scenarios))
	for _, sc := range scenarios {
		impact := 0.0
		for assetClass, weight := range allocation {
			if shock, ok := sc.Impacts[assetClass]; ok {
				impact += weight * shock
			}
		}

		newValue := portfolioValue * (1 + impact)
		recovery := 0.0
		if impact < 0 {
			recovery = -impact * 24
		}

		outcomes = append(outcomes, ScenarioOutcome{
			Scenario:               sc.Name,
			PortfolioImpactPct:     impact * 100,
			NewPortfolioValue:      newValue,
			LossAmount:             portfolioValue - newValue,
			RecoveryMonthsEstimate: recovery,
		})
	}

	impacts := make([]float64, len(outcomes))
	var losses []float64
	maxDrawdown := 0.0
	for i, o := range outcomes {
		impacts[i] = o.PortfolioImpactPct
		if o.PortfolioImpactPct < 0 {
			losses = append(losses, o.PortfolioImpactPct)
		}
		if o.LossAmount > maxDrawdown {
			maxDrawdown = o.LossAmount
		}
	}

	sortedImpacts := append([]float64(nil), impacts...)
	sort.Float64s(sortedImpacts)

	avgLoss := 0.0
	if len(losses) > 0 {
		avgLoss = mean(losses)
	}

	return &StressResult{
		Outcomes: outcomes,
		RiskMetrics: map[string]float64{
			"worst_case_loss":  sortedImpacts[0],
			"average_loss":     avgLoss,
			"value_at_risk_95": percentileSorted(sortedImpacts, 5),
			"max_drawdown":     maxDrawdown,
		},
		Recommendations: stressRecommendations(sortedImpacts[0], allocation),
	}
}

func stressRecommendations(worstLoss float64, allocation map[string]float64) []string {
	var recs []string

	switch {
	case worstLoss < -30:
		recs = append(recs,
			"High risk: portfolio could lose over 30% in severe scenarios",
			"Consider reducing equity allocation and adding defensive assets")
	case worstLoss < -20:
		recs = append(recs,
			"Moderate risk: portfolio shows significant volatility",
			"Consider adding more diversification across uncorrelated assets")
	default:
		recs = append(recs, "Conservative: portfolio shows good resilience to market shocks")
	}

	equity := allocation["stocks"] + allocation["real_estate"]
	if equity > 0.8 {
		recs = append(recs, fmt.Sprintf("Very aggressive allocation (%.0f%% equity) - consider adding bonds for stability", equity*100))
	} else if equity < 0.3 {
		recs = append(recs, "Very conservative allocation - may limit long-term growth")
	}

	return recs
}
