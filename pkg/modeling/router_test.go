package modeling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsightai/finsight/pkg/intents"
)

func TestRouteCalculations_AlwaysIncludesBasics(t *testing.T) {
	calcs := RouteCalculations("hello", ProfileFacts{}, intents.Unknown)
	assert.Contains(t, calcs, CalcBasicMetrics)
	assert.Equal(t, CalcBasicMetrics, calcs[0], "basic metrics ranks first")
}

func TestRouteCalculations_IntentDriven(t *testing.T) {
	calcs := RouteCalculations("what should I do about my debt", ProfileFacts{}, intents.DebtAnalysis)
	assert.Contains(t, calcs, CalcDebtStrategies)
	assert.Contains(t, calcs, CalcOptimalPayoff)
}

func TestRouteCalculations_KeywordDriven(t *testing.T) {
	calcs := RouteCalculations("how do taxes affect my savings", ProfileFacts{}, intents.Unknown)
	assert.Contains(t, calcs, CalcAfterTaxIncome)
	assert.Contains(t, calcs, CalcQuarterlyTaxes)
}

func TestRouteCalculations_ScenarioTrigger(t *testing.T) {
	calcs := RouteCalculations("what if I lose my job", ProfileFacts{}, intents.Unknown)
	assert.Contains(t, calcs, CalcFinancialScenario)
}

func TestRouteCalculations_ProfileDriven(t *testing.T) {
	facts := ProfileFacts{Age: 58, HasLiabilities: true, RiskTolerance: "moderate"}
	calcs := RouteCalculations("tell me about my finances", facts, intents.Unknown)
	assert.Contains(t, calcs, CalcRetirementRunway)
	assert.Contains(t, calcs, CalcDebtStrategies)
	assert.Contains(t, calcs, CalcExpectedReturns)
}

func TestRouteCalculations_CappedAtEight(t *testing.T) {
	facts := ProfileFacts{
		Age: 40, LifeStage: "mid_career", Dependents: 2, MaritalStatus: "married",
		HasLiabilities: true, HasHoldings: true, HasTaxRates: true, RiskTolerance: "high",
	}
	calcs := RouteCalculations(
		"what if I retire early, pay off debt, invest, save on taxes and fund college",
		facts, intents.RetirementPlanning)
	assert.LessOrEqual(t, len(calcs), 8)
}

func TestRouteCalculations_Deterministic(t *testing.T) {
	facts := ProfileFacts{Age: 40, HasHoldings: true}
	a := RouteCalculations("portfolio growth and retirement", facts, intents.InvestmentAnalysis)
	b := RouteCalculations("portfolio growth and retirement", facts, intents.InvestmentAnalysis)
	assert.Equal(t, a, b)
}
