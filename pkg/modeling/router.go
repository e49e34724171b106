package modeling

import (
	"sort"
	"strings"

	"github.com/finsightai/finsight/pkg/intents"
)

// Calculation tags the router can select. The closed set keeps the modeling
// stage auditable: an answer only ever contains calculations named here.
const (
	CalcBasicMetrics           = "basic_metrics"
	CalcAfterTaxIncome         = "after_tax_income"
	CalcTrueSavingsCapacity    = "true_savings_capacity"
	CalcSpendingFlexibility    = "spending_flexibility"
	CalcDebtStrategies         = "debt_strategies"
	CalcRetirementRunway       = "retirement_runway"
	CalcPortfolioProjection    = "portfolio_projection"
	CalcCollegeSavings         = "college_savings"
	CalcExpectedReturns        = "expected_returns"
	CalcSocialSecurity         = "social_security"
	CalcTaxEfficientWithdrawal = "tax_efficient_withdrawal"
	CalcQuarterlyTaxes         = "quarterly_taxes"
	CalcOptimalPayoff          = "optimal_payoff"
	CalcSeasonalPatterns       = "seasonal_patterns"
	CalcFinancialScenario      = "financial_scenario"
)

// maxCalculations caps how many calculations one answer may carry.
const maxCalculations = 8

var intentCalculations = map[intents.Intent][]string{
	intents.SpendByTime:        {CalcSpendingFlexibility, CalcSeasonalPatterns, CalcTrueSavingsCapacity, CalcAfterTaxIncome},
	intents.CategoryBreakdown:  {CalcSpendingFlexibility, CalcTrueSavingsCapacity, CalcSeasonalPatterns},
	intents.SavingsAnalysis:    {CalcTrueSavingsCapacity, CalcAfterTaxIncome, CalcRetirementRunway, CalcPortfolioProjection},
	intents.BudgetAnalysis:     {CalcSpendingFlexibility, CalcTrueSavingsCapacity, CalcSeasonalPatterns},
	intents.InvestmentAnalysis: {CalcPortfolioProjection, CalcExpectedReturns, CalcTaxEfficientWithdrawal, CalcRetirementRunway},
	intents.DebtAnalysis:       {CalcDebtStrategies, CalcOptimalPayoff, CalcAfterTaxIncome},
	intents.TaxPlanning:        {CalcAfterTaxIncome, CalcQuarterlyTaxes, CalcTaxEfficientWithdrawal},
	intents.RetirementPlanning: {CalcRetirementRunway, CalcSocialSecurity, CalcPortfolioProjection, CalcTaxEfficientWithdrawal},
	intents.GoalPlanning:       {CalcPortfolioProjection, CalcCollegeSavings, CalcRetirementRunway, CalcTrueSavingsCapacity},
	intents.NetWorth:           {CalcPortfolioProjection, CalcDebtStrategies, CalcAfterTaxIncome},
}

var keywordCalculations = map[string][]string{
	"tax":             {CalcAfterTaxIncome, CalcQuarterlyTaxes, CalcTaxEfficientWithdrawal},
	"taxes":           {CalcAfterTaxIncome, CalcQuarterlyTaxes, CalcTaxEfficientWithdrawal},
	"after-tax":       {CalcAfterTaxIncome},
	"quarterly":       {CalcQuarterlyTaxes},
	"retirement":      {CalcRetirementRunway, CalcSocialSecurity, CalcPortfolioProjection},
	"retire":          {CalcRetirementRunway, CalcSocialSecurity, CalcPortfolioProjection},
	"401k":            {CalcRetirementRunway, CalcPortfolioProjection, CalcTaxEfficientWithdrawal},
	"ira":             {CalcRetirementRunway, CalcPortfolioProjection, CalcTaxEfficientWithdrawal},
	"social security": {CalcSocialSecurity},
	"college":         {CalcCollegeSavings},
	"education":       {CalcCollegeSavings},
	"529":             {CalcCollegeSavings},
	"debt":            {CalcDebtStrategies, CalcOptimalPayoff},
	"loan":            {CalcDebtStrategies, CalcOptimalPayoff},
	"credit card":     {CalcDebtStrategies, CalcOptimalPayoff},
	"payoff":          {CalcDebtStrategies, CalcOptimalPayoff},
	"avalanche":       {CalcDebtStrategies},
	"snowball":        {CalcDebtStrategies},
	"invest":          {CalcPortfolioProjection, CalcExpectedReturns},
	"portfolio":       {CalcPortfolioProjection, CalcExpectedReturns},
	"growth":          {CalcPortfolioProjection},
	"return":          {CalcExpectedReturns, CalcPortfolioProjection},
	"spending":        {CalcSpendingFlexibility, CalcSeasonalPatterns, CalcTrueSavingsCapacity},
	"expense":         {CalcSpendingFlexibility, CalcTrueSavingsCapacity},
	"save":            {CalcTrueSavingsCapacity, CalcRetirementRunway},
	"savings":         {CalcTrueSavingsCapacity, CalcRetirementRunway},
	"emergency":       {CalcSpendingFlexibility, CalcTrueSavingsCapacity},
	"seasonal":        {CalcSeasonalPatterns},
	"holiday":         {CalcSeasonalPatterns},
	"withdraw":        {CalcTaxEfficientWithdrawal},
	"withdrawal":      {CalcTaxEfficientWithdrawal},
}

var scenarioTriggers = []string{
	"what if", "what would happen", "if i", "should i",
	"considering", "thinking about", "planning to",
	"want to buy", "want to purchase", "lose my job",
	"get a raise", "salary increase", "change job",
	"buy house", "buy car", "major purchase",
	"have a baby", "get married", "retire early",
}

var calculationPriority = map[string]int{
	CalcBasicMetrics:           1,
	CalcAfterTaxIncome:         2,
	CalcTrueSavingsCapacity:    3,
	CalcSpendingFlexibility:    4,
	CalcDebtStrategies:         5,
	CalcRetirementRunway:       6,
	CalcPortfolioProjection:    7,
	CalcCollegeSavings:         8,
	CalcExpectedReturns:        9,
	CalcSocialSecurity:         10,
	CalcTaxEfficientWithdrawal: 11,
	CalcQuarterlyTaxes:         12,
	CalcOptimalPayoff:          13,
	CalcSeasonalPatterns:       14,
	CalcFinancialScenario:      15,
}

// ProfileFacts are the profile-derived signals the router reads. The agent
// extracts them once from the pack so routing stays a pure function.
type ProfileFacts struct {
	Age            int
	LifeStage      string
	Dependents     int
	MaritalStatus  string
	HasLiabilities bool
	HasHoldings    bool
	HasBudgets     bool
	HasTaxRates    bool
	RiskTolerance  string
}

// RouteCalculations selects the ordered calculation list for a question:
// the union of intent-, keyword-, profile- and scenario-driven additions,
// ranked by the static priority and capped at eight.
func RouteCalculations(question string, facts ProfileFacts, intent intents.Intent) []string {
	selected := map[string]bool{CalcBasicMetrics: true}

	for _, c := range intentCalculations[intent] {
		selected[c] = true
	}

	q := strings.ToLower(question)
	for keyword, calcs := range keywordCalculations {
		if strings.Contains(q, keyword) {
			for _, c := range calcs {
				selected[c] = true
			}
		}
	}

	for _, c := range profileCalculations(facts) {
		selected[c] = true
	}

	for _, trigger := range scenarioTriggers {
		if strings.Contains(q, trigger) {
			selected[CalcFinancialScenario] = true
			break
		}
	}

	list := make([]string, 0, len(selected))
	for c := range selected {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		pi, pj := priorityOf(list[i]), priorityOf(list[j])
		if pi == pj {
			return list[i] < list[j]
		}
		return pi < pj
	})

	if len(list) > maxCalculations {
		list = list[:maxCalculations]
	}
	return list
}

func priorityOf(c string) int {
	if p, ok := calculationPriority[c]; ok {
		return p
	}
	return 99
}

func profileCalculations(f ProfileFacts) []string {
	var calcs []string

	switch {
	case f.Age > 50:
		calcs = append(calcs, CalcRetirementRunway, CalcSocialSecurity, CalcTaxEfficientWithdrawal)
	case f.Age > 0 && f.Age < 35:
		calcs = append(calcs, CalcDebtStrategies, CalcTrueSavingsCapacity)
	case f.Age > 0:
		calcs = append(calcs, CalcPortfolioProjection, CalcCollegeSavings)
	}

	stage := strings.ToLower(f.LifeStage)
	switch {
	case strings.Contains(stage, "early"):
		calcs = append(calcs, CalcDebtStrategies, CalcTrueSavingsCapacity)
	case strings.Contains(stage, "mid"):
		calcs = append(calcs, CalcCollegeSavings, CalcPortfolioProjection)
	case strings.Contains(stage, "late"), strings.Contains(stage, "retire"):
		calcs = append(calcs, CalcRetirementRunway, CalcTaxEfficientWithdrawal, CalcSocialSecurity)
	}

	if f.Dependents > 0 {
		calcs = append(calcs, CalcCollegeSavings)
	}
	if strings.Contains(strings.ToLower(f.MaritalStatus), "married") {
		calcs = append(calcs, CalcAfterTaxIncome)
	}
	if f.HasLiabilities {
		calcs = append(calcs, CalcDebtStrategies)
	}
	if f.HasHoldings {
		calcs = append(calcs, CalcPortfolioProjection, CalcExpectedReturns)
	}
	if f.HasTaxRates {
		calcs = append(calcs, CalcAfterTaxIncome)
	}
	if f.RiskTolerance != "" {
		calcs = append(calcs, CalcExpectedReturns)
	}

	return calcs
}
