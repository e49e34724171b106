package modeling

import (
	"fmt"
	"math"
)

// BaseProfile is the slice of the profile pack the scenario analyzer works
// from. Values are monthly unless named otherwise.
type BaseProfile struct {
	Age             int
	MonthlyIncome   float64
	MonthlyExpenses float64
	CurrentSavings  float64
	CurrentDebt     float64
}

// Analyzer compares strategies against a base profile. It never mutates the
// profile it was built from.
type Analyzer struct {
	profile BaseProfile
}

// NewAnalyzer builds a scenario analyzer. A zero age defaults to 35 so the
// age-based allocation still means something.
func NewAnalyzer(profile BaseProfile) *Analyzer {
	if profile.Age == 0 {
		profile.Age = 35
	}
	return &Analyzer{profile: profile}
}

// SavingsStrategy is one candidate savings plan.
type SavingsStrategy struct {
	Name             string  `json:"name"`
	SavingsRate      float64 `json:"savings_rate"`
	Description      string  `json:"description"`
	InvestmentReturn float64 `json:"investment_return"`
}

// SavingsOutcome projects one strategy over the horizon.
type SavingsOutcome struct {
	StrategyName           string  `json:"strategy_name"`
	Description            string  `json:"description"`
	MonthlySavings         float64 `json:"monthly_savings"`
	SavingsRatePct         float64 `json:"savings_rate_pct"`
	FutureValue            float64 `json:"future_value"`
	TotalSaved             float64 `json:"total_saved"`
	InvestmentGains        float64 `json:"investment_gains"`
	LifestyleImpact        string  `json:"lifestyle_impact"`
	YearsToFI              float64 `json:"years_to_fi"`
	RetirementIncomeAt4Pct float64 `json:"projected_annual_income_at_retirement"`
}

// SavingsComparison is the full strategy comparison.
type SavingsComparison struct {
	Scenarios        []SavingsOutcome  `json:"scenarios"`
	ComparisonPeriod string            `json:"comparison_period"`
	Recommendations  map[string]string `json:"recommendations"`
	Insights         []string          `json:"insights"`
}

// DefaultSavingsStrategies are the conservative/moderate/aggressive/FIRE
// presets.
func DefaultSavingsStrategies() []SavingsStrategy {
	return []SavingsStrategy{
		{Name: "Conservative", SavingsRate: 0.10, Description: "Save 10% of income", InvestmentReturn: 0.04},
		{Name: "Moderate", SavingsRate: 0.20, Description: "Save 20% of income", InvestmentReturn: 0.06},
		{Name: "Aggressive", SavingsRate: 0.30, Description: "Save 30% of income", InvestmentReturn: 0.08},
		{Name: "FIRE Movement", SavingsRate: 0.50, Description: "Save 50% of income (financial independence)", InvestmentReturn: 0.07},
	}
}

// CompareSavingsStrategies projects each strategy month by month over the
// horizon and recommends best-growth, best-balanced and most-achievable.
func (a *Analyzer) CompareSavingsStrategies(strategies []SavingsStrategy, horizonYears int) *SavingsComparison {
	if strategies == nil {
		strategies = DefaultSavingsStrategies()
	}
	if horizonYears <= 0 {
		horizonYears = 10
	}

	discretionary := a.profile.MonthlyIncome - a.profile.MonthlyExpenses
	annualExpenses := a.profile.MonthlyExpenses * 12
	fiTarget := annualExpenses * 25
	months := horizonYears * 12

	outcomes := make([]SavingsOutcome, 0, len(strategies))
	for _, s := range strategies {
		monthlySavings := a.profile.MonthlyIncome * s.SavingsRate
		monthlyReturn := s.InvestmentReturn / 12

		fv := a.profile.CurrentSavings
		for m := 0; m < months; m++ {
			fv = fv*(1+monthlyReturn) + monthlySavings
		}

		impact := "Significant"
		if discretionary > 0 {
			switch {
			case monthlySavings < discretionary*0.3:
				impact = "Minimal"
			case monthlySavings < discretionary*0.6:
				impact = "Moderate"
			}
		}

		outcomes = append(outcomes, SavingsOutcome{
			StrategyName:    s.Name,
			Description:     s.Description,
			MonthlySavings:  round2(monthlySavings),
			SavingsRatePct:  s.SavingsRate * 100,
			FutureValue:     round2(fv),
			TotalSaved:      round2(monthlySavings * float64(months)),
			InvestmentGains: round2(fv - a.profile.CurrentSavings - monthlySavings*float64(months)),
			LifestyleImpact: impact,
			YearsToFI:       yearsToTarget(a.profile.CurrentSavings, fiTarget, monthlySavings, s.InvestmentReturn),
			RetirementIncomeAt4Pct: round2(fv * 0.04),
		})
	}

	bestGrowth := outcomes[0]
	bestBalanced := outcomes[0]
	mostAchievable := outcomes[0]
	for _, o := range outcomes {
		if o.FutureValue > bestGrowth.FutureValue {
			bestGrowth = o
		}
		if math.Abs(o.SavingsRatePct-20) < math.Abs(bestBalanced.SavingsRatePct-20) {
			bestBalanced = o
		}
		if o.MonthlySavings <= discretionary && o.MonthlySavings > mostAchievable.MonthlySavings {
			mostAchievable = o
		}
	}

	var insights []string
	if conservative, aggressive := findOutcome(outcomes, "Conservative"), findOutcome(outcomes, "Aggressive"); conservative != nil && aggressive != nil {
		insights = append(insights, fmt.Sprintf(
			"Aggressive saving could yield %s more over the period",
			FormatCurrency(aggressive.FutureValue-conservative.FutureValue)))
	}
	if fire := findOutcome(outcomes, "FIRE Movement"); fire != nil && fire.YearsToFI < 20 {
		insights = append(insights, fmt.Sprintf(
			"FIRE strategy could achieve financial independence in %.1f years", fire.YearsToFI))
	}

	return &SavingsComparison{
		Scenarios:        outcomes,
		ComparisonPeriod: fmt.Sprintf("%d years", horizonYears),
		Recommendations: map[string]string{
			"best_growth":     bestGrowth.StrategyName,
			"best_balanced":   bestBalanced.StrategyName,
			"most_achievable": mostAchievable.StrategyName,
		},
		Insights: insights,
	}
}

func findOutcome(outcomes []SavingsOutcome, name string) *SavingsOutcome {
	for i := range outcomes {
		if outcomes[i].StrategyName == name {
			return &outcomes[i]
		}
	}
	return nil
}

// yearsToTarget solves the future-value formula for time; 999 marks an
// unreachable target.
func yearsToTarget(current, target, monthlyContribution, annualReturn float64) float64 {
	if monthlyContribution <= 0 {
		return 999
	}
	r := annualReturn / 12

	var months float64
	if r == 0 {
		months = (target - current) / monthlyContribution
	} else {
		num := target*r + monthlyContribution
		den := current*r + monthlyContribution
		if num <= 0 || den <= 0 {
			return 999
		}
		months = math.Log(num/den) / math.Log(1+r)
	}

	years := months / 12
	if years < 0 {
		return 0
	}
	return math.Min(years, 999)
}

// DebtStrategyOutcome is one strategy in the payoff comparison.
type DebtStrategyOutcome struct {
	DebtPayoffResult
	Description   string   `json:"description"`
	InterestSaved float64  `json:"interest_saved"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
}

// DebtComparison compares avalanche, snowball and minimum-only payoff.
type DebtComparison struct {
	Strategies       map[string]DebtStrategyOutcome `json:"strategies"`
	Recommendation   string                         `json:"recommendation"`
	MinimumMonthly   float64                        `json:"minimum_monthly_payment"`
	WithExtraMonthly float64                        `json:"with_extra_monthly_payment"`
}

// CompareDebtStrategies runs the payoff engine under each strategy. The
// recommendation is avalanche whenever it pays less total interest than
// snowball, else snowball for the motivational wins.
func (a *Analyzer) CompareDebtStrategies(debts []Debt, extraPayment float64) *DebtComparison {
	avalanche := DebtPayoff(debts, extraPayment, "avalanche")
	snowball := DebtPayoff(debts, extraPayment, "snowball")
	minimum := DebtPayoff(debts, 0, "avalanche")

	avalancheSaved := minimum.TotalInterest - avalanche.TotalInterest
	snowballSaved := minimum.TotalInterest - snowball.TotalInterest

	recommendation := "snowball"
	if avalanche.TotalInterest < snowball.TotalInterest {
		recommendation = "avalanche"
	}

	minMonthly := 0.0
	for _, d := range debts {
		minMonthly += d.MinimumPayment
	}

	return &DebtComparison{
		Strategies: map[string]DebtStrategyOutcome{
			"avalanche": {
				DebtPayoffResult: avalanche,
				Description:      "Pay highest interest rate first",
				InterestSaved:    round2(avalancheSaved),
				Pros:             []string{"Mathematically optimal", "Lowest total interest paid"},
				Cons:             []string{"May take longer to see first debt eliminated"},
			},
			"snowball": {
				DebtPayoffResult: snowball,
				Description:      "Pay smallest balance first",
				InterestSaved:    round2(snowballSaved),
				Pros:             []string{"Quick wins boost motivation", "Simplifies finances faster"},
				Cons:             []string{"May pay more interest overall"},
			},
			"minimum": {
				DebtPayoffResult: minimum,
				Description:      "Pay only minimum payments",
				InterestSaved:    0,
				Pros:             []string{"Lowest monthly payment"},
				Cons:             []string{"Highest total cost", "Longest payoff time"},
			},
		},
		Recommendation:   recommendation,
		MinimumMonthly:   round2(minMonthly),
		WithExtraMonthly: round2(minMonthly + extraPayment),
	}
}

// Allocation is one candidate asset mix.
type Allocation struct {
	Name           string  `json:"name"`
	Stocks         float64 `json:"stocks"`
	Bonds          float64 `json:"bonds"`
	Cash           float64 `json:"cash"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
}

// AllocationOutcome projects one allocation over the horizon.
type AllocationOutcome struct {
	AllocationName    string             `json:"allocation_name"`
	AssetMixPct       map[string]float64 `json:"asset_mix"`
	ExpectedReturnPct float64            `json:"expected_return_annual"`
	VolatilityPct     float64            `json:"volatility_annual"`
	FutureValue       float64            `json:"future_value_expected"`
	WorstCase         float64            `json:"worst_case"`
	BestCase          float64            `json:"best_case"`
	SharpeRatio       float64            `json:"sharpe_ratio"`
	LossProbability1Y float64            `json:"loss_probability_1yr"`
	AgeAppropriate    bool               `json:"age_appropriate"`
}

// AllocationComparison compares allocation strategies.
type AllocationComparison struct {
	Allocations     []AllocationOutcome `json:"allocations"`
	TimeHorizon     int                 `json:"time_horizon"`
	Recommendations map[string]string   `json:"recommendations"`
	Insights        []string            `json:"insights"`
}

// DefaultAllocations builds conservative/moderate/aggressive presets plus an
// age-based mix with stocks = max(0.2, 1 − age/100).
func DefaultAllocations(age int) []Allocation {
	ageStocks := math.Max(0.2, 1-float64(age)/100)
	return []Allocation{
		{Name: "Conservative", Stocks: 0.30, Bonds: 0.60, Cash: 0.10, ExpectedReturn: 0.05, Volatility: 0.08},
		{Name: "Moderate", Stocks: 0.60, Bonds: 0.30, Cash: 0.10, ExpectedReturn: 0.07, Volatility: 0.12},
		{Name: "Aggressive", Stocks: 0.80, Bonds: 0.15, Cash: 0.05, ExpectedReturn: 0.09, Volatility: 0.18},
		{Name: "Age-Based", Stocks: ageStocks, Bonds: math.Min(0.7, float64(age)/100), Cash: 0.1, ExpectedReturn: 0.07, Volatility: 0.14},
	}
}

// CompareInvestmentAllocations scores each allocation's projected range,
// Sharpe ratio and age appropriateness.
func (a *Analyzer) CompareInvestmentAllocations(allocations []Allocation, horizonYears int) *AllocationComparison {
	if allocations == nil {
		allocations = DefaultAllocations(a.profile.Age)
	}
	if horizonYears <= 0 {
		horizonYears = 20
	}

	amount := a.profile.CurrentSavings
	yearsToRetirement := 67 - a.profile.Age
	if yearsToRetirement < 0 {
		yearsToRetirement = 0
	}

	outcomes := make([]AllocationOutcome, 0, len(allocations))
	for _, al := range allocations {
		expected := amount * math.Pow(1+al.ExpectedReturn, float64(horizonYears))
		best := amount * math.Pow(1+al.ExpectedReturn+2*al.Volatility, float64(horizonYears))
		worstRate := math.Max(al.ExpectedReturn-2*al.Volatility, -0.5)
		worst := amount * math.Pow(1+worstRate, float64(horizonYears))

		const riskFree = 0.02
		sharpe := 0.0
		if al.Volatility > 0 {
			sharpe = (al.ExpectedReturn - riskFree) / al.Volatility
		}

		ageAppropriate := (yearsToRetirement > 20 && al.Stocks >= 0.6) ||
			(yearsToRetirement >= 10 && yearsToRetirement <= 20 && al.Stocks >= 0.4 && al.Stocks <= 0.7) ||
			(yearsToRetirement < 10 && al.Stocks <= 0.5)

		outcomes = append(outcomes, AllocationOutcome{
			AllocationName: al.Name,
			AssetMixPct: map[string]float64{
				"stocks": al.Stocks * 100,
				"bonds":  al.Bonds * 100,
				"cash":   al.Cash * 100,
			},
			ExpectedReturnPct: al.ExpectedReturn * 100,
			VolatilityPct:     al.Volatility * 100,
			FutureValue:       round2(expected),
			WorstCase:         round2(worst),
			BestCase:          round2(best),
			SharpeRatio:       round2(sharpe),
			LossProbability1Y: round2(lossProbability(al.ExpectedReturn, al.Volatility)),
			AgeAppropriate:    ageAppropriate,
		})
	}

	highest := outcomes[0]
	bestRiskAdjusted := outcomes[0]
	mostConservative := outcomes[0]
	for _, o := range outcomes {
		if o.ExpectedReturnPct > highest.ExpectedReturnPct {
			highest = o
		}
		if o.SharpeRatio > bestRiskAdjusted.SharpeRatio {
			bestRiskAdjusted = o
		}
		if o.VolatilityPct < mostConservative.VolatilityPct {
			mostConservative = o
		}
	}

	var insights []string
	if yearsToRetirement > 20 {
		insights = append(insights, "Long time horizon allows for more aggressive allocation")
	} else if yearsToRetirement < 10 {
		insights = append(insights, "Approaching retirement suggests more conservative allocation")
	}
	for _, o := range outcomes {
		if o.SharpeRatio > 0.5 {
			insights = append(insights, fmt.Sprintf("%s offers good risk-adjusted returns", o.AllocationName))
		}
	}

	return &AllocationComparison{
		Allocations: outcomes,
		TimeHorizon: horizonYears,
		Recommendations: map[string]string{
			"highest_return":     highest.AllocationName,
			"best_risk_adjusted": bestRiskAdjusted.AllocationName,
			"most_conservative":  mostConservative.AllocationName,
		},
		Insights: insights,
	}
}

// lossProbability approximates P(return < 0) over one year with a normal
// CDF.
func lossProbability(expectedReturn, volatility float64) float64 {
	if volatility <= 0 {
		if expectedReturn >= 0 {
			return 0
		}
		return 100
	}
	z := -expectedReturn / volatility
	return normCDF(z) * 100
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// RetirementScenario is one candidate retirement plan.
type RetirementScenario struct {
	Name                string  `json:"name"`
	RetirementAge       int     `json:"retirement_age"`
	MonthlySavings      float64 `json:"monthly_savings"`
	LifestyleAdjustment float64 `json:"lifestyle_adjustment"`
	CoastAge            int     `json:"coast_age,omitempty"`
}

// RetirementOutcome projects one scenario.
type RetirementOutcome struct {
	ScenarioName       string  `json:"scenario_name"`
	RetirementAge      int     `json:"retirement_age"`
	YearsToRetirement  int     `json:"years_to_retirement"`
	MonthlySavings     float64 `json:"monthly_savings_required"`
	NestEggNeeded      float64 `json:"retirement_nest_egg_needed"`
	ProjectedSavings   float64 `json:"projected_savings_at_retirement"`
	SavingsGap         float64 `json:"savings_gap"`
	SuccessProbability float64 `json:"success_probability"`
	MonthlyFromSavings float64 `json:"monthly_income_from_savings"`
	SocialSecurity     float64 `json:"social_security_monthly"`
	LifestyleLevelPct  float64 `json:"lifestyle_level"`
	Feasibility        string  `json:"feasibility"`
}

// RetirementComparison compares retirement timing scenarios.
type RetirementComparison struct {
	Scenarios       []RetirementOutcome `json:"scenarios"`
	Recommendations map[string]string   `json:"recommendations"`
	Insights        []string            `json:"insights"`
}

// DefaultRetirementScenarios builds early/standard/late/coast presets from
// the profile's income.
func (a *Analyzer) DefaultRetirementScenarios() []RetirementScenario {
	return []RetirementScenario{
		{Name: "Early Retirement (55)", RetirementAge: 55, MonthlySavings: a.profile.MonthlyIncome * 0.35, LifestyleAdjustment: 0.8},
		{Name: "Standard Retirement (65)", RetirementAge: 65, MonthlySavings: a.profile.MonthlyIncome * 0.20, LifestyleAdjustment: 0.9},
		{Name: "Late Retirement (70)", RetirementAge: 70, MonthlySavings: a.profile.MonthlyIncome * 0.15, LifestyleAdjustment: 1.0},
		{Name: "Coast FIRE", RetirementAge: 65, MonthlySavings: a.profile.MonthlyIncome * 0.25, LifestyleAdjustment: 0.7, CoastAge: 45},
	}
}

// CompareRetirementScenarios projects each scenario with the 25x rule and a
// deterministic 7% growth assumption.
func (a *Analyzer) CompareRetirementScenarios(scenarios []RetirementScenario) *RetirementComparison {
	if scenarios == nil {
		scenarios = a.DefaultRetirementScenarios()
	}

	const lifeExpectancy = 85
	const growthRate = 0.07

	outcomes := make([]RetirementOutcome, 0, len(scenarios))
	for _, s := range scenarios {
		yearsToRetirement := s.RetirementAge - a.profile.Age
		if yearsToRetirement < 0 {
			yearsToRetirement = 0
		}
		yearsInRetirement := lifeExpectancy - s.RetirementAge
		annualExpenses := a.profile.MonthlyExpenses * 12 * s.LifestyleAdjustment
		needed := annualExpenses * 25

		var projected float64
		if s.CoastAge > 0 {
			coastYears := s.CoastAge - a.profile.Age
			if coastYears < 0 {
				coastYears = 0
			}
			coastValue := futureValueWithContributions(a.profile.CurrentSavings, s.MonthlySavings, growthRate, coastYears)
			remaining := s.RetirementAge - s.CoastAge
			if remaining < 0 {
				remaining = 0
			}
			projected = coastValue * math.Pow(1+growthRate, float64(remaining))
		} else {
			projected = futureValueWithContributions(a.profile.CurrentSavings, s.MonthlySavings, growthRate, yearsToRetirement)
		}

		gap := needed - projected
		if gap < 0 {
			gap = 0
		}
		success := 100.0
		if needed > 0 {
			success = math.Min(100, projected/needed*100)
		}

		sustainable := 0.0
		if yearsInRetirement > 0 {
			sustainable = projected / float64(yearsInRetirement) / 12
		}

		socialSecurity := 0.0
		switch {
		case s.RetirementAge >= 67:
			socialSecurity = 1500
		case s.RetirementAge >= 62:
			socialSecurity = 1200
		}

		feasibility := "Low"
		switch {
		case success > 80:
			feasibility = "High"
		case success > 50:
			feasibility = "Medium"
		}

		outcomes = append(outcomes, RetirementOutcome{
			ScenarioName:       s.Name,
			RetirementAge:      s.RetirementAge,
			YearsToRetirement:  yearsToRetirement,
			MonthlySavings:     round2(s.MonthlySavings),
			NestEggNeeded:      round2(needed),
			ProjectedSavings:   round2(projected),
			SavingsGap:         round2(gap),
			SuccessProbability: round2(success),
			MonthlyFromSavings: round2(sustainable),
			SocialSecurity:     socialSecurity,
			LifestyleLevelPct:  s.LifestyleAdjustment * 100,
			Feasibility:        feasibility,
		})
	}

	mostAchievable := outcomes[0]
	earliest := outcomes[0]
	bestLifestyle := outcomes[0]
	for _, o := range outcomes {
		if o.SuccessProbability > mostAchievable.SuccessProbability {
			mostAchievable = o
		}
		if o.RetirementAge < earliest.RetirementAge {
			earliest = o
		}
		if o.LifestyleLevelPct > bestLifestyle.LifestyleLevelPct {
			bestLifestyle = o
		}
	}

	var insights []string
	for _, o := range outcomes {
		if o.RetirementAge <= 55 {
			if o.SuccessProbability > 70 {
				insights = append(insights, "Early retirement appears achievable with current trajectory")
			} else if o.YearsToRetirement > 0 {
				gapMonthly := o.SavingsGap / float64(o.YearsToRetirement*12)
				insights = append(insights, fmt.Sprintf("Early retirement needs %s/month additional savings", FormatCurrency(gapMonthly)))
			}
		}
		if o.ScenarioName == "Coast FIRE" && o.SuccessProbability > 80 {
			insights = append(insights, "Coast FIRE strategy viable - could stop contributing mid-career")
		}
	}

	return &RetirementComparison{
		Scenarios: outcomes,
		Recommendations: map[string]string{
			"most_achievable":     mostAchievable.ScenarioName,
			"earliest_retirement": earliest.ScenarioName,
			"best_lifestyle":      bestLifestyle.ScenarioName,
		},
		Insights: insights,
	}
}

// futureValueWithContributions grows a present value with monthly deposits.
func futureValueWithContributions(presentValue, monthlyPayment, annualRate float64, years int) float64 {
	months := years * 12
	r := annualRate / 12
	if r == 0 {
		return presentValue + monthlyPayment*float64(months)
	}
	fv := presentValue * math.Pow(1+r, float64(months))
	fv += monthlyPayment * ((math.Pow(1+r, float64(months)) - 1) / r)
	return fv
}
