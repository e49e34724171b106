package modeling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/llms"
	"github.com/finsightai/finsight/pkg/model"
	"github.com/finsightai/finsight/pkg/montecarlo"
)

const answerSystemPrompt = `You are a personal financial advisor. You receive the user's question,
a snapshot of their finances, query results from their own data, and a set of
completed calculations.

Write a clear, specific answer grounded ONLY in the data provided. Use real
figures with dollar signs and thousands separators. Never invent numbers.

Return a JSON object:
{"answer_markdown": "...", "assumptions": ["..."], "ui_blocks": [],
"next_data_requests": []}

ui_blocks entries have shape {"type": "table|text|kpi_card|bar_chart|...",
"title": "...", "data": {...}}. Leave ui_blocks empty unless a table or
chart genuinely helps.`

// Agent is the modeling engine's front door: it routes calculations, runs
// them, and asks the LLM to narrate the result.
type Agent struct {
	llm llms.Provider
	mc  *montecarlo.Engine
}

// NewAgent builds a modeling agent around a seeded Monte Carlo engine.
func NewAgent(llm llms.Provider, mc *montecarlo.Engine) *Agent {
	return &Agent{llm: llm, mc: mc}
}

type llmAnswer struct {
	AnswerMarkdown   string              `json:"answer_markdown" mapstructure:"answer_markdown"`
	Assumptions      []string            `json:"assumptions" mapstructure:"assumptions"`
	UIBlocks         []model.UIBlock     `json:"ui_blocks" mapstructure:"ui_blocks"`
	NextDataRequests []model.DataRequest `json:"next_data_requests" mapstructure:"next_data_requests"`
}

// AnalyzeData produces the structured answer for a request. The profile pack
// is read-only; calculations are deterministic; only the narrative comes
// from the LLM.
func (a *Agent) AnalyzeData(ctx context.Context, req *model.ModelRequest) (*model.ModelResponse, *model.Error) {
	if req == nil || req.Profile == nil {
		return nil, model.NewError(model.KindInputInvalid, "model request requires a profile pack")
	}

	facts := factsFrom(req.Profile)
	calcs := RouteCalculations(req.Question, facts, req.Intent)
	slog.Info("routed calculations", "intent", req.Intent, "calculations", calcs)

	computations, assumptions, blocks := a.runCalculations(req, calcs)

	resp, err := a.llm.Generate(ctx, &llms.Request{
		System:      answerSystemPrompt,
		User:        buildAnswerPrompt(req, computations),
		Temperature: 0.2,
	})
	if err != nil {
		return nil, model.WrapError(model.KindModelingFailed, err, "answer generation failed")
	}

	answer := decodeAnswer(resp.Text)
	answer.AnswerMarkdown = NormalizeAnswer(answer.AnswerMarkdown)

	out := &model.ModelResponse{
		AnswerMarkdown:   answer.AnswerMarkdown,
		Assumptions:      append(assumptions, answer.Assumptions...),
		Computations:     computations,
		UIBlocks:         append(blocks, answer.UIBlocks...),
		NextDataRequests: answer.NextDataRequests,
	}
	if out.Assumptions == nil {
		out.Assumptions = []string{}
	}
	if out.UIBlocks == nil {
		out.UIBlocks = []model.UIBlock{}
	}
	if out.NextDataRequests == nil {
		out.NextDataRequests = []model.DataRequest{}
	}
	return out, nil
}

// decodeAnswer is tolerant of providers that ignore the JSON instruction:
// unparseable output is treated as plain markdown.
func decodeAnswer(text string) llmAnswer {
	raw, err := llms.ExtractJSON(text)
	if err != nil {
		return llmAnswer{AnswerMarkdown: strings.TrimSpace(text)}
	}
	var out llmAnswer
	if err := llms.Decode(raw, &out); err != nil || out.AnswerMarkdown == "" {
		return llmAnswer{AnswerMarkdown: strings.TrimSpace(text)}
	}
	return out
}

func factsFrom(p *model.ProfilePack) ProfileFacts {
	return ProfileFacts{
		Age:            p.UserCore.Age,
		LifeStage:      p.UserCore.LifeStage,
		Dependents:     p.UserCore.Dependents,
		MaritalStatus:  p.UserCore.MaritalStatus,
		HasLiabilities: len(p.ManualLiabilities) > 0,
		HasHoldings:    len(p.Holdings) > 0,
		HasBudgets:     len(p.Budgets) > 0,
		HasTaxRates:    p.UserCore.FederalRate > 0 || p.UserCore.StateRate > 0,
		RiskTolerance:  p.UserCore.RiskTolerance,
	}
}

func (a *Agent) runCalculations(req *model.ModelRequest, calcs []string) ([]model.Computation, []string, []model.UIBlock) {
	p := req.Profile
	dm := p.DerivedMetrics

	var computations []model.Computation
	var assumptions []string
	var blocks []model.UIBlock
	ranDebtComparison := false

	addComputation := func(c model.Computation) {
		if GuardComputation(&c) {
			assumptions = append(assumptions, fmt.Sprintf("%s produced an out-of-range value and was suppressed", c.Name))
		}
		computations = append(computations, c)
	}

	for _, calc := range calcs {
		switch calc {
		case CalcBasicMetrics:
			computations = append(computations, model.Computation{
				Name:    "basic_metrics",
				Formula: "net worth = assets − liabilities; savings rate = (income − expenses) / income",
				Inputs: map[string]any{
					"total_assets":      dm.TotalAssets,
					"total_liabilities": dm.TotalLiabilities,
				},
				Result: map[string]any{
					"net_worth":              dm.NetWorth,
					"monthly_income_avg":     dm.MonthlyIncomeAvg,
					"monthly_expenses_avg":   dm.MonthlyExpensesAvg,
					"savings_rate_3m":        dm.SavingsRate3M,
					"liquid_reserves_months": dm.LiquidReservesMonths,
				},
			})

		case CalcAfterTaxIncome:
			gross := p.UserCore.HouseholdIncome
			if gross == 0 {
				gross = dm.MonthlyIncomeAvg * 12
				assumptions = append(assumptions, "annual gross income estimated from 3-month average")
			}
			addComputation(AfterTaxIncome(gross, p.UserCore.FederalRate, p.UserCore.StateRate))

		case CalcTrueSavingsCapacity:
			addComputation(TrueSavingsCapacity(dm.MonthlyIncomeAvg, expensesByCategory(p)))

		case CalcSpendingFlexibility:
			capacity := TrueSavingsCapacity(dm.MonthlyIncomeAvg, expensesByCategory(p))
			capacity.Name = "spending_flexibility"
			addComputation(capacity)

		case CalcDebtStrategies, CalcOptimalPayoff:
			if len(p.ManualLiabilities) == 0 || ranDebtComparison {
				continue
			}
			ranDebtComparison = true
			extra := dm.MonthlyIncomeAvg - dm.MonthlyExpensesAvg
			if extra < 0 {
				extra = 0
			}
			comparison := NewAnalyzer(a.baseProfile(p)).CompareDebtStrategies(debtsFrom(p), extra)
			addComputation(model.Computation{
				Name:    "debt_strategies",
				Formula: "month-by-month payoff with full payment roll-over",
				Inputs: map[string]any{
					"debts":         len(p.ManualLiabilities),
					"extra_payment": round2(extra),
				},
				Result: comparison,
			})

		case CalcRetirementRunway:
			annualExpenses := dm.MonthlyExpensesAvg * 12
			if annualExpenses <= 0 {
				continue
			}
			addComputation(RetirementTarget(annualExpenses, 0.04))
			assumptions = append(assumptions, "retirement target uses a 4% safe withdrawal rate")

			// Full adequacy simulation when we know the user's age and the
			// question is retirement-shaped
			if req.Intent == intents.RetirementPlanning && p.UserCore.Age > 0 && p.UserCore.Age < 65 {
				monthly := dm.MonthlyIncomeAvg - dm.MonthlyExpensesAvg
				if monthly < 0 {
					monthly = 0
				}
				adequacy, err := a.mc.SimulateRetirementAdequacy(montecarlo.RetirementParams{
					CurrentAge:               p.UserCore.Age,
					RetirementAge:            65,
					LifeExpectancy:           85,
					CurrentSavings:           dm.TotalAssets - dm.TotalLiabilities,
					MonthlyContribution:      monthly,
					AnnualExpensesRetirement: annualExpenses,
				})
				if err == nil {
					addComputation(model.Computation{
						Name:    "retirement_adequacy",
						Formula: "Monte Carlo accumulation/decumulation with inflation-adjusted withdrawals",
						Inputs: map[string]any{
							"current_age":          p.UserCore.Age,
							"retirement_age":       65,
							"monthly_contribution": round2(monthly),
						},
						Result: adequacy,
					})
					assumptions = append(assumptions,
						"retirement simulation assumes retirement at 65 and life expectancy of 85")
				}
			}

		case CalcPortfolioProjection:
			initial := holdingsValue(p)
			if initial == 0 {
				initial = dm.TotalAssets - dm.TotalLiabilities
			}
			if initial <= 0 {
				continue
			}
			expected, vol := returnAssumptions(p.UserCore.RiskTolerance)
			monthly := dm.MonthlyIncomeAvg - dm.MonthlyExpensesAvg
			if monthly < 0 {
				monthly = 0
			}
			result, err := a.mc.SimulatePortfolio(montecarlo.PortfolioParams{
				InitialValue:       initial,
				Years:              10,
				ExpectedReturn:     expected,
				Volatility:         vol,
				AnnualContribution: monthly * 12,
			})
			if err != nil {
				continue
			}
			addComputation(model.Computation{
				Name:    "portfolio_projection",
				Formula: "Monte Carlo: v ← v·(1+N(r/12, σ/√12)) + monthly contribution",
				Inputs: map[string]any{
					"initial_value":   round2(initial),
					"years":           10,
					"expected_return": expected,
					"volatility":      vol,
				},
				Result: result,
			})
			blocks = append(blocks, model.UIBlock{
				Type:  "line_chart",
				Title: "Projected portfolio value (median path)",
				Data: map[string]any{
					"series": result.Paths.Median,
				},
				Metadata: map[string]any{"unit": "USD", "interval": "month"},
			})

		case CalcExpectedReturns:
			comparison := NewAnalyzer(a.baseProfile(p)).CompareInvestmentAllocations(nil, 20)
			addComputation(model.Computation{
				Name:    "expected_returns",
				Formula: "allocation comparison over 20 years with 2σ bounds",
				Inputs:  map[string]any{"current_savings": round2(dm.TotalAssets)},
				Result:  comparison,
			})

		case CalcCollegeSavings:
			addComputation(FutureValue(500, 0.06, 18))
			assumptions = append(assumptions, "college projection assumes $500/month at 6% for 18 years")

		case CalcSocialSecurity:
			addComputation(model.Computation{
				Name:    "social_security",
				Formula: "estimated monthly benefit by claiming age",
				Inputs:  map[string]any{"age": p.UserCore.Age},
				Result: map[string]any{
					"at_62": 1200.0,
					"at_67": 1500.0,
				},
			})
			assumptions = append(assumptions, "social security figures are rough national estimates, not SSA records")

		case CalcTaxEfficientWithdrawal:
			addComputation(model.Computation{
				Name:    "tax_efficient_withdrawal",
				Formula: "ordering: taxable → tax-deferred → Roth",
				Inputs:  map[string]any{"federal_rate": p.UserCore.FederalRate},
				Result: map[string]any{
					"order":     []string{"taxable brokerage", "traditional 401k/IRA", "Roth"},
					"rationale": "defers ordinary-income tax and preserves tax-free growth longest",
				},
			})

		case CalcQuarterlyTaxes:
			gross := p.UserCore.HouseholdIncome
			rate := p.UserCore.FederalRate + p.UserCore.StateRate
			addComputation(model.Computation{
				Name:    "quarterly_taxes",
				Formula: "quarterly = annual income × combined rate / 4",
				Inputs:  map[string]any{"gross": gross, "combined_rate": rate},
				Result:  Guard(round2(gross * rate / 4)),
			})

		case CalcSeasonalPatterns:
			addComputation(model.Computation{
				Name:    "seasonal_patterns",
				Formula: "spending volatility over trailing window",
				Inputs:  map[string]any{"window_months": 6},
				Result: map[string]any{
					"spending_volatility": dm.SpendingVolatility,
					"income_volatility":   dm.IncomeVolatility,
				},
			})

		case CalcFinancialScenario:
			allocation := map[string]float64{"stocks": 0.6, "bonds": 0.3, "cash": 0.1}
			value := holdingsValue(p)
			if value == 0 {
				value = dm.TotalAssets
			}
			if value <= 0 {
				continue
			}
			stress := montecarlo.StressTestPortfolio(value, allocation, nil)
			addComputation(model.Computation{
				Name:    "financial_scenario",
				Formula: "historical shock scenarios applied to current allocation",
				Inputs:  map[string]any{"portfolio_value": round2(value)},
				Result:  stress,
			})
			assumptions = append(assumptions, "stress test assumes a 60/30/10 stock/bond/cash allocation")
		}
	}

	// Intent-level extras that compare whole strategies rather than single
	// figures
	switch req.Intent {
	case intents.SavingsAnalysis:
		comparison := NewAnalyzer(a.baseProfile(p)).CompareSavingsStrategies(nil, 10)
		computations = append(computations, model.Computation{
			Name:    "savings_strategies",
			Formula: "monthly projection of conservative/moderate/aggressive/FIRE savings rates",
			Inputs:  map[string]any{"horizon_years": 10},
			Result:  comparison,
		})
	case intents.RetirementPlanning:
		comparison := NewAnalyzer(a.baseProfile(p)).CompareRetirementScenarios(nil)
		computations = append(computations, model.Computation{
			Name:    "retirement_scenarios",
			Formula: "25x rule projections for early/standard/late/coast retirement",
			Inputs:  map[string]any{"scenarios": len(comparison.Scenarios)},
			Result:  comparison,
		})
	case intents.GoalPlanning:
		if len(p.Goals) > 0 {
			goal := p.Goals[0]
			monthly := dm.MonthlyIncomeAvg - dm.MonthlyExpensesAvg
			if monthly < 0 {
				monthly = 0
			}
			result, err := a.mc.SimulateGoalAchievement(montecarlo.GoalParams{
				CurrentValue:        goal.CurrentAmount,
				TargetValue:         goal.TargetAmount,
				Years:               10,
				MonthlyContribution: monthly,
			})
			if err == nil {
				computations = append(computations, model.Computation{
					Name:    "goal_achievement",
					Formula: "Monte Carlo probability of reaching the goal with current surplus",
					Inputs: map[string]any{
						"goal":    goal.Name,
						"target":  goal.TargetAmount,
						"current": goal.CurrentAmount,
					},
					Result: result,
				})
			}
		}
	}

	// A result table helps whenever the query returned tabular data
	if req.SQLResult != nil && req.SQLResult.RowCount > 0 && len(req.SQLResult.Columns) > 1 {
		blocks = append(blocks, model.UIBlock{
			Type:  "table",
			Title: "Matching records",
			Data: map[string]any{
				"headers": req.SQLResult.Columns,
				"rows":    req.SQLResult.Rows,
			},
		})
	}

	return computations, assumptions, blocks
}

func (a *Agent) baseProfile(p *model.ProfilePack) BaseProfile {
	return BaseProfile{
		Age:             p.UserCore.Age,
		MonthlyIncome:   p.DerivedMetrics.MonthlyIncomeAvg,
		MonthlyExpenses: p.DerivedMetrics.MonthlyExpensesAvg,
		CurrentSavings:  p.DerivedMetrics.TotalAssets,
		CurrentDebt:     p.DerivedMetrics.TotalLiabilities,
	}
}

func debtsFrom(p *model.ProfilePack) []Debt {
	debts := make([]Debt, 0, len(p.ManualLiabilities))
	for _, l := range p.ManualLiabilities {
		minPayment := l.MinimumPayment
		if minPayment == 0 {
			// Without a stated minimum, assume 2% of balance
			minPayment = l.Balance * 0.02
		}
		debts = append(debts, Debt{
			Name:           l.Name,
			Balance:        l.Balance,
			Rate:           l.InterestRate,
			MinimumPayment: minPayment,
		})
	}
	return debts
}

func holdingsValue(p *model.ProfilePack) float64 {
	total := 0.0
	for _, h := range p.Holdings {
		total += h.Value
	}
	return total
}

// expensesByCategory prefers budget lines; without budgets the average
// expenses land in one discretionary bucket.
func expensesByCategory(p *model.ProfilePack) map[string]float64 {
	out := map[string]float64{}
	for _, b := range p.Budgets {
		for _, c := range b.Categories {
			out[c.Category] += c.Amount
		}
	}
	if len(out) == 0 && p.DerivedMetrics.MonthlyExpensesAvg > 0 {
		out["general"] = p.DerivedMetrics.MonthlyExpensesAvg
	}
	return out
}

// returnAssumptions maps risk tolerance to (expected return, volatility).
func returnAssumptions(riskTolerance string) (float64, float64) {
	switch strings.ToLower(riskTolerance) {
	case "conservative", "low":
		return 0.05, 0.08
	case "aggressive", "high":
		return 0.09, 0.18
	default:
		return 0.07, 0.15
	}
}

func buildAnswerPrompt(req *model.ModelRequest, computations []model.Computation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", req.Question)
	fmt.Fprintf(&sb, "Intent: %s\n\n", req.Intent)

	fmt.Fprintf(&sb, "Financial snapshot:\n%s\n\n", profileDigest(req.Profile))

	if req.SQLResult != nil && req.SQLResult.RowCount > 0 {
		data, _ := json.Marshal(req.SQLResult)
		digest := string(data)
		if len(digest) > 15000 {
			digest = digest[:15000] + "...(truncated)"
		}
		fmt.Fprintf(&sb, "Query result (%d rows):\n%s\n\n", req.SQLResult.RowCount, digest)
	} else {
		sb.WriteString("Query result: none (answer from the snapshot and calculations)\n\n")
	}

	if len(computations) > 0 {
		data, _ := json.Marshal(computations)
		digest := string(data)
		if len(digest) > 15000 {
			digest = digest[:15000] + "...(truncated)"
		}
		fmt.Fprintf(&sb, "Completed calculations:\n%s\n\n", digest)
	}

	sb.WriteString("Answer the question using only this data.")
	return sb.String()
}

func profileDigest(p *model.ProfilePack) string {
	dm := p.DerivedMetrics
	return fmt.Sprintf(
		"net worth %s; assets %s; liabilities %s; avg monthly income %s; avg monthly expenses %s; accounts %d; goals %d; holdings %d",
		FormatCurrency(dm.NetWorth), FormatCurrency(dm.TotalAssets), FormatCurrency(dm.TotalLiabilities),
		FormatCurrency(dm.MonthlyIncomeAvg), FormatCurrency(dm.MonthlyExpensesAvg),
		len(p.Accounts), len(p.Goals), len(p.Holdings))
}
