// Package intents defines the closed set of question intents and the static
// policy (IntentContract) attached to each one. The contract is the single
// source of truth for which tables a generated query may touch and whether an
// intent is answered conversationally or analytically.
package intents

import "strings"

// Intent is a tag from a closed set, derived once per question.
type Intent string

const (
	TransactionSearch  Intent = "transaction_search"
	SpendByTime        Intent = "spend_by_time"
	TopMerchants       Intent = "top_merchants"
	CategoryBreakdown  Intent = "category_breakdown"
	BalanceLookup      Intent = "balance_lookup"
	NetWorth           Intent = "net_worth"
	InvestmentAnalysis Intent = "investment_analysis"
	RetirementPlanning Intent = "retirement_planning"
	TaxPlanning        Intent = "tax_planning"
	DebtAnalysis       Intent = "debt_analysis"
	GoalPlanning       Intent = "goal_planning"
	SavingsAnalysis    Intent = "savings_analysis"
	BudgetAnalysis     Intent = "budget_analysis"
	Greeting           Intent = "greeting"
	CasualConversation Intent = "casual_conversation"
	Unknown            Intent = "unknown"
)

// All lists every intent in declaration order.
var All = []Intent{
	TransactionSearch, SpendByTime, TopMerchants, CategoryBreakdown,
	BalanceLookup, NetWorth, InvestmentAnalysis, RetirementPlanning,
	TaxPlanning, DebtAnalysis, GoalPlanning, SavingsAnalysis,
	BudgetAnalysis, Greeting, CasualConversation, Unknown,
}

// Valid reports whether s names a known intent.
func Valid(s string) bool {
	for _, it := range All {
		if string(it) == s {
			return true
		}
	}
	return false
}

// Parse maps a string to an Intent, falling back to Unknown.
func Parse(s string) Intent {
	s = strings.TrimSpace(strings.ToLower(s))
	if Valid(s) {
		return Intent(s)
	}
	return Unknown
}

// QueryStyle reports whether the intent reads transaction data and therefore
// carries the exclude-pending and spend-amount invariants.
func (i Intent) QueryStyle() bool {
	switch i {
	case TransactionSearch, SpendByTime, TopMerchants, CategoryBreakdown:
		return true
	}
	return false
}

// Lightweight reports whether the profile pack for this intent may skip
// holdings, goals, manual assets and the expensive volatility metrics.
func (i Intent) Lightweight() bool {
	switch i {
	case BalanceLookup, TransactionSearch, SpendByTime, CategoryBreakdown,
		TopMerchants, Greeting, CasualConversation:
		return true
	}
	return false
}

// TimeRange holds symbolic or literal bounds for a template query. Symbolic
// values are resolved by the SQL agent against the request clock.
type TimeRange struct {
	Start string
	End   string
}

// Contract is the static per-intent policy.
type Contract struct {
	AllowedTables  []string
	AllowedColumns []string
	TemplateSQL    string
	TimeRange      *TimeRange
	Notes          string
	Conversational bool
	SkipSQL        bool
}

var transactionColumns = []string{
	"id", "date", "posted_datetime", "merchant_name", "name", "amount",
	"category", "pfc_primary", "payment_channel", "pending",
}

var contracts = map[Intent]Contract{
	TransactionSearch: {
		AllowedTables:  []string{"transactions"},
		AllowedColumns: transactionColumns,
		Notes:          "built deterministically by the search builder; no LLM call",
	},
	SpendByTime: {
		AllowedTables:  []string{"transactions"},
		AllowedColumns: transactionColumns,
		TemplateSQL: `SELECT SUM(ABS(amount)) AS total_spent
FROM transactions
WHERE user_id = :user_id
  AND amount < 0
  AND pending = false
  AND COALESCE(posted_datetime, date::timestamptz) >= :start_date
  AND COALESCE(posted_datetime, date::timestamptz) < :end_date`,
		TimeRange: &TimeRange{Start: "window start", End: "window end"},
		Notes:     "spending totals over a time window; expenses are negative",
	},
	TopMerchants: {
		AllowedTables:  []string{"transactions"},
		AllowedColumns: transactionColumns,
		TemplateSQL: `SELECT COALESCE(merchant_name, name) AS merchant, SUM(ABS(amount)) AS spent, COUNT(*) AS transactions
FROM transactions
WHERE user_id = :user_id
  AND amount < 0
  AND pending = false
  AND COALESCE(posted_datetime, date::timestamptz) >= :start_date
GROUP BY 1
ORDER BY spent DESC`,
		TimeRange: &TimeRange{Start: "window start"},
		Notes:     "ranked list of merchants by spend",
	},
	CategoryBreakdown: {
		AllowedTables:  []string{"transactions"},
		AllowedColumns: transactionColumns,
		TemplateSQL: `SELECT category, SUM(ABS(amount)) AS spent
FROM transactions
WHERE user_id = :user_id
  AND amount < 0
  AND pending = false
  AND COALESCE(posted_datetime, date::timestamptz) >= :start_date
GROUP BY category
ORDER BY spent DESC`,
		TimeRange: &TimeRange{Start: "window start"},
		Notes:     "spending grouped by category",
	},
	BalanceLookup: {
		AllowedTables:  []string{"accounts"},
		AllowedColumns: []string{"id", "name", "type", "subtype", "balance", "available_balance", "currency", "is_active"},
		TemplateSQL: `SELECT SUM(balance) AS total_balance
FROM accounts
WHERE user_id = :user_id AND is_active = true`,
		Notes: "balance questions always read accounts, never transactions",
	},
	NetWorth: {
		AllowedTables:  []string{"accounts", "manual_assets", "manual_liabilities"},
		AllowedColumns: []string{"balance", "value", "name", "type", "is_active"},
		TemplateSQL: `SELECT
  (SELECT COALESCE(SUM(balance), 0) FROM accounts WHERE user_id = :user_id AND is_active = true) +
  (SELECT COALESCE(SUM(value), 0) FROM manual_assets WHERE user_id = :user_id) -
  (SELECT COALESCE(SUM(balance), 0) FROM manual_liabilities WHERE user_id = :user_id) AS net_worth`,
		Notes: "assets minus liabilities",
	},
	InvestmentAnalysis: {
		AllowedTables:  []string{"holdings_current", "securities", "accounts"},
		AllowedColumns: []string{"security_id", "quantity", "value", "cost_basis", "ticker", "name"},
		Notes:          "portfolio questions; modeling does the heavy lifting",
	},
	RetirementPlanning: {SkipSQL: true, Notes: "answered from the profile pack and simulation"},
	TaxPlanning:        {SkipSQL: true, Notes: "answered from the tax profile"},
	DebtAnalysis:       {SkipSQL: true, Notes: "answered from manual liabilities in the profile pack"},
	GoalPlanning:       {SkipSQL: true, Notes: "answered from goals in the profile pack"},
	SavingsAnalysis:    {SkipSQL: true, Notes: "answered from derived cashflow metrics"},
	BudgetAnalysis:     {SkipSQL: true, Notes: "answered from budgets in the profile pack"},
	Greeting:           {Conversational: true, SkipSQL: true},
	CasualConversation: {Conversational: true, SkipSQL: true},
	Unknown:            {SkipSQL: true},
}

// ContractFor returns the static contract for an intent. Unknown intents get
// the Unknown contract.
func ContractFor(i Intent) Contract {
	if c, ok := contracts[i]; ok {
		return c
	}
	return contracts[Unknown]
}

// keywordRules drive the deterministic fallback classifier. First hit wins,
// so more specific phrasings sit near the top.
var keywordRules = []struct {
	intent   Intent
	keywords []string
}{
	{RetirementPlanning, []string{"retire", "retirement", "401k", "ira"}},
	{TaxPlanning, []string{"tax", "taxes", "deduction", "withholding"}},
	{DebtAnalysis, []string{"debt", "loan", "payoff", "avalanche", "snowball", "credit card"}},
	{GoalPlanning, []string{"goal", "college", "529", "down payment"}},
	{InvestmentAnalysis, []string{"invest", "portfolio", "stock", "bond", "allocation", "holdings"}},
	{BudgetAnalysis, []string{"budget"}},
	{NetWorth, []string{"net worth", "assets minus"}},
	{SavingsAnalysis, []string{"savings rate", "emergency fund", "how much can i save"}},
	{BalanceLookup, []string{"balance", "how much money do i have", "how much do i have", "available money"}},
	{TopMerchants, []string{"top merchants", "where have i been spending", "top places", "most money at"}},
	{CategoryBreakdown, []string{"breakdown", "by category"}},
	{SpendByTime, []string{"how much did i spend", "how much have i spent", "spending last", "spend last", "spent last", "spending this", "total spent"}},
	{TransactionSearch, []string{"transactions", "show me", "purchases at", "spending at", "spent at", "been spending at", "charges"}},
}

var greetingPhrases = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"}
var casualPhrases = []string{"how are you", "what's up", "whats up", "how's it going", "hows it going", "thank you", "thanks"}

// Classify is the deterministic fallback intent router, used only when the
// planner's LLM output is unavailable. A greeting that carries a financial
// clause routes analytical because the keyword rules run first.
func Classify(question string) Intent {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return Unknown
	}

	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.intent
			}
		}
	}

	for _, p := range casualPhrases {
		if strings.Contains(q, p) {
			return CasualConversation
		}
	}
	for _, p := range greetingPhrases {
		if q == p || strings.HasPrefix(q, p+" ") || strings.HasPrefix(q, p+",") || strings.HasPrefix(q, p+"!") {
			return Greeting
		}
	}

	return Unknown
}
