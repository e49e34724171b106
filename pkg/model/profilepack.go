package model

// Collection caps for the profile pack. A built pack never exceeds them.
const (
	CapAccounts    = 200
	CapAssets      = 100
	CapLiabilities = 100
	CapGoals       = 50
	CapHoldings    = 500
	CapRecentTxns  = 10
)

// UserCore is the demographic and tax slice of the pack.
type UserCore struct {
	UserID          string  `json:"user_id"`
	FirstName       string  `json:"first_name,omitempty"`
	LastName        string  `json:"last_name,omitempty"`
	Age             int     `json:"age,omitempty"`
	LifeStage       string  `json:"life_stage,omitempty"`
	MaritalStatus   string  `json:"marital_status,omitempty"`
	Dependents      int     `json:"dependents,omitempty"`
	FilingStatus    string  `json:"filing_status,omitempty"`
	FederalRate     float64 `json:"federal_rate,omitempty"`
	StateRate       float64 `json:"state_rate,omitempty"`
	RiskTolerance   string  `json:"risk_tolerance,omitempty"`
	HouseholdIncome float64 `json:"household_income,omitempty"`
}

// Account is one linked account.
type Account struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Subtype          string  `json:"subtype,omitempty"`
	Balance          float64 `json:"balance"`
	AvailableBalance float64 `json:"available_balance,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	IsActive         bool    `json:"is_active"`
}

// ManualAsset is a user-entered asset.
type ManualAsset struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	AssetClass string  `json:"asset_class,omitempty"`
	Value      float64 `json:"value"`
}

// ManualLiability is a user-entered debt.
type ManualLiability struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	LiabilityType  string  `json:"liability_type,omitempty"`
	Balance        float64 `json:"balance"`
	InterestRate   float64 `json:"interest_rate,omitempty"`
	MinimumPayment float64 `json:"minimum_payment,omitempty"`
}

// Goal is one savings goal.
type Goal struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	TargetAmount  float64 `json:"target_amount"`
	CurrentAmount float64 `json:"current_amount"`
	TargetDate    string  `json:"target_date,omitempty"`
	IsActive      bool    `json:"is_active"`
}

// Holding is one position.
type Holding struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"account_id,omitempty"`
	SecurityID string  `json:"security_id,omitempty"`
	Ticker     string  `json:"ticker,omitempty"`
	Quantity   float64 `json:"quantity"`
	Value      float64 `json:"value"`
	CostBasis  float64 `json:"cost_basis,omitempty"`
}

// Budget is one budget with its category lines.
type Budget struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Amount     float64          `json:"amount"`
	Period     string           `json:"period,omitempty"`
	Categories []BudgetCategory `json:"categories,omitempty"`
}

// BudgetCategory is one budget line.
type BudgetCategory struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// RecurringIncome is one income stream.
type RecurringIncome struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	GrossMonthly float64 `json:"gross_monthly"`
	Frequency    string  `json:"frequency,omitempty"`
	NextDate     string  `json:"next_date,omitempty"`
}

// RecentTransaction is one row of the recent-transactions sample.
type RecentTransaction struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	MerchantName string  `json:"merchant_name,omitempty"`
	Name         string  `json:"name,omitempty"`
	Amount       float64 `json:"amount"`
	Category     string  `json:"category,omitempty"`
	Pending      bool    `json:"pending"`
}

// DerivedMetrics are the computed cashflow and balance-sheet figures.
// Savings rates are percentages; reserve figures are months.
type DerivedMetrics struct {
	NetWorth             float64 `json:"net_worth"`
	TotalAssets          float64 `json:"total_assets"`
	TotalLiabilities     float64 `json:"total_liabilities"`
	MonthlyIncomeAvg     float64 `json:"monthly_income_avg"`
	MonthlyExpensesAvg   float64 `json:"monthly_expenses_avg"`
	SavingsRate3M        float64 `json:"savings_rate_3m"`
	SavingsRate6M        float64 `json:"savings_rate_6m"`
	SavingsRate12M       float64 `json:"savings_rate_12m"`
	LiquidReservesMonths float64 `json:"liquid_reserves_months"`
	DebtToIncome         float64 `json:"debt_to_income"`
	IncomeVolatility     float64 `json:"income_volatility"`
	SpendingVolatility   float64 `json:"spending_volatility"`
}

// ProfilePack is the bounded, cached, read-only snapshot of one user's
// finances. Every child row belongs to the owning user; totals are
// recomputed at build time and never persisted.
type ProfilePack struct {
	UserCore          UserCore            `json:"user_core"`
	Accounts          []Account           `json:"accounts"`
	ManualAssets      []ManualAsset       `json:"manual_assets"`
	ManualLiabilities []ManualLiability   `json:"manual_liabilities"`
	Goals             []Goal              `json:"goals"`
	Holdings          []Holding           `json:"holdings"`
	Budgets           []Budget            `json:"budgets"`
	RecurringIncome   []RecurringIncome   `json:"recurring_income"`
	RecentTxns        []RecentTransaction `json:"recent_transactions"`
	DerivedMetrics    DerivedMetrics      `json:"derived_metrics"`
	GeneratedAt       string              `json:"generated_at"`
	Lightweight       bool                `json:"lightweight,omitempty"`
}

// Summary builds the compact digest attached to responses.
func (p *ProfilePack) Summary() *ProfileSummary {
	return &ProfileSummary{
		UserID:        p.UserCore.UserID,
		AccountsCount: len(p.Accounts),
		GoalsCount:    len(p.Goals),
		NetWorth:      p.DerivedMetrics.NetWorth,
		GeneratedAt:   p.GeneratedAt,
	}
}
