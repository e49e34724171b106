// Package model holds the shared request, plan and response shapes exchanged
// between the planner, SQL agent, modeling engine and orchestrator. Nothing
// here performs I/O; raw LLM dictionaries are decoded into these types at the
// component boundary and never leak past it.
package model

import (
	"time"

	"github.com/finsightai/finsight/pkg/intents"
)

// Invariant tags attached to a plan and enforced by the invariant checker.
const (
	InvExcludePending     = "exclude-pending"
	InvSpendAmountLtZero  = "spend-amount-lt-0"
	InvMustFilterMerchant = "must-filter-merchant"
)

// DateRange is an extracted date window. Default holds a symbolic window
// such as "90d" when the question gave no explicit bounds.
type DateRange struct {
	From    string `json:"from,omitempty" mapstructure:"from"`
	To      string `json:"to,omitempty" mapstructure:"to"`
	Default string `json:"default,omitempty" mapstructure:"default"`
}

// AmountFilter is a monetary constraint extracted from the question.
// Op is one of gt, lt, eq, between.
type AmountFilter struct {
	Op    string  `json:"op" mapstructure:"op"`
	Value float64 `json:"value,omitempty" mapstructure:"value"`
	Min   float64 `json:"min,omitempty" mapstructure:"min"`
	Max   float64 `json:"max,omitempty" mapstructure:"max"`
}

// Entities are the pieces of the question the planner extracted.
type Entities struct {
	Merchants     []string       `json:"merchants" mapstructure:"merchants"`
	Categories    []string       `json:"categories" mapstructure:"categories"`
	AmountFilters []AmountFilter `json:"amount_filters" mapstructure:"amount_filters"`
	DateRange     *DateRange     `json:"date_range,omitempty" mapstructure:"date_range"`
}

// ToolCall names a downstream tool the planner wants invoked.
type ToolCall struct {
	Tool string         `json:"tool" mapstructure:"tool"`
	Args map[string]any `json:"args,omitempty" mapstructure:"args"`
}

// Plan is the planner's output: produced once, revised at most once with
// feedback from the invariant checker. Confidence is advisory and never
// gates execution.
type Plan struct {
	Intent        intents.Intent `json:"intent"`
	Entities      Entities       `json:"entities"`
	ToolPlan      []ToolCall     `json:"tool_plan,omitempty"`
	Invariants    []string       `json:"invariants"`
	Confidence    float64        `json:"confidence"`
	AskClarifying bool           `json:"ask_clarifying"`
	Feedback      string         `json:"feedback,omitempty"`
}

// HasInvariant reports whether the plan carries the given invariant tag.
func (p *Plan) HasInvariant(tag string) bool {
	for _, inv := range p.Invariants {
		if inv == tag {
			return true
		}
	}
	return false
}

// AddInvariant appends a tag if not already present.
func (p *Plan) AddInvariant(tag string) {
	if !p.HasInvariant(tag) {
		p.Invariants = append(p.Invariants, tag)
	}
}

// SQLConstraints bound what the SQL agent may produce.
type SQLConstraints struct {
	MaxRows           int  `json:"max_rows"`
	ExcludePending    bool `json:"exclude_pending"`
	PreferMonthlyBins bool `json:"prefer_monthly_bins"`
}

// SQLRequest asks the SQL agent for a parameterized query.
type SQLRequest struct {
	Question    string         `json:"question"`
	SchemaCard  string         `json:"schema_card"`
	UserID      string         `json:"user_id"`
	Constraints SQLConstraints `json:"constraints"`
	Plan        *Plan          `json:"-"`
}

// SQLResponse is the SQL agent's output. Params must contain user_id.
type SQLResponse struct {
	SQL           string         `json:"sql" mapstructure:"sql"`
	Params        map[string]any `json:"params" mapstructure:"params"`
	Justification string         `json:"justification" mapstructure:"justification"`
	Intent        intents.Intent `json:"intent"`
	TablesUsed    []string       `json:"tables_used"`
}

// ExecutionResult is the serialized result set handed to modeling. Dates are
// ISO strings, decimals are floats, nulls are preserved.
type ExecutionResult struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	RowCount        int      `json:"row_count"`
	ExecutionTimeMS float64  `json:"execution_time_ms"`
}

// Computation records one named calculation with its formula and inputs, so
// every figure in the answer is auditable.
type Computation struct {
	Name    string         `json:"name"`
	Formula string         `json:"formula"`
	Inputs  map[string]any `json:"inputs"`
	Result  any            `json:"result"`
}

// UIBlock is a renderable block attached to an answer.
// Type is one of: table, text, chart, kpi_card, equation, pie_chart,
// bar_chart, line_chart, timeline, alert.
type UIBlock struct {
	Type     string         `json:"type" mapstructure:"type"`
	Title    string         `json:"title" mapstructure:"title"`
	Data     any            `json:"data" mapstructure:"data"`
	Metadata map[string]any `json:"metadata,omitempty" mapstructure:"metadata"`
}

// DataRequest names a slice of data the modeling engine wanted but did not
// have.
type DataRequest struct {
	Reason       string `json:"reason" mapstructure:"reason"`
	DesiredSlice string `json:"desired_slice" mapstructure:"desired_slice"`
}

// ModelRequest is the modeling engine's input. The profile pack is passed by
// reference but is read-only: the engine must never mutate it.
type ModelRequest struct {
	Question  string           `json:"question"`
	Profile   *ProfilePack     `json:"profile_pack"`
	SQLPlan   *SQLResponse     `json:"sql_plan,omitempty"`
	SQLResult *ExecutionResult `json:"sql_result,omitempty"`
	Intent    intents.Intent   `json:"intent"`
}

// ModelResponse is the structured answer. AnswerMarkdown is sanitized before
// return.
type ModelResponse struct {
	AnswerMarkdown   string        `json:"answer_markdown" mapstructure:"answer_markdown"`
	Assumptions      []string      `json:"assumptions" mapstructure:"assumptions"`
	Computations     []Computation `json:"computations" mapstructure:"computations"`
	UIBlocks         []UIBlock     `json:"ui_blocks" mapstructure:"ui_blocks"`
	NextDataRequests []DataRequest `json:"next_data_requests" mapstructure:"next_data_requests"`
	Conversational   bool          `json:"conversational,omitempty"`
}

// LogEntry is one operator-facing line in the response logs array.
type LogEntry struct {
	Agent           string  `json:"agent"`
	Error           string  `json:"error,omitempty"`
	RowCount        int     `json:"row_count,omitempty"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`
}

// ProfileSummary is the compact pack digest attached to every response.
type ProfileSummary struct {
	UserID        string  `json:"user_id"`
	AccountsCount int     `json:"accounts_count"`
	GoalsCount    int     `json:"goals_count"`
	NetWorth      float64 `json:"net_worth"`
	GeneratedAt   string  `json:"generated_at"`
}

// Result is the orchestrator's terminal shape: either Response is set, or
// Error carries the user-visible message and ErrorKind the structured cause.
type Result struct {
	Response        *ModelResponse  `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	ErrorKind       Kind            `json:"error_kind,omitempty"`
	ProfileSummary  *ProfileSummary `json:"profile_pack_summary,omitempty"`
	ExecutionTimeMS float64         `json:"execution_time_ms"`
	Logs            []LogEntry      `json:"logs"`
}

// MemoryRecord is one stored conversation turn.
type MemoryRecord struct {
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id"`
	TurnIndex       int            `json:"turn_index"`
	Role            string         `json:"role"`
	Content         string         `json:"content"`
	Intent          intents.Intent `json:"intent,omitempty"`
	Entities        *Entities      `json:"entities,omitempty"`
	SQLExecuted     string         `json:"sql_executed,omitempty"`
	ResultSummary   string         `json:"result_summary,omitempty"`
	ExecutionTimeMS float64        `json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
