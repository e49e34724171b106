package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/pkg/config"
	"github.com/finsightai/finsight/pkg/llms"
	"github.com/finsightai/finsight/pkg/model"
	"github.com/finsightai/finsight/pkg/modeling"
	"github.com/finsightai/finsight/pkg/montecarlo"
	"github.com/finsightai/finsight/pkg/planner"
	"github.com/finsightai/finsight/pkg/profile"
	"github.com/finsightai/finsight/pkg/sqlagent"
)

const testUser = "4f9a0cf2-95ee-41f0-bc28-cdd0e2a184b3"

// scriptedLLM returns responses keyed by a substring of the prompt, falling
// back to a default.
type scriptedLLM struct {
	byPrompt map[string]string
	fallback string
}

func (f *scriptedLLM) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	for needle, text := range f.byPrompt {
		if strings.Contains(req.User, needle) || strings.Contains(req.System, needle) {
			return &llms.Response{Text: text}, nil
		}
	}
	return &llms.Response{Text: f.fallback}, nil
}

func (f *scriptedLLM) ModelName() string { return "scripted" }
func (f *scriptedLLM) Close() error      { return nil }

// recordingQuerier serves canned rows by query substring and records every
// statement it sees.
type recordingQuerier struct {
	mu      sync.Mutex
	queries []string
	results map[string][]map[string]any
}

func (r *recordingQuerier) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()

	for needle, rows := range r.results {
		if strings.Contains(query, needle) {
			return rows, nil
		}
	}
	return nil, nil
}

func (r *recordingQuerier) sawQueryContaining(needle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queries {
		if strings.Contains(q, needle) {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		MaxSQLRevisions:           1,
		MaxModelRevisions:         1,
		MaxSQLRows:                1000,
		DefaultMerchantWindowDays: 90,
		NumSimulations:            50,
	}
}

func newTestOrchestrator(plannerLLM, sqlLLM, modelingLLM llms.Provider, q *recordingQuerier) *Orchestrator {
	cfg := testConfig()
	pl := planner.New(plannerLLM, cfg.DefaultMerchantWindowDays)
	sa := sqlagent.New(sqlLLM, func() time.Time { return time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC) })
	ma := modeling.NewAgent(modelingLLM, montecarlo.New(cfg.NumSimulations, 42))
	pb := profile.New(q, time.Hour, nil)
	return New(cfg, pl, sa, ma, pb, q, Options{})
}

func baseResults() map[string][]map[string]any {
	return map[string][]map[string]any{
		"FROM users u": {{
			"id": testUser, "first_name": "Devin", "last_name": "T",
			"age": int64(35), "life_stage": "mid_career", "marital_status": "single",
			"dependents": int64(0), "household_income": "120000",
			"filing_status": "single", "federal_rate": "0.22", "state_rate": "0.05",
			"risk_tolerance": "moderate",
		}},
		"first_name FROM users": {{"first_name": "Devin"}},
		"FROM accounts": {
			{"id": "a1", "name": "Checking", "type": "depository", "subtype": "checking",
				"balance": "42000.10", "available_balance": "42000.10", "currency": "USD", "is_active": true},
			{"id": "a2", "name": "Savings", "type": "depository", "subtype": "savings",
				"balance": "20432.50", "available_balance": "20432.50", "currency": "USD", "is_active": true},
		},
		"date_trunc": {
			{"month": "2025-09-01", "income": "8000", "expenses": "5000"},
			{"month": "2025-08-01", "income": "8000", "expenses": "5200"},
			{"month": "2025-07-01", "income": "8000", "expenses": "4800"},
		},
	}
}

func TestProcess_ConversationalShortCircuit(t *testing.T) {
	plannerLLM := &scriptedLLM{fallback: `{"intent": "greeting", "entities": {}, "confidence": 0.99}`}
	q := &recordingQuerier{results: baseResults()}

	orch := newTestOrchestrator(plannerLLM, &scriptedLLM{}, &scriptedLLM{}, q)
	result := orch.Process(context.Background(), testUser, "hi", "s1")

	require.NotNil(t, result.Response)
	assert.True(t, result.Response.Conversational)
	assert.Contains(t, result.Response.AnswerMarkdown, "Devin")
	assert.Empty(t, result.Error)

	// Property: no SQL beyond the first-name lookup, and no profile pack
	assert.False(t, q.sawQueryContaining("FROM accounts"))
	assert.False(t, q.sawQueryContaining("FROM transactions"))
	assert.False(t, q.sawQueryContaining("date_trunc"))
}

func TestProcess_BalanceLookup(t *testing.T) {
	plannerLLM := &scriptedLLM{fallback: `{"intent": "balance_lookup", "entities": {}, "confidence": 0.95}`}
	modelingLLM := &scriptedLLM{fallback: `{"answer_markdown": "You have $62,432.60 across your active accounts.", "assumptions": [], "ui_blocks": []}`}

	results := baseResults()
	results["SUM(balance) AS total_balance"] = []map[string]any{{"total_balance": "62432.60"}}
	q := &recordingQuerier{results: results}

	orch := newTestOrchestrator(plannerLLM, &scriptedLLM{}, modelingLLM, q)
	result := orch.Process(context.Background(), testUser, "How much money do I have in all my accounts?", "s1")

	require.Empty(t, result.Error)
	require.NotNil(t, result.Response)

	assert.Contains(t, result.Response.AnswerMarkdown, "$62,432.60")
	assert.NotContains(t, result.Response.AnswerMarkdown, "-$119,213")

	// The executed query read accounts, never transactions
	assert.True(t, q.sawQueryContaining("SUM(balance) AS total_balance"))
	assert.False(t, q.sawQueryContaining("SUM(ABS(amount))"))

	require.NotNil(t, result.ProfileSummary)
	assert.Equal(t, 2, result.ProfileSummary.AccountsCount)
	assert.NotEmpty(t, result.Logs)
}

func TestProcess_UnsafeSQLNeverExecutes(t *testing.T) {
	plannerLLM := &scriptedLLM{fallback: `{"intent": "investment_analysis", "entities": {}, "confidence": 0.9}`}
	sqlLLM := &scriptedLLM{fallback: `{"sql": "SELECT * FROM holdings_current WHERE user_id = :user_id; DROP TABLE users", "params": {}, "justification": "x"}`}

	q := &recordingQuerier{results: baseResults()}
	orch := newTestOrchestrator(plannerLLM, sqlLLM, &scriptedLLM{}, q)

	result := orch.Process(context.Background(), testUser, "dump my holdings", "s1")

	require.NotEmpty(t, result.Error)
	assert.Equal(t, model.KindSQLUnsafe, result.ErrorKind)
	// The full profile pack reads holdings_current itself, so match the
	// rejected statement's own text
	assert.False(t, q.sawQueryContaining("SELECT * FROM holdings_current"), "rejected SQL must never reach the executor")
	// Never the raw SQL or a stack trace in the user-visible message
	assert.NotContains(t, result.Error, "DROP")
}

func TestProcess_SkipSQLIntentStillAnswers(t *testing.T) {
	plannerLLM := &scriptedLLM{fallback: `{"intent": "retirement_planning", "entities": {}, "confidence": 0.9}`}
	modelingLLM := &scriptedLLM{fallback: `{"answer_markdown": "Based on your savings you are on track.", "assumptions": []}`}

	q := &recordingQuerier{results: baseResults()}
	orch := newTestOrchestrator(plannerLLM, &scriptedLLM{}, modelingLLM, q)

	result := orch.Process(context.Background(), testUser, "am I on track for retirement?", "s1")

	require.Empty(t, result.Error)
	require.NotNil(t, result.Response)
	assert.NotEmpty(t, result.Response.Computations)
	assert.False(t, q.sawQueryContaining("SUM(ABS(amount))"))
}

func TestProcess_InvalidInput(t *testing.T) {
	q := &recordingQuerier{results: baseResults()}
	orch := newTestOrchestrator(&scriptedLLM{}, &scriptedLLM{}, &scriptedLLM{}, q)

	result := orch.Process(context.Background(), "not-a-uuid", "question", "")
	assert.Equal(t, model.KindInputInvalid, result.ErrorKind)

	result = orch.Process(context.Background(), testUser, "", "")
	assert.Equal(t, model.KindInputInvalid, result.ErrorKind)

	result = orch.Process(context.Background(), testUser, strings.Repeat("x", 1001), "")
	assert.Equal(t, model.KindInputInvalid, result.ErrorKind)
}

func TestProcess_AnswerSanitized(t *testing.T) {
	plannerLLM := &scriptedLLM{fallback: `{"intent": "spend_by_time", "entities": {}, "confidence": 0.9}`}
	modelingLLM := &scriptedLLM{fallback: `{"answer_markdown": "spent 69,\n375across15transactions", "assumptions": []}`}

	results := baseResults()
	results["SUM(ABS(amount)) AS total_spent"] = []map[string]any{{"total_spent": "69375.00"}}
	q := &recordingQuerier{results: results}

	orch := newTestOrchestrator(plannerLLM, &scriptedLLM{}, modelingLLM, q)
	result := orch.Process(context.Background(), testUser, "How much did I spend last month?", "s1")

	require.Empty(t, result.Error)
	assert.Equal(t, "spent $69,375 across 15 transactions", result.Response.AnswerMarkdown)
}
