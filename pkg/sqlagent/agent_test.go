package sqlagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/llms"
	"github.com/finsightai/finsight/pkg/model"
)

type fakeLLM struct {
	text string
	err  error

	calls int
}

func (f *fakeLLM) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.Response{Text: f.text}, nil
}

func (f *fakeLLM) ModelName() string { return "fake" }
func (f *fakeLLM) Close() error      { return nil }

const testUser = "4f9a0cf2-95ee-41f0-bc28-cdd0e2a184b3"

func fixedNow() time.Time {
	return time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
}

func request(question string, intent intents.Intent) *model.SQLRequest {
	return &model.SQLRequest{
		Question:   question,
		SchemaCard: SchemaCard,
		UserID:     testUser,
		Constraints: model.SQLConstraints{
			MaxRows:        1000,
			ExcludePending: true,
		},
		Plan: &model.Plan{Intent: intent},
	}
}

func TestGenerateQuery_BalanceUsesAccountsTemplate(t *testing.T) {
	llm := &fakeLLM{}
	agent := New(llm, fixedNow)

	resp, err := agent.GenerateQuery(context.Background(),
		request("How much money do I have in all my accounts?", intents.BalanceLookup))
	require.Nil(t, err)

	assert.Contains(t, resp.SQL, "FROM accounts")
	assert.NotContains(t, resp.SQL, "transactions")
	assert.Equal(t, testUser, resp.Params["user_id"])
	assert.Equal(t, 0, llm.calls, "template intents never call the LLM")
}

func TestGenerateQuery_SpendByTimeWindow(t *testing.T) {
	agent := New(&fakeLLM{}, fixedNow)

	resp, err := agent.GenerateQuery(context.Background(),
		request("How much did I spend last month?", intents.SpendByTime))
	require.Nil(t, err)

	// Today is 2025-09-15, so last month is the half-open [Aug 1, Sep 1)
	assert.Equal(t, "2025-08-01", resp.Params["start_date"])
	assert.Equal(t, "2025-09-01", resp.Params["end_date"])
	assert.Contains(t, resp.SQL, "COALESCE(posted_datetime, date::timestamptz)")
	assert.Contains(t, resp.SQL, "amount < 0")
	assert.Contains(t, resp.SQL, "pending = false")
}

func TestGenerateQuery_TransactionSearchIsDeterministic(t *testing.T) {
	llm := &fakeLLM{}
	agent := New(llm, fixedNow)

	resp, err := agent.GenerateQuery(context.Background(),
		request("what have i been spending at trader joes", intents.TransactionSearch))
	require.Nil(t, err)

	assert.Equal(t, 0, llm.calls)
	assert.Contains(t, resp.SQL, "FROM transactions")
	assert.Equal(t, "%trader joe%", resp.Params["m0"])
	assert.Equal(t, []string{"transactions"}, resp.TablesUsed)
}

func TestGenerateQuery_LLMPathValidatesTables(t *testing.T) {
	llm := &fakeLLM{text: `{"sql": "SELECT * FROM transactions WHERE user_id = :user_id", "params": {}, "justification": "x"}`}
	agent := New(llm, fixedNow)

	// investment_analysis does not allow the transactions table and has no
	// template to fall back to
	_, err := agent.GenerateQuery(context.Background(),
		request("how is my portfolio doing", intents.InvestmentAnalysis))
	require.NotNil(t, err)
	assert.Equal(t, model.KindSQLTableForbidden, err.Kind)
}

func TestGenerateQuery_LLMPathAllowedTables(t *testing.T) {
	llm := &fakeLLM{text: `{"sql": "SELECT SUM(value) FROM holdings_current WHERE user_id = :user_id", "params": {}, "justification": "total holdings"}`}
	agent := New(llm, fixedNow)

	resp, err := agent.GenerateQuery(context.Background(),
		request("how is my portfolio doing", intents.InvestmentAnalysis))
	require.Nil(t, err)
	assert.Contains(t, resp.SQL, "holdings_current")
	assert.Equal(t, testUser, resp.Params["user_id"])
}

func TestGenerateQuery_LLMFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("boom")}
	agent := New(llm, fixedNow)

	_, err := agent.GenerateQuery(context.Background(),
		request("how is my portfolio doing", intents.InvestmentAnalysis))
	require.NotNil(t, err)
}

func TestGenerateQuery_InputValidation(t *testing.T) {
	agent := New(&fakeLLM{}, fixedNow)

	_, err := agent.GenerateQuery(context.Background(), &model.SQLRequest{UserID: testUser})
	require.NotNil(t, err)
	assert.Equal(t, model.KindInputInvalid, err.Kind)

	_, err = agent.GenerateQuery(context.Background(), &model.SQLRequest{Question: "q"})
	require.NotNil(t, err)
	assert.Equal(t, model.KindInputInvalid, err.Kind)
}

func TestGenerateQuery_SkipSQLIntent(t *testing.T) {
	agent := New(&fakeLLM{}, fixedNow)
	_, err := agent.GenerateQuery(context.Background(),
		request("am I ready to retire", intents.RetirementPlanning))
	require.NotNil(t, err)
	assert.Equal(t, model.KindIntentUnsupported, err.Kind)
}

func TestGenerateQuery_DefaultWindowIs90Days(t *testing.T) {
	agent := New(&fakeLLM{}, fixedNow)
	resp, err := agent.GenerateQuery(context.Background(),
		request("top merchants", intents.TopMerchants))
	require.Nil(t, err)
	assert.Equal(t, "2025-06-17", resp.Params["start_date"])
}
