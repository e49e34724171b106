package planner

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

// fakeLLM returns a canned response or error.
type fakeLLM struct {
	text string
	err  error

	lastRequest *llms.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &llms.Response{Text: f.text}, nil
}

func (f *fakeLLM) ModelName() string { return "fake" }
func (f *fakeLLM) Close() error      { return nil }

var testNow = time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

func TestPlan_ParsesLLMOutput(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "transaction_search",
		"entities": {"merchants": ["trader joes"], "categories": [], "amount_filters": []},
		"invariants": [], "confidence": 0.92, "ask_clarifying": false}`}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "what have i been spending at trader joes", testNow, "")

	assert.Equal(t, intents.TransactionSearch, plan.Intent)
	assert.Equal(t, []string{"trader joes"}, plan.Entities.Merchants)
	assert.InDelta(t, 0.92, plan.Confidence, 0.001)
}

func TestPlan_DefaultMerchantWindow(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "transaction_search",
		"entities": {"merchants": ["starbucks"]}, "confidence": 0.8}`}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "starbucks spending", testNow, "")

	require.NotNil(t, plan.Entities.DateRange)
	assert.Equal(t, "90d", plan.Entities.DateRange.Default)
}

func TestPlan_QueryIntentsGetInvariants(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "spend_by_time", "entities": {"merchants": ["amazon"]}, "confidence": 0.9}`}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "how much at amazon", testNow, "")

	assert.True(t, plan.HasInvariant(model.InvExcludePending))
	assert.True(t, plan.HasInvariant(model.InvSpendAmountLtZero))
	assert.True(t, plan.HasInvariant(model.InvMustFilterMerchant))
}

func TestPlan_NonQueryIntentsSkipInvariants(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "retirement_planning", "entities": {}, "confidence": 0.9}`}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "can I retire at 60", testNow, "")

	assert.Empty(t, plan.Invariants)
}

func TestPlan_LLMFailureFallsBack(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "How much money do I have in all my accounts?", testNow, "")

	assert.Equal(t, intents.BalanceLookup, plan.Intent)
	assert.Equal(t, 0.0, plan.Confidence)
	assert.NotEmpty(t, plan.Feedback)
}

func TestPlan_GarbageOutputFallsBack(t *testing.T) {
	llm := &fakeLLM{text: "I am unable to help with that."}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "how much did I spend last month", testNow, "")

	assert.Equal(t, intents.SpendByTime, plan.Intent)
	assert.Equal(t, 0.0, plan.Confidence)
}

func TestPlan_UnknownIntentNameNormalizes(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "made_up_intent", "entities": {}, "confidence": 0.4}`}

	p := New(llm, 90)
	plan := p.Plan(context.Background(), "something odd", testNow, "")

	assert.Equal(t, intents.Unknown, plan.Intent)
}

func TestPlan_FeedbackReachesPrompt(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "spend_by_time", "entities": {}, "confidence": 0.9}`}

	p := New(llm, 90)
	_ = p.Plan(context.Background(), "spend question", testNow, "missing pending filter")

	require.NotNil(t, llm.lastRequest)
	assert.Contains(t, llm.lastRequest.User, "missing pending filter")
}

func TestPlan_LowTemperature(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "unknown", "entities": {}}`}
	p := New(llm, 90)
	_ = p.Plan(context.Background(), "q", testNow, "")
	assert.InDelta(t, 0.1, llm.lastRequest.Temperature, 0.001)
}

func TestPlan_ConfidenceClamped(t *testing.T) {
	llm := &fakeLLM{text: `{"intent": "balance_lookup", "entities": {}, "confidence": 3.5}`}
	p := New(llm, 90)
	plan := p.Plan(context.Background(), "balance?", testNow, "")
	assert.Equal(t, 1.0, plan.Confidence)
}
