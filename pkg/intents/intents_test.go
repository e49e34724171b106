package intents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		question string
		want     Intent
	}{
		{"How much money do I have in all my accounts?", BalanceLookup},
		{"what have i been spending at trader joes", TransactionSearch},
		{"How much did I spend last month?", SpendByTime},
		{"where have I been spending the most", TopMerchants},
		{"Am I on track to retire at 60?", RetirementPlanning},
		{"should I use avalanche or snowball", DebtAnalysis},
		{"what's my net worth", NetWorth},
		{"hi", Greeting},
		{"hey there", Greeting},
		{"how are you doing", CasualConversation},
		{"", Unknown},
		{"xyzzy plugh", Unknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.question), "question: %q", tc.question)
	}
}

func TestClassify_GreetingWithFinancialClause(t *testing.T) {
	// A greeting carrying a financial clause routes analytical
	got := Classify("hi, how much did I spend last month?")
	assert.Equal(t, SpendByTime, got)
}

func TestContractFor_BalanceUsesAccountsOnly(t *testing.T) {
	c := ContractFor(BalanceLookup)
	assert.Equal(t, []string{"accounts"}, c.AllowedTables)
	assert.Contains(t, c.TemplateSQL, "FROM accounts")
	assert.NotContains(t, c.TemplateSQL, "transactions")
}

func TestContractFor_ConversationalIntents(t *testing.T) {
	for _, intent := range []Intent{Greeting, CasualConversation} {
		c := ContractFor(intent)
		assert.True(t, c.Conversational)
		assert.True(t, c.SkipSQL)
		assert.Empty(t, c.AllowedTables)
	}
}

func TestContractFor_TemplatesCarryCanonicalDateExpr(t *testing.T) {
	for _, intent := range []Intent{SpendByTime, TopMerchants, CategoryBreakdown} {
		c := ContractFor(intent)
		assert.Contains(t, c.TemplateSQL, "COALESCE(posted_datetime, date::timestamptz)")
		assert.Contains(t, c.TemplateSQL, "pending = false")
		assert.Contains(t, c.TemplateSQL, ":user_id")
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t, BalanceLookup, Parse("balance_lookup"))
	assert.Equal(t, BalanceLookup, Parse("  Balance_Lookup "))
	assert.Equal(t, Unknown, Parse("no_such_intent"))
}

func TestLightweight(t *testing.T) {
	assert.True(t, BalanceLookup.Lightweight())
	assert.True(t, Greeting.Lightweight())
	assert.False(t, RetirementPlanning.Lightweight())
	assert.False(t, InvestmentAnalysis.Lightweight())
}
