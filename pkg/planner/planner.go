// Package planner turns a natural-language question into an execution plan:
// a classified intent, extracted entities, and the invariants the generated
// SQL must satisfy. The LLM output is advisory; normalization and the
// deterministic fallback keep the plan well-formed no matter what comes back.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/llms"
	"github.com/finsightai/finsight/pkg/model"
)

// Planner classifies intent and extracts entities with a low-temperature LLM
// call.
type Planner struct {
	llm         llms.Provider
	defaultDays int
}

// New builds a planner. defaultDays is the merchant window applied when a
// merchant is extracted without an explicit date range.
func New(llm llms.Provider, defaultDays int) *Planner {
	if defaultDays <= 0 {
		defaultDays = 90
	}
	return &Planner{llm: llm, defaultDays: defaultDays}
}

// plannerOutput is the JSON shape the LLM is asked to produce.
type plannerOutput struct {
	Intent        string           `json:"intent" mapstructure:"intent"`
	Entities      model.Entities   `json:"entities" mapstructure:"entities"`
	ToolPlan      []model.ToolCall `json:"tool_plan" mapstructure:"tool_plan"`
	Invariants    []string         `json:"invariants" mapstructure:"invariants"`
	Confidence    float64          `json:"confidence" mapstructure:"confidence"`
	AskClarifying bool             `json:"ask_clarifying" mapstructure:"ask_clarifying"`
	Feedback      string           `json:"feedback" mapstructure:"feedback"`
}

func systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(`You are an intelligent financial query analyzer. Reason about what the user REALLY wants to know, not just keywords.

Available intents:
`)
	for _, it := range intents.All {
		sb.WriteString("- ")
		sb.WriteString(string(it))
		sb.WriteString("\n")
	}
	sb.WriteString(`
Guidance:
- "where have I been spending" wants PLACES, ranked -> top_merchants
- "how much did I spend" wants a TOTAL over time -> spend_by_time
- "show me Starbucks" wants specific transactions -> transaction_search
- "spending breakdown" wants categories -> category_breakdown
- balance or available-money questions -> balance_lookup
- a greeting that also carries a financial clause is analytical, not greeting

Extract entities when present: merchant names (exact wording), categories,
date ranges, and amount filters ({"op": "gt"|"lt"|"eq"|"between", ...}).

Return a single JSON object:
{"intent": "...", "entities": {"merchants": [], "categories": [],
"amount_filters": [], "date_range": null}, "tool_plan": [],
"invariants": [], "confidence": 0.0, "ask_clarifying": false,
"feedback": null}`)
	return sb.String()
}

func userPrompt(question string, now time.Time, feedback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current UTC time: %s\nUser question: %q\n", now.UTC().Format(time.RFC3339), question)
	if feedback != "" {
		fmt.Fprintf(&sb, "\nPrevious attempt failed with: %s\nFix the plan to address this issue.\n", feedback)
	}
	sb.WriteString("\nAnalyze the question semantically and return the JSON plan.")
	return sb.String()
}

// Plan produces the execution plan for a question. LLM or parsing failures
// fall back to the deterministic classifier with zero confidence; Plan never
// returns an error.
func (p *Planner) Plan(ctx context.Context, question string, now time.Time, feedback string) *model.Plan {
	resp, err := p.llm.Generate(ctx, &llms.Request{
		System:      systemPrompt(),
		User:        userPrompt(question, now, feedback),
		Temperature: 0.1,
		MaxTokens:   500,
		SchemaFrom:  plannerOutput{},
		SchemaName:  "plan",
	})
	if err != nil {
		slog.Warn("planner LLM call failed, using deterministic fallback", "error", err)
		return p.fallback(question, err.Error())
	}

	raw, err := llms.ExtractJSON(resp.Text)
	if err != nil {
		slog.Warn("planner produced unparseable output, using deterministic fallback", "error", err)
		return p.fallback(question, "unparseable planner output")
	}

	var out plannerOutput
	if err := llms.Decode(raw, &out); err != nil {
		slog.Warn("planner output failed decoding, using deterministic fallback", "error", err)
		return p.fallback(question, "invalid planner output shape")
	}

	plan := &model.Plan{
		Intent:        intents.Parse(out.Intent),
		Entities:      out.Entities,
		ToolPlan:      out.ToolPlan,
		Invariants:    out.Invariants,
		Confidence:    clamp01(out.Confidence),
		AskClarifying: out.AskClarifying,
		Feedback:      out.Feedback,
	}

	p.normalize(plan)
	slog.Info("planner classified question",
		"intent", plan.Intent, "confidence", plan.Confidence,
		"merchants", len(plan.Entities.Merchants))
	return plan
}

// normalize applies the deterministic post-processing the LLM cannot be
// trusted with: default merchant window and required invariants.
func (p *Planner) normalize(plan *model.Plan) {
	if len(plan.Entities.Merchants) > 0 && plan.Entities.DateRange == nil {
		plan.Entities.DateRange = &model.DateRange{Default: fmt.Sprintf("%dd", p.defaultDays)}
	}

	if plan.Intent.QueryStyle() {
		plan.AddInvariant(model.InvExcludePending)
		plan.AddInvariant(model.InvSpendAmountLtZero)
		if len(plan.Entities.Merchants) > 0 {
			plan.AddInvariant(model.InvMustFilterMerchant)
		}
	}
}

func (p *Planner) fallback(question, feedback string) *model.Plan {
	plan := &model.Plan{
		Intent:     intents.Classify(question),
		Confidence: 0,
		Feedback:   feedback,
	}
	p.normalize(plan)
	return plan
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
