// Package sqlagent produces parameterized SQL from a classified question.
// Deterministic paths come first: transaction searches compile through the
// search builder and template intents fill their contract SQL; only the
// remainder reaches the LLM, and everything the LLM produces is validated
// against the intent's allowed tables before it leaves this package.
package sqlagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/llms"
	"github.com/finsightai/finsight/pkg/model"
	"github.com/finsightai/finsight/pkg/search"
)

const systemPrompt = `You are a PostgreSQL SQL query generator for a financial application.

CRITICAL RULES:
1. You will receive an intent classification and allowed tables - ONLY use those tables
2. ALWAYS include WHERE user_id = :user_id for user data security
3. For ALL date operations on transactions, use COALESCE(posted_datetime, date::timestamptz)
4. For balance/money questions, MUST query accounts table, NEVER transactions
5. Use parameterized queries with :param_name placeholders
6. Return results that directly answer the question

SIGN CONVENTIONS:
- In transactions: negative amounts = expenses, positive = income
- In accounts: positive balance = money you have
- For spending queries: filter amount < 0 and display ABS(amount)

OUTPUT FORMAT (JSON):
{"sql": "<parameterized_sql>", "params": {"user_id": "..."}, "justification": "<brief explanation>"}`

// Agent generates queries under intent contracts.
type Agent struct {
	llm     llms.Provider
	builder *search.Builder
	now     func() time.Time
}

// New builds an agent. A nil clock means UTC now.
func New(llm llms.Provider, now func() time.Time) *Agent {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Agent{
		llm:     llm,
		builder: search.New(now),
		now:     now,
	}
}

type llmOutput struct {
	SQL           string         `json:"sql" mapstructure:"sql"`
	Params        map[string]any `json:"params" mapstructure:"params"`
	Justification string         `json:"justification" mapstructure:"justification"`
}

// GenerateQuery produces the SQLResponse for a request. The request's plan
// carries the intent; an empty plan falls back to the deterministic
// classifier.
func (a *Agent) GenerateQuery(ctx context.Context, req *model.SQLRequest) (*model.SQLResponse, *model.Error) {
	if req == nil || strings.TrimSpace(req.Question) == "" {
		return nil, model.NewError(model.KindInputInvalid, "sql request requires a question")
	}
	if req.UserID == "" {
		return nil, model.NewError(model.KindInputInvalid, "sql request requires a user id")
	}

	intent := intents.Unknown
	if req.Plan != nil {
		intent = req.Plan.Intent
	}
	if intent == intents.Unknown {
		intent = intents.Classify(req.Question)
	}
	contract := intents.ContractFor(intent)

	// Deterministic search path, no LLM involved
	if intent == intents.TransactionSearch {
		sql, params := a.builder.Build(req.Question, req.UserID)
		return &model.SQLResponse{
			SQL:           sql,
			Params:        params,
			Justification: "deterministic search builder for natural-language transaction query",
			Intent:        intent,
			TablesUsed:    []string{"transactions"},
		}, nil
	}

	// Template path
	if contract.TemplateSQL != "" {
		return a.fillTemplate(req, intent, contract), nil
	}

	if len(contract.AllowedTables) == 0 {
		return nil, model.NewError(model.KindIntentUnsupported,
			"intent %s has no allowed tables and no template", intent)
	}

	return a.generateWithLLM(ctx, req, intent, contract)
}

// fillTemplate binds user_id and resolves the template's time window against
// the request clock. Windows are half-open [start, end).
func (a *Agent) fillTemplate(req *model.SQLRequest, intent intents.Intent, contract intents.Contract) *model.SQLResponse {
	params := map[string]any{"user_id": req.UserID}
	sql := strings.TrimSpace(contract.TemplateSQL)

	if contract.TimeRange != nil {
		start, end := a.resolveWindow(req.Question)
		if strings.Contains(sql, ":start_date") {
			params["start_date"] = start.Format("2006-01-02")
		}
		if strings.Contains(sql, ":end_date") {
			params["end_date"] = end.Format("2006-01-02")
		}
	}

	return &model.SQLResponse{
		SQL:           sql,
		Params:        params,
		Justification: fmt.Sprintf("optimized template for %s", intent),
		Intent:        intent,
		TablesUsed:    contract.AllowedTables,
	}
}

// resolveWindow turns a symbolic window in the question into literal bounds.
// The returned end is exclusive. Questions naming no window default to the
// trailing 90 days.
func (a *Agent) resolveWindow(question string) (time.Time, time.Time) {
	now := a.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if start, end, ok := search.ExtractWindow(question, now); ok {
		return start, end.AddDate(0, 0, 1)
	}
	return today.AddDate(0, 0, -90), today.AddDate(0, 0, 1)
}

func (a *Agent) generateWithLLM(ctx context.Context, req *model.SQLRequest, intent intents.Intent, contract intents.Contract) (*model.SQLResponse, *model.Error) {
	resp, err := a.llm.Generate(ctx, &llms.Request{
		System:      systemPrompt,
		User:        a.buildConstrainedMessage(req, intent, contract),
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, model.WrapError(model.KindModelingFailed, err, "SQL generation call failed")
	}

	raw, err := llms.ExtractJSON(resp.Text)
	if err != nil {
		return nil, model.NewError(model.KindSQLUnsafe, "could not parse SQL generator output")
	}

	var out llmOutput
	if err := llms.Decode(raw, &out); err != nil || strings.TrimSpace(out.SQL) == "" {
		return nil, model.NewError(model.KindSQLUnsafe, "SQL generator returned no query")
	}

	if ok, msg := validateTables(out.SQL, contract.AllowedTables); !ok {
		slog.Warn("generated SQL used forbidden table, trying template fallback", "intent", intent, "error", msg)
		if contract.TemplateSQL != "" {
			return a.fillTemplate(req, intent, contract), nil
		}
		return nil, model.NewError(model.KindSQLTableForbidden, "%s", msg)
	}

	if out.Params == nil {
		out.Params = map[string]any{}
	}
	out.Params["user_id"] = req.UserID

	return &model.SQLResponse{
		SQL:           out.SQL,
		Params:        out.Params,
		Justification: out.Justification,
		Intent:        intent,
		TablesUsed:    contract.AllowedTables,
	}, nil
}

func (a *Agent) buildConstrainedMessage(req *model.SQLRequest, intent intents.Intent, contract intents.Contract) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", req.Question)
	fmt.Fprintf(&sb, "Intent classified: %s\n", intent)
	fmt.Fprintf(&sb, "Allowed tables: %s\n", strings.Join(contract.AllowedTables, ", "))
	fmt.Fprintf(&sb, "Available columns: %s\n", strings.Join(contract.AllowedColumns, ", "))
	fmt.Fprintf(&sb, "Special notes: %s\n\n", contract.Notes)
	fmt.Fprintf(&sb, "Schema:\n%s\n\n", req.SchemaCard)
	fmt.Fprintf(&sb, "Constraints:\n- Max rows: %d\n- Exclude pending: %v\n\n",
		req.Constraints.MaxRows, req.Constraints.ExcludePending)
	sb.WriteString(`CRITICAL REMINDERS:
1. ONLY use tables from the allowed list
2. Include WHERE user_id = :user_id
3. Use COALESCE(posted_datetime, date::timestamptz) for transaction dates
4. For spending: amount < 0 and display ABS(amount)

Generate SQL that directly answers this question.`)
	return sb.String()
}

func validateTables(sqlText string, allowed []string) (bool, string) {
	s := strings.ToLower(sqlText)
	allowedSet := map[string]bool{}
	for _, t := range allowed {
		allowedSet[strings.ToLower(t)] = true
	}
	for _, ref := range tableRefs(s) {
		if !allowedSet[ref] {
			return false, fmt.Sprintf("table '%s' is not allowed for this intent", ref)
		}
	}
	return true, ""
}

func tableRefs(s string) []string {
	var refs []string
	fields := strings.Fields(s)
	for i, f := range fields {
		if (f == "from" || f == "join") && i+1 < len(fields) {
			name := strings.Trim(fields[i+1], "(),;")
			if name != "" && name != "select" {
				refs = append(refs, name)
			}
		}
	}
	return refs
}
