// Package orchestrator owns the end-to-end request lifecycle: plan, profile,
// generate-validate-sanitize-execute, model, remember. Every stage returns a
// result shape; the orchestrator is the only place a user-visible message is
// formatted, and internal panics stop here.
package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsightai/finsight/pkg/config"
	"github.com/finsightai/finsight/pkg/db"
	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/memory"
	"github.com/finsightai/finsight/pkg/model"
	"github.com/finsightai/finsight/pkg/modeling"
	"github.com/finsightai/finsight/pkg/observability"
	"github.com/finsightai/finsight/pkg/planner"
	"github.com/finsightai/finsight/pkg/profile"
	"github.com/finsightai/finsight/pkg/resolver"
	"github.com/finsightai/finsight/pkg/sqlagent"
	"github.com/finsightai/finsight/pkg/sqlguard"
)

const apologyMessage = "I'm sorry - I ran into a problem answering that. Please try again in a moment."

// Orchestrator composes the pipeline components. All dependencies are
// explicit; Memory, Resolver and Metrics may be nil.
type Orchestrator struct {
	cfg      *config.Config
	planner  *planner.Planner
	sqlAgent *sqlagent.Agent
	modeling *modeling.Agent
	profiles *profile.Builder
	resolver *resolver.Resolver
	exec     db.Querier
	memory   *memory.Store
	metrics  *observability.Metrics
	now      func() time.Time
}

// Options carries the optional dependencies.
type Options struct {
	Resolver *resolver.Resolver
	Memory   *memory.Store
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// New wires an orchestrator.
func New(cfg *config.Config, pl *planner.Planner, sa *sqlagent.Agent, ma *modeling.Agent,
	pb *profile.Builder, exec db.Querier, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		cfg:      cfg,
		planner:  pl,
		sqlAgent: sa,
		modeling: ma,
		profiles: pb,
		resolver: opts.Resolver,
		exec:     exec,
		memory:   opts.Memory,
		metrics:  opts.Metrics,
		now:      now,
	}
}

// Process answers one question for one user. It never returns an error; the
// Result carries either the response or the user-visible failure.
func (o *Orchestrator) Process(ctx context.Context, userID, question, sessionID string) (result *model.Result) {
	start := o.now()
	requestID := observability.NewRequestID()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator panic recovered", "request_id", requestID, "panic", r)
			result = o.failure(start, model.NewError(model.KindInternal, "panic: %v", r), nil)
		}
	}()

	if err := validateInput(userID, question); err != nil {
		return o.failure(start, err, nil)
	}

	// Stage 1: classify intent and build the contract
	plan := o.planner.Plan(ctx, question, o.now(), "")
	contract := intents.ContractFor(plan.Intent)

	o.emitStage("planner", requestID, userID, plan.Intent, start, nil, map[string]int{
		"merchants":  len(plan.Entities.Merchants),
		"invariants": len(plan.Invariants),
	})

	// The user's turn is persisted before any SQL executes
	o.remember(ctx, &model.MemoryRecord{
		SessionID: sessionID, UserID: userID, Role: "user",
		Content: question, Intent: plan.Intent, Entities: &plan.Entities,
	})

	// Stage 2: conversational short-circuit - no SQL, no profile pack
	if contract.Conversational {
		resp := o.conversationalResponse(ctx, userID, question, sessionID, plan.Intent)
		o.remember(ctx, &model.MemoryRecord{
			SessionID: sessionID, UserID: userID, Role: "assistant",
			Content: resp.AnswerMarkdown, Intent: plan.Intent,
		})
		return &model.Result{
			Response:        resp,
			ExecutionTimeMS: o.elapsedMS(start),
			Logs:            []model.LogEntry{},
		}
	}

	// Stage 3: profile pack (cached; lightweight for simple intents)
	pack, err := o.profiles.Build(ctx, userID, plan.Intent)
	if err != nil {
		return o.failure(start, model.WrapError(model.KindInternal, err, "profile pack build failed"), nil)
	}
	if o.metrics != nil {
		o.metrics.RecordPackBuild(packClass(plan.Intent), false)
	}

	// Canonicalize extracted merchants against the user's own history
	if o.resolver != nil && len(plan.Entities.Merchants) > 0 {
		plan.Entities.Merchants = o.resolver.Resolve(ctx, userID, plan.Entities.Merchants, 3)
	}

	var logs []model.LogEntry

	// Stage 4/5: the SQL loop, unless the contract says skip
	var sqlResp *model.SQLResponse
	var execResult *model.ExecutionResult

	skipSQL := contract.SkipSQL || len(contract.AllowedTables) == 0 || plan.Intent == intents.Unknown
	if skipSQL {
		execResult = &model.ExecutionResult{}
		slog.Info("skipping SQL for intent", "intent", plan.Intent, "request_id", requestID)
	} else {
		var sqlErr *model.Error
		sqlResp, execResult, logs, sqlErr = o.runSQLLoop(ctx, requestID, userID, question, plan, logs)
		if sqlErr != nil {
			return o.failure(start, sqlErr, logs)
		}
	}

	// Stage 6: the modeling loop (single attempt; critique hook optional and
	// off by default)
	modelReq := &model.ModelRequest{
		Question:  question,
		Profile:   pack,
		SQLPlan:   sqlResp,
		SQLResult: execResult,
		Intent:    plan.Intent,
	}

	modelStart := o.now()
	modelResp, modelErr := o.runModelLoop(ctx, modelReq)
	logs = append(logs, model.LogEntry{
		Agent:           "modeling_agent",
		ExecutionTimeMS: o.elapsedMS(modelStart),
	})
	if modelErr != nil {
		return o.failure(start, modelErr, logs)
	}

	o.emitStage("modeling_agent", requestID, userID, plan.Intent, modelStart, nil, map[string]int{
		"computations": len(modelResp.Computations),
		"ui_blocks":    len(modelResp.UIBlocks),
	})

	// Stage 7: the assistant's turn persists only after modeling completes
	sqlText := ""
	if sqlResp != nil {
		sqlText = sqlResp.SQL
	}
	o.remember(ctx, &model.MemoryRecord{
		SessionID: sessionID, UserID: userID, Role: "assistant",
		Content: modelResp.AnswerMarkdown, Intent: plan.Intent,
		SQLExecuted:     sqlText,
		ResultSummary:   fmt.Sprintf("%d rows", execResult.RowCount),
		ExecutionTimeMS: o.elapsedMS(start),
	})
	o.rememberContext(ctx, userID, sessionID, question, plan.Intent, modelResp.AnswerMarkdown)

	return &model.Result{
		Response:        modelResp,
		ProfileSummary:  pack.Summary(),
		ExecutionTimeMS: o.elapsedMS(start),
		Logs:            logs,
	}
}

// runSQLLoop drives generate → validate → sanitize → execute with at most
// MaxSQLRevisions repair rounds. Only invariant and execution failures are
// repairable; a sanitizer rejection surfaces immediately.
func (o *Orchestrator) runSQLLoop(ctx context.Context, requestID, userID, question string,
	plan *model.Plan, logs []model.LogEntry) (*model.SQLResponse, *model.ExecutionResult, []model.LogEntry, *model.Error) {

	feedback := ""
	var lastErr *model.Error

	for attempt := 0; attempt <= o.cfg.MaxSQLRevisions; attempt++ {
		if feedback != "" {
			plan = o.planner.Plan(ctx, question, o.now(), feedback)
		}

		req := &model.SQLRequest{
			Question:   question,
			SchemaCard: sqlagent.SchemaCard,
			UserID:     userID,
			Constraints: model.SQLConstraints{
				MaxRows:           o.cfg.MaxSQLRows,
				ExcludePending:    true,
				PreferMonthlyBins: true,
			},
			Plan: plan,
		}

		genStart := o.now()
		sqlResp, genErr := o.sqlAgent.GenerateQuery(ctx, req)
		if genErr != nil {
			logs = append(logs, model.LogEntry{Agent: "sql_agent", Error: genErr.Msg, ExecutionTimeMS: o.elapsedMS(genStart)})
			return nil, nil, logs, genErr
		}

		// Gate 1: plan invariants
		if invErr := sqlguard.CheckInvariants(sqlResp.SQL, sqlResp.Params, plan); invErr != nil {
			if o.metrics != nil {
				o.metrics.RecordSanitizerBlock("invariants")
			}
			logs = append(logs, model.LogEntry{Agent: "invariant_checker", Error: invErr.Msg, ExecutionTimeMS: 0})
			if attempt < o.cfg.MaxSQLRevisions {
				feedback = invErr.Msg
				if len(invErr.Fixes) > 0 {
					feedback += "; suggested fixes: " + strings.Join(invErr.Fixes, " ")
				}
				lastErr = invErr
				continue
			}
			return nil, nil, logs, model.NewError(model.KindSQLUnsafe, "SQL failed invariant checks after repair: %s", invErr.Msg)
		}

		// Gate 2: the sanitizer - not repairable
		if sanErr := sqlguard.Sanitize(sqlResp.SQL); sanErr != nil {
			if o.metrics != nil {
				o.metrics.RecordSanitizerBlock("sanitizer")
			}
			observability.SecurityEvent(userID, "sql_sanitizer_block",
				map[string]any{"sql": sqlResp.SQL, "error": sanErr.Msg}, "ERROR")
			logs = append(logs, model.LogEntry{Agent: "sql_sanitizer", Error: sanErr.Msg, ExecutionTimeMS: 0})
			return nil, nil, logs, sanErr
		}

		safeSQL, wrapErr := sqlguard.AddSafetyWrapper(sqlResp.SQL, o.cfg.MaxSQLRows)
		if wrapErr != nil {
			observability.SecurityEvent(userID, "sql_tenancy_injection_failed",
				map[string]any{"sql": sqlResp.SQL}, "ERROR")
			return nil, nil, logs, wrapErr
		}
		if sqlResp.Params == nil {
			sqlResp.Params = map[string]any{}
		}
		sqlResp.Params["user_id"] = userID

		execStart := o.now()
		execResult, execErr := db.ExecuteSafe(ctx, o.exec, safeSQL, sqlResp.Params, o.cfg.MaxSQLRows)
		durMS := o.elapsedMS(execStart)

		if execErr != nil {
			observability.SQLExecution(userID, safeSQL, sqlResp.Params, 0, durMS, execErr)
			logs = append(logs, model.LogEntry{Agent: "sql_execution", Error: execErr.Msg, ExecutionTimeMS: durMS})
			if execErr.Retryable() && attempt < o.cfg.MaxSQLRevisions {
				feedback = "query execution failed: " + execErr.Msg
				lastErr = execErr
				continue
			}
			return nil, nil, logs, execErr
		}

		observability.SQLExecution(userID, safeSQL, sqlResp.Params, execResult.RowCount, durMS, nil)
		if o.metrics != nil {
			o.metrics.RecordSQLQuery(string(sqlResp.Intent), execResult.RowCount, time.Duration(durMS*float64(time.Millisecond)))
		}
		logs = append(logs, model.LogEntry{Agent: "sql_execution", RowCount: execResult.RowCount, ExecutionTimeMS: durMS})
		sqlResp.SQL = safeSQL
		return sqlResp, execResult, logs, nil
	}

	if lastErr == nil {
		lastErr = model.NewError(model.KindInternal, "SQL loop exhausted without a result")
	}
	return nil, nil, logs, lastErr
}

// runModelLoop performs the modeling attempt(s). The critique pass is an
// optional hook and disabled by default; with it off the loop is a single
// attempt bounded by MaxModelRevisions.
func (o *Orchestrator) runModelLoop(ctx context.Context, req *model.ModelRequest) (*model.ModelResponse, *model.Error) {
	var lastErr *model.Error
	for attempt := 0; attempt <= o.cfg.MaxModelRevisions; attempt++ {
		resp, err := o.modeling.AnalyzeData(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !o.cfg.CritiqueEnabled {
			break
		}
	}
	return nil, lastErr
}

var greetingTemplates = []string{
	"Hi %s! I'm your personal financial advisor. How can I help you with your finances today?",
	"Hello %s! Great to see you. What financial questions can I help you with?",
	"Hey %s! I'm here to help with all your financial needs. What would you like to discuss?",
}

var casualTemplates = []string{
	"I'm doing well, %s! As your financial advisor, I'm here whenever you need help with investments, budgeting, or financial planning. What can I assist you with?",
	"Things are great, %s! I'm ready to help you with any financial questions or planning you'd like to discuss.",
	"I'm here and ready to help, %s! What financial topics are on your mind today?",
}

// conversationalResponse builds the templated friendly answer. Variant
// selection hashes (session, question) so replays are stable.
func (o *Orchestrator) conversationalResponse(ctx context.Context, userID, question, sessionID string, intent intents.Intent) *model.ModelResponse {
	name := o.profiles.FirstName(ctx, userID)
	if name == "" {
		name = "there"
	}

	templates := greetingTemplates
	if intent == intents.CasualConversation {
		templates = casualTemplates
	}

	h := fnv.New32a()
	h.Write([]byte(sessionID + "|" + question))
	text := fmt.Sprintf(templates[int(h.Sum32())%len(templates)], name)

	return &model.ModelResponse{
		AnswerMarkdown:   modeling.NormalizeAnswer(text),
		Assumptions:      []string{},
		Computations:     []model.Computation{},
		UIBlocks:         []model.UIBlock{},
		NextDataRequests: []model.DataRequest{},
		Conversational:   true,
	}
}

// remember stores a turn; failures are logged and swallowed - memory is
// advisory, never blocking.
func (o *Orchestrator) remember(ctx context.Context, rec *model.MemoryRecord) {
	if o.memory == nil || rec.SessionID == "" {
		return
	}
	if err := o.memory.StoreMessage(ctx, rec); err != nil {
		slog.Warn("failed to store memory record", "role", rec.Role, "error", err)
		return
	}
	if o.metrics != nil {
		o.metrics.RecordSessionMessage(rec.Role)
	}
}

func (o *Orchestrator) rememberContext(ctx context.Context, userID, sessionID, question string, intent intents.Intent, answer string) {
	if o.memory == nil || sessionID == "" {
		return
	}
	summary := answer
	if len(summary) > 200 {
		summary = summary[:200]
	}
	err := o.memory.StoreContext(ctx, userID, &memory.ActiveContext{
		SessionID:   sessionID,
		ContextType: "recent_query",
		ContextValue: map[string]any{
			"question":       question,
			"intent":         string(intent),
			"result_summary": summary,
		},
		RelevanceScore: 1.0,
		TTLMinutes:     30,
	})
	if err != nil {
		slog.Warn("failed to store conversation context", "error", err)
	}
}

func (o *Orchestrator) failure(start time.Time, err *model.Error, logs []model.LogEntry) *model.Result {
	if logs == nil {
		logs = []model.LogEntry{}
	}
	slog.Error("request failed", "kind", err.Kind, "error", err.Msg)
	return &model.Result{
		Error:           apologyMessage,
		ErrorKind:       err.Kind,
		ExecutionTimeMS: o.elapsedMS(start),
		Logs:            logs,
	}
}

func (o *Orchestrator) emitStage(agent, requestID, userID string, intent intents.Intent, start time.Time, err error, counts map[string]int) {
	rec := &observability.StageRecord{
		Agent:      agent,
		RequestID:  requestID,
		UserIDHash: observability.HashUserID(userID),
		Intent:     string(intent),
		Counts:     counts,
		DurationMS: o.elapsedMS(start),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	rec.Emit()
	if o.metrics != nil {
		o.metrics.RecordAgentCall(agent, time.Duration(rec.DurationMS*float64(time.Millisecond)))
		if err != nil {
			o.metrics.RecordAgentError(agent, "error")
		}
	}
}

func (o *Orchestrator) elapsedMS(start time.Time) float64 {
	return float64(o.now().Sub(start).Microseconds()) / 1000.0
}

func validateInput(userID, question string) *model.Error {
	if _, err := uuid.Parse(userID); err != nil {
		return model.NewError(model.KindInputInvalid, "user_id must be a UUID")
	}
	q := strings.TrimSpace(question)
	if len(q) == 0 || len(q) > 1000 {
		return model.NewError(model.KindInputInvalid, "question must be between 1 and 1000 characters")
	}
	return nil
}

func packClass(intent intents.Intent) string {
	if intent.Lightweight() {
		return "light"
	}
	return "full"
}
