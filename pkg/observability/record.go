package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StageRecord is the structured record one pipeline stage emits.
type StageRecord struct {
	Timestamp       string         `json:"ts"`
	Agent           string         `json:"agent"`
	RequestID       string         `json:"request_id"`
	UserIDHash      string         `json:"user_id_hash,omitempty"`
	Intent          string         `json:"intent,omitempty"`
	RoutingDecision string         `json:"routing_decision,omitempty"`
	DataSources     []string       `json:"data_sources,omitempty"`
	Counts          map[string]int `json:"counts,omitempty"`
	DurationMS      float64        `json:"execution_time_ms"`
	Assumptions     []string       `json:"assumptions,omitempty"`
	DataGaps        []string       `json:"data_gaps,omitempty"`
	Error           string         `json:"error,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// NewRequestID generates a short request identifier.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// HashUserID hashes the user id for audit logs; raw ids never reach a sink.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:16]
}

// Emit redacts and logs the record as a single JSON attribute.
func (r *StageRecord) Emit() {
	if r.Timestamp == "" {
		r.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(r)
	if err != nil {
		slog.Warn("failed to encode stage record", "agent", r.Agent, "error", err)
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	redacted := RedactValue(raw)

	payload, _ := json.Marshal(redacted)
	if r.Error != "" {
		slog.Error("stage failed", "agent", r.Agent, "record", string(payload))
	} else {
		slog.Info("stage complete", "agent", r.Agent, "record", string(payload))
	}
}

// SecurityEvent logs a security-relevant event (sanitizer rejections,
// tenancy violations) with a severity level.
func SecurityEvent(userID, eventType string, details map[string]any, severity string) {
	redacted := RedactValue(details)
	attrs := []any{
		"event_type", eventType,
		"user_id_hash", HashUserID(userID),
		"details", redacted,
	}
	switch severity {
	case "ERROR", "CRITICAL":
		slog.Error("security event", attrs...)
	case "WARNING":
		slog.Warn("security event", attrs...)
	default:
		slog.Info("security event", attrs...)
	}
}

// SQLExecution logs one executed query with redacted parameters.
func SQLExecution(userID, sqlText string, params map[string]any, rowCount int, durationMS float64, execErr error) {
	redactedParams := RedactValue(paramsForLog(params))
	attrs := []any{
		"user_id_hash", HashUserID(userID),
		"sql", RedactText(sqlText),
		"params", redactedParams,
		"row_count", rowCount,
		"execution_time_ms", durationMS,
	}
	if execErr != nil {
		attrs = append(attrs, "error", execErr.Error())
		slog.Error("sql execution failed", attrs...)
		return
	}
	slog.Info("sql executed", attrs...)
}

// paramsForLog shallow-copies params so redaction never mutates the live
// query arguments.
func paramsForLog(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "user_id" {
			out[k] = "[USER-ID-REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
