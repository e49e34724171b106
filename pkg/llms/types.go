// Package llms abstracts the chat-completion provider behind a small
// interface and owns the contract boundary with LLM non-determinism: the
// robust JSON extractor and the permissive decoder that turns raw model
// output into typed structs.
package llms

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Request is a single non-streaming chat completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int

	// SchemaFrom, when non-nil, asks the provider for structured output
	// matching the JSON schema derived from this value's type.
	SchemaFrom any
	SchemaName string
}

// Response carries the model's text and token usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is a chat-completion backend. Calls honor ctx deadlines; the
// orchestrator treats every call as a suspension point.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	ModelName() string
	Close() error
}

// DeriveSchema builds a JSON schema map for structured output from a Go
// value's type.
func DeriveSchema(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	data, err := schema.MarshalJSON()
	if err != nil {
		return nil
	}
	m, err := parseJSONObject(string(data))
	if err != nil {
		return nil
	}
	return m
}
