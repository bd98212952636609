package workflow

import "context"

// The engine depends only on these interfaces. Each collaborator is an opaque
// text-in/text-out predictor (or the query executor); concrete implementations
// live in internal/llm, internal/retrieval and internal/dataset, and tests
// substitute deterministic stubs.

// RouteDecision is the router collaborator's output.
type RouteDecision struct {
	Route     string
	Reasoning string
}

// Router classifies a question into rag, sql or hybrid.
type Router interface {
	Route(ctx context.Context, question string) (RouteDecision, error)
}

// Retriever returns the top-K scored chunks for a query, highest score first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
}

// Planner extracts constraints from a question and optional retrieved context.
type Planner interface {
	Plan(ctx context.Context, question, context string) (Constraints, error)
}

// GeneratedSQL is the NL-to-SQL collaborator's output.
type GeneratedSQL struct {
	Query       string
	Explanation string
}

// SQLGenerator produces a SQL query for a question given the schema and the
// JSON-serialized constraints.
type SQLGenerator interface {
	Generate(ctx context.Context, question, schema, constraintsJSON string) (GeneratedSQL, error)
}

// RepairedSQL is the SQL repair collaborator's output.
type RepairedSQL struct {
	Query   string
	Changes string
}

// SQLRepairer rewrites a failing query using the execution error as feedback.
type SQLRepairer interface {
	Repair(ctx context.Context, originalQuery, errorMessage, schema, question string) (RepairedSQL, error)
}

// SynthesizedAnswer is the synthesizer collaborator's raw text output.
type SynthesizedAnswer struct {
	FinalAnswer string
	Explanation string
	Confidence  string
}

// Synthesizer produces the final free-text answer from the question, the
// format hint, serialized SQL results and the retrieved context.
type Synthesizer interface {
	Synthesize(ctx context.Context, question, formatHint, sqlResultsJSON, ragContext string) (SynthesizedAnswer, error)
}

// QueryResult is one execution attempt's outcome. Error is empty on success.
type QueryResult struct {
	Rows    [][]interface{}
	Columns []string
	Error   string
}

// QueryExecutor runs a query string against the fixed dataset. Execution
// failures are reported in QueryResult.Error, not as a Go error; the returned
// error is reserved for infrastructure faults (lost connection, cancellation).
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (QueryResult, error)
}
