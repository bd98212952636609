package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Function adapters so tests can wire deterministic collaborators inline.

type routerFunc func(context.Context, string) (RouteDecision, error)

func (f routerFunc) Route(ctx context.Context, q string) (RouteDecision, error) { return f(ctx, q) }

type retrieverFunc func(context.Context, string, int) ([]Chunk, error)

func (f retrieverFunc) Retrieve(ctx context.Context, q string, k int) ([]Chunk, error) {
	return f(ctx, q, k)
}

type plannerFunc func(context.Context, string, string) (Constraints, error)

func (f plannerFunc) Plan(ctx context.Context, q, c string) (Constraints, error) { return f(ctx, q, c) }

type generatorFunc func(context.Context, string, string, string) (GeneratedSQL, error)

func (f generatorFunc) Generate(ctx context.Context, q, s, c string) (GeneratedSQL, error) {
	return f(ctx, q, s, c)
}

type repairerFunc func(context.Context, string, string, string, string) (RepairedSQL, error)

func (f repairerFunc) Repair(ctx context.Context, o, e, s, q string) (RepairedSQL, error) {
	return f(ctx, o, e, s, q)
}

type synthesizerFunc func(context.Context, string, string, string, string) (SynthesizedAnswer, error)

func (f synthesizerFunc) Synthesize(ctx context.Context, q, fh, sr, rc string) (SynthesizedAnswer, error) {
	return f(ctx, q, fh, sr, rc)
}

type executorFunc func(context.Context, string) (QueryResult, error)

func (f executorFunc) Execute(ctx context.Context, q string) (QueryResult, error) { return f(ctx, q) }

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Router: routerFunc(func(context.Context, string) (RouteDecision, error) {
			return RouteDecision{Route: "sql", Reasoning: "tabular aggregate"}, nil
		}),
		Retriever: retrieverFunc(func(context.Context, string, int) ([]Chunk, error) {
			return nil, nil
		}),
		Planner: plannerFunc(func(context.Context, string, string) (Constraints, error) {
			return Constraints{Entities: "Orders"}, nil
		}),
		Generator: generatorFunc(func(context.Context, string, string, string) (GeneratedSQL, error) {
			return GeneratedSQL{Query: "SELECT COUNT(*) FROM Orders", Explanation: "count rows"}, nil
		}),
		Repairer: repairerFunc(func(_ context.Context, orig, _, _, _ string) (RepairedSQL, error) {
			return RepairedSQL{Query: orig, Changes: "none"}, nil
		}),
		Synthesizer: synthesizerFunc(func(context.Context, string, string, string, string) (SynthesizedAnswer, error) {
			return SynthesizedAnswer{FinalAnswer: "The answer is 42 units", Explanation: "from count", Confidence: "0.9"}, nil
		}),
		Executor: executorFunc(func(context.Context, string) (QueryResult, error) {
			return QueryResult{Rows: [][]interface{}{{int64(42)}}, Columns: []string{"COUNT(*)"}}, nil
		}),
		Schema: "Table: Orders\n  OrderID INTEGER",
		Tables: []string{"Orders", "Products", "Customers"},
		Logger: zaptest.NewLogger(t),
	}
}

func traceNodes(res Result) []string {
	nodes := make([]string, 0, len(res.Trace))
	for _, rec := range res.Trace {
		nodes = append(nodes, rec.Node)
	}
	return nodes
}

func TestRunSQLRouteHappyPath(t *testing.T) {
	engine, err := NewEngine(testConfig(t))
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "How many orders are there?", "int")
	require.NoError(t, err)

	assert.Equal(t, 42, res.FinalAnswer)
	assert.Equal(t, "SELECT COUNT(*) FROM Orders", res.SQL)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, []string{"Orders"}, res.Citations)
	assert.Equal(t,
		[]string{"router", "planner", "sql_generator", "executor", "synthesizer", "validator"},
		traceNodes(res),
	)
}

func TestRunRAGRouteSkipsSQL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router = routerFunc(func(context.Context, string) (RouteDecision, error) {
		return RouteDecision{Route: "rag", Reasoning: "policy question"}, nil
	})
	cfg.Retriever = retrieverFunc(func(context.Context, string, int) ([]Chunk, error) {
		return []Chunk{
			{ChunkID: "catalog::chunk0", Content: "Beverages include teas.", Score: 0.8},
			{ChunkID: "kpi::chunk1", Content: "AOV is revenue over orders.", Score: 0.5},
		}, nil
	})
	var gotContext string
	cfg.Synthesizer = synthesizerFunc(func(_ context.Context, _, _, sqlResults, ragContext string) (SynthesizedAnswer, error) {
		gotContext = ragContext
		assert.Empty(t, sqlResults)
		return SynthesizedAnswer{FinalAnswer: "Teas", Explanation: "from catalog", Confidence: "0.7"}, nil
	})

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "What do beverages include?", "string")
	require.NoError(t, err)

	assert.Equal(t, "Teas", res.FinalAnswer)
	assert.Empty(t, res.SQL)
	assert.Equal(t, "[catalog::chunk0] Beverages include teas.\n\n[kpi::chunk1] AOV is revenue over orders.", gotContext)
	assert.ElementsMatch(t, []string{"catalog::chunk0", "kpi::chunk1"}, res.Citations)
	assert.Equal(t,
		[]string{"router", "retriever", "planner", "synthesizer", "validator"},
		traceNodes(res),
	)
}

func TestRunUnrecognizedRouteDefaultsToHybrid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router = routerFunc(func(context.Context, string) (RouteDecision, error) {
		return RouteDecision{Route: "  BANANAS  ", Reasoning: "??"}, nil
	})

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "anything", "string")
	require.NoError(t, err)

	// Hybrid runs both retrieval and the SQL pipeline.
	assert.Equal(t,
		[]string{"router", "retriever", "planner", "sql_generator", "executor", "synthesizer", "validator"},
		traceNodes(res),
	)
	require.NotEmpty(t, res.Trace)
	assert.Equal(t, "hybrid", res.Trace[0].Observations["route"])
}

func TestRunRepairLoopRecovers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Generator = generatorFunc(func(context.Context, string, string, string) (GeneratedSQL, error) {
		return GeneratedSQL{Query: "```sql\nSELECT bogus FROM Orders\n```"}, nil
	})
	cfg.Repairer = repairerFunc(func(_ context.Context, orig, errMsg, _, _ string) (RepairedSQL, error) {
		assert.Equal(t, "SELECT bogus FROM Orders", orig)
		assert.Contains(t, errMsg, "no such column")
		return RepairedSQL{Query: "SELECT OrderID FROM Orders", Changes: "fixed column"}, nil
	})
	executions := 0
	cfg.Executor = executorFunc(func(_ context.Context, query string) (QueryResult, error) {
		executions++
		if query == "SELECT bogus FROM Orders" {
			return QueryResult{Error: "no such column: bogus"}, nil
		}
		return QueryResult{Rows: [][]interface{}{{int64(7)}}, Columns: []string{"OrderID"}}, nil
	})

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "first order id", "int")
	require.NoError(t, err)

	assert.Equal(t, 2, executions)
	assert.Equal(t, "SELECT OrderID FROM Orders", res.SQL)

	counts := map[string]int{}
	for _, n := range traceNodes(res) {
		counts[n]++
	}
	assert.Equal(t, 2, counts["executor"])
	assert.Equal(t, 1, counts["repairer"])
}

func TestRunRepairBudgetExhausted(t *testing.T) {
	cfg := testConfig(t)
	executions := 0
	cfg.Executor = executorFunc(func(context.Context, string) (QueryResult, error) {
		executions++
		return QueryResult{Error: "syntax error"}, nil
	})
	repairs := 0
	cfg.Repairer = repairerFunc(func(context.Context, string, string, string, string) (RepairedSQL, error) {
		repairs++
		return RepairedSQL{Query: fmt.Sprintf("SELECT %d", repairs)}, nil
	})
	synthesized := false
	cfg.Synthesizer = synthesizerFunc(func(_ context.Context, _, _, sqlResults, _ string) (SynthesizedAnswer, error) {
		synthesized = true
		assert.Empty(t, sqlResults)
		return SynthesizedAnswer{FinalAnswer: "unknown", Confidence: "0.2"}, nil
	})

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "impossible", "string")
	require.NoError(t, err)

	// One initial execution plus one per repair attempt; the third failure is final.
	assert.Equal(t, 3, executions)
	assert.Equal(t, 2, repairs)
	assert.True(t, synthesized)
	assert.Equal(t, "unknown", res.FinalAnswer)

	counts := map[string]int{}
	for _, n := range traceNodes(res) {
		counts[n]++
	}
	assert.Equal(t, 3, counts["executor"])
	assert.Equal(t, 2, counts["repairer"])
	assert.Equal(t, 1, counts["synthesizer"])
}

func TestRunMalformedPlannerDegradesToEmptyConstraints(t *testing.T) {
	cfg := testConfig(t)
	cfg.Planner = plannerFunc(func(context.Context, string, string) (Constraints, error) {
		return Constraints{}, fmt.Errorf("missing field: %w", ErrMalformedOutput)
	})
	var gotConstraints string
	cfg.Generator = generatorFunc(func(_ context.Context, _, _, constraintsJSON string) (GeneratedSQL, error) {
		gotConstraints = constraintsJSON
		return GeneratedSQL{Query: "SELECT 1"}, nil
	})

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "q", "int")
	require.NoError(t, err)

	assert.Contains(t, gotConstraints, `"date_ranges": ""`)
	assert.Contains(t, gotConstraints, `"entities": ""`)
}

func TestRunInfrastructureErrorPropagates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Generator = generatorFunc(func(context.Context, string, string, string) (GeneratedSQL, error) {
		return GeneratedSQL{}, errors.New("connection refused")
	})

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "q", "int")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunCanceledContext(t *testing.T) {
	engine, err := NewEngine(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Run(ctx, "q", "int")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	cfg := testConfig(t)
	cfg.Synthesizer = nil
	_, err := NewEngine(cfg)
	require.Error(t, err)
}

func TestValidatorRecordsResult(t *testing.T) {
	engine, err := NewEngine(testConfig(t))
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "q", "int")
	require.NoError(t, err)

	last := res.Trace[len(res.Trace)-1]
	assert.Equal(t, "validator", last.Node)
	assert.Equal(t, true, last.Observations["valid"])
}
