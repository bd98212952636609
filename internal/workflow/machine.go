package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/metrics"
	"github.com/Avatar2001/retail-analytics-copilot/internal/tracing"
)

// node identifies a workflow graph node.
type node int

const (
	nodeRouter node = iota
	nodeRetriever
	nodePlanner
	nodeSQLGenerator
	nodeExecutor
	nodeRepairer
	nodeSynthesizer
	nodeValidator
	nodeTerminal
)

func (n node) String() string {
	switch n {
	case nodeRouter:
		return "router"
	case nodeRetriever:
		return "retriever"
	case nodePlanner:
		return "planner"
	case nodeSQLGenerator:
		return "sql_generator"
	case nodeExecutor:
		return "executor"
	case nodeRepairer:
		return "repairer"
	case nodeSynthesizer:
		return "synthesizer"
	case nodeValidator:
		return "validator"
	case nodeTerminal:
		return "end"
	default:
		return "unknown"
	}
}

// maxRepairAttempts bounds the repair loop per question. The third execution
// failure is accepted as final and passed through to synthesis.
const maxRepairAttempts = 2

// defaultTopK is the number of chunks requested from the retriever.
const defaultTopK = 3

// ErrMalformedOutput marks a collaborator response that did not match the
// expected shape. The engine degrades these to documented fallbacks instead of
// failing the run; any other error is an infrastructure fault and propagates.
var ErrMalformedOutput = errors.New("malformed collaborator output")

// Config wires the collaborators and fixed dataset facts into an Engine.
type Config struct {
	Router      Router
	Retriever   Retriever
	Planner     Planner
	Generator   SQLGenerator
	Repairer    SQLRepairer
	Synthesizer Synthesizer
	Executor    QueryExecutor

	// Schema is the dataset schema string captured once at construction.
	Schema string
	// Tables is the fixed table list used for citation extraction.
	Tables []string

	TopK   int
	Logger *zap.Logger
}

// Engine owns the directed graph and drives one run to completion
// synchronously. It is safe for concurrent use: all per-question state lives
// in the State instance created by Run.
type Engine struct {
	cfg Config
}

// NewEngine validates the wiring and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Router == nil || cfg.Planner == nil || cfg.Generator == nil ||
		cfg.Repairer == nil || cfg.Synthesizer == nil || cfg.Executor == nil {
		return nil, errors.New("workflow: all collaborators must be configured")
	}
	if cfg.Retriever == nil {
		return nil, errors.New("workflow: retriever must be configured")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{cfg: cfg}, nil
}

// Run executes the workflow for one question and returns the result
// projection. Collaborator infrastructure failures abort the run; every
// model-output malformation resolves to a degraded fallback instead.
func (e *Engine) Run(ctx context.Context, question, formatHint string) (Result, error) {
	start := time.Now()
	metrics.WorkflowsStarted.Inc()

	ctx, span := tracing.StartSpan(ctx, "workflow.run")
	defer span.End()

	logger := e.cfg.Logger
	logger.Info("Workflow starting",
		zap.String("question", question),
		zap.String("format_hint", formatHint),
	)

	state := NewState(question, formatHint)

	current := nodeRouter
	for current != nodeTerminal {
		if err := ctx.Err(); err != nil {
			metrics.WorkflowsCompleted.WithLabelValues("canceled").Inc()
			return Result{}, fmt.Errorf("workflow canceled at %s: %w", current, err)
		}

		next, err := e.step(ctx, current, state)
		if err != nil {
			metrics.WorkflowsCompleted.WithLabelValues("error").Inc()
			logger.Error("Workflow step failed",
				zap.Stringer("node", current),
				zap.Error(err),
			)
			return Result{}, fmt.Errorf("step %s: %w", current, err)
		}
		current = next
	}

	elapsed := time.Since(start)
	metrics.WorkflowsCompleted.WithLabelValues("ok").Inc()
	metrics.WorkflowDuration.Observe(elapsed.Seconds())

	logger.Info("Workflow completed",
		zap.String("route", string(state.Route)),
		zap.Int("repair_count", state.RepairCount),
		zap.Int("trace_len", len(state.Trace)),
		zap.Duration("duration", elapsed),
	)

	return state.result(), nil
}

// step invokes one node and resolves the conditional edge out of it.
func (e *Engine) step(ctx context.Context, n node, s *State) (node, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow."+n.String())
	defer span.End()

	switch n {
	case nodeRouter:
		if err := e.stepRoute(ctx, s); err != nil {
			return nodeTerminal, err
		}
		return routeDecision(s), nil

	case nodeRetriever:
		if err := e.stepRetrieve(ctx, s); err != nil {
			return nodeTerminal, err
		}
		return nodePlanner, nil

	case nodePlanner:
		if err := e.stepPlan(ctx, s); err != nil {
			return nodeTerminal, err
		}
		if needsSQL(s) {
			return nodeSQLGenerator, nil
		}
		return nodeSynthesizer, nil

	case nodeSQLGenerator:
		if err := e.stepGenerate(ctx, s); err != nil {
			return nodeTerminal, err
		}
		return nodeExecutor, nil

	case nodeExecutor:
		if err := e.stepExecute(ctx, s); err != nil {
			return nodeTerminal, err
		}
		if sqlSucceeded(s) {
			return nodeSynthesizer, nil
		}
		if repairBudgetExhausted(s) {
			// Accept the degraded state; synthesis tolerates empty results.
			return nodeSynthesizer, nil
		}
		return nodeRepairer, nil

	case nodeRepairer:
		if err := e.stepRepair(ctx, s); err != nil {
			return nodeTerminal, err
		}
		return nodeExecutor, nil

	case nodeSynthesizer:
		if err := e.stepSynthesize(ctx, s); err != nil {
			return nodeTerminal, err
		}
		return nodeValidator, nil

	case nodeValidator:
		e.stepValidate(s)
		if validationPassed(s) {
			return nodeTerminal, nil
		}
		return nodeSynthesizer, nil

	default:
		return nodeTerminal, fmt.Errorf("unknown node %d", n)
	}
}

// Guards are pure functions over the state so edges can be tested in
// isolation from the steps.

func routeDecision(s *State) node {
	if s.Route.NeedsRetrieval() {
		return nodeRetriever
	}
	return nodePlanner
}

func needsSQL(s *State) bool {
	return s.Route.NeedsSQL()
}

func sqlSucceeded(s *State) bool {
	return s.SQLError == ""
}

func repairBudgetExhausted(s *State) bool {
	return s.RepairCount >= maxRepairAttempts
}

// validationPassed always reports valid: the loop-back edge to synthesis is
// wired in step() but never taken. See stepValidate for the recorded check.
func validationPassed(_ *State) bool {
	return true
}
