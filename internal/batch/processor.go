package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/cache"
	"github.com/Avatar2001/retail-analytics-copilot/internal/workflow"
)

// maxLineBytes bounds one NDJSON input line.
const maxLineBytes = 1 << 20

// WorkflowRunner runs the workflow for one question.
type WorkflowRunner interface {
	Run(ctx context.Context, question, formatHint string) (workflow.Result, error)
}

// Question is one NDJSON input record.
type Question struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Output is one NDJSON output record. Every input line produces exactly one
// output line, in input order, even when the run fails.
type Output struct {
	ID          string      `json:"id"`
	FinalAnswer interface{} `json:"final_answer"`
	SQL         string      `json:"sql"`
	Confidence  float64     `json:"confidence"`
	Explanation string      `json:"explanation"`
	Citations   []string    `json:"citations"`
}

// Processor drives the workflow over a batch of questions sequentially.
type Processor struct {
	runner  WorkflowRunner
	results *cache.ResultCache
	timeout time.Duration
	logger  *zap.Logger
}

// NewProcessor creates a batch processor. The cache may be nil.
func NewProcessor(runner WorkflowRunner, results *cache.ResultCache, timeout time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{runner: runner, results: results, timeout: timeout, logger: logger}
}

// Process reads NDJSON questions from r and writes one NDJSON result per
// question to w. A failing question yields a degraded record carrying the
// error text; it never aborts the batch.
func (p *Processor) Process(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	enc := json.NewEncoder(w)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var q Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return fmt.Errorf("parse input line %d: %w", line, err)
		}

		out := p.processOne(ctx, q)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("write output line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read batch input: %w", err)
	}

	p.logger.Info("Batch completed", zap.Int("questions", line))
	return nil
}

func (p *Processor) processOne(ctx context.Context, q Question) Output {
	runID := uuid.New().String()
	logger := p.logger.With(
		zap.String("run_id", runID),
		zap.String("question_id", q.ID),
	)
	logger.Info("Processing question", zap.String("question", q.Question))

	if res, ok := p.results.Get(ctx, q.Question, q.FormatHint); ok {
		logger.Info("Result cache hit")
		return projectOutput(q.ID, res)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.run(ctx, q)
	if err != nil {
		logger.Error("Question failed", zap.Error(err))
		return Output{
			ID:          q.ID,
			FinalAnswer: nil,
			Confidence:  0.0,
			Explanation: fmt.Sprintf("Error: %v", err),
			Citations:   []string{},
		}
	}

	p.results.Put(ctx, q.Question, q.FormatHint, res)

	logger.Info("Question answered",
		zap.Float64("confidence", res.Confidence),
		zap.Int("citations", len(res.Citations)),
	)
	return projectOutput(q.ID, res)
}

// run invokes the workflow, converting a panic inside a collaborator into a
// per-question error so the batch survives.
func (p *Processor) run(ctx context.Context, q Question) (res workflow.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow panic: %v", r)
		}
	}()
	return p.runner.Run(ctx, q.Question, q.FormatHint)
}

func projectOutput(id string, res workflow.Result) Output {
	citations := res.Citations
	if citations == nil {
		citations = []string{}
	}
	return Output{
		ID:          id,
		FinalAnswer: res.FinalAnswer,
		SQL:         res.SQL,
		Confidence:  res.Confidence,
		Explanation: res.Explanation,
		Citations:   citations,
	}
}
