package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/metrics"
)

func (e *Engine) stepRoute(ctx context.Context, s *State) error {
	decision, err := e.cfg.Router.Route(ctx, s.Question)
	if err != nil && !errors.Is(err, ErrMalformedOutput) {
		return fmt.Errorf("router: %w", err)
	}

	route := Route(strings.ToLower(strings.TrimSpace(decision.Route)))
	if !route.Valid() {
		// Unrecognized labels are not an error; hybrid is the fail-safe
		// default because it exercises both sources.
		route = RouteHybrid
	}
	s.Route = route
	metrics.RouteDecisions.WithLabelValues(string(route)).Inc()

	e.cfg.Logger.Debug("Question routed",
		zap.String("route", string(route)),
		zap.String("reasoning", decision.Reasoning),
	)

	s.appendTrace("router", map[string]interface{}{
		"route":     string(route),
		"reasoning": decision.Reasoning,
	})
	return nil
}

func (e *Engine) stepRetrieve(ctx context.Context, s *State) error {
	chunks, err := e.cfg.Retriever.Retrieve(ctx, s.Question, e.cfg.TopK)
	if err != nil {
		return fmt.Errorf("retriever: %w", err)
	}

	// Trust the collaborator's descending-score ordering; no re-sort here.
	s.RAGChunks = chunks

	parts := make([]string, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[%s] %s", c.ChunkID, c.Content))
		ids = append(ids, c.ChunkID)
	}
	s.RAGContext = strings.Join(parts, "\n\n")

	// Zero chunks is not an error condition; the trace still records it.
	s.appendTrace("retriever", map[string]interface{}{
		"chunks_found": len(chunks),
		"chunk_ids":    ids,
	})
	return nil
}

func (e *Engine) stepPlan(ctx context.Context, s *State) error {
	constraints, err := e.cfg.Planner.Plan(ctx, s.Question, s.RAGContext)
	if err != nil {
		if !errors.Is(err, ErrMalformedOutput) {
			return fmt.Errorf("planner: %w", err)
		}
		// Extraction is best-effort: malformed planner output degrades to
		// empty constraints rather than aborting the run.
		e.cfg.Logger.Warn("Constraint extraction degraded", zap.Error(err))
		constraints = Constraints{}
	}
	s.Constraints = constraints

	s.appendTrace("planner", map[string]interface{}{
		"constraints": constraints,
	})
	return nil
}

func (e *Engine) stepGenerate(ctx context.Context, s *State) error {
	constraintsJSON, err := json.MarshalIndent(s.Constraints, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	gen, err := e.cfg.Generator.Generate(ctx, s.Question, e.cfg.Schema, string(constraintsJSON))
	if err != nil {
		return fmt.Errorf("sql generator: %w", err)
	}

	s.SQLQuery = StripCodeFence(gen.Query)

	e.cfg.Logger.Debug("SQL generated", zap.String("sql", s.SQLQuery))

	s.appendTrace("sql_generator", map[string]interface{}{
		"sql":         s.SQLQuery,
		"explanation": gen.Explanation,
	})
	return nil
}

func (e *Engine) stepExecute(ctx context.Context, s *State) error {
	res, err := e.cfg.Executor.Execute(ctx, s.SQLQuery)
	if err != nil {
		return fmt.Errorf("query executor: %w", err)
	}

	s.SQLResults = res.Rows
	s.SQLColumns = res.Columns
	s.SQLError = res.Error

	success := res.Error == ""
	status := "ok"
	if !success {
		status = "error"
		e.cfg.Logger.Warn("SQL execution failed",
			zap.String("sql", s.SQLQuery),
			zap.String("error", res.Error),
			zap.Int("repair_count", s.RepairCount),
		)
	}
	metrics.SQLExecutions.WithLabelValues(status).Inc()

	s.appendTrace("executor", map[string]interface{}{
		"success": success,
		"rows":    len(res.Rows),
		"error":   res.Error,
	})
	return nil
}

func (e *Engine) stepRepair(ctx context.Context, s *State) error {
	rep, err := e.cfg.Repairer.Repair(ctx, s.SQLQuery, s.SQLError, e.cfg.Schema, s.Question)
	if err != nil {
		return fmt.Errorf("sql repairer: %w", err)
	}

	s.SQLQuery = StripCodeFence(rep.Query)
	s.RepairCount++
	metrics.RepairAttempts.Inc()

	e.cfg.Logger.Info("SQL repaired",
		zap.Int("attempt", s.RepairCount),
		zap.String("sql", s.SQLQuery),
	)

	s.appendTrace("repairer", map[string]interface{}{
		"repaired_sql":   s.SQLQuery,
		"changes":        rep.Changes,
		"repair_attempt": s.RepairCount,
	})
	return nil
}

func (e *Engine) stepSynthesize(ctx context.Context, s *State) error {
	sqlResultsJSON := ""
	if len(s.SQLResults) > 0 {
		buf, err := json.MarshalIndent(map[string]interface{}{
			"columns": s.SQLColumns,
			"rows":    s.SQLResults,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal sql results: %w", err)
		}
		sqlResultsJSON = string(buf)
	}

	ans, err := e.cfg.Synthesizer.Synthesize(ctx, s.Question, s.FormatHint, sqlResultsJSON, s.RAGContext)
	if err != nil {
		return fmt.Errorf("synthesizer: %w", err)
	}

	s.FinalAnswer = ParseAnswer(ans.FinalAnswer, s.FormatHint)
	s.Explanation = ans.Explanation
	s.Confidence = ParseConfidence(ans.Confidence)
	s.Citations = collectCitations(s, e.cfg.Tables)

	s.appendTrace("synthesizer", map[string]interface{}{
		"final_answer": s.FinalAnswer,
		"explanation":  s.Explanation,
	})
	return nil
}

func (e *Engine) stepValidate(s *State) {
	valid := s.FinalAnswer != nil

	s.appendTrace("validator", map[string]interface{}{
		"valid": valid,
	})
}
