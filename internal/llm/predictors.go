package llm

import (
	"context"
	"fmt"

	"github.com/Avatar2001/retail-analytics-copilot/internal/workflow"
)

// Signature names exposed by the predictor service.
const (
	sigRouter      = "router"
	sigPlanner     = "planner"
	sigNLToSQL     = "nl_to_sql"
	sigSQLRepair   = "sql_repair"
	sigSynthesizer = "synthesizer"
)

// Route classifies the question. A response missing the route field is
// reported as malformed so the engine can apply its hybrid fallback.
func (c *Client) Route(ctx context.Context, question string) (workflow.RouteDecision, error) {
	out, err := c.predict(ctx, sigRouter, map[string]string{
		"question": question,
	})
	if err != nil {
		return workflow.RouteDecision{}, err
	}

	route, ok := out["route"]
	if !ok {
		return workflow.RouteDecision{}, fmt.Errorf("router response missing route: %w", workflow.ErrMalformedOutput)
	}
	return workflow.RouteDecision{
		Route:     route,
		Reasoning: out["reasoning"],
	}, nil
}

// Plan extracts constraints. A response missing any of the four fields is
// reported as malformed; the engine degrades to empty constraints.
func (c *Client) Plan(ctx context.Context, question, docContext string) (workflow.Constraints, error) {
	out, err := c.predict(ctx, sigPlanner, map[string]string{
		"question": question,
		"context":  docContext,
	})
	if err != nil {
		return workflow.Constraints{}, err
	}

	for _, field := range []string{"date_ranges", "entities", "kpi_formulas", "constraints"} {
		if _, ok := out[field]; !ok {
			return workflow.Constraints{}, fmt.Errorf("planner response missing %s: %w", field, workflow.ErrMalformedOutput)
		}
	}
	return workflow.Constraints{
		DateRanges:  out["date_ranges"],
		Entities:    out["entities"],
		KPIFormulas: out["kpi_formulas"],
		Constraints: out["constraints"],
	}, nil
}

// Generate produces a SQL query from the question, schema and constraints.
func (c *Client) Generate(ctx context.Context, question, schema, constraintsJSON string) (workflow.GeneratedSQL, error) {
	out, err := c.predict(ctx, sigNLToSQL, map[string]string{
		"question":    question,
		"schema":      schema,
		"constraints": constraintsJSON,
	})
	if err != nil {
		return workflow.GeneratedSQL{}, err
	}

	query, ok := out["sql_query"]
	if !ok {
		return workflow.GeneratedSQL{}, fmt.Errorf("nl_to_sql response missing sql_query")
	}
	return workflow.GeneratedSQL{
		Query:       query,
		Explanation: out["explanation"],
	}, nil
}

// Repair rewrites a failing query using the execution error as feedback.
func (c *Client) Repair(ctx context.Context, originalQuery, errorMessage, schema, question string) (workflow.RepairedSQL, error) {
	out, err := c.predict(ctx, sigSQLRepair, map[string]string{
		"original_query": originalQuery,
		"error_message":  errorMessage,
		"schema":         schema,
		"question":       question,
	})
	if err != nil {
		return workflow.RepairedSQL{}, err
	}

	query, ok := out["repaired_query"]
	if !ok {
		return workflow.RepairedSQL{}, fmt.Errorf("sql_repair response missing repaired_query")
	}
	return workflow.RepairedSQL{
		Query:   query,
		Changes: out["changes"],
	}, nil
}

// Synthesize produces the final free-text answer.
func (c *Client) Synthesize(ctx context.Context, question, formatHint, sqlResultsJSON, ragContext string) (workflow.SynthesizedAnswer, error) {
	out, err := c.predict(ctx, sigSynthesizer, map[string]string{
		"question":    question,
		"format_hint": formatHint,
		"sql_results": sqlResultsJSON,
		"rag_context": ragContext,
	})
	if err != nil {
		return workflow.SynthesizedAnswer{}, err
	}

	answer, ok := out["final_answer"]
	if !ok {
		return workflow.SynthesizedAnswer{}, fmt.Errorf("synthesizer response missing final_answer")
	}
	return workflow.SynthesizedAnswer{
		FinalAnswer: answer,
		Explanation: out["explanation"],
		Confidence:  out["confidence"],
	}, nil
}
