package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Avatar2001/retail-analytics-copilot/internal/cache"
	"github.com/Avatar2001/retail-analytics-copilot/internal/workflow"
)

type runnerFunc func(ctx context.Context, question, formatHint string) (workflow.Result, error)

func (f runnerFunc) Run(ctx context.Context, question, formatHint string) (workflow.Result, error) {
	return f(ctx, question, formatHint)
}

func decodeOutputs(t *testing.T, buf *bytes.Buffer) []Output {
	t.Helper()
	var outs []Output
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var out Output
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &out))
		outs = append(outs, out)
	}
	require.NoError(t, scanner.Err())
	return outs
}

func TestProcessAnswersEveryQuestionInOrder(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, question, _ string) (workflow.Result, error) {
		return workflow.Result{
			FinalAnswer: "answer to " + question,
			Confidence:  0.8,
			Citations:   []string{"orders"},
		}, nil
	})
	p := NewProcessor(runner, nil, 0, zaptest.NewLogger(t))

	input := strings.Join([]string{
		`{"id": "q1", "question": "first", "format_hint": "str"}`,
		`{"id": "q2", "question": "second", "format_hint": "str"}`,
	}, "\n")
	var buf bytes.Buffer
	require.NoError(t, p.Process(context.Background(), strings.NewReader(input), &buf))

	outs := decodeOutputs(t, &buf)
	require.Len(t, outs, 2)
	assert.Equal(t, "q1", outs[0].ID)
	assert.Equal(t, "answer to first", outs[0].FinalAnswer)
	assert.Equal(t, "q2", outs[1].ID)
	assert.Equal(t, "answer to second", outs[1].FinalAnswer)
}

func TestProcessDegradesFailedQuestion(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, question, _ string) (workflow.Result, error) {
		if question == "bad" {
			return workflow.Result{}, errors.New("llm service unreachable")
		}
		return workflow.Result{FinalAnswer: float64(7), Confidence: 0.9}, nil
	})
	p := NewProcessor(runner, nil, 0, zaptest.NewLogger(t))

	input := strings.Join([]string{
		`{"id": "q1", "question": "bad", "format_hint": "int"}`,
		`{"id": "q2", "question": "good", "format_hint": "int"}`,
	}, "\n")
	var buf bytes.Buffer
	require.NoError(t, p.Process(context.Background(), strings.NewReader(input), &buf))

	outs := decodeOutputs(t, &buf)
	require.Len(t, outs, 2)

	assert.Nil(t, outs[0].FinalAnswer)
	assert.Zero(t, outs[0].Confidence)
	assert.Contains(t, outs[0].Explanation, "llm service unreachable")
	assert.Equal(t, []string{}, outs[0].Citations)

	assert.Equal(t, float64(7), outs[1].FinalAnswer)
}

func TestProcessRecoversFromPanic(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string) (workflow.Result, error) {
		panic("collaborator exploded")
	})
	p := NewProcessor(runner, nil, 0, zaptest.NewLogger(t))

	var buf bytes.Buffer
	input := `{"id": "q1", "question": "boom", "format_hint": "str"}`
	require.NoError(t, p.Process(context.Background(), strings.NewReader(input), &buf))

	outs := decodeOutputs(t, &buf)
	require.Len(t, outs, 1)
	assert.Nil(t, outs[0].FinalAnswer)
	assert.Contains(t, outs[0].Explanation, "collaborator exploded")
}

func TestProcessSkipsBlankLines(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string) (workflow.Result, error) {
		return workflow.Result{FinalAnswer: "ok"}, nil
	})
	p := NewProcessor(runner, nil, 0, zaptest.NewLogger(t))

	input := "\n" + `{"id": "q1", "question": "a", "format_hint": "str"}` + "\n\n"
	var buf bytes.Buffer
	require.NoError(t, p.Process(context.Background(), strings.NewReader(input), &buf))

	outs := decodeOutputs(t, &buf)
	assert.Len(t, outs, 1)
}

func TestProcessRejectsMalformedLine(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string) (workflow.Result, error) {
		return workflow.Result{}, nil
	})
	p := NewProcessor(runner, nil, 0, zaptest.NewLogger(t))

	var buf bytes.Buffer
	err := p.Process(context.Background(), strings.NewReader("{not json}"), &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestProcessUsesResultCache(t *testing.T) {
	mr := miniredis.RunT(t)
	results := cache.New(cache.Config{Addr: mr.Addr(), TTL: time.Minute}, zaptest.NewLogger(t))
	t.Cleanup(func() { results.Close() })

	calls := 0
	runner := runnerFunc(func(_ context.Context, _, _ string) (workflow.Result, error) {
		calls++
		return workflow.Result{FinalAnswer: "fresh", Confidence: 0.7}, nil
	})
	p := NewProcessor(runner, results, 0, zaptest.NewLogger(t))

	input := `{"id": "q1", "question": "repeat me", "format_hint": "str"}`
	for i := 0; i < 2; i++ {
		var buf bytes.Buffer
		require.NoError(t, p.Process(context.Background(), strings.NewReader(input), &buf))
		outs := decodeOutputs(t, &buf)
		require.Len(t, outs, 1)
		assert.Equal(t, "fresh", outs[0].FinalAnswer)
	}
	assert.Equal(t, 1, calls)
}

func TestProcessAppliesPerQuestionTimeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, _, _ string) (workflow.Result, error) {
		<-ctx.Done()
		return workflow.Result{}, ctx.Err()
	})
	p := NewProcessor(runner, nil, 10*time.Millisecond, zaptest.NewLogger(t))

	var buf bytes.Buffer
	input := `{"id": "q1", "question": "slow", "format_hint": "str"}`
	require.NoError(t, p.Process(context.Background(), strings.NewReader(input), &buf))

	outs := decodeOutputs(t, &buf)
	require.Len(t, outs, 1)
	assert.Contains(t, outs[0].Explanation, context.DeadlineExceeded.Error())
}
