package workflow

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	intPattern   = regexp.MustCompile(`-?\d+`)
	floatPattern = regexp.MustCompile(`-?\d+\.?\d*`)
	// Greedy and (?s) so structured spans may cross newlines.
	jsonSpanPattern = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
)

// ParseAnswer coerces the synthesizer's free-text answer into the shape the
// format hint declares. Every failure degrades to a documented fallback; this
// function never returns an error.
//
//	"int"        first signed integer substring, 0 when absent
//	"float"      first signed decimal substring rounded to 2 places, 0.0 when absent
//	"{...}",
//	"list[...]"  JSON parse of the whole text, else the first {...}/[...] span,
//	             else the raw text unchanged
//	anything else  the trimmed text verbatim
func ParseAnswer(answer, formatHint string) interface{} {
	answer = stripAnswerFence(answer)

	switch {
	case formatHint == "int":
		m := intPattern.FindString(answer)
		if m == "" {
			return 0
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return 0
		}
		return n

	case formatHint == "float":
		m := floatPattern.FindString(answer)
		if m == "" {
			return 0.0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0.0
		}
		return math.Round(f*100) / 100

	case strings.HasPrefix(formatHint, "{") || strings.HasPrefix(formatHint, "list["):
		var v interface{}
		if err := json.Unmarshal([]byte(answer), &v); err == nil {
			return v
		}
		if span := jsonSpanPattern.FindString(answer); span != "" {
			if err := json.Unmarshal([]byte(span), &v); err == nil {
				return v
			}
		}
		return answer

	default:
		return strings.TrimSpace(answer)
	}
}

// defaultConfidence is used whenever the synthesizer's confidence text does
// not parse as a float.
const defaultConfidence = 0.5

// ParseConfidence parses the synthesizer's confidence text, falling back to
// defaultConfidence on malformed output.
func ParseConfidence(text string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return defaultConfidence
	}
	return f
}
