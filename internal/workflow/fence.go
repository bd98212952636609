package workflow

import "strings"

// StripCodeFence removes markdown code-fence artifacts from generated SQL.
// The ```sql prefix must be tested before the bare ``` prefix, otherwise the
// "sql" tag would survive the strip.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```sql") {
		s = s[len("```sql"):]
	}
	if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// stripAnswerFence unwraps an answer that is entirely enclosed in a fenced
// block, keeping only the interior lines. Answers that merely contain a fence
// somewhere inside are left alone.
func stripAnswerFence(answer string) string {
	if !strings.HasPrefix(answer, "```") {
		return answer
	}
	lines := strings.Split(answer, "\n")
	if len(lines) <= 2 {
		return answer
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
