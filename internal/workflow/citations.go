package workflow

import (
	"sort"
	"strings"
)

// collectCitations unions every retrieved chunk's id with every known table
// name referenced by the final SQL query. Table matching is case-insensitive
// and tolerates quoted identifiers because the substring test runs on the
// uppercased query text. The result is deduplicated and sorted for stable
// output.
func collectCitations(s *State, tables []string) []string {
	seen := make(map[string]bool)

	for _, c := range s.RAGChunks {
		seen[c.ChunkID] = true
	}

	if s.SQLQuery != "" {
		sql := strings.ToUpper(s.SQLQuery)
		for _, table := range tables {
			upper := strings.ToUpper(table)
			if strings.Contains(sql, upper) || strings.Contains(sql, `"`+upper+`"`) {
				seen[table] = true
			}
		}
	}

	citations := make([]string, 0, len(seen))
	for c := range seen {
		citations = append(citations, c)
	}
	sort.Strings(citations)
	return citations
}
