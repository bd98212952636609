package workflow

// Route identifies which information sources a question needs.
type Route string

const (
	RouteUnset  Route = ""
	RouteRAG    Route = "rag"
	RouteSQL    Route = "sql"
	RouteHybrid Route = "hybrid"
)

// NeedsSQL reports whether the route requires the SQL pipeline.
func (r Route) NeedsSQL() bool {
	return r == RouteSQL || r == RouteHybrid
}

// NeedsRetrieval reports whether the route requires document retrieval.
func (r Route) NeedsRetrieval() bool {
	return r == RouteRAG || r == RouteHybrid
}

// Valid reports whether the route is one of the three recognized labels.
func (r Route) Valid() bool {
	return r == RouteRAG || r == RouteSQL || r == RouteHybrid
}

// Chunk is a scored span of document text with a stable identifier.
type Chunk struct {
	ChunkID string  `json:"chunk_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Constraints holds structured hints extracted from a question to guide
// SQL generation. All fields degrade to empty strings when extraction fails.
type Constraints struct {
	DateRanges  string `json:"date_ranges"`
	Entities    string `json:"entities"`
	KPIFormulas string `json:"kpi_formulas"`
	Constraints string `json:"constraints"`
}

// TraceRecord is one entry in the per-question audit log.
type TraceRecord struct {
	Node         string                 `json:"node"`
	Observations map[string]interface{} `json:"observations"`
}

// State is the single record threaded through every step of one workflow run.
// It is owned by the engine and never shared across goroutines; each step
// mutates it in place under single-ownership transfer between sequential steps.
type State struct {
	Question   string
	FormatHint string

	Route Route

	RAGContext string
	RAGChunks  []Chunk

	Constraints Constraints

	SQLQuery   string
	SQLResults [][]interface{}
	SQLColumns []string
	SQLError   string

	FinalAnswer interface{}
	Explanation string
	Confidence  float64
	Citations   []string

	RepairCount int

	Trace []TraceRecord
}

// NewState creates the initial state for one question.
func NewState(question, formatHint string) *State {
	return &State{
		Question:   question,
		FormatHint: formatHint,
	}
}

func (s *State) appendTrace(node string, obs map[string]interface{}) {
	s.Trace = append(s.Trace, TraceRecord{Node: node, Observations: obs})
}

// Result is the external projection of a completed run.
type Result struct {
	FinalAnswer interface{}   `json:"final_answer"`
	SQL         string        `json:"sql"`
	Confidence  float64       `json:"confidence"`
	Explanation string        `json:"explanation"`
	Citations   []string      `json:"citations"`
	Trace       []TraceRecord `json:"trace"`
}

func (s *State) result() Result {
	citations := s.Citations
	if citations == nil {
		citations = []string{}
	}
	return Result{
		FinalAnswer: s.FinalAnswer,
		SQL:         s.SQLQuery,
		Confidence:  s.Confidence,
		Explanation: s.Explanation,
		Citations:   citations,
		Trace:       s.Trace,
	}
}
