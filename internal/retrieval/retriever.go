package retrieval

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/metrics"
)

// maxFeatures caps the TF-IDF vocabulary at the most frequent terms.
const maxFeatures = 1000

var tokenPattern = regexp.MustCompile(`\b\w\w+\b`)

// Retriever ranks document chunks against a query with TF-IDF cosine
// similarity. The index is built once at construction and is read-only
// afterwards, so a single Retriever is safe for concurrent use.
type Retriever struct {
	chunks []Chunk
	vocab  map[string]int
	idf    []float64
	// matrix holds one l2-normalized TF-IDF vector per chunk.
	matrix [][]float64
	logger *zap.Logger
}

// New loads every *.md file under docsDir, chunks it and builds the index.
func New(docsDir string, logger *zap.Logger) (*Retriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := filepath.Glob(filepath.Join(docsDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan docs dir: %w", err)
	}
	if entries == nil {
		if _, statErr := os.Stat(docsDir); statErr != nil {
			return nil, fmt.Errorf("docs directory not found: %s: %w", docsDir, statErr)
		}
	}
	sort.Strings(entries)

	var chunks []Chunk
	for _, path := range entries {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read doc %s: %w", path, err)
		}
		source := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		chunks = append(chunks, chunkDocument(string(content), source)...)
	}

	r := &Retriever{chunks: chunks, logger: logger}
	r.fit()

	logger.Info("Retrieval index built",
		zap.Int("documents", len(entries)),
		zap.Int("chunks", len(chunks)),
		zap.Int("vocabulary", len(r.vocab)),
	)
	return r, nil
}

// NewFromChunks builds an index over pre-chunked content. Used by tests.
func NewFromChunks(chunks []Chunk, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{chunks: chunks, logger: logger}
	r.fit()
	return r
}

// terms extracts lowercase unigram and bigram terms, stop words removed.
func terms(text string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)

	kept := words[:0]
	for _, w := range words {
		if !englishStopWords[w] {
			kept = append(kept, w)
		}
	}

	out := make([]string, 0, len(kept)*2)
	out = append(out, kept...)
	for i := 0; i+1 < len(kept); i++ {
		out = append(out, kept[i]+" "+kept[i+1])
	}
	return out
}

// fit builds the vocabulary, idf weights and the normalized chunk vectors.
func (r *Retriever) fit() {
	if len(r.chunks) == 0 {
		r.vocab = map[string]int{}
		return
	}

	docTerms := make([][]string, len(r.chunks))
	corpusFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for i, c := range r.chunks {
		ts := terms(c.Content)
		docTerms[i] = ts
		seen := make(map[string]bool, len(ts))
		for _, t := range ts {
			corpusFreq[t]++
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}
	}

	// Keep the maxFeatures most frequent terms; ties break alphabetically for
	// a deterministic index.
	type termCount struct {
		term  string
		count int
	}
	ranked := make([]termCount, 0, len(corpusFreq))
	for t, c := range corpusFreq {
		ranked = append(ranked, termCount{t, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})
	if len(ranked) > maxFeatures {
		ranked = ranked[:maxFeatures]
	}

	r.vocab = make(map[string]int, len(ranked))
	for i, tc := range ranked {
		r.vocab[tc.term] = i
	}

	n := float64(len(r.chunks))
	r.idf = make([]float64, len(r.vocab))
	for term, col := range r.vocab {
		// Smoothed idf so unseen terms never divide by zero.
		r.idf[col] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	r.matrix = make([][]float64, len(r.chunks))
	for i, ts := range docTerms {
		r.matrix[i] = r.vectorize(ts)
	}
}

// vectorize builds an l2-normalized TF-IDF vector from a term list.
func (r *Retriever) vectorize(ts []string) []float64 {
	vec := make([]float64, len(r.vocab))
	for _, t := range ts {
		if col, ok := r.vocab[t]; ok {
			vec[col]++
		}
	}

	var norm float64
	for col := range vec {
		vec[col] *= r.idf[col]
		norm += vec[col] * vec[col]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for col := range vec {
			vec[col] /= norm
		}
	}
	return vec
}

// Retrieve returns the topK most similar chunks, highest score first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RetrievalLatency.Observe(time.Since(start).Seconds())
	}()

	if len(r.chunks) == 0 || topK <= 0 {
		return nil, nil
	}

	qvec := r.vectorize(terms(query))

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(r.matrix))
	for i, dvec := range r.matrix {
		var dot float64
		for col, v := range qvec {
			dot += v * dvec[col]
		}
		scores[i] = scored{idx: i, score: dot}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]Chunk, 0, topK)
	for _, sc := range scores[:topK] {
		c := r.chunks[sc.idx]
		c.Score = sc.score
		out = append(out, c)
	}
	return out, nil
}

// ChunkByID returns the chunk with the given id, if indexed.
func (r *Retriever) ChunkByID(id string) (Chunk, bool) {
	for _, c := range r.chunks {
		if c.ChunkID == id {
			return c, true
		}
	}
	return Chunk{}, false
}

// Chunks returns every indexed chunk.
func (r *Retriever) Chunks() []Chunk {
	return r.chunks
}
