package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/code-rag-indexer/internal/embedder"
	"github.com/mvp-joe/code-rag-indexer/internal/graph"
	"github.com/mvp-joe/code-rag-indexer/internal/vectorstore"
)

// defaultContextBudget bounds the assembled Context string when a request
// does not override it.
const defaultContextBudget = 8000

// resultCacheWeight bounds the query planner's result cache, costed by
// assembled context length the same way internal/graph costs its neighbor
// cache by result-slice length.
const resultCacheWeight = 2_000_000

// Planner answers queries against one project's vector and graph stores.
type Planner struct {
	vectors       *vectorstore.Store
	graphs        *graph.Store
	embed         *embedder.Client
	model         string
	contextBudget int

	// resultCache holds whole Plan results for requests with no Filter
	// (a Filter is an unkeyable func, so filtered requests bypass the
	// cache). Repeated queries against an unchanged index - the common
	// case between a watcher's debounce window and the next file event -
	// skip re-embedding and re-searching entirely.
	resultCache otter.Cache[string, *Response]
}

// Config carries a Planner's tunables.
type Config struct {
	EmbedModel    string
	ContextBudget int
}

func (c Config) withDefaults() Config {
	if c.ContextBudget <= 0 {
		c.ContextBudget = defaultContextBudget
	}
	return c
}

// New builds a Planner over one project's already-open stores.
func New(vectors *vectorstore.Store, graphs *graph.Store, embed *embedder.Client, cfg Config) (*Planner, error) {
	cfg = cfg.withDefaults()

	cache, err := otter.MustBuilder[string, *Response](resultCacheWeight).
		Cost(func(key string, value *Response) uint32 { return uint32(len(value.Context) + 1) }).
		Build()
	if err != nil {
		return nil, fmt.Errorf("query: build result cache: %w", err)
	}

	return &Planner{
		vectors:       vectors,
		graphs:        graphs,
		embed:         embed,
		model:         cfg.EmbedModel,
		contextBudget: cfg.ContextBudget,
		resultCache:   cache,
	}, nil
}

// Invalidate drops all cached results. Callers (the owning pipeline) call
// this after any successful write to the project's vector or graph store,
// since a cached Plan result can otherwise outlive the data it was
// computed from.
func (p *Planner) Invalidate() {
	p.resultCache.Clear()
}

func cacheKey(req Request) string {
	var b strings.Builder
	b.WriteString(req.QueryText)
	b.WriteByte('\x00')
	b.WriteString(strconv.Itoa(req.K))
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatFloat(float64(req.MinScore), 'f', -1, 32))
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatBool(req.IncludeGraphContext))
	return b.String()
}

// Plan runs the full query algorithm of spec.md §4.11: expand, embed,
// search, filter, expand graph context, re-rank, assemble context.
func (p *Planner) Plan(ctx context.Context, req Request) (*Response, error) {
	if req.K <= 0 {
		req.K = 10
	}

	var key string
	if req.Filter == nil {
		key = cacheKey(req)
		if cached, ok := p.resultCache.Get(key); ok {
			return cached, nil
		}
	}

	candidates := expandQuery(req.QueryText)
	embeddings, err := p.embed.Embed(ctx, embedder.Request{Texts: candidates, Model: p.model, Mode: embedder.ModeQuery})
	if err != nil {
		return nil, fmt.Errorf("query: embed candidates: %w", err)
	}
	queryVector := averageVectors(embeddings)

	kPrime := req.K * 2
	if kPrime < 20 {
		kPrime = 20
	}
	raw, err := p.vectors.KNN(queryVector, kPrime, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("query: knn: %w", err)
	}

	hits := make([]ChunkHit, 0, len(raw))
	for _, r := range raw {
		if r.Score < req.MinScore {
			continue
		}
		hit := ChunkHit{
			ChunkID:      r.ChunkID,
			Score:        r.Score,
			RelativePath: r.Metadata.RelativePath,
			Language:     r.Metadata.Language,
			Kind:         r.Metadata.Kind,
			Name:         r.Metadata.Name,
			StartLine:    r.Metadata.StartLine,
			EndLine:      r.Metadata.EndLine,
			Text:         r.Text,
		}
		if req.IncludeGraphContext {
			hit.Related = p.graphContext(hit)
		}
		hits = append(hits, hit)
	}

	rerank(hits)
	hits = demoteSubstringDuplicates(hits)
	if len(hits) > req.K {
		hits = hits[:req.K]
	}

	resp := &Response{
		Results: hits,
		Context: assembleContext(hits, p.contextBudget),
	}
	if key != "" {
		p.resultCache.Set(key, resp)
	}
	return resp, nil
}

// graphContext reconstructs hit's graph node id and fetches its 1-hop
// neighbors. Only module/class/function kinds have graph nodes; anything
// else (e.g. a sliding-window chunk) has no analogue and yields nothing.
func (p *Planner) graphContext(hit ChunkHit) []GraphNeighbor {
	kind, ok := graphKindFor(hit.Kind)
	if !ok {
		return nil
	}
	nodeID := graph.NodeID(hit.RelativePath, kind, hit.Name, hit.StartLine, hit.EndLine)
	neighbors, err := p.graphs.Neighbors(nodeID, graph.DirBoth, nil)
	if err != nil || len(neighbors) == 0 {
		return nil
	}
	out := make([]GraphNeighbor, len(neighbors))
	for i, n := range neighbors {
		out[i] = GraphNeighbor{
			NodeID:    n.ID,
			Kind:      string(n.Kind),
			Name:      n.Name,
			FilePath:  n.FilePath,
			StartLine: n.StartLine,
			EndLine:   n.EndLine,
		}
	}
	return out
}

func graphKindFor(chunkKind string) (graph.NodeKind, bool) {
	switch chunkKind {
	case "module":
		return graph.NodeModule, true
	case "class":
		return graph.NodeClass, true
	case "function":
		return graph.NodeFunction, true
	default:
		return "", false
	}
}

// rerank orders hits by score descending, tie-breaking on path then start
// line, in place.
func rerank(hits []ChunkHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].RelativePath != hits[j].RelativePath {
			return hits[i].RelativePath < hits[j].RelativePath
		}
		return hits[i].StartLine < hits[j].StartLine
	})
}

// demoteSubstringDuplicates moves any hit whose text is a strict substring
// of a higher-ranked same-file hit's text to the end of the slice, in their
// relative order, without dropping them.
func demoteSubstringDuplicates(hits []ChunkHit) []ChunkHit {
	kept := make([]ChunkHit, 0, len(hits))
	demoted := make([]ChunkHit, 0)
	for i, h := range hits {
		dup := false
		for j := 0; j < i; j++ {
			o := hits[j]
			if o.RelativePath == h.RelativePath && h.Text != o.Text && strings.Contains(o.Text, h.Text) {
				dup = true
				break
			}
		}
		if dup {
			demoted = append(demoted, h)
		} else {
			kept = append(kept, h)
		}
	}
	return append(kept, demoted...)
}

// assembleContext concatenates hits' text in ranked order, each prefixed
// with its location, stopping once adding the next entry would exceed
// budget bytes. The first entry is always included, even when it alone
// exceeds budget.
func assembleContext(hits []ChunkHit, budget int) string {
	var b strings.Builder
	for _, h := range hits {
		entry := fmt.Sprintf("%s:%d-%d\n%s\n\n", h.RelativePath, h.StartLine, h.EndLine, h.Text)
		if b.Len() > 0 && b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
		if b.Len() > budget {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// expandQuery returns the set of candidate search strings derived from a
// raw query: the verbatim text, the fence-stripped text, and an
// identifier-boundary-split, fence-stripped, lowercased variant,
// deduplicated.
func expandQuery(q string) []string {
	stripped := stripMarkdownFences(q)
	split := splitIdentifierBoundaries(stripped)
	normalized := strings.ToLower(strings.TrimSpace(split))

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(strings.TrimSpace(q))
	add(stripped)
	add(normalized)
	return out
}

// stripMarkdownFences drops any line whose trimmed content begins a fenced
// code block marker, leaving the fence's contents and surrounding prose.
func stripMarkdownFences(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// splitIdentifierBoundaries inserts spaces at underscores and at
// lowercase/digit-to-uppercase transitions, so "parseJSONFile" and
// "parse_json_file" both expand to "parse JSON File" / "parse json file".
func splitIdentifierBoundaries(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// averageVectors returns the component-wise mean of embeddings' vectors.
// Embeddings is always non-empty since expandQuery always yields at least
// one candidate.
func averageVectors(embeddings []embedder.Embedding) []float32 {
	if len(embeddings) == 1 {
		return embeddings[0].Vector
	}
	dim := len(embeddings[0].Vector)
	sum := make([]float32, dim)
	for _, e := range embeddings {
		for i, v := range e.Vector {
			sum[i] += v
		}
	}
	n := float32(len(embeddings))
	for i := range sum {
		sum[i] /= n
	}
	return sum
}
