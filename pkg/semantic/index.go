package semantic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mcpvgw/vgateway/pkg/catalog"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/logger"
	"github.com/mcpvgw/vgateway/pkg/semantic/tokencounter"
)

// ModelID identifies the default deterministic embedder in persisted
// metadata; an injected higher-quality embedder should use its own id.
const ModelID = "lexical-trigram-v1"

// Match is one ranked result from Query (§4.6, §6 `find` response).
type Match struct {
	QualifiedName   string  `json:"qualifiedName"`
	Score           float64 `json:"score"`
	Provider        string  `json:"provider"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	EstimatedTokens int     `json:"estimatedTokens"`
}

// Filters narrows a Query. Providers is an exact filter, applied before
// ranking; Substring is a fuzzy filter (substring match on name or
// description), applied after ranking, per the "exact filters apply
// before ranking, fuzzy filters after" rule (§4.6).
type Filters struct {
	Providers []string
	Substring string
}

// Result is what Query returns to the gateway server's `find` handler.
type Result struct {
	Matches            []Match
	Total              int
	IndexingInProgress bool
	Indexed            int
	TotalTools         int
}

// Index embeds tool descriptions in the background and answers ranked
// queries against whatever subset is ready (§4.6).
type Index struct {
	store    *Store
	embedder Embedder

	mu          sync.RWMutex
	vectors     map[string][]float32
	recordsMeta map[string]Record
	snapshot    catalog.Snapshot
	fingerprint string
	totalTools  int
	indexed     int
	completedAt *time.Time

	warmUpConcurrency int
	queryBudget       time.Duration

	preferredProvider func(a, b string) string
}

// New constructs an Index over store/embedder with the given warm-up
// fan-out cap and query latency budget (§4.6's 250ms default).
func New(store *Store, embedder Embedder, warmUpConcurrency int, queryBudget time.Duration) *Index {
	if warmUpConcurrency <= 0 {
		warmUpConcurrency = 4
	}
	if queryBudget <= 0 {
		queryBudget = 250 * time.Millisecond
	}
	return &Index{
		store:             store,
		embedder:          embedder,
		vectors:           make(map[string][]float32),
		recordsMeta:       make(map[string]Record),
		warmUpConcurrency: warmUpConcurrency,
		queryBudget:       queryBudget,
	}
}

// SetPreferredProvider attaches the catalog's ConflictPriority
// tiebreaker (catalog.Catalog.PreferredProvider) so Query's ranking
// consults it on a same-score, same-overlap tie between two tools
// sharing a local name, instead of falling straight to lexicographic
// qualified-name order (SPEC_FULL.md "Supplemented features" #1).
// A nil resolver (the default) leaves ties purely lexicographic.
func (idx *Index) SetPreferredProvider(resolver func(a, b string) string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.preferredProvider = resolver
}

// LoadPersisted loads whatever was previously persisted, for reuse
// across restarts when the fingerprint hasn't changed (§4.6, §8 "cache
// reuse" scenario). Call once at startup, before the first catalog change
// reaches Listener.
func (idx *Index) LoadPersisted(ctx context.Context) error {
	meta, err := idx.store.LoadMetadata(ctx)
	if err != nil {
		return err
	}
	records, err := idx.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for name, r := range records {
		idx.vectors[name] = r.Vector
		idx.recordsMeta[name] = r
	}
	if meta != nil {
		idx.fingerprint = meta.Fingerprint
		idx.totalTools = meta.TotalTools
		idx.indexed = meta.IndexedTools
		idx.completedAt = meta.CompletedAt
	}
	return nil
}

// Listener returns a catalog.Listener bound to ctx: on every rebuild it
// decides whether the persisted vectors can be reused wholesale
// (matching fingerprint), reused partially (matching content-hash
// triples), or must be discarded, then launches a bounded warm-up for
// the rest (§4.6 "Persistence", §3 invariant on fingerprint staleness).
func (idx *Index) Listener(ctx context.Context) catalog.Listener {
	return func(event catalog.ChangedEvent) {
		idx.onCatalogChanged(ctx, event)
	}
}

func (idx *Index) onCatalogChanged(ctx context.Context, event catalog.ChangedEvent) {
	snap := event.Snap

	idx.mu.Lock()
	sameFingerprint := idx.fingerprint == snap.Fingerprint && idx.fingerprint != ""
	idx.snapshot = snap
	idx.fingerprint = snap.Fingerprint
	idx.totalTools = len(snap.Tools)
	if !sameFingerprint {
		idx.reconcileLocked(snap)
	}
	needed := idx.pendingLocked(snap)
	idx.mu.Unlock()

	if sameFingerprint && len(needed) == 0 {
		return
	}

	go idx.warmUp(ctx, needed)
}

// reconcileLocked drops any persisted vector whose content hash no
// longer matches the corresponding tool, so only genuinely unchanged
// triples survive a fingerprint change (§4.6).
func (idx *Index) reconcileLocked(snap catalog.Snapshot) {
	current := snap.ByQualifiedName()
	for name, rec := range idx.recordsMeta {
		tool, ok := current[name]
		if !ok {
			delete(idx.vectors, name)
			delete(idx.recordsMeta, name)
			continue
		}
		if HashContent(tool.Description, tool.InputSchema) != rec.DescriptionHash {
			delete(idx.vectors, name)
			delete(idx.recordsMeta, name)
		}
	}
}

func (idx *Index) pendingLocked(snap catalog.Snapshot) []catalog.ToolRecord {
	var pending []catalog.ToolRecord
	for _, t := range snap.Tools {
		if _, ok := idx.vectors[t.QualifiedName]; !ok {
			pending = append(pending, t)
		}
	}
	return pending
}

// warmUp embeds every pending tool with a bounded worker pool, flushing
// each vector to the store as it completes and updating indexedTools
// atomically (§4.6 "Warm-up").
func (idx *Index) warmUp(ctx context.Context, pending []catalog.ToolRecord) {
	if len(pending) == 0 {
		idx.finalizeIfComplete(ctx)
		return
	}

	sem := semaphore.NewWeighted(int64(idx.warmUpConcurrency))
	var wg sync.WaitGroup
	for _, t := range pending {
		t := t
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			idx.embedOne(ctx, t)
		}()
	}
	wg.Wait()
	idx.finalizeIfComplete(ctx)
}

func (idx *Index) embedOne(ctx context.Context, t catalog.ToolRecord) {
	vec, err := idx.embedder.Embed(ctx, t.Description)
	if err != nil {
		logger.Warnw("embedding failed", "tool", t.QualifiedName, "error", err)
		return
	}

	rec := Record{
		QualifiedName:   t.QualifiedName,
		Vector:          vec,
		DescriptionHash: HashContent(t.Description, t.InputSchema),
		SchemaHash:      HashContent("", t.InputSchema),
		ModelID:         ModelID,
	}

	idx.mu.Lock()
	idx.vectors[t.QualifiedName] = vec
	idx.recordsMeta[t.QualifiedName] = rec
	idx.indexed = len(idx.vectors)
	idx.mu.Unlock()

	if err := idx.store.Upsert(ctx, rec); err != nil {
		logger.Warnw("persisting embedding failed", "tool", t.QualifiedName, "error", err)
	}
}

func (idx *Index) finalizeIfComplete(ctx context.Context) {
	idx.mu.Lock()
	complete := idx.indexed >= idx.totalTools
	fingerprint := idx.fingerprint
	total := idx.totalTools
	indexed := idx.indexed
	var completedAt *time.Time
	if complete {
		now := time.Now()
		idx.completedAt = &now
		completedAt = &now
	}
	idx.mu.Unlock()

	if err := idx.store.SaveMetadata(ctx, Metadata{
		Fingerprint: fingerprint, ModelID: ModelID, TotalTools: total, IndexedTools: indexed, CompletedAt: completedAt,
	}); err != nil {
		logger.Warnw("saving semantic index metadata failed", "error", err)
	}
}

// Query embeds the query text and ranks indexed tools by cosine
// similarity, applying Filters, and returns within the configured
// latency budget regardless of warm-up state (§4.6, §8 cold-path
// latency budget).
func (idx *Index) Query(ctx context.Context, query string, k int, filters Filters) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, idx.queryBudget)
	defer cancel()

	if k <= 0 {
		idx.mu.RLock()
		defer idx.mu.RUnlock()
		return Result{Indexed: idx.indexed, TotalTools: idx.totalTools, IndexingInProgress: idx.indexed < idx.totalTools}, nil
	}

	qvec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, gwerrors.Wrap(gwerrors.KindInternal, err, "embedding query")
	}

	idx.mu.RLock()
	snap := idx.snapshot
	candidates := make([]catalog.ToolRecord, 0, len(snap.Tools))
	for _, t := range snap.Tools {
		if !matchesExactFilters(t, filters) {
			continue
		}
		candidates = append(candidates, t)
	}
	vectors := make(map[string][]float32, len(idx.vectors))
	for k2, v := range idx.vectors {
		vectors[k2] = v
	}
	indexed, total := idx.indexed, idx.totalTools
	preferredProvider := idx.preferredProvider
	idx.mu.RUnlock()

	var scoredTools []scoredTool
	for _, t := range candidates {
		vec, ok := vectors[t.QualifiedName]
		if !ok {
			continue
		}
		scoredTools = append(scoredTools, scoredTool{tool: t, score: CosineSimilarity(qvec, vec)})
	}

	sort.Slice(scoredTools, func(i, j int) bool {
		if scoredTools[i].score != scoredTools[j].score {
			return scoredTools[i].score > scoredTools[j].score
		}
		oi := overlap(query, scoredTools[i].tool.LocalName)
		oj := overlap(query, scoredTools[j].tool.LocalName)
		if oi != oj {
			return oi > oj
		}
		if scoredTools[i].tool.LocalName == scoredTools[j].tool.LocalName && preferredProvider != nil {
			if pref := preferredProvider(scoredTools[i].tool.Provider, scoredTools[j].tool.Provider); pref != "" {
				return pref == scoredTools[i].tool.Provider
			}
		}
		return scoredTools[i].tool.QualifiedName < scoredTools[j].tool.QualifiedName
	})

	if filters.Substring != "" {
		scoredTools = filterBySubstring(scoredTools, filters.Substring)
	}

	if len(scoredTools) > k {
		scoredTools = scoredTools[:k]
	}

	matches := make([]Match, 0, len(scoredTools))
	for _, s := range scoredTools {
		matches = append(matches, Match{
			QualifiedName:   s.tool.QualifiedName,
			Score:           s.score,
			Provider:        s.tool.Provider,
			Title:           s.tool.Title,
			Description:     s.tool.Description,
			EstimatedTokens: tokencounter.EstimateTool(s.tool.LocalName, s.tool.Description, s.tool.InputSchema),
		})
	}

	return Result{
		Matches:            matches,
		Total:              len(matches),
		IndexingInProgress: indexed < total,
		Indexed:            indexed,
		TotalTools:         total,
	}, nil
}

// scoredTool pairs a candidate tool with its similarity score for
// ranking and filtering in Query.
type scoredTool struct {
	tool  catalog.ToolRecord
	score float64
}

// matchesExactFilters applies Filters.Providers, the exact filter that
// runs before ranking (§4.6). Substring is fuzzy and is applied after
// ranking instead, by filterBySubstring.
func matchesExactFilters(t catalog.ToolRecord, f Filters) bool {
	if len(f.Providers) > 0 {
		found := false
		for _, p := range f.Providers {
			if p == t.Provider {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// filterBySubstring applies Filters.Substring, the fuzzy filter that
// runs after ranking (§4.6): a case-insensitive substring match against
// the tool's local name, qualified name, or description.
func filterBySubstring(scoredTools []scoredTool, substr string) []scoredTool {
	needle := strings.ToLower(substr)
	filtered := scoredTools[:0]
	for _, s := range scoredTools {
		if strings.Contains(strings.ToLower(s.tool.LocalName), needle) ||
			strings.Contains(strings.ToLower(s.tool.QualifiedName), needle) ||
			strings.Contains(strings.ToLower(s.tool.Description), needle) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// overlap counts query terms that appear as a substring of name,
// case-insensitively, used only as a tiebreak after score (§4.6).
func overlap(query, name string) int {
	name = strings.ToLower(name)
	count := 0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(name, term) {
			count++
		}
	}
	return count
}
