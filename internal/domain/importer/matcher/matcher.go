// Package matcher resolves free-text subject column headers against the
// course catalog: exact on the normalized subject key first, then fuzzy
// scoring over every catalog name with a fixed acceptance threshold.
package matcher

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/importer/normalizer"
)

// AcceptThreshold is the minimum combined score a fuzzy candidate needs.
// Below it the column is reported unmatched rather than guessed.
const AcceptThreshold = 0.78

// tokenOverlapBonus is added per shared word token between the header and a
// catalog name.
const tokenOverlapBonus = 0.05

// Match is a resolved subject column. Exact distinguishes a clean key hit
// from a fuzzy acceptance so operators can audit the latter.
type Match struct {
	Course catalog.Course
	Exact  bool
	Score  float64
}

type indexEntry struct {
	key    string
	tokens map[string]struct{}
	course catalog.Course
}

// Index is a snapshot of the catalog keyed by normalized subject name. Build
// one per import run; normalization is deterministic, so rebuilding from the
// same catalog yields the same index.
type Index struct {
	byKey   map[string]indexEntry
	entries []indexEntry // sorted by key for deterministic fuzzy scans
}

// NewIndex builds the subject-name index from a catalog snapshot. When two
// course names normalize to the same key the later one wins, matching a map
// rebuild from the same ordering.
func NewIndex(courses []catalog.Course) *Index {
	ix := &Index{byKey: make(map[string]indexEntry, len(courses))}
	for _, c := range courses {
		key := normalizer.SubjectKey(c.Name)
		if key == "" {
			continue
		}
		ix.byKey[key] = indexEntry{key: key, tokens: tokenSet(c.Name), course: c}
	}
	ix.entries = make([]indexEntry, 0, len(ix.byKey))
	for _, e := range ix.byKey {
		ix.entries = append(ix.entries, e)
	}
	sort.Slice(ix.entries, func(i, j int) bool { return ix.entries[i].key < ix.entries[j].key })
	return ix
}

// Len reports the number of distinct subject keys.
func (ix *Index) Len() int { return len(ix.byKey) }

// Match resolves a subject column header. The header is cleaned through the
// shared subject-key normalization, exact-matched, and only then scored
// against every entry. A fuzzy result is accepted only at or above
// AcceptThreshold.
func (ix *Index) Match(header string) (Match, bool) {
	key := normalizer.SubjectKey(header)
	if key == "" {
		return Match{}, false
	}
	if e, ok := ix.byKey[key]; ok {
		return Match{Course: e.course, Exact: true, Score: 1}, true
	}

	tokens := tokenSet(header)
	var best Match
	for _, e := range ix.entries {
		score := similarityRatio(key, e.key) + tokenOverlapBonus*float64(overlap(tokens, e.tokens))
		if score > best.Score {
			best = Match{Course: e.course, Score: score}
		}
	}
	if best.Score >= AcceptThreshold {
		return best, true
	}
	return Match{}, false
}

// similarityRatio is a Levenshtein-based similarity in [0, 1].
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 0
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(max)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range normalizer.Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
