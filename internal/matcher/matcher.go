package matcher

import (
	"math"
	"strings"
	"sync"
)

const (
	// DefaultThreshold is the minimum fuzzy score accepted for
	// provider-metadata matching.
	DefaultThreshold = 60
	// YearBonus is added to a fuzzy score when the release year agrees.
	YearBonus = 10
	// MinWordOverlap is the word-overlap ratio catalog merging requires.
	MinWordOverlap = 0.8
)

// Candidate is one existing record the matcher can resolve to.
type Candidate struct {
	ID         int64
	Title      string
	SteamAppID *int64
	SourceIDs  map[string]string // source type -> source-local id
	Year       int
}

// Result is an accepted match. Confidence is nil for authoritative id
// matches and 0-100 for title matches.
type Result struct {
	Candidate  Candidate
	Confidence *int
}

// Authoritative reports whether the match came from an external id.
func (r Result) Authoritative() bool { return r.Confidence == nil }

type entry struct {
	cand Candidate
	norm string
}

// Index holds candidates for repeated matching. It is safe for concurrent
// use; Add makes a newly created record visible to later matches.
type Index struct {
	// Threshold is the acceptance cutoff for Match.
	Threshold int

	mu       sync.RWMutex
	entries  []entry
	byApp    map[int64]int
	bySource map[string]int
}

func NewIndex(cands []Candidate) *Index {
	ix := &Index{
		Threshold: DefaultThreshold,
		byApp:     make(map[int64]int),
		bySource:  make(map[string]int),
	}
	for _, c := range cands {
		ix.add(c)
	}
	return ix
}

func (ix *Index) Add(c Candidate) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.add(c)
}

func (ix *Index) add(c Candidate) {
	ix.entries = append(ix.entries, entry{cand: c, norm: Normalize(c.Title)})
	i := len(ix.entries) - 1
	if c.SteamAppID != nil {
		if _, taken := ix.byApp[*c.SteamAppID]; !taken {
			ix.byApp[*c.SteamAppID] = i
		}
	}
	for source, id := range c.SourceIDs {
		if id != "" {
			ix.bySource[sourceKey(source, id)] = i
		}
	}
}

// SetSourceID records that a candidate is known to source under id.
func (ix *Index) SetSourceID(candidateID int64, source, id string) {
	if id == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.entries {
		if ix.entries[i].cand.ID == candidateID {
			ix.bySource[sourceKey(source, id)] = i
			return
		}
	}
}

// SetSteamAppID records an app id adopted by an existing candidate.
func (ix *Index) SetSteamAppID(candidateID, appID int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, taken := ix.byApp[appID]; taken {
		return
	}
	for i := range ix.entries {
		if ix.entries[i].cand.ID == candidateID {
			id := appID
			ix.entries[i].cand.SteamAppID = &id
			ix.byApp[appID] = i
			return
		}
	}
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// BySteamAppID is the authoritative tier on its own.
func (ix *Index) BySteamAppID(appID int64) (Candidate, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.byApp[appID]
	if !ok {
		return Candidate{}, false
	}
	return ix.entries[i].cand, true
}

// BySourceID finds the candidate already linked to source under id.
func (ix *Index) BySourceID(source, id string) (Candidate, bool) {
	if id == "" {
		return Candidate{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.bySource[sourceKey(source, id)]
	if !ok {
		return Candidate{}, false
	}
	return ix.entries[i].cand, true
}

// Match resolves a title (and optional steam app id and release year) for
// provider-metadata matching: id first, then exact normalized title, then
// the best Levenshtein similarity at or above Threshold.
func (ix *Index) Match(title string, steamAppID *int64, year int) (Result, bool) {
	if steamAppID != nil {
		if c, ok := ix.BySteamAppID(*steamAppID); ok {
			return Result{Candidate: c}, true
		}
	}

	n := Normalize(title)
	if n == "" {
		return Result{}, false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best, bestScore := -1, -1
	for i, e := range ix.entries {
		if e.norm == "" {
			continue
		}
		if e.norm == n {
			full := 100
			return Result{Candidate: e.cand, Confidence: &full}, true
		}
		score := Similarity(n, e.norm)
		if year > 0 && e.cand.Year == year {
			score = min(score+YearBonus, 100)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < ix.Threshold {
		return Result{}, false
	}
	return Result{Candidate: ix.entries[best].cand, Confidence: &bestScore}, true
}

// MatchStrict resolves a title for catalog merging, where a false merge is
// worse than a duplicate: id first, then exact normalized title, then a
// title whose words overlap by at least MinWordOverlap and where one
// normalized title contains the other.
func (ix *Index) MatchStrict(title string, steamAppID *int64) (Result, bool) {
	if steamAppID != nil {
		if c, ok := ix.BySteamAppID(*steamAppID); ok {
			return Result{Candidate: c}, true
		}
	}

	n := Normalize(title)
	if n == "" {
		return Result{}, false
	}
	words := strings.Fields(n)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best, bestScore := -1, -1
	for i, e := range ix.entries {
		if e.norm == "" {
			continue
		}
		if e.norm == n {
			full := 100
			return Result{Candidate: ix.entries[i].cand, Confidence: &full}, true
		}
		if !strings.Contains(e.norm, n) && !strings.Contains(n, e.norm) {
			continue
		}
		overlap := WordOverlap(words, strings.Fields(e.norm))
		if overlap < MinWordOverlap {
			continue
		}
		score := int(math.Round(overlap * 100))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Result{}, false
	}
	return Result{Candidate: ix.entries[best].cand, Confidence: &bestScore}, true
}

// WordOverlap is |A∩B| / max(|A|,|B|) over distinct words.
func WordOverlap(a, b []string) float64 {
	sa := make(map[string]struct{}, len(a))
	for _, w := range a {
		sa[w] = struct{}{}
	}
	sb := make(map[string]struct{}, len(b))
	for _, w := range b {
		sb[w] = struct{}{}
	}
	denom := max(len(sa), len(sb))
	if denom == 0 {
		return 0
	}
	shared := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(denom)
}

func sourceKey(source, id string) string {
	return source + "\x00" + id
}
