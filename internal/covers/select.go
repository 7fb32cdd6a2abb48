// Package covers picks portrait cover art for games from SteamGridDB and
// remembers which candidates were already shown so "next" never repeats.
package covers

import (
	"sort"

	"gamehub/internal/providers"
)

// SelectBest returns the highest scored candidate that is neither excluded
// nor flagged unsafe. When only flagged candidates remain it falls back to
// the best of those; fallback reports that case. ok is false only when
// every candidate is excluded.
func SelectBest(cands []providers.CoverCandidate, exclude map[int64]bool) (best providers.CoverCandidate, fallback, ok bool) {
	open := make([]providers.CoverCandidate, 0, len(cands))
	for _, c := range cands {
		if !exclude[c.ID] {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return providers.CoverCandidate{}, false, false
	}

	sort.SliceStable(open, func(i, j int) bool { return open[i].Score > open[j].Score })

	for _, c := range open {
		if !c.Unsafe() {
			return c, false, true
		}
	}
	return open[0], true, true
}
