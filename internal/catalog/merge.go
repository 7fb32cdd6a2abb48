package catalog

import (
	"slices"
	"strings"

	"gamehub/pkg/models"
)

// mergeEntry folds what a source says about a game into the stored record.
// The stored title stays canonical. Blank fields are filled, genres are a
// set union, the longer description wins and an existing cover is kept.
// A steam app id is only adopted when the game has none and canAdoptApp
// says no other game holds it. It reports whether anything changed.
func mergeEntry(g *models.Game, e models.SnapshotEntry, canAdoptApp bool) bool {
	changed := false

	fill := func(dst *string, src string) {
		if src = strings.TrimSpace(src); *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&g.Developer, e.Developer)
	fill(&g.Publisher, e.Publisher)
	fill(&g.ReleaseDate, e.ReleaseDate)
	fill(&g.CoverURL, e.CoverURL)

	if desc := strings.TrimSpace(e.Description); len(desc) > len(g.Description) {
		g.Description = desc
		changed = true
	}

	if merged := mergeStringSets(g.Genres, e.Genres); len(merged) != len(g.Genres) {
		g.Genres = merged
		changed = true
	}

	if g.SteamAppID == nil && e.SteamAppID != nil && canAdoptApp {
		id := *e.SteamAppID
		g.SteamAppID = &id
		changed = true
	}
	return changed
}

// mergeStringSets is a case-insensitive union keeping the first spelling.
func mergeStringSets(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range slices.Concat(base, extra) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// newGame builds the record created on first sighting of an entry.
func newGame(e models.SnapshotEntry) *models.Game {
	g := &models.Game{
		Title:       strings.TrimSpace(e.Title),
		SteamAppID:  e.SteamAppID,
		Developer:   strings.TrimSpace(e.Developer),
		Publisher:   strings.TrimSpace(e.Publisher),
		ReleaseDate: strings.TrimSpace(e.ReleaseDate),
		Description: strings.TrimSpace(e.Description),
		CoverURL:    strings.TrimSpace(e.CoverURL),
		Genres:      mergeStringSets(nil, e.Genres),
		Tags:        []string{},
	}
	return g
}
