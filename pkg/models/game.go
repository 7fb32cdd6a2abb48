package models

import "time"

// Game is the canonical catalog entry. Every source (owned library,
// subscription catalogs, enrichment providers) is resolved onto one Game.
type Game struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	SteamAppID      *int64     `json:"steam_app_id,omitempty"` // authoritative external id
	IGDBID          *int64     `json:"igdb_id,omitempty"`
	SteamGridDBID   *int64     `json:"steamgriddb_id,omitempty"`
	Developer       string     `json:"developer,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
	ReleaseDate     string     `json:"release_date,omitempty"` // YYYY-MM-DD or YYYY
	Description     string     `json:"description,omitempty"`
	CoverURL        string     `json:"cover_url,omitempty"`
	Genres          []string   `json:"genres"`
	Tags            []string   `json:"tags"`
	CriticScore     *float64   `json:"critic_score,omitempty"`
	CommunityRating *float64   `json:"community_rating,omitempty"`
	RatingCount     int        `json:"rating_count"`
	PlaytimeMinutes int        `json:"playtime_minutes"`
	GenresAt        *time.Time `json:"genres_enriched_at,omitempty"`
	CoverAt         *time.Time `json:"cover_enriched_at,omitempty"`
	RatingsAt       *time.Time `json:"ratings_enriched_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Links []PlatformLink `json:"links,omitempty"`
}

// ReleaseYear returns the year part of ReleaseDate, or 0 when unknown.
func (g *Game) ReleaseYear() int {
	return YearOf(g.ReleaseDate)
}

// YearOf extracts a leading four digit year from a date string.
func YearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y := 0
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		y = y*10 + int(r-'0')
	}
	return y
}
