package models

// CatalogSnapshot is what one source currently offers. It is only used
// while importing or syncing and never stored.
type CatalogSnapshot struct {
	Platform SourceType      `json:"platform" validate:"required,source_type"`
	Games    []SnapshotEntry `json:"games" validate:"required,dive"`
}

type SnapshotEntry struct {
	Title       string   `json:"title" validate:"required"`
	ExternalID  string   `json:"external_id,omitempty"`
	SteamAppID  *int64   `json:"steam_app_id,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Developer   string   `json:"developer,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Description string   `json:"description,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
}
