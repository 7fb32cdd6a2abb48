package models

import "time"

// SourceType identifies where a game is owned or offered.
type SourceType string

const (
	SourceSteam       SourceType = "steam"
	SourceGamePass    SourceType = "gamepass"
	SourceEAPlay      SourceType = "eaplay"
	SourceUbisoftPlus SourceType = "ubisoftplus"
	SourcePSPlus      SourceType = "psplus"
	SourceEpic        SourceType = "epic"
	SourceGOG         SourceType = "gog"
	SourceManual      SourceType = "manual"
)

// SourceTypes is the closed set of accepted sources.
var SourceTypes = []SourceType{
	SourceSteam,
	SourceGamePass,
	SourceEAPlay,
	SourceUbisoftPlus,
	SourcePSPlus,
	SourceEpic,
	SourceGOG,
	SourceManual,
}

func (s SourceType) Valid() bool {
	for _, t := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// PlatformLink joins a Game to one source. There is at most one link per
// (GameID, SourceType).
type PlatformLink struct {
	ID         int64      `json:"id"`
	GameID     int64      `json:"game_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id,omitempty"`
	IsPrimary  bool       `json:"is_primary"`
	CreatedAt  time.Time  `json:"created_at"`
}
