package providers

import (
	"context"
	"net/url"
	"strings"

	"gamehub/internal/fetch"
	"gamehub/pkg/logger"
)

const steamBaseURL = "https://api.steampowered.com"

type SteamConfig struct {
	APIKey  string
	SteamID string
	BaseURL string
}

// OwnedGame is one entry of the user's owned Steam library.
type OwnedGame struct {
	ExternalID    int64  `json:"externalId"`
	Title         string `json:"title"`
	MinutesPlayed int    `json:"minutesPlayed"`
}

// Steam reads the authoritative owned library.
type Steam struct {
	cfg    SteamConfig
	client *fetch.Client
}

func NewSteam(cfg SteamConfig, client *fetch.Client, log *logger.Logger) *Steam {
	if cfg.BaseURL == "" {
		cfg.BaseURL = steamBaseURL
	}
	return &Steam{cfg: cfg, client: defaultClient(client, "steam", SteamPacing, log)}
}

func (s *Steam) Configured() bool {
	return s.cfg.APIKey != "" && s.cfg.SteamID != ""
}

type steamOwnedResponse struct {
	Response struct {
		GameCount int `json:"game_count"`
		Games     []struct {
			AppID           int64  `json:"appid"`
			Name            string `json:"name"`
			PlaytimeForever int    `json:"playtime_forever"`
		} `json:"games"`
	} `json:"response"`
}

func (s *Steam) OwnedGames(ctx context.Context) ([]OwnedGame, error) {
	if !s.Configured() {
		return nil, wrapErr("steam", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("key", s.cfg.APIKey)
	q.Set("steamid", s.cfg.SteamID)
	q.Set("include_appinfo", "1")
	q.Set("include_played_free_games", "1")
	q.Set("format", "json")
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/IPlayerService/GetOwnedGames/v1/?" + q.Encode()

	var out steamOwnedResponse
	if err := s.client.GetJSON(ctx, u, nil, &out); err != nil {
		return nil, wrapErr("steam", err)
	}

	games := make([]OwnedGame, 0, len(out.Response.Games))
	for _, g := range out.Response.Games {
		title := strings.TrimSpace(g.Name)
		if title == "" {
			continue
		}
		games = append(games, OwnedGame{ExternalID: g.AppID, Title: title, MinutesPlayed: g.PlaytimeForever})
	}
	return games, nil
}
