package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gamehub/internal/fetch"
	"gamehub/pkg/logger"
)

const steamGridDBBaseURL = "https://www.steamgriddb.com/api/v2"

type SteamGridDBConfig struct {
	APIKey  string
	BaseURL string
}

// GridGame is a SteamGridDB game entry.
type GridGame struct {
	ProviderID  int64  `json:"providerId"`
	Name        string `json:"name"`
	ReleaseYear int    `json:"releaseYear,omitempty"`
}

type SafetyFlags struct {
	NSFW     bool `json:"nsfw"`
	Humor    bool `json:"humor"`
	Epilepsy bool `json:"epilepsy"`
}

// CoverCandidate is one portrait grid offered for a game.
type CoverCandidate struct {
	ID     int64       `json:"id"`
	Score  int         `json:"score"`
	Flags  SafetyFlags `json:"safetyFlags"`
	URL    string      `json:"url"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

// Unsafe reports whether any safety flag is raised.
func (c CoverCandidate) Unsafe() bool {
	return c.Flags.NSFW || c.Flags.Humor || c.Flags.Epilepsy
}

type SteamGridDB struct {
	cfg    SteamGridDBConfig
	client *fetch.Client
}

func NewSteamGridDB(cfg SteamGridDBConfig, client *fetch.Client, log *logger.Logger) *SteamGridDB {
	if cfg.BaseURL == "" {
		cfg.BaseURL = steamGridDBBaseURL
	}
	return &SteamGridDB{cfg: cfg, client: defaultClient(client, "steamgriddb", SteamGridDBPacing, log)}
}

func (s *SteamGridDB) Configured() bool { return s.cfg.APIKey != "" }

type sgdbEnvelope[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data"`
	Errors  []string `json:"errors"`
}

type sgdbGame struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ReleaseDate int64  `json:"release_date"`
}

func (g sgdbGame) normalize() GridGame {
	out := GridGame{ProviderID: g.ID, Name: g.Name}
	if g.ReleaseDate > 0 {
		out.ReleaseYear = time.Unix(g.ReleaseDate, 0).UTC().Year()
	}
	return out
}

type sgdbGrid struct {
	ID       int64  `json:"id"`
	Score    int    `json:"score"`
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	NSFW     bool   `json:"nsfw"`
	Humor    bool   `json:"humor"`
	Epilepsy bool   `json:"epilepsy"`
}

func (s *SteamGridDB) Search(ctx context.Context, term string) ([]GridGame, error) {
	var env sgdbEnvelope[[]sgdbGame]
	if err := s.get(ctx, "/search/autocomplete/"+url.PathEscape(strings.TrimSpace(term)), &env); err != nil {
		return nil, err
	}
	out := make([]GridGame, 0, len(env.Data))
	for _, g := range env.Data {
		out = append(out, g.normalize())
	}
	return out, nil
}

func (s *SteamGridDB) GameBySteamAppID(ctx context.Context, appID int64) (*GridGame, error) {
	var env sgdbEnvelope[sgdbGame]
	if err := s.get(ctx, fmt.Sprintf("/games/steam/%d", appID), &env); err != nil {
		return nil, err
	}
	if env.Data.ID == 0 {
		return nil, ErrNotFound
	}
	g := env.Data.normalize()
	return &g, nil
}

// Grids lists static 600x900 portrait grids for a SteamGridDB game id.
func (s *SteamGridDB) Grids(ctx context.Context, gameID int64) ([]CoverCandidate, error) {
	var env sgdbEnvelope[[]sgdbGrid]
	if err := s.get(ctx, fmt.Sprintf("/grids/game/%d?dimensions=600x900&types=static", gameID), &env); err != nil {
		return nil, err
	}
	out := make([]CoverCandidate, 0, len(env.Data))
	for _, g := range env.Data {
		out = append(out, CoverCandidate{
			ID:     g.ID,
			Score:  g.Score,
			Flags:  SafetyFlags{NSFW: g.NSFW, Humor: g.Humor, Epilepsy: g.Epilepsy},
			URL:    g.URL,
			Width:  g.Width,
			Height: g.Height,
		})
	}
	return out, nil
}

type successReporter interface {
	ok() (bool, []string)
}

func (e *sgdbEnvelope[T]) ok() (bool, []string) { return e.Success, e.Errors }

func (s *SteamGridDB) get(ctx context.Context, path string, out successReporter) error {
	if !s.Configured() {
		return wrapErr("steamgriddb", ErrNotConfigured)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	if err := s.client.GetJSON(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+path, header, out); err != nil {
		return wrapErr("steamgriddb", err)
	}
	if ok, errs := out.ok(); !ok {
		msg := "unsuccessful response"
		if len(errs) > 0 {
			msg = strings.Join(errs, "; ")
		}
		return wrapErr("steamgriddb", errors.New(msg))
	}
	return nil
}
