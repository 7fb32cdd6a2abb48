package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"gamehub/internal/fetch"
	"gamehub/pkg/logger"
)

const (
	igdbBaseURL    = "https://api.igdb.com/v4"
	twitchTokenURL = "https://id.twitch.tv/oauth2/token"

	igdbFields = "fields name,slug,aggregated_rating,aggregated_rating_count,rating,rating_count," +
		"genres.name,themes.name,summary,first_release_date;"
)

type IGDBConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// GameMetadata is the normalized IGDB record.
type GameMetadata struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug,omitempty"`
	CriticScore *float64 `json:"criticScore,omitempty"`
	CriticCount int      `json:"criticCount"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount int      `json:"ratingCount"`
	Genres      []string `json:"genres"`
	Themes      []string `json:"themes"`
	Summary     string   `json:"summary,omitempty"`
	ReleaseYear int      `json:"releaseYear,omitempty"`
}

// IGDB is the universal metadata provider, authenticated with a Twitch
// client-credentials token that is cached until shortly before it expires.
type IGDB struct {
	cfg    IGDBConfig
	client *fetch.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewIGDB(cfg IGDBConfig, client *fetch.Client, log *logger.Logger) *IGDB {
	if cfg.BaseURL == "" {
		cfg.BaseURL = igdbBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = twitchTokenURL
	}
	return &IGDB{cfg: cfg, client: defaultClient(client, "igdb", IGDBPacing, log), now: time.Now}
}

func (p *IGDB) Configured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != ""
}

// Search returns candidates for a title, best provider relevance first.
func (p *IGDB) Search(ctx context.Context, title string) ([]GameMetadata, error) {
	escaped := strings.ReplaceAll(strings.TrimSpace(title), `"`, `\"`)
	body := fmt.Sprintf(`search "%s"; %s limit 10;`, escaped, igdbFields)
	return p.query(ctx, body)
}

func (p *IGDB) Lookup(ctx context.Context, id int64) (*GameMetadata, error) {
	games, err := p.query(ctx, fmt.Sprintf(`%s where id = %d;`, igdbFields, id))
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, ErrNotFound
	}
	return &games[0], nil
}

type igdbGame struct {
	ID                    int64    `json:"id"`
	Name                  string   `json:"name"`
	Slug                  string   `json:"slug"`
	AggregatedRating      *float64 `json:"aggregated_rating"`
	AggregatedRatingCount int      `json:"aggregated_rating_count"`
	Rating                *float64 `json:"rating"`
	RatingCount           int      `json:"rating_count"`
	Genres                []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Themes []struct {
		Name string `json:"name"`
	} `json:"themes"`
	Summary          string `json:"summary"`
	FirstReleaseDate int64  `json:"first_release_date"`
}

func (g igdbGame) normalize() GameMetadata {
	m := GameMetadata{
		ID:          g.ID,
		Title:       g.Name,
		Slug:        g.Slug,
		CriticScore: roundScore(g.AggregatedRating),
		CriticCount: g.AggregatedRatingCount,
		Rating:      roundScore(g.Rating),
		RatingCount: g.RatingCount,
		Genres:      make([]string, 0, len(g.Genres)),
		Themes:      make([]string, 0, len(g.Themes)),
		Summary:     g.Summary,
	}
	for _, x := range g.Genres {
		m.Genres = append(m.Genres, x.Name)
	}
	for _, x := range g.Themes {
		m.Themes = append(m.Themes, x.Name)
	}
	if g.FirstReleaseDate > 0 {
		m.ReleaseYear = time.Unix(g.FirstReleaseDate, 0).UTC().Year()
	}
	return m
}

func (p *IGDB) query(ctx context.Context, body string) ([]GameMetadata, error) {
	if !p.Configured() {
		return nil, wrapErr("igdb", ErrNotConfigured)
	}

	var raw []igdbGame
	err := p.post(ctx, body, &raw)
	if fetch.StatusCode(err) == http.StatusUnauthorized {
		// token revoked early; fetch a fresh one once
		p.invalidate()
		err = p.post(ctx, body, &raw)
	}
	if err != nil {
		return nil, wrapErr("igdb", err)
	}

	out := make([]GameMetadata, 0, len(raw))
	for _, g := range raw {
		out = append(out, g.normalize())
	}
	return out, nil
}

func (p *IGDB) post(ctx context.Context, body string, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Client-ID", p.cfg.ClientID)
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")
	return p.client.PostJSON(ctx, strings.TrimRight(p.cfg.BaseURL, "/")+"/games", header, []byte(body), out)
}

type twitchToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (p *IGDB) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expires) {
		return p.token, nil
	}

	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("client_secret", p.cfg.ClientSecret)
	q.Set("grant_type", "client_credentials")

	var tok twitchToken
	if err := p.client.PostJSON(ctx, p.cfg.TokenURL+"?"+q.Encode(), nil, nil, &tok); err != nil {
		return "", fmt.Errorf("twitch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("twitch token: empty access_token")
	}

	// refresh a minute early
	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	p.token = tok.AccessToken
	p.expires = p.now().Add(max(ttl, 0))
	return p.token, nil
}

func (p *IGDB) invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

func roundScore(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*10) / 10
	return &r
}
