// Package enrich defines the bulk enrichment jobs: what each job family
// selects from the catalog and how one game is enriched.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gamehub/internal/catalog"
	"gamehub/internal/covers"
	"gamehub/internal/games"
	"gamehub/internal/jobs"
	"gamehub/internal/matcher"
	"gamehub/internal/providers"
	"gamehub/pkg/logger"
	"gamehub/pkg/models"
)

const (
	DefaultRatingsMaxAge = 30 * 24 * time.Hour

	// tags kept from SteamSpy's vote list
	maxTags = 10
)

var errNoMatch = errors.New("no confident provider match")

// Service builds job specs over the catalog and the metadata providers.
type Service struct {
	Games    *games.Repo
	Catalog  *catalog.Reconciler
	Covers   *covers.Service
	Steam    *providers.Steam
	SteamSpy *providers.SteamSpy
	IGDB     *providers.IGDB

	Threshold     int
	RatingsMaxAge time.Duration

	log *logger.Logger
	now func() time.Time
}

type Deps struct {
	Games    *games.Repo
	Catalog  *catalog.Reconciler
	Covers   *covers.Service
	Steam    *providers.Steam
	SteamSpy *providers.SteamSpy
	IGDB     *providers.IGDB
}

func NewService(d Deps, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		Games:         d.Games,
		Catalog:       d.Catalog,
		Covers:        d.Covers,
		Steam:         d.Steam,
		SteamSpy:      d.SteamSpy,
		IGDB:          d.IGDB,
		Threshold:     matcher.DefaultThreshold,
		RatingsMaxAge: DefaultRatingsMaxAge,
		log:           log,
		now:           time.Now,
	}
}

// Spec implements jobs.SpecSource.
func (s *Service) Spec(t jobs.Type) (jobs.Spec, bool) {
	switch t {
	case jobs.TypeGenres:
		return jobs.Spec{Type: t, Concurrency: 2, PerItem: 1500 * time.Millisecond, List: s.genreItems}, true
	case jobs.TypeCovers:
		return jobs.Spec{Type: t, Concurrency: 1, PerItem: time.Second, List: s.coverItems}, true
	case jobs.TypeRatings:
		return jobs.Spec{Type: t, Concurrency: 1, PerItem: 500 * time.Millisecond, List: s.ratingItems}, true
	case jobs.TypeLibraryImport:
		return jobs.Spec{Type: t, Concurrency: 1, PerItem: 200 * time.Millisecond, List: s.libraryItems}, true
	}
	return jobs.Spec{}, false
}

func gameItems(list []models.Game, fn func(ctx context.Context, g models.Game) error) []jobs.Item {
	items := make([]jobs.Item, 0, len(list))
	for _, g := range list {
		g := g
		items = append(items, jobs.Item{
			Label: g.Title,
			Run:   func(ctx context.Context) error { return fn(ctx, g) },
		})
	}
	return items
}

// Genres

func (s *Service) genreItems(ctx context.Context) ([]jobs.Item, error) {
	list, err := s.Games.MissingGenres(ctx)
	if err != nil {
		return nil, err
	}
	return gameItems(list, s.EnrichGenres), nil
}

// EnrichGenres fills genres and tags from SteamSpy when the game has a steam
// app id, otherwise from the best IGDB title match. A game with no result
// is still stamped so it is not selected again.
func (s *Service) EnrichGenres(ctx context.Context, g models.Game) error {
	if g.SteamAppID != nil {
		info, err := s.SteamSpy.AppDetails(ctx, *g.SteamAppID)
		switch {
		case err == nil && len(info.Genres()) > 0:
			return s.Games.SetGenres(ctx, g.ID, info.Genres(), info.TopTags(maxTags), nil, s.now().UTC())
		case err != nil && !errors.Is(err, providers.ErrNotFound):
			return err
		}
	}

	m, err := s.matchIGDB(ctx, g)
	if errors.Is(err, errNoMatch) {
		s.log.Debug("genres: no match", "game_id", g.ID, "title", g.Title)
		return s.Games.SetGenres(ctx, g.ID, nil, nil, nil, s.now().UTC())
	}
	if err != nil {
		return err
	}
	id := m.ID
	return s.Games.SetGenres(ctx, g.ID, m.Genres, m.Themes, &id, s.now().UTC())
}

// Covers

func (s *Service) coverItems(ctx context.Context) ([]jobs.Item, error) {
	list, err := s.Games.MissingCovers(ctx)
	if err != nil {
		return nil, err
	}
	return gameItems(list, func(ctx context.Context, g models.Game) error {
		_, err := s.Covers.Next(ctx, g.ID)
		return err
	}), nil
}

// Ratings

func (s *Service) ratingItems(ctx context.Context) ([]jobs.Item, error) {
	list, err := s.Games.StaleRatings(ctx, s.now().UTC().Add(-s.RatingsMaxAge))
	if err != nil {
		return nil, err
	}
	return gameItems(list, s.RefreshRatings), nil
}

// RefreshRatings looks the game up on IGDB by its stored id, or by title
// when it has none, and stores critic and community ratings.
func (s *Service) RefreshRatings(ctx context.Context, g models.Game) error {
	var m *providers.GameMetadata
	if g.IGDBID != nil {
		found, err := s.IGDB.Lookup(ctx, *g.IGDBID)
		switch {
		case err == nil:
			m = found
		case !errors.Is(err, providers.ErrNotFound):
			return err
		}
	}
	if m == nil {
		found, err := s.matchIGDB(ctx, g)
		if err != nil {
			return err
		}
		m = found
	}

	return s.Games.SetRatings(ctx, g.ID, games.Ratings{
		IGDBID:          m.ID,
		CriticScore:     m.CriticScore,
		CommunityRating: m.Rating,
		RatingCount:     m.RatingCount,
	}, s.now().UTC())
}

func (s *Service) matchIGDB(ctx context.Context, g models.Game) (*providers.GameMetadata, error) {
	found, err := s.IGDB.Search(ctx, g.Title)
	if err != nil {
		return nil, err
	}
	cands := make([]matcher.Candidate, len(found))
	for i, f := range found {
		cands[i] = matcher.Candidate{ID: int64(i), Title: f.Title, Year: f.ReleaseYear}
	}
	ix := matcher.NewIndex(cands)
	ix.Threshold = s.Threshold
	res, ok := ix.Match(g.Title, nil, g.ReleaseYear())
	if !ok {
		return nil, fmt.Errorf("igdb %q: %w", g.Title, errNoMatch)
	}
	return &found[res.Candidate.ID], nil
}

// Library import

// libraryItems fetches the owned Steam library up front; a failure there
// fails the start.
func (s *Service) libraryItems(ctx context.Context) ([]jobs.Item, error) {
	owned, err := s.Steam.OwnedGames(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := s.Catalog.NewBatch(ctx, models.SourceSteam)
	if err != nil {
		return nil, err
	}

	items := make([]jobs.Item, 0, len(owned))
	for _, o := range owned {
		o := o
		items = append(items, jobs.Item{
			Label: o.Title,
			Run: func(ctx context.Context) error {
				return s.importOwned(ctx, batch, o)
			},
		})
	}
	return items, nil
}

func (s *Service) importOwned(ctx context.Context, batch *catalog.Batch, o providers.OwnedGame) error {
	app := o.ExternalID
	res := batch.Apply(ctx, models.SnapshotEntry{
		Title:      o.Title,
		ExternalID: strconv.FormatInt(app, 10),
		SteamAppID: &app,
	})
	if res.Status == catalog.StatusError {
		return errors.New(res.Error)
	}
	return s.Games.SetPlaytime(ctx, *res.GameID, o.MinutesPlayed)
}
