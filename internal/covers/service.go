package covers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamehub/internal/games"
	"gamehub/internal/matcher"
	"gamehub/internal/metrics"
	"gamehub/internal/providers"
	"gamehub/pkg/apperr"
	"gamehub/pkg/logger"
	"gamehub/pkg/models"
)

// Selection is the cover chosen by Next.
type Selection struct {
	GameID        int64  `json:"game_id"`
	SteamGridDBID int64  `json:"steamgriddb_id"`
	CoverID       int64  `json:"cover_id"`
	URL           string `json:"url"`
	Score         int    `json:"score"`
	Unsafe        bool   `json:"unsafe"`
	Tried         int    `json:"tried"`
}

type Service struct {
	Games     *games.Repo
	Grid      *providers.SteamGridDB
	History   *HistoryStore
	Threshold int

	log *logger.Logger
	now func() time.Time
}

func NewService(repo *games.Repo, grid *providers.SteamGridDB, history *HistoryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		Games:     repo,
		Grid:      grid,
		History:   history,
		Threshold: matcher.DefaultThreshold,
		log:       log,
		now:       time.Now,
	}
}

// Next assigns the best cover for the game not tried before and records it.
// It returns apperr.ErrExhaustedOptions once every candidate has been used.
func (s *Service) Next(ctx context.Context, gameID int64) (*Selection, error) {
	g, err := s.Games.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	if g == nil {
		return nil, apperr.NotFound("game", gameID)
	}

	gridID, err := s.resolveGridGame(ctx, g)
	if err != nil {
		return nil, err
	}

	cands, err := s.Grid.Grids(ctx, gridID)
	if err != nil {
		return nil, fmt.Errorf("list grids: %w", err)
	}
	if len(cands) == 0 {
		metrics.CoverSelections.WithLabelValues("none").Inc()
		return nil, apperr.NotFound("covers for game", gameID)
	}

	tried, err := s.History.Tried(ctx, gameID)
	if err != nil {
		return nil, err
	}

	best, fallback, ok := SelectBest(cands, tried)
	if !ok {
		metrics.CoverSelections.WithLabelValues("exhausted").Inc()
		return nil, apperr.ErrExhaustedOptions
	}
	if fallback {
		metrics.CoverSelections.WithLabelValues("fallback_unsafe").Inc()
	} else {
		metrics.CoverSelections.WithLabelValues("selected").Inc()
	}

	if err := s.History.Append(ctx, gameID, best.ID); err != nil {
		return nil, err
	}
	if err := s.Games.SetCover(ctx, gameID, best.URL, gridID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("store cover: %w", err)
	}

	s.log.Debug("cover selected", "game_id", gameID, "cover_id", best.ID, "score", best.Score, "fallback", fallback)
	return &Selection{
		GameID:        gameID,
		SteamGridDBID: gridID,
		CoverID:       best.ID,
		URL:           best.URL,
		Score:         best.Score,
		Unsafe:        best.Unsafe(),
		Tried:         len(tried) + 1,
	}, nil
}

// HistoryFor returns the stored history for an existing game.
func (s *Service) HistoryFor(ctx context.Context, gameID int64) (*History, error) {
	if err := s.requireGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.History.Load(ctx, gameID)
}

// ResetHistory makes every candidate eligible again.
func (s *Service) ResetHistory(ctx context.Context, gameID int64) error {
	if err := s.requireGame(ctx, gameID); err != nil {
		return err
	}
	return s.History.Reset(ctx, gameID)
}

func (s *Service) requireGame(ctx context.Context, gameID int64) error {
	g, err := s.Games.GetByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("get game: %w", err)
	}
	if g == nil {
		return apperr.NotFound("game", gameID)
	}
	return nil
}

// resolveGridGame finds the SteamGridDB id: stored id, then steam app id,
// then a title search matched against the game's title and year.
func (s *Service) resolveGridGame(ctx context.Context, g *models.Game) (int64, error) {
	if g.SteamGridDBID != nil {
		return *g.SteamGridDBID, nil
	}

	if g.SteamAppID != nil {
		gg, err := s.Grid.GameBySteamAppID(ctx, *g.SteamAppID)
		switch {
		case err == nil:
			return gg.ProviderID, nil
		case !errors.Is(err, providers.ErrNotFound):
			return 0, fmt.Errorf("steamgriddb by app id: %w", err)
		}
	}

	found, err := s.Grid.Search(ctx, g.Title)
	if err != nil {
		return 0, fmt.Errorf("steamgriddb search: %w", err)
	}
	cands := make([]matcher.Candidate, 0, len(found))
	for _, f := range found {
		cands = append(cands, matcher.Candidate{ID: f.ProviderID, Title: f.Name, Year: f.ReleaseYear})
	}
	ix := matcher.NewIndex(cands)
	ix.Threshold = s.Threshold
	res, ok := ix.Match(g.Title, nil, g.ReleaseYear())
	if !ok {
		return 0, apperr.NotFound("steamgriddb game", g.Title)
	}
	return res.Candidate.ID, nil
}
