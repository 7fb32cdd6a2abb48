// Package app wires the catalog engine together from configuration and
// owns the lifecycle of its stores.
package app

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"gamehub/internal/auth"
	"gamehub/internal/catalog"
	"gamehub/internal/covers"
	"gamehub/internal/enrich"
	"gamehub/internal/games"
	"gamehub/internal/hub"
	"gamehub/internal/jobs"
	"gamehub/internal/providers"
	"gamehub/pkg/database"
	"gamehub/pkg/logger"
	"gamehub/pkg/utils"
)

// App holds every service built from one Config. The caller must call
// Close when done.
type App struct {
	Config utils.Config
	Log    *logger.Logger

	DB     *sql.DB
	Badger *badger.DB

	Games   *games.Repo
	Catalog *catalog.Reconciler
	Covers  *covers.Service
	Enrich  *enrich.Service
	Jobs    *jobs.Registry
	Hub     *hub.Hub
	Tokens  auth.TokenService
}

func New(cfg utils.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	bopts := badger.DefaultOptions(filepath.Join(cfg.DataDir, "covers")).
		WithLoggingLevel(badger.WARNING)
	bdb, err := badger.Open(bopts)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening cover history: %w", err)
	}

	p := cfg.Providers
	steam := providers.NewSteam(providers.SteamConfig{APIKey: p.SteamAPIKey, SteamID: p.SteamID}, nil, log)
	steamSpy := providers.NewSteamSpy("", nil, log)
	igdb := providers.NewIGDB(providers.IGDBConfig{ClientID: p.IGDBClientID, ClientSecret: p.IGDBClientSecret}, nil, log)
	grid := providers.NewSteamGridDB(providers.SteamGridDBConfig{APIKey: p.SteamGridDBAPIKey}, nil, log)

	repo := games.NewRepo(db)
	rec := catalog.NewReconciler(repo, log)

	coverSvc := covers.NewService(repo, grid, covers.NewHistoryStore(bdb), log)
	coverSvc.Threshold = cfg.MatchThreshold

	enrichSvc := enrich.NewService(enrich.Deps{
		Games:    repo,
		Catalog:  rec,
		Covers:   coverSvc,
		Steam:    steam,
		SteamSpy: steamSpy,
		IGDB:     igdb,
	}, log)
	enrichSvc.Threshold = cfg.MatchThreshold
	if cfg.RatingsMaxAge > 0 {
		enrichSvc.RatingsMaxAge = cfg.RatingsMaxAge
	}

	h := hub.New(0, log)

	log.Info("app initialized",
		"db", cfg.DBPath,
		"steam", steam.Configured(),
		"igdb", igdb.Configured(),
		"steamgriddb", grid.Configured(),
		"match_threshold", cfg.MatchThreshold,
	)

	return &App{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Badger:  bdb,
		Games:   repo,
		Catalog: rec,
		Covers:  coverSvc,
		Enrich:  enrichSvc,
		Jobs:    jobs.NewRegistry(h, log),
		Hub:     h,
		Tokens: auth.TokenService{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Duration: cfg.Auth.JWTDuration,
		},
	}, nil
}

// Close releases both stores.
func (a *App) Close() error {
	berr := a.Badger.Close()
	if err := a.DB.Close(); err != nil {
		return err
	}
	return berr
}
