package catalog

import (
	"context"
	"errors"
	"testing"

	"gamehub/internal/games"
	"gamehub/internal/testutil"
	"gamehub/pkg/apperr"
	"gamehub/pkg/models"
)

func newTestReconciler(t *testing.T) (*Reconciler, *games.Repo) {
	t.Helper()
	repo := games.NewRepo(testutil.NewTestDB(t))
	return NewReconciler(repo, nil), repo
}

func appID(v int64) *int64 { return &v }

func snapshot(platform models.SourceType, entries ...models.SnapshotEntry) *models.CatalogSnapshot {
	if entries == nil {
		entries = []models.SnapshotEntry{}
	}
	return &models.CatalogSnapshot{Platform: platform, Games: entries}
}

func mustImport(t *testing.T, r *Reconciler, s *models.CatalogSnapshot) *ImportResult {
	t.Helper()
	res, err := r.Import(context.Background(), s)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	return res
}

func mustSync(t *testing.T, r *Reconciler, s *models.CatalogSnapshot) *SyncResult {
	t.Helper()
	res, err := r.Sync(context.Background(), s)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return res
}

func TestImport_HaloScenario(t *testing.T) {
	r, _ := newTestReconciler(t)
	s := snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Halo Infinite", ExternalID: "hi-1"})

	first := mustImport(t, r, s)
	if first.Total != 1 || first.Added != 1 || first.Linked != 0 || first.Errors != 0 {
		t.Errorf("first import = %+v, want total 1 added 1", first)
	}
	if first.Details[0].Status != StatusAdded || first.Details[0].GameID == nil {
		t.Errorf("detail = %+v", first.Details[0])
	}

	second := mustImport(t, r, s)
	if second.Total != 1 || second.Added != 0 || second.Linked != 1 || second.Errors != 0 {
		t.Errorf("second import = %+v, want total 1 linked 1", second)
	}
	if *second.Details[0].GameID != *first.Details[0].GameID {
		t.Errorf("re-import linked game %d, want %d", *second.Details[0].GameID, *first.Details[0].GameID)
	}
}

func TestImport_Idempotent(t *testing.T) {
	r, repo := newTestReconciler(t)
	s := snapshot(models.SourceEAPlay,
		models.SnapshotEntry{Title: "Mass Effect Legendary Edition", ExternalID: "me-le"},
		models.SnapshotEntry{Title: "It Takes Two"},
		models.SnapshotEntry{Title: "Star Wars Jedi: Survivor", SteamAppID: appID(1774580)},
		models.SnapshotEntry{Title: "Dead Space"},
	)

	mustImport(t, r, s)
	res := mustImport(t, r, s)
	if res.Added != 0 || res.Linked != res.Total || res.Errors != 0 {
		t.Errorf("second import = %+v, want added 0 linked %d", res, res.Total)
	}

	n, err := repo.Count(context.Background(), games.ListQuery{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("games = %d, want 4", n)
	}
}

func TestImport_DuplicatesInsideOneSnapshotLink(t *testing.T) {
	r, repo := newTestReconciler(t)
	res := mustImport(t, r, snapshot(models.SourcePSPlus,
		models.SnapshotEntry{Title: "Returnal", SteamAppID: appID(1649240)},
		models.SnapshotEntry{Title: "Returnal™", SteamAppID: appID(1649240)},
		models.SnapshotEntry{Title: "RETURNAL"},
	))

	if res.Added != 1 || res.Linked != 2 {
		t.Errorf("import = %+v, want added 1 linked 2", res)
	}
	n, _ := repo.Count(context.Background(), games.ListQuery{})
	if n != 1 {
		t.Errorf("games = %d, want 1", n)
	}
}

func TestImport_UniquenessInvariant(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	mustImport(t, r, snapshot(models.SourceSteam,
		models.SnapshotEntry{Title: "Hades", ExternalID: "1145360"},
		models.SnapshotEntry{Title: "Celeste", ExternalID: "504230"},
	))
	mustImport(t, r, snapshot(models.SourceGamePass,
		models.SnapshotEntry{Title: "Hades", SteamAppID: appID(1145360)},
		models.SnapshotEntry{Title: "Celeste", ExternalID: "cel"},
		models.SnapshotEntry{Title: "Celeste", ExternalID: "cel-2"},
	))

	var dupApps, dupLinks int
	if err := repo.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (SELECT steam_app_id FROM games WHERE steam_app_id IS NOT NULL
		GROUP BY steam_app_id HAVING COUNT(*) > 1)`).Scan(&dupApps); err != nil {
		t.Fatal(err)
	}
	if err := repo.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (SELECT game_id, source_type FROM platform_links
		GROUP BY game_id, source_type HAVING COUNT(*) > 1)`).Scan(&dupLinks); err != nil {
		t.Fatal(err)
	}
	if dupApps != 0 || dupLinks != 0 {
		t.Errorf("duplicate app ids = %d, duplicate links = %d; want 0, 0", dupApps, dupLinks)
	}

	g, _ := repo.GetBySteamAppID(ctx, 504230)
	if g == nil {
		t.Fatal("celeste missing")
	}
	links, _ := repo.ListLinks(ctx, g.ID)
	if len(links) != 2 {
		t.Fatalf("links = %+v, want steam + gamepass", links)
	}
	for _, l := range links {
		if l.SourceType == models.SourceGamePass && l.SourceID != "cel-2" {
			t.Errorf("gamepass source id = %q, want the later write cel-2", l.SourceID)
		}
		if l.SourceType == models.SourceSteam && !l.IsPrimary {
			t.Error("creating link should be primary")
		}
	}
}

func TestImport_IDBeatsTitle(t *testing.T) {
	r, _ := newTestReconciler(t)
	first := mustImport(t, r, snapshot(models.SourceSteam,
		models.SnapshotEntry{Title: "DOOM Eternal", SteamAppID: appID(782330)}))

	res := mustImport(t, r, snapshot(models.SourceGamePass,
		models.SnapshotEntry{Title: "Totally Different Name", SteamAppID: appID(782330)}))
	if res.Linked != 1 {
		t.Fatalf("import = %+v, want linked by id", res)
	}
	d := res.Details[0]
	if *d.GameID != *first.Details[0].GameID || d.Confidence != nil {
		t.Errorf("detail = %+v, want authoritative link to game %d", d, *first.Details[0].GameID)
	}
}

func TestImport_MergeFillsBlanks(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	first := mustImport(t, r, snapshot(models.SourceGamePass, models.SnapshotEntry{
		Title:       "Starfield",
		Genres:      []string{"RPG"},
		Description: "Space.",
	}))
	mustImport(t, r, snapshot(models.SourceSteam, models.SnapshotEntry{
		Title:       "Starfield",
		ExternalID:  "1716740",
		Developer:   "Bethesda Game Studios",
		Genres:      []string{"rpg", "Open World"},
		Description: "Starfield is the first new universe in 25 years.",
	}))

	g, err := repo.GetByID(ctx, *first.Details[0].GameID)
	if err != nil || g == nil {
		t.Fatalf("GetByID() = %v, %v", g, err)
	}
	if g.Developer != "Bethesda Game Studios" {
		t.Errorf("developer = %q", g.Developer)
	}
	if len(g.Genres) != 2 || g.Genres[0] != "RPG" || g.Genres[1] != "Open World" {
		t.Errorf("genres = %v, want [RPG Open World]", g.Genres)
	}
	if g.Description != "Starfield is the first new universe in 25 years." {
		t.Errorf("description = %q", g.Description)
	}
	if g.SteamAppID == nil || *g.SteamAppID != 1716740 {
		t.Errorf("steam app id = %v, want adopted 1716740", g.SteamAppID)
	}
}

// Two sources listing the same text for different products are merged.
// This is an accepted risk of title matching, asserted here so a change in
// behavior is noticed.
func TestImport_SameTitleDifferentProductsMerge(t *testing.T) {
	r, repo := newTestReconciler(t)
	mustImport(t, r, snapshot(models.SourceSteam,
		models.SnapshotEntry{Title: "Prey", ExternalID: "480490", ReleaseDate: "2017-05-05"}))
	res := mustImport(t, r, snapshot(models.SourceGOG,
		models.SnapshotEntry{Title: "Prey", ExternalID: "prey-2006", ReleaseDate: "2006-07-11"}))

	if res.Linked != 1 || res.Added != 0 {
		t.Errorf("import = %+v, want the 2006 game merged into the 2017 one", res)
	}
	n, _ := repo.Count(context.Background(), games.ListQuery{})
	if n != 1 {
		t.Errorf("games = %d, want 1", n)
	}
}

func TestImport_DistinctTitlesStaySeparate(t *testing.T) {
	r, _ := newTestReconciler(t)
	mustImport(t, r, snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Forza Horizon 5"}))
	res := mustImport(t, r, snapshot(models.SourceGamePass,
		models.SnapshotEntry{Title: "Forza Horizon 4"},
		models.SnapshotEntry{Title: "Forza Horizon 5 Premium Edition"},
	))
	if res.Added != 2 {
		t.Errorf("import = %+v, want both added as new games", res)
	}
}

func TestImport_Validation(t *testing.T) {
	r, _ := newTestReconciler(t)
	tests := []struct {
		name string
		s    *models.CatalogSnapshot
	}{
		{"unknown platform", snapshot("netflix", models.SnapshotEntry{Title: "x"})},
		{"empty platform", snapshot("", models.SnapshotEntry{Title: "x"})},
		{"missing games", &models.CatalogSnapshot{Platform: models.SourceGamePass}},
		{"missing title", snapshot(models.SourceGamePass, models.SnapshotEntry{ExternalID: "1"})},
		{"blank title", snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Ok"}, models.SnapshotEntry{Title: "   "})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Import(context.Background(), tt.s)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, err := r.Sync(context.Background(), tt.s); !errors.As(err, &ve) {
				t.Errorf("Sync err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSync_OrphanCleanup(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	imp := mustImport(t, r, snapshot(models.SourceGamePass,
		models.SnapshotEntry{Title: "Halo Infinite"},
		models.SnapshotEntry{Title: "Pentiment"},
	))
	pentimentID := *imp.Details[1].GameID

	res := mustSync(t, r, snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Halo Infinite"}))
	if res.Removed != 1 || res.OrphanedDeleted != 1 || res.Remaining != 1 {
		t.Errorf("sync = %+v, want removed 1 orphaned 1 remaining 1", res)
	}
	if len(res.RemovedGames) != 1 || res.RemovedGames[0] != "Pentiment" {
		t.Errorf("removedGames = %v", res.RemovedGames)
	}

	g, err := repo.GetByID(ctx, pentimentID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if g != nil {
		t.Error("orphaned game still exists")
	}
}

func TestSync_KeepsGamesWithOtherLinks(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	imp := mustImport(t, r, snapshot(models.SourceSteam, models.SnapshotEntry{Title: "Hi-Fi Rush", ExternalID: "1817230"}))
	mustImport(t, r, snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Hi-Fi RUSH"}))

	res := mustSync(t, r, snapshot(models.SourceGamePass))
	if res.Removed != 1 || res.OrphanedDeleted != 0 || res.Remaining != 0 {
		t.Errorf("sync = %+v, want removed 1 orphaned 0 remaining 0", res)
	}

	id := *imp.Details[0].GameID
	links, err := repo.ListLinks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].SourceType != models.SourceSteam {
		t.Errorf("links = %+v, want only steam", links)
	}
}

func TestSync_DoomScenario(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	imp := mustImport(t, r, snapshot(models.SourceSteam,
		models.SnapshotEntry{Title: "DOOM Eternal", SteamAppID: appID(782330)}))
	id := *imp.Details[0].GameID
	before, _ := repo.GetByID(ctx, id)

	res := mustSync(t, r, snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Halo Infinite"}))
	if res.Removed != 0 || res.OrphanedDeleted != 0 {
		t.Errorf("sync = %+v, want nothing removed", res)
	}

	after, _ := repo.GetByID(ctx, id)
	if after == nil {
		t.Fatal("DOOM Eternal was deleted")
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("DOOM Eternal was modified")
	}
	links, _ := repo.ListLinks(ctx, id)
	if len(links) != 1 {
		t.Errorf("links = %+v", links)
	}
}

func TestSync_ExactCaseInsensitiveTitles(t *testing.T) {
	r, _ := newTestReconciler(t)
	mustImport(t, r, snapshot(models.SourceUbisoftPlus,
		models.SnapshotEntry{Title: "Assassin's Creed Mirage"},
		models.SnapshotEntry{Title: "Far Cry 6"},
	))

	// punctuation differences are not forgiven by sync
	res := mustSync(t, r, snapshot(models.SourceUbisoftPlus,
		models.SnapshotEntry{Title: "  assassin's creed MIRAGE "},
		models.SnapshotEntry{Title: "Far Cry: 6"},
	))
	if res.Removed != 1 || res.RemovedGames[0] != "Far Cry 6" {
		t.Errorf("sync = %+v, want only Far Cry 6 removed", res)
	}
}

func TestBatch_SeesGamesCreatedAfterItStarted(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	b, err := r.NewBatch(ctx, models.SourceSteam)
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	imp := mustImport(t, r, snapshot(models.SourceGamePass, models.SnapshotEntry{Title: "Hades"}))
	hadesID := *imp.Details[0].GameID

	res := b.Apply(ctx, models.SnapshotEntry{Title: "Hades", ExternalID: "1145360", SteamAppID: appID(1145360)})
	if res.Status != StatusLinked || *res.GameID != hadesID {
		t.Fatalf("apply = %+v, want linked to %d", res, hadesID)
	}
	n, err := repo.Count(ctx, games.ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("games = %d, want 1", n)
	}

	// the batch's own writes do not hide later outside ones
	mustImport(t, r, snapshot(models.SourceEpic, models.SnapshotEntry{Title: "Control", ExternalID: "ctl"}))
	if res := b.Apply(ctx, models.SnapshotEntry{Title: "Control", ExternalID: "870780"}); res.Status != StatusLinked {
		t.Errorf("second apply = %+v, want linked", res)
	}
}

func TestBatch_SurvivesSyncDeletingAGame(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	mustImport(t, r, snapshot(models.SourceEpic, models.SnapshotEntry{Title: "Alan Wake 2"}))
	b, err := r.NewBatch(ctx, models.SourceSteam)
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	if res := mustSync(t, r, snapshot(models.SourceEpic)); res.OrphanedDeleted != 1 {
		t.Fatalf("sync = %+v, want the game deleted", res)
	}

	res := b.Apply(ctx, models.SnapshotEntry{Title: "Alan Wake 2"})
	if res.Status != StatusAdded {
		t.Fatalf("apply = %+v, want added", res)
	}
	g, err := repo.GetByID(ctx, *res.GameID)
	if err != nil || g == nil {
		t.Fatalf("GetByID() = %v, %v", g, err)
	}
}
