// Package catalog reconciles source catalog snapshots with the local game
// catalog: Import links or creates games, Sync unlinks what a source no
// longer offers and removes games left without any source.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gamehub/internal/games"
	"gamehub/internal/matcher"
	"gamehub/internal/metrics"
	"gamehub/pkg/logger"
	"gamehub/pkg/models"
)

type EntryStatus string

const (
	StatusAdded  EntryStatus = "added"
	StatusLinked EntryStatus = "linked"
	StatusError  EntryStatus = "error"
)

// EntryResult is the outcome of one snapshot entry.
type EntryResult struct {
	Title      string      `json:"title"`
	Status     EntryStatus `json:"status"`
	GameID     *int64      `json:"gameId,omitempty"`
	Confidence *int        `json:"confidence,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type ImportResult struct {
	Platform models.SourceType `json:"platform"`
	Total    int               `json:"total"`
	Added    int               `json:"added"`
	Linked   int               `json:"linked"`
	Errors   int               `json:"errors"`
	Details  []EntryResult     `json:"details"`
}

type SyncResult struct {
	Platform        models.SourceType `json:"platform"`
	Removed         int               `json:"removed"`
	OrphanedDeleted int               `json:"orphanedDeleted"`
	Remaining       int               `json:"remaining"`
	RemovedGames    []string          `json:"removedGames"`
	Errors          []string          `json:"errors,omitempty"`
}

// Reconciler applies snapshots to the catalog. Catalog mutations are
// serialized so concurrent imports never race on the same title.
type Reconciler struct {
	repo *games.Repo
	log  *logger.Logger

	mu  sync.Mutex
	gen uint64 // bumped on every catalog write; guarded by mu
}

func NewReconciler(repo *games.Repo, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{repo: repo, log: log}
}

// Import links every entry of s to a matching game or creates one. Entry
// failures are recorded and never abort the batch.
func (r *Reconciler) Import(ctx context.Context, s *models.CatalogSnapshot) (*ImportResult, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	b, err := r.NewBatch(ctx, s.Platform)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Platform: s.Platform, Total: len(s.Games), Details: make([]EntryResult, 0, len(s.Games))}
	for _, e := range s.Games {
		d := b.Apply(ctx, e)
		switch d.Status {
		case StatusAdded:
			res.Added++
		case StatusLinked:
			res.Linked++
		default:
			res.Errors++
		}
		res.Details = append(res.Details, d)
	}

	r.log.Info("catalog import finished",
		"platform", s.Platform, "total", res.Total, "added", res.Added, "linked", res.Linked, "errors", res.Errors)
	return res, nil
}

// Sync treats s as everything the platform currently offers. Games linked
// to the platform whose title (trimmed, case-insensitive, exact) is not in
// s lose that link; those left without any link are deleted. Games never
// linked to the platform are not touched.
func (r *Reconciler) Sync(ctx context.Context, s *models.CatalogSnapshot) (*SyncResult, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	offered := make(map[string]struct{}, len(s.Games))
	for _, e := range s.Games {
		offered[syncKey(e.Title)] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	linked, err := r.repo.LinkedGames(ctx, s.Platform)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Platform: s.Platform, RemovedGames: []string{}}
	for _, lg := range linked {
		if _, ok := offered[syncKey(lg.Title)]; ok {
			continue
		}

		var orphaned bool
		err := r.repo.WithTx(ctx, func(tx *games.Repo) error {
			removed, err := tx.DeleteLink(ctx, lg.GameID, s.Platform)
			if err != nil || !removed {
				return err
			}
			n, err := tx.CountLinks(ctx, lg.GameID)
			if err != nil {
				return err
			}
			if n == 0 {
				if _, err := tx.Delete(ctx, lg.GameID); err != nil {
					return err
				}
				orphaned = true
			}
			return nil
		})
		if err != nil {
			r.log.Warn("catalog sync: unlink failed", "platform", s.Platform, "game_id", lg.GameID, "err", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", lg.Title, err))
			continue
		}

		r.gen++
		res.Removed++
		res.RemovedGames = append(res.RemovedGames, lg.Title)
		if orphaned {
			res.OrphanedDeleted++
		}
	}

	if res.Remaining, err = r.repo.CountLinked(ctx, s.Platform); err != nil {
		return nil, err
	}

	metrics.CatalogUnlinked.WithLabelValues(string(s.Platform)).Add(float64(res.Removed))
	metrics.CatalogOrphansDeleted.Add(float64(res.OrphanedDeleted))
	r.log.Info("catalog sync finished",
		"platform", s.Platform, "removed", res.Removed, "orphans", res.OrphanedDeleted, "remaining", res.Remaining)
	return res, nil
}

func syncKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Batch applies entries for one platform against a matcher index of the
// whole catalog. Games created by the batch join the index, so a repeated
// title inside one snapshot links instead of duplicating. Writes made by
// anyone else (another batch, a sync) make the batch reload its index
// before its next entry.
type Batch struct {
	r      *Reconciler
	source models.SourceType
	index  *matcher.Index
	gen    uint64
}

func (r *Reconciler) NewBatch(ctx context.Context, source models.SourceType) (*Batch, error) {
	b := &Batch{r: r, source: source}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := b.reload(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// reload rebuilds the index from the store. Caller holds r.mu.
func (b *Batch) reload(ctx context.Context) error {
	ids, err := b.r.repo.Identities(ctx)
	if err != nil {
		return err
	}
	cands := make([]matcher.Candidate, 0, len(ids))
	for _, id := range ids {
		cands = append(cands, candidateOf(id))
	}
	b.index = matcher.NewIndex(cands)
	b.gen = b.r.gen
	return nil
}

// wrote records a write made by this batch, whose index already reflects
// it. Caller holds r.mu.
func (b *Batch) wrote() {
	b.r.gen++
	b.gen = b.r.gen
}

func candidateOf(id games.Identity) matcher.Candidate {
	c := matcher.Candidate{
		ID:         id.ID,
		Title:      id.Title,
		SteamAppID: id.SteamAppID,
		Year:       models.YearOf(id.ReleaseDate),
		SourceIDs:  make(map[string]string, len(id.SourceIDs)),
	}
	for s, v := range id.SourceIDs {
		c.SourceIDs[string(s)] = v
	}
	return c
}

// Apply resolves one entry: steam app id, then an existing link for the
// entry's external id on this platform, then the strict title heuristic.
func (b *Batch) Apply(ctx context.Context, e models.SnapshotEntry) EntryResult {
	e = b.normalize(e)
	res := EntryResult{Title: e.Title}

	if e.Title == "" {
		res.Status = StatusError
		res.Error = "title is required"
		metrics.CatalogEntries.WithLabelValues(string(b.source), string(res.Status)).Inc()
		return res
	}

	b.r.mu.Lock()
	defer b.r.mu.Unlock()

	if b.gen != b.r.gen {
		if err := b.reload(ctx); err != nil {
			b.r.log.Warn("catalog import: reloading index failed", "platform", b.source, "err", err)
			res.Status = StatusError
			res.Error = err.Error()
			metrics.CatalogEntries.WithLabelValues(string(b.source), string(res.Status)).Inc()
			return res
		}
	}

	var err error
	if m, ok := b.resolve(e); ok {
		err = b.link(ctx, m.Candidate.ID, e)
		res.Status = StatusLinked
		res.Confidence = m.Confidence
		id := m.Candidate.ID
		res.GameID = &id
	} else {
		var id int64
		id, err = b.create(ctx, e)
		res.Status = StatusAdded
		res.GameID = &id
	}
	if err != nil {
		b.r.log.Warn("catalog import: entry failed", "platform", b.source, "title", e.Title, "err", err)
		res.Status = StatusError
		res.Error = err.Error()
		res.GameID = nil
		res.Confidence = nil
	}

	metrics.CatalogEntries.WithLabelValues(string(b.source), string(res.Status)).Inc()
	return res
}

func (b *Batch) normalize(e models.SnapshotEntry) models.SnapshotEntry {
	e.Title = strings.TrimSpace(e.Title)
	e.ExternalID = strings.TrimSpace(e.ExternalID)
	// a steam external id is the app id
	if b.source == models.SourceSteam && e.SteamAppID == nil && e.ExternalID != "" {
		if n, err := strconv.ParseInt(e.ExternalID, 10, 64); err == nil && n > 0 {
			e.SteamAppID = &n
		}
	}
	return e
}

func (b *Batch) resolve(e models.SnapshotEntry) (matcher.Result, bool) {
	if e.SteamAppID != nil {
		if c, ok := b.index.BySteamAppID(*e.SteamAppID); ok {
			return matcher.Result{Candidate: c}, true
		}
	}
	if c, ok := b.index.BySourceID(string(b.source), e.ExternalID); ok {
		return matcher.Result{Candidate: c}, true
	}
	return b.index.MatchStrict(e.Title, nil)
}

func (b *Batch) link(ctx context.Context, gameID int64, e models.SnapshotEntry) error {
	var adopted *int64
	err := b.r.repo.WithTx(ctx, func(tx *games.Repo) error {
		g, err := tx.GetByID(ctx, gameID)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("matched game %d vanished", gameID)
		}

		canAdopt := false
		if e.SteamAppID != nil {
			_, taken := b.index.BySteamAppID(*e.SteamAppID)
			canAdopt = !taken
		}
		hadApp := g.SteamAppID != nil
		if mergeEntry(g, e, canAdopt) {
			if err := tx.UpdateMetadata(ctx, g); err != nil {
				return err
			}
			if !hadApp && g.SteamAppID != nil {
				adopted = g.SteamAppID
			}
		}

		return tx.UpsertLink(ctx, models.PlatformLink{GameID: gameID, SourceType: b.source, SourceID: e.ExternalID})
	})
	if err != nil {
		return err
	}

	b.index.SetSourceID(gameID, string(b.source), e.ExternalID)
	if adopted != nil {
		b.index.SetSteamAppID(gameID, *adopted)
	}
	b.wrote()
	return nil
}

func (b *Batch) create(ctx context.Context, e models.SnapshotEntry) (int64, error) {
	g := newGame(e)
	err := b.r.repo.WithTx(ctx, func(tx *games.Repo) error {
		if err := tx.Create(ctx, g); err != nil {
			return err
		}
		return tx.UpsertLink(ctx, models.PlatformLink{
			GameID:     g.ID,
			SourceType: b.source,
			SourceID:   e.ExternalID,
			IsPrimary:  true,
		})
	})
	if err != nil {
		return 0, err
	}

	b.index.Add(matcher.Candidate{
		ID:         g.ID,
		Title:      g.Title,
		SteamAppID: g.SteamAppID,
		Year:       g.ReleaseYear(),
		SourceIDs:  map[string]string{string(b.source): e.ExternalID},
	})
	b.wrote()
	return g.ID, nil
}
