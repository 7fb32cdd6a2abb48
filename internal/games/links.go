package games

import (
	"context"
	"fmt"
	"time"

	"gamehub/pkg/models"
)

// UpsertLink writes the link for (GameID, SourceType). An existing link for
// the same pair is updated in place, keeping its primary flag.
func (r *Repo) UpsertLink(ctx context.Context, l models.PlatformLink) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO platform_links (game_id, source_type, source_id, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id, source_type) DO UPDATE SET
			source_id = CASE WHEN excluded.source_id <> '' THEN excluded.source_id ELSE platform_links.source_id END
	`, l.GameID, string(l.SourceType), l.SourceID, l.IsPrimary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert link %d/%s: %w", l.GameID, l.SourceType, err)
	}
	return nil
}

func (r *Repo) DeleteLink(ctx context.Context, gameID int64, source models.SourceType) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM platform_links WHERE game_id = ? AND source_type = ?
	`, gameID, string(source))
	if err != nil {
		return false, fmt.Errorf("delete link %d/%s: %w", gameID, source, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) CountLinks(ctx context.Context, gameID int64) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM platform_links WHERE game_id = ?
	`, gameID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count links for %d: %w", gameID, err)
	}
	return n, nil
}

func (r *Repo) ListLinks(ctx context.Context, gameID int64) ([]models.PlatformLink, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, game_id, source_type, source_id, is_primary, created_at
		FROM platform_links
		WHERE game_id = ?
		ORDER BY is_primary DESC, source_type ASC
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	out := make([]models.PlatformLink, 0)
	for rows.Next() {
		var l models.PlatformLink
		var source string
		if err := rows.Scan(&l.ID, &l.GameID, &source, &l.SourceID, &l.IsPrimary, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.SourceType = models.SourceType(source)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// LinkedGames lists every game currently linked to source.
func (r *Repo) LinkedGames(ctx context.Context, source models.SourceType) ([]LinkedGame, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT g.id, g.title
		FROM platform_links pl
		JOIN games g ON g.id = pl.game_id
		WHERE pl.source_type = ?
		ORDER BY g.id
	`, string(source))
	if err != nil {
		return nil, fmt.Errorf("list linked games: %w", err)
	}
	defer rows.Close()

	var out []LinkedGame
	for rows.Next() {
		var lg LinkedGame
		if err := rows.Scan(&lg.GameID, &lg.Title); err != nil {
			return nil, fmt.Errorf("scan linked game: %w", err)
		}
		out = append(out, lg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) CountLinked(ctx context.Context, source models.SourceType) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM platform_links WHERE source_type = ?
	`, string(source)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count linked %s: %w", source, err)
	}
	return n, nil
}

// Identity is the slice of a game the identity matcher needs.
type Identity struct {
	ID          int64
	Title       string
	SteamAppID  *int64
	ReleaseDate string
	SourceIDs   map[models.SourceType]string
}

// Identities loads every game with its source-local ids, for building a
// matcher index over the whole catalog.
func (r *Repo) Identities(ctx context.Context) ([]Identity, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT g.id, g.title, g.steam_app_id, g.release_date, pl.source_type, pl.source_id
		FROM games g
		LEFT JOIN platform_links pl ON pl.game_id = g.id
		ORDER BY g.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var (
			id          int64
			title, date string
			appID       *int64
			source, sid *string
		)
		if err := rows.Scan(&id, &title, &appID, &date, &source, &sid); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, Identity{
				ID:          id,
				Title:       title,
				SteamAppID:  appID,
				ReleaseDate: date,
				SourceIDs:   map[models.SourceType]string{},
			})
		}
		if source != nil && sid != nil && *sid != "" {
			out[len(out)-1].SourceIDs[models.SourceType(*source)] = *sid
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}
