package games

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"gamehub/internal/matcher"
	"gamehub/pkg/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
	q  DBTX
}

type ListQuery struct {
	Q        string   // keyword search in title/developer/publisher
	Genres   []string // any-match
	Platform string
	Limit    int
	Offset   int
}

// LinkedGame is a game linked to one source, as seen by catalog sync.
type LinkedGame struct {
	GameID int64
	Title  string
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db, q: db}
}

// WithTx runs fn against a Repo bound to a single transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(tx *Repo) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Repo{DB: r.DB, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const gameColumns = `
	id, title, slug, steam_app_id, igdb_id, steamgriddb_id, developer, publisher,
	release_date, description, cover_url, genres, tags, critic_score, community_rating,
	rating_count, playtime_minutes, genres_enriched_at, cover_enriched_at,
	ratings_enriched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(s rowScanner) (*models.Game, error) {
	var (
		g                         models.Game
		steamAppID, igdbID, sgdb  sql.NullInt64
		genresJSON, tagsJSON      string
		critic, community         sql.NullFloat64
		genresAt, coverAt, rateAt sql.NullTime
	)
	if err := s.Scan(
		&g.ID, &g.Title, &g.Slug, &steamAppID, &igdbID, &sgdb, &g.Developer, &g.Publisher,
		&g.ReleaseDate, &g.Description, &g.CoverURL, &genresJSON, &tagsJSON, &critic, &community,
		&g.RatingCount, &g.PlaytimeMinutes, &genresAt, &coverAt, &rateAt, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}

	g.SteamAppID = nullInt(steamAppID)
	g.IGDBID = nullInt(igdbID)
	g.SteamGridDBID = nullInt(sgdb)
	g.CriticScore = nullFloat(critic)
	g.CommunityRating = nullFloat(community)
	g.GenresAt = nullTime(genresAt)
	g.CoverAt = nullTime(coverAt)
	g.RatingsAt = nullTime(rateAt)

	if err := json.Unmarshal([]byte(genresJSON), &g.Genres); err != nil {
		return nil, fmt.Errorf("decode genres of game %d: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &g.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of game %d: %w", g.ID, err)
	}
	if g.Genres == nil {
		g.Genres = []string{}
	}
	if g.Tags == nil {
		g.Tags = []string{}
	}
	return &g, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Game, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id)
	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getByID: %w", err)
	}
	return g, nil
}

func (r *Repo) GetBySteamAppID(ctx context.Context, appID int64) (*models.Game, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE steam_app_id = ?`, appID)
	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getBySteamAppID: %w", err)
	}
	return g, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.q.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Game, error) {
	sqlStr, args := buildListSQL(q, false)
	return r.queryGames(ctx, sqlStr, args...)
}

func (r *Repo) queryGames(ctx context.Context, query string, args ...any) ([]models.Game, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	out := make([]models.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// buildListSQL builds either COUNT(*) or SELECT list.
// genres filter is "any-match" by doing LIKE searches inside stored JSON text.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `SELECT ` + gameColumns + ` FROM games`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM games`
	}

	var where []string
	var args []any

	if kw := strings.TrimSpace(q.Q); kw != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(developer) LIKE ? OR LOWER(publisher) LIKE ?)")
		kw = "%" + strings.ToLower(kw) + "%"
		args = append(args, kw, kw, kw)
	}

	if p := strings.TrimSpace(q.Platform); p != "" {
		where = append(where, "EXISTS (SELECT 1 FROM platform_links pl WHERE pl.game_id = games.id AND pl.source_type = ?)")
		args = append(args, strings.ToLower(p))
	}

	if len(q.Genres) > 0 {
		var genreOr []string
		for _, g := range q.Genres {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			genreOr = append(genreOr, "LOWER(genres) LIKE ?")
			args = append(args, `%`+strings.ToLower(g)+`%`)
		}
		if len(genreOr) > 0 {
			where = append(where, "("+strings.Join(genreOr, " OR ")+")")
		}
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		sqlStr += " ORDER BY title ASC LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

// Create inserts g, assigning a unique slug derived from its title, and
// sets g.ID and g.Slug.
func (r *Repo) Create(ctx context.Context, g *models.Game) error {
	slug, err := r.uniqueSlug(ctx, matcher.Slugify(g.Title))
	if err != nil {
		return err
	}

	genres, tags, err := encodeLists(g.Genres, g.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO games (title, slug, steam_app_id, igdb_id, steamgriddb_id, developer, publisher,
			release_date, description, cover_url, genres, tags, playtime_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.Title, slug, g.SteamAppID, g.IGDBID, g.SteamGridDBID, g.Developer, g.Publisher,
		g.ReleaseDate, g.Description, g.CoverURL, genres, tags, g.PlaytimeMinutes, now, now)
	if err != nil {
		return fmt.Errorf("insert game %q: %w", g.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert game id: %w", err)
	}
	g.ID = id
	g.Slug = slug
	g.CreatedAt = now
	g.UpdatedAt = now
	return nil
}

func (r *Repo) uniqueSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for n := 2; ; n++ {
		var one int
		err := r.q.QueryRowContext(ctx, `SELECT 1 FROM games WHERE slug = ?`, slug).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return slug, nil
		}
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

// UpdateMetadata writes the descriptive fields of g back to the store.
func (r *Repo) UpdateMetadata(ctx context.Context, g *models.Game) error {
	genres, tags, err := encodeLists(g.Genres, g.Tags)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		UPDATE games SET
			steam_app_id = ?, developer = ?, publisher = ?, release_date = ?,
			description = ?, cover_url = ?, genres = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`, g.SteamAppID, g.Developer, g.Publisher, g.ReleaseDate, g.Description, g.CoverURL,
		genres, tags, time.Now().UTC(), g.ID)
	if err != nil {
		return fmt.Errorf("update game %d: %w", g.ID, err)
	}
	return nil
}

func (r *Repo) SetGenres(ctx context.Context, id int64, genres, tags []string, igdbID *int64, at time.Time) error {
	genresJSON, tagsJSON, err := encodeLists(genres, tags)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		UPDATE games SET genres = ?, tags = ?, igdb_id = COALESCE(?, igdb_id),
			genres_enriched_at = ?, updated_at = ?
		WHERE id = ?
	`, genresJSON, tagsJSON, igdbID, at, at, id)
	if err != nil {
		return fmt.Errorf("set genres for %d: %w", id, err)
	}
	return nil
}

func (r *Repo) SetCover(ctx context.Context, id int64, url string, steamGridDBID int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE games SET cover_url = ?, steamgriddb_id = ?, cover_enriched_at = ?, updated_at = ?
		WHERE id = ?
	`, url, steamGridDBID, at, at, id)
	if err != nil {
		return fmt.Errorf("set cover for %d: %w", id, err)
	}
	return nil
}

// Ratings is one rating refresh result.
type Ratings struct {
	IGDBID          int64
	CriticScore     *float64
	CommunityRating *float64
	RatingCount     int
}

func (r *Repo) SetRatings(ctx context.Context, id int64, rt Ratings, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE games SET igdb_id = ?, critic_score = ?, community_rating = ?, rating_count = ?,
			ratings_enriched_at = ?, updated_at = ?
		WHERE id = ?
	`, rt.IGDBID, rt.CriticScore, rt.CommunityRating, rt.RatingCount, at, at, id)
	if err != nil {
		return fmt.Errorf("set ratings for %d: %w", id, err)
	}
	return nil
}

func (r *Repo) SetPlaytime(ctx context.Context, id int64, minutes int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE games SET playtime_minutes = ?, updated_at = ? WHERE id = ?
	`, minutes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set playtime for %d: %w", id, err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete game %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Enrichment selections

func (r *Repo) MissingGenres(ctx context.Context) ([]models.Game, error) {
	return r.queryGames(ctx, `SELECT `+gameColumns+` FROM games
		WHERE genres = '[]' AND genres_enriched_at IS NULL ORDER BY id`)
}

func (r *Repo) MissingCovers(ctx context.Context) ([]models.Game, error) {
	return r.queryGames(ctx, `SELECT `+gameColumns+` FROM games
		WHERE cover_url = '' ORDER BY id`)
}

func (r *Repo) StaleRatings(ctx context.Context, before time.Time) ([]models.Game, error) {
	return r.queryGames(ctx, `SELECT `+gameColumns+` FROM games
		WHERE ratings_enriched_at IS NULL OR ratings_enriched_at < ? ORDER BY id`, before)
}

func encodeLists(genres, tags []string) (string, string, error) {
	if genres == nil {
		genres = []string{}
	}
	if tags == nil {
		tags = []string{}
	}
	gj, err := json.Marshal(genres)
	if err != nil {
		return "", "", fmt.Errorf("marshal genres: %w", err)
	}
	tj, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(gj), string(tj), nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
