package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gamehub/internal/games"
	"gamehub/pkg/apperr"
	"gamehub/pkg/models"
)

// Columns written by WriteGamesCSV. ReadSnapshotCSV accepts the snapshot
// subset of these in any order.
var csvColumns = []string{
	"id", "title", "slug", "steam_app_id", "developer", "publisher",
	"release_date", "genres", "platforms", "playtime_minutes", "cover_url",
}

// ReadSnapshotCSV builds a snapshot for platform from a CSV export of a
// store library. The header row names the columns; title is required,
// genres are separated by '|'. Rows without a title are skipped.
func ReadSnapshotCSV(r io.Reader, platform models.SourceType) (*models.CatalogSnapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, apperr.Validation("", "csv header: "+err.Error())
	}
	if _, ok := header["title"]; !ok {
		return nil, apperr.Validation("title", "csv has no title column")
	}

	s := &models.CatalogSnapshot{Platform: platform, Games: []models.SnapshotEntry{}}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apperr.Validation("", fmt.Sprintf("csv line %d: %v", line, err))
		}

		title := valueAt(header, row, "title")
		if title == "" {
			continue
		}
		e := models.SnapshotEntry{
			Title:       title,
			ExternalID:  valueAt(header, row, "external_id"),
			ReleaseDate: valueAt(header, row, "release_date"),
			Developer:   valueAt(header, row, "developer"),
			Publisher:   valueAt(header, row, "publisher"),
			Description: valueAt(header, row, "description"),
			CoverURL:    valueAt(header, row, "cover_url"),
			Genres:      splitList(valueAt(header, row, "genres")),
		}
		if raw := valueAt(header, row, "steam_app_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return nil, apperr.Validation("steam_app_id", fmt.Sprintf("csv line %d: %q is not an app id", line, raw))
			}
			e.SteamAppID = &id
		}
		s.Games = append(s.Games, e)
	}

	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteGamesCSV writes every game, ordered by title, with the sources it
// is linked to.
func WriteGamesCSV(ctx context.Context, repo *games.Repo, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return 0, err
	}

	const page = 100
	n := 0
	for offset := 0; ; offset += page {
		list, err := repo.List(ctx, games.ListQuery{Limit: page, Offset: offset})
		if err != nil {
			return n, err
		}
		for _, g := range list {
			links, err := repo.ListLinks(ctx, g.ID)
			if err != nil {
				return n, err
			}
			if err := cw.Write(gameRecord(g, links)); err != nil {
				return n, err
			}
			n++
		}
		if len(list) < page {
			break
		}
	}

	cw.Flush()
	return n, cw.Error()
}

func gameRecord(g models.Game, links []models.PlatformLink) []string {
	appID := ""
	if g.SteamAppID != nil {
		appID = strconv.FormatInt(*g.SteamAppID, 10)
	}
	sources := make([]string, 0, len(links))
	for _, l := range links {
		sources = append(sources, string(l.SourceType))
	}
	return []string{
		strconv.FormatInt(g.ID, 10),
		g.Title,
		g.Slug,
		appID,
		g.Developer,
		g.Publisher,
		g.ReleaseDate,
		strings.Join(g.Genres, "|"),
		strings.Join(sources, "|"),
		strconv.Itoa(g.PlaytimeMinutes),
		g.CoverURL,
	}
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
