package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"gamehub/pkg/apperr"
	"gamehub/pkg/models"
)

const libraryCSV = `Title,Steam_App_ID,Developer,Genres,Release_Date
Control,870780,Remedy Entertainment,Action|Adventure,2019-08-27
,,,,
Alan Wake 2,,Remedy Entertainment, Horror | ,2023
`

func TestReadSnapshotCSV(t *testing.T) {
	s, err := ReadSnapshotCSV(strings.NewReader(libraryCSV), models.SourceEpic)
	if err != nil {
		t.Fatalf("ReadSnapshotCSV() error = %v", err)
	}
	if s.Platform != models.SourceEpic || len(s.Games) != 2 {
		t.Fatalf("snapshot = %+v", s)
	}

	control := s.Games[0]
	if control.SteamAppID == nil || *control.SteamAppID != 870780 {
		t.Errorf("control app id = %v", control.SteamAppID)
	}
	if len(control.Genres) != 2 || control.Genres[1] != "Adventure" {
		t.Errorf("control genres = %v", control.Genres)
	}
	aw := s.Games[1]
	if aw.SteamAppID != nil || len(aw.Genres) != 1 || aw.Genres[0] != "Horror" || aw.ReleaseDate != "2023" {
		t.Errorf("alan wake = %+v", aw)
	}
}

func TestReadSnapshotCSV_Rejects(t *testing.T) {
	cases := []struct {
		name     string
		platform models.SourceType
		body     string
	}{
		{"no title column", models.SourceEpic, "name,developer\nControl,Remedy\n"},
		{"bad app id", models.SourceEpic, "title,steam_app_id\nControl,abc\n"},
		{"unknown platform", "origin", "title\nControl\n"},
		{"empty", models.SourceEpic, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadSnapshotCSV(strings.NewReader(tc.body), tc.platform)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want validation error", err)
			}
		})
	}
}

func TestWriteGamesCSV(t *testing.T) {
	r, repo := newTestReconciler(t)
	ctx := context.Background()

	mustImport(t, r, snapshot(models.SourceSteam,
		models.SnapshotEntry{Title: "Halo: The Master Chief Collection", SteamAppID: appID(976730)},
	))
	mustImport(t, r, snapshot(models.SourceGamePass,
		models.SnapshotEntry{Title: "Halo The Master Chief Collection"},
		models.SnapshotEntry{Title: "Grounded", Genres: []string{"Survival", "Co-op"}},
	))

	var buf bytes.Buffer
	n, err := WriteGamesCSV(ctx, repo, &buf)
	if err != nil {
		t.Fatalf("WriteGamesCSV() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d games, want 2", n)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][1] != "title" {
		t.Fatalf("rows = %v", rows)
	}
	grounded, halo := rows[1], rows[2]
	if grounded[1] != "Grounded" || grounded[7] != "Survival|Co-op" || grounded[8] != "gamepass" {
		t.Errorf("grounded row = %v", grounded)
	}
	if halo[3] != "976730" {
		t.Errorf("halo app id = %q", halo[3])
	}
	platforms := strings.Split(halo[8], "|")
	if len(platforms) != 2 {
		t.Errorf("halo platforms = %q, want steam and gamepass", halo[8])
	}
}
