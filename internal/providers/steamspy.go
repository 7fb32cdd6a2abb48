package providers

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"gamehub/internal/fetch"
	"gamehub/pkg/logger"
)

const steamSpyBaseURL = "https://steamspy.com/api.php"

// TagInfo is SteamSpy's community classification of one app.
type TagInfo struct {
	GenreString string         `json:"genreString"`
	TagVotes    map[string]int `json:"tagVotes"`
}

// Genres splits the comma separated genre string.
func (t TagInfo) Genres() []string {
	var out []string
	for _, g := range strings.Split(t.GenreString, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// TopTags returns up to n tag names, most voted first.
func (t TagInfo) TopTags(n int) []string {
	tags := make([]string, 0, len(t.TagVotes))
	for name := range t.TagVotes {
		tags = append(tags, name)
	}
	sort.Slice(tags, func(i, j int) bool {
		vi, vj := t.TagVotes[tags[i]], t.TagVotes[tags[j]]
		if vi != vj {
			return vi > vj
		}
		return tags[i] < tags[j]
	})
	if n >= 0 && len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

type SteamSpy struct {
	baseURL string
	client  *fetch.Client
}

func NewSteamSpy(baseURL string, client *fetch.Client, log *logger.Logger) *SteamSpy {
	if baseURL == "" {
		baseURL = steamSpyBaseURL
	}
	return &SteamSpy{baseURL: baseURL, client: defaultClient(client, "steamspy", SteamSpyPacing, log)}
}

// tagVotes decodes SteamSpy's "tags" field, which is an object of
// name -> votes, or an empty array for apps without tags.
type tagVotes map[string]int

func (v *tagVotes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		*v = tagVotes{}
		return nil
	}
	m := map[string]int{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*v = m
	return nil
}

type steamSpyApp struct {
	AppID int64    `json:"appid"`
	Name  *string  `json:"name"`
	Genre string   `json:"genre"`
	Tags  tagVotes `json:"tags"`
}

func (s *SteamSpy) AppDetails(ctx context.Context, appID int64) (*TagInfo, error) {
	u := fmt.Sprintf("%s?request=appdetails&appid=%d", s.baseURL, appID)

	var app steamSpyApp
	if err := s.client.GetJSON(ctx, u, nil, &app); err != nil {
		return nil, wrapErr("steamspy", err)
	}
	// unknown apps come back with a null name and nothing else
	if (app.Name == nil || *app.Name == "") && app.Genre == "" && len(app.Tags) == 0 {
		return nil, ErrNotFound
	}

	info := &TagInfo{GenreString: app.Genre, TagVotes: map[string]int(app.Tags)}
	if info.TagVotes == nil {
		info.TagVotes = map[string]int{}
	}
	return info, nil
}
