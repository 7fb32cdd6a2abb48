package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"gamehub/pkg/utils"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein1"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	a, err := New(utils.Config{
		DBPath:         filepath.Join(dir, "data.db"),
		DataDir:        dir,
		MatchThreshold: 60,
		RatingsMaxAge:  24 * time.Hour,
		Auth: utils.AuthConfig{
			JWTSecret:     "s3cret",
			JWTIssuer:     "gamehub",
			JWTDuration:   time.Hour,
			AdminUser:     "admin",
			AdminPassHash: string(hash),
		},
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	r := newTestApp(t).Router()

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		if w := do(r, http.MethodGet, path, "", ""); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/metrics", "", ""); !strings.Contains(w.Body.String(), "gamehub_api_requests_total") {
		t.Error("/metrics does not expose request counters")
	}
}

func TestRouter_AdminFlow(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()

	if w := do(r, http.MethodPost, "/admin/catalog/import", "", `{"platform":"epic","games":[]}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated import = %d, want 401", w.Code)
	}

	w := do(r, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"letmein1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatal(err)
	}

	w = do(r, http.MethodPost, "/admin/catalog/import", login.Token,
		`{"platform":"epic","games":[{"title":"Control","external_id":"ctl"},{"title":"Alan Wake 2"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/games?platform=epic", "", "")
	var page struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil || page.Total != 2 {
		t.Errorf("public list = %s", w.Body.String())
	}

	// providers are not configured, so the import job cannot start
	w = do(r, http.MethodPost, "/admin/jobs/library-import", login.Token, "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("library import without steam = %d, want 502 (%s)", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/admin/jobs/genres", login.Token, ""); w.Code != http.StatusOK {
		t.Errorf("job status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/admin/games/1/cover/history", login.Token, ""); w.Code != http.StatusOK {
		t.Errorf("cover history = %d", w.Code)
	}
}
