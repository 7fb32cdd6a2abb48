package catalog

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, _ := newTestReconciler(t)
	router := gin.New()
	NewHandler(r).RegisterRoutes(router.Group("/admin"))
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_ImportThenSync(t *testing.T) {
	router := newTestRouter(t)

	w := post(router, "/admin/catalog/import",
		`{"platform":"gamepass","games":[{"title":"Halo Infinite","external_id":"hi-1"},{"title":"Grounded"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	var imp ImportResult
	if err := json.Unmarshal(w.Body.Bytes(), &imp); err != nil {
		t.Fatal(err)
	}
	if imp.Added != 2 || len(imp.Details) != 2 || imp.Details[0].Status != StatusAdded {
		t.Errorf("import = %+v", imp)
	}

	w = post(router, "/admin/catalog/sync", `{"platform":"gamepass","games":[{"title":"halo infinite"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var res SyncResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 || res.OrphanedDeleted != 1 || res.Remaining != 1 {
		t.Errorf("sync = %+v", res)
	}
}

func TestHandler_RejectsBadSnapshots(t *testing.T) {
	router := newTestRouter(t)
	bodies := []string{
		`not json`,
		`{"platform":"gamepass","games":{"title":"x"}}`,
		`{"platform":"gamepass"}`,
		`{"platform":"stadia","games":[]}`,
		`{"platform":"gamepass","games":[{"title":""}]}`,
		`{"platform":"gamepass","games":[{"title":7}]}`,
	}
	for _, body := range bodies {
		w := post(router, "/admin/catalog/import", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}
