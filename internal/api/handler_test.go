package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/listing"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/service"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/store"
)

const festivalCSV = "ID,お祭り名,緯度,経度,開始日,終了日,規模感,上位カテゴリ,開催場所名,駐車場の有無\n" +
	"f1,鬼太鼓,38.0,138.0,2025-08-10,,中規模,伝統芸能,相川,あり\n" +
	"f2,花火大会,38.0,139.0,2025-08-01,2025-08-02,大規模,花火,両津,なし\n"

const eventCSV = "イベント名,開催期間,場所\n朝市,2025年5月10日,両津\n"

type staticFeed struct {
	body string
	err  error
}

func (f staticFeed) Fetch(context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

var jst = time.FixedZone("JST", 9*3600)

func newTestRouter(t *testing.T, feeds service.Feeds) (*gin.Engine, *service.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := service.New(feeds, store.NewMemoryStore(), zerolog.Nop(), service.Options{
		Location: jst,
		Now:      func() time.Time { return time.Date(2025, 8, 1, 9, 0, 0, 0, jst) },
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	h := NewHandler(svc, zerolog.Nop(), jst, listing.ModeChronological)
	return NewRouter(h, zerolog.Nop()), svc
}

type envelope struct {
	Meta  map[string]any    `json:"meta"`
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body envelope
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.SessionID)
	return body.SessionID
}

func names(t *testing.T, data []json.RawMessage) []string {
	t.Helper()
	out := make([]string, 0, len(data))
	for _, raw := range data {
		var rec struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(raw, &rec))
		out = append(out, rec.Name)
	}
	return out
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	w, _ := do(t, r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestFestivals(t *testing.T) {
	r, svc := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	tests := []struct {
		name  string
		query string
		want  []string
		mode  string
	}{
		{"chronological", "", []string{"花火大会", "鬼太鼓"}, "chronological"},
		{"shared location", "?mode=distance&lat=38.0&lng=138.0", []string{"鬼太鼓", "花火大会"}, "distance"},
		{"category", "?category=" + url.QueryEscape("花火"), []string{"花火大会"}, "chronological"},
		{"parking", "?parking=true", []string{"鬼太鼓"}, "chronological"},
		{"query", "?q=" + url.QueryEscape("鬼"), []string{"鬼太鼓"}, "chronological"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, r, http.MethodGet, "/v1/sessions/"+id+"/festivals"+tt.query)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, names(t, body.Data))
			assert.Equal(t, tt.mode, body.Meta["mode"])
			assert.Equal(t, float64(len(tt.want)), body.Meta["total"])
			assert.Equal(t, false, body.Meta["has_more"])
		})
		svc.Wait()
	}
}

func TestFestivalsBadParams(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	for _, q := range []string{"?mode=nearest", "?lat=abc&lng=1", "?lat=91&lng=0", "?lat=38", "?open_now=maybe"} {
		w, body := do(t, r, http.MethodGet, "/v1/sessions/"+id+"/festivals"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.NotEmpty(t, body.Error, q)
	}
}

func TestMoreUsesCurrentList(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	_, _ = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/festivals?category="+url.QueryEscape("花火"))
	w, body := do(t, r, http.MethodPost, "/v1/sessions/"+id+"/festivals/more")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"花火大会"}, names(t, body.Data))
}

func TestErrorMapping(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{err: errors.New("upstream down")}})

	w, body := do(t, r, http.MethodGet, "/v1/sessions/not-a-session/festivals")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, body.Error)

	id := createSession(t, r)
	w, body = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/festivals")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body.Error, "upstream down")
}

func TestDashboardAndCalendar(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	w, body := do(t, r, http.MethodGet, "/v1/sessions/"+id+"/dashboard")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"花火大会", "鬼太鼓"}, names(t, body.Data))

	w, body = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/calendar?date=2025-08-10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"鬼太鼓"}, names(t, body.Data))
	assert.Equal(t, "2025-08-10", body.Meta["date"])

	w, _ = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/calendar")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/calendar?date=08/10")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFacets(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/facets", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data listing.Facets `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Categories, 2)
	assert.Len(t, body.Data.Areas, 2)
}

func TestEventsAndSessionLifecycle(t *testing.T) {
	r, svc := newTestRouter(t, service.Feeds{
		Festivals: staticFeed{body: festivalCSV},
		Events:    staticFeed{body: eventCSV},
	})
	id := createSession(t, r)

	w, body := do(t, r, http.MethodGet, "/v1/sessions/"+id+"/events")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Data, 1)

	w, _ = do(t, r, http.MethodPost, "/v1/sessions/"+id+"/unload")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/v1/sessions/"+id)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.Wait()
	assert.Zero(t, svc.Sessions())

	w, _ = do(t, r, http.MethodDelete, "/v1/sessions/bogus")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop()), Recovery(zerolog.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w, body := do(t, r, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", body.Error)
}

func TestFacetsSortedByCount(t *testing.T) {
	feed := festivalCSV +
		"f3,能,37.9,138.3,2025-07-20,,小規模,能楽,真野,\n" +
		"f4,盆踊り,38.1,138.2,2025-08-20,,小規模,伝統芸能,金井,\n"
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: feed}})
	id := createSession(t, r)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/facets?sort=count", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data listing.Facets `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []listing.FacetValue{
		{Value: "伝統芸能", Count: 2},
		{Value: "能楽", Count: 1},
		{Value: "花火", Count: 1},
	}, body.Data.Categories)

	w, _ = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/facets?sort=size")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForgetPositionRoute(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	_, body := do(t, r, http.MethodGet, "/v1/sessions/"+id+"/festivals?mode=distance&lat=38.0&lng=139.0")
	require.Equal(t, "distance", body.Meta["mode"])

	w, _ := do(t, r, http.MethodDelete, "/v1/sessions/"+id+"/position")
	require.Equal(t, http.StatusOK, w.Code)

	_, body = do(t, r, http.MethodGet, "/v1/sessions/"+id+"/festivals?mode=distance")
	assert.Equal(t, "chronological", body.Meta["mode"])
	assert.Equal(t, false, body.Meta["distance"])
}

func TestMoreBeforeBrowseIsEmptyList(t *testing.T) {
	r, _ := newTestRouter(t, service.Feeds{Festivals: staticFeed{body: festivalCSV}})
	id := createSession(t, r)

	w, _ := do(t, r, http.MethodPost, "/v1/sessions/"+id+"/festivals/more")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}
