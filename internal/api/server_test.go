package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uho/internal/auth"
	"uho/internal/models"
	"uho/internal/pages"
	"uho/internal/queue"
	"uho/internal/ratelimit"
	"uho/internal/telemetry"
	"uho/internal/view"
)

type memoryRepo struct {
	pages   []models.Page
	modules map[int64][]models.Module
}

func (r *memoryRepo) Pages(context.Context) ([]models.Page, error) { return r.pages, nil }

func (r *memoryRepo) Modules(_ context.Context, pageID int64) ([]models.Module, error) {
	return r.modules[pageID], nil
}

type countingPurger struct{ calls int }

func (p *countingPurger) Purge(context.Context) error {
	p.calls++
	return nil
}

type fixture struct {
	handler  http.Handler
	queue    *queue.RedisQueue
	verifier *auth.Verifier
	purger   *countingPurger
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &memoryRepo{
		pages: []models.Page{
			{ID: 1, Path: "home", Title: "Home", Active: true},
			{ID: 2, Path: "404", Title: "Missing", Active: true},
			{ID: 3, Path: "news/%", Title: "News", Active: true},
		},
		modules: map[int64][]models.Module{
			1: {{ID: 10, PageID: 1, Level: 1, Type: "text", Content: map[string]any{"body": "Welcome home"}}},
			2: {{ID: 20, PageID: 2, Level: 1, Type: "text", Content: map[string]any{"body": "Nothing here"}}},
			3: {{ID: 30, PageID: 3, Level: 1, Type: "text", Content: map[string]any{"body": "Article $1"}}},
		},
	}
	svc := pages.New(repo, view.NewRegistry(), nil, nil)
	q := queue.NewRedisQueue(client, time.Minute, time.UTC)
	verifier := auth.NewVerifier("test-secret")
	purger := &countingPurger{}

	d := NewDispatcher(nil)
	d.Register("jobs", NewJobsHandler(q))
	d.Register("pages", NewPagesHandler(svc))
	d.Register("cache", NewCacheHandler(purger))

	srv := New(nil, d, svc, verifier, limiter)
	return fixture{handler: srv.Router(), queue: q, verifier: verifier, purger: purger}
}

func (f fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, models.Result) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var res models.Result
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func (f fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.verifier.Sign("ops", time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPages(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome home")

	rec, _ = f.do(t, http.MethodGet, "/news/42", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Article 42")

	rec, _ = f.do(t, http.MethodGet, "/no/such/page", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nothing here")
}

func TestAPIUnknownAction(t *testing.T) {
	f := newFixture(t, nil)

	rec, res := f.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusNotFound, res.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	rec, res := f.do(t, http.MethodGet, "/api/jobs", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, res.Success)

	rec, _ = f.do(t, http.MethodGet, "/api/jobs", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := auth.NewVerifier("other-secret").Sign("ops", time.Hour)
	require.NoError(t, err)
	rec, _ = f.do(t, http.MethodGet, "/api/jobs", "", other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIJobs(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(t)

	rec, res := f.do(t, http.MethodPost, "/api/jobs", `{"actions":["{\"type\":\"cache:purge\"}","{\"type\":\"noop\"}"]}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, res.Success)

	rec, _ = f.do(t, http.MethodPost, "/api/jobs", `{}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/jobs", `{`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/jobs", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview struct {
		Data jobsOverview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, int64(2), overview.Data.Stats.Waiting)
	assert.Equal(t, int64(0), overview.Data.Stats.CompletedToday)
	assert.Len(t, overview.Data.Jobs, 2)

	ctx := context.Background()
	job, ok, err := f.queue.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.queue.SetStatus(ctx, job.ID, models.StatusSuccess))

	rec, _ = f.do(t, http.MethodGet, "/api/jobs/1", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var one struct {
		Data models.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, models.StatusSuccess, one.Data.Status)
	assert.NotNil(t, one.Data.DateCompleted)

	rec, _ = f.do(t, http.MethodPost, "/api/jobs/1/repeat", "", tok)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, int64(3), one.Data.ID)
	assert.Equal(t, models.StatusWaiting, one.Data.Status)
	assert.Equal(t, job.Action, one.Data.Action)

	rec, _ = f.do(t, http.MethodGet, "/api/jobs/99", "", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/jobs/abc", "", tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/jobs?status=bogus", "", tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPut, "/api/jobs", "", tok)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIPagesIsPublic(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/pages?path=news/7", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data pageMatch `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(3), out.Data.Page.ID)
	assert.Equal(t, 13, out.Data.Score)
	assert.Equal(t, []string{"7"}, out.Data.Params)

	rec, _ = f.do(t, http.MethodGet, "/api/pages?path=a/b/c", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPICachePurge(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodDelete, "/api/cache", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, f.purger.calls)

	rec, _ = f.do(t, http.MethodDelete, "/api/cache", "", f.token(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.purger.calls)
}

type denyAfter struct{ left int }

func (d *denyAfter) Allow(context.Context, string) (bool, error) {
	d.left--
	return d.left >= 0, nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestAPIRateLimit(t *testing.T) {
	f := newFixture(t, &denyAfter{left: 1})

	rec, _ := f.do(t, http.MethodGet, "/api/pages?path=home", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, res := f.do(t, http.MethodGet, "/api/pages?path=home", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, res.Code)

	// Pages are not rate limited.
	rec, _ = f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(t, brokenLimiter{})
	rec, _ = f.do(t, http.MethodGet, "/api/pages?path=home", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("boom", HandlerFunc(func(context.Context, *Request) models.Result {
		panic("kaboom")
	}))
	res := d.Dispatch(context.Background(), &Request{Method: http.MethodGet, Action: "boom"})
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestUnknownActionsShareOneSeries(t *testing.T) {
	f := newFixture(t, nil)

	f.do(t, http.MethodGet, "/api/garbage-0", "", "")
	before := testutil.CollectAndCount(telemetry.APIRequests)
	for i := 1; i <= 50; i++ {
		rec, _ := f.do(t, http.MethodGet, "/api/garbage-"+strconv.Itoa(i), "", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, before, testutil.CollectAndCount(telemetry.APIRequests))
	assert.GreaterOrEqual(t, testutil.ToFloat64(telemetry.APIRequests.WithLabelValues("unknown", "404")), float64(51))
}

func TestOversizedBodyIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"action":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec, res := f.do(t, http.MethodPost, "/api/jobs", body, f.token(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)

	n, err := f.queue.CountWaiting(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
