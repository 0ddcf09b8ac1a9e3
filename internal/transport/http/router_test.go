package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-digest/internal/dedup"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/internal/rotation"
	"github.com/pribylovaa/go-news-digest/internal/service"
	"github.com/pribylovaa/go-news-digest/internal/storage/memory"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/handlers"
)

const (
	secret = "s3cr3t"
	issuer = "digest-service"
)

var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// runnerFunc - CycleRunner из функции.
type runnerFunc func(ctx context.Context, sources []models.Source) pipeline.CycleResult

func (f runnerFunc) RunCycle(ctx context.Context, sources []models.Source) pipeline.CycleResult {
	return f(ctx, sources)
}

type env struct {
	srv   *httptest.Server
	store *memory.Storage
	token string
}

func newEnv(t *testing.T, runner service.CycleRunner, ready handlers.ReadyFunc) *env {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	require.NoError(t, st.SaveKnownItems(ctx, []models.KnownItemRecord{
		{IdentityKey: "https://a.example/1", Fingerprint: "fp1", FirstSeenAt: now.Add(-48 * time.Hour), SourceLabel: "A"},
		{IdentityKey: "https://a.example/2", Fingerprint: "fp2", FirstSeenAt: now.Add(-time.Hour), SourceLabel: "A"},
	}))

	dd := dedup.New(st)
	require.NoError(t, dd.Load(ctx))

	rot := rotation.New(st, 10)
	require.NoError(t, rot.Sync(ctx, []models.PromotionEntry{
		{Name: "Alpha", Message: "Try Alpha", Active: true, Priority: 1},
		{Name: "Beta", Message: "Try Beta", Active: true},
	}))

	svc := service.New(service.Deps{
		Cycles:   runner,
		Dedup:    dd,
		Rotation: rot,
		Runs:     st,
		Clock:    func() time.Time { return now },
	}, service.Options{})

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})

	router := NewRouter(handlers.New(svc, ready), Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:   time.Second,
		JWTSecret: secret,
		Issuer:    issuer,
		Metrics:   metrics,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	return &env{srv: srv, store: st, token: tok}
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func noNewContent(context.Context, []models.Source) pipeline.CycleResult {
	return pipeline.CycleResult{Kind: pipeline.ResultNoNewContent, CycleID: "c1", Stage: pipeline.StageDone}
}

func errCode(t *testing.T, raw []byte) string {
	t.Helper()

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Error.Code
}

func TestProbes(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(noNewContent), nil)

	for _, path := range []string{"/livez", "/healthz", "/metrics"} {
		resp, err := http.Get(e.srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	}
}

func TestHealthz_NotReady(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(noNewContent), func(context.Context) error { return errors.New("db down") })

	resp, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAdmin_RequiresToken(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(noNewContent), nil)

	resp, err := http.Get(e.srv.URL + "/admin/known/count")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmin_KnownCountAndEvict(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(noNewContent), nil)

	resp, raw := e.do(t, http.MethodGet, "/admin/known/count", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"count":2,"fingerprints":2}`, string(raw))

	resp, raw = e.do(t, http.MethodPost, "/admin/known/evict", `{"older_than":"soon"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_argument", errCode(t, raw))

	resp, _ = e.do(t, http.MethodPost, "/admin/known/evict", `{"age":"1h"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = e.do(t, http.MethodPost, "/admin/known/evict", map[string]string{"older_than": "24h"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"evicted":1,"count":1}`, string(raw))

	// Отпечаток вытесненного элемента остаётся.
	_, raw = e.do(t, http.MethodGet, "/admin/known/count", nil)
	require.JSONEq(t, `{"count":1,"fingerprints":2}`, string(raw))
}

func TestAdmin_PromotionsFlow(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(noNewContent), nil)

	var list struct {
		Promotions []models.PromotionEntry `json:"promotions"`
	}
	resp, raw := e.do(t, http.MethodGet, "/admin/promotions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Promotions, 2)
	require.Equal(t, "Alpha", list.Promotions[0].Name)

	var cur struct {
		Promotion *models.PromotionEntry `json:"promotion"`
	}
	_, raw = e.do(t, http.MethodGet, "/admin/promotions/current", nil)
	require.NoError(t, json.Unmarshal(raw, &cur))
	require.Equal(t, "Alpha", cur.Promotion.Name)

	resp, raw = e.do(t, http.MethodPost, "/admin/promotions/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &cur))
	require.Equal(t, "Alpha", cur.Promotion.Name)
	require.Equal(t, 1, cur.Promotion.AppearanceCount)

	resp, raw = e.do(t, http.MethodPost, "/admin/promotions/select", map[string]string{"name": "beta"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &cur))
	require.Equal(t, "Beta", cur.Promotion.Name)
	require.Zero(t, cur.Promotion.AppearanceCount)

	resp, raw = e.do(t, http.MethodPost, "/admin/promotions/select", map[string]string{"name": "Nope"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", errCode(t, raw))

	resp, _ = e.do(t, http.MethodPost, "/admin/promotions/Beta/deactivate", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, raw = e.do(t, http.MethodGet, "/admin/promotions/current", nil)
	require.NoError(t, json.Unmarshal(raw, &cur))
	require.Equal(t, "Alpha", cur.Promotion.Name)

	resp, _ = e.do(t, http.MethodPost, "/admin/promotions/Ghost/activate", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var stats models.RotationStats
	resp, raw = e.do(t, http.MethodGet, "/admin/rotation/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &stats))
	require.Equal(t, 2, stats.TotalEntries)
	require.Equal(t, 1, stats.ActiveEntries)
	require.Equal(t, 2, stats.TotalTransitions)
	require.Equal(t, 1, stats.Appearances["Alpha"])

	var hist struct {
		History []models.RotationRecord `json:"history"`
	}
	_, raw = e.do(t, http.MethodGet, "/admin/rotation/history?limit=1", nil)
	require.NoError(t, json.Unmarshal(raw, &hist))
	require.Len(t, hist.History, 1)
	require.Equal(t, models.RotationManual, hist.History[0].Kind)
	require.Equal(t, "Beta", hist.History[0].To)
}

func TestAdmin_TriggerCycle(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(func(context.Context, []models.Source) pipeline.CycleResult {
		return pipeline.CycleResult{
			Kind:    pipeline.ResultFailed,
			CycleID: "c2",
			Stage:   pipeline.StageFetching,
			Err:     errors.New("all sources failed"),
		}
	}), nil)

	resp, raw := e.do(t, http.MethodGet, "/admin/cycles/last", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", errCode(t, raw))

	var got struct {
		Kind    string `json:"kind"`
		CycleID string `json:"cycle_id"`
		Stage   string `json:"stage"`
		Error   string `json:"error"`
	}
	resp, raw = e.do(t, http.MethodPost, "/admin/cycles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "failed", got.Kind)
	require.Equal(t, "c2", got.CycleID)
	require.Equal(t, "FETCHING", got.Stage)
	require.Equal(t, "all sources failed", got.Error)

	resp, raw = e.do(t, http.MethodGet, "/admin/cycles/last", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "c2", got.CycleID)
}

func TestAdmin_TriggerCycle_Busy(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	e := newEnv(t, runnerFunc(func(ctx context.Context, s []models.Source) pipeline.CycleResult {
		close(started)
		<-release
		return noNewContent(ctx, s)
	}), nil)

	done := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/admin/cycles", nil)
		req.Header.Set("Authorization", "Bearer "+e.token)
		resp, err := e.srv.Client().Do(req)
		if err != nil {
			done <- 0
			return
		}
		_ = resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-started

	resp, raw := e.do(t, http.MethodPost, "/admin/cycles", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "cycle_in_progress", errCode(t, raw))

	close(release)
	require.Equal(t, http.StatusOK, <-done)
}

func TestAdmin_RunsAndArchive(t *testing.T) {
	t.Parallel()

	e := newEnv(t, runnerFunc(noNewContent), nil)
	require.NoError(t, e.store.SaveRun(context.Background(), models.DigestRun{
		ID:          "d1",
		GeneratedAt: now,
		SubjectLine: "Monday digest",
		ItemKeys:    []string{"https://a.example/1"},
		Handle:      models.DigestHandle{ID: "d1", Location: "file:///tmp/d1.md"},
	}))

	resp, raw := e.do(t, http.MethodGet, "/admin/runs?limit=x", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_argument", errCode(t, raw))

	var runs struct {
		Runs []models.DigestRun `json:"runs"`
	}
	resp, raw = e.do(t, http.MethodGet, "/admin/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &runs))
	require.Len(t, runs.Runs, 1)
	require.Equal(t, "Monday digest", runs.Runs[0].SubjectLine)

	resp, raw = e.do(t, http.MethodGet, "/admin/archive", nil)
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	require.Equal(t, "not_configured", errCode(t, raw))
}
