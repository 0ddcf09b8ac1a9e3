package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// capHandler - тестовый slog.Handler: копит attrs из With и последней записи.
type capHandler struct {
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func makeReq(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}).String()
	return req
}

type errEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func decodeErr(t *testing.T, rr *httptest.ResponseRecorder) errEnvelope {
	t.Helper()

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-begin")
				next.ServeHTTP(w, r)
				order = append(order, name+"-end")
			})
		}
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	Chain(final, mw("m1"), mw("m2")).ServeHTTP(rr, makeReq(http.MethodGet, "/chain"))

	require.Equal(t, []string{"m1-begin", "m2-begin", "handler", "m2-end", "m1-end"}, order)
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var headerID, ctxID string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerID = r.Header.Get(HeaderRequestID)
		ctxID = RequestIDFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	Chain(h, RequestID()).ServeHTTP(rr, makeReq(http.MethodGet, "/rid"))

	respID := rr.Header().Get(HeaderRequestID)
	require.Len(t, respID, 32)
	require.Equal(t, respID, headerID)
	require.Equal(t, respID, ctxID)
}

func TestRequestID_UseExisting(t *testing.T) {
	var ctxID string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFrom(r.Context())
	})

	req := makeReq(http.MethodGet, "/rid")
	req.Header.Set(HeaderRequestID, "given-id")
	rr := httptest.NewRecorder()
	Chain(h, RequestID()).ServeHTTP(rr, req)

	require.Equal(t, "given-id", rr.Header().Get(HeaderRequestID))
	require.Equal(t, "given-id", ctxID)
	require.Empty(t, RequestIDFrom(context.Background()))
}

func TestTimeout(t *testing.T) {
	t.Run("sets deadline", func(t *testing.T) {
		var ok bool
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok = r.Context().Deadline()
		})

		Chain(h, Timeout(50*time.Millisecond)).ServeHTTP(httptest.NewRecorder(), makeReq(http.MethodGet, "/t"))
		require.True(t, ok)
	})

	t.Run("keeps parent deadline", func(t *testing.T) {
		var got time.Time
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = r.Context().Deadline()
		})

		parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		want, _ := parent.Deadline()

		Chain(h, Timeout(time.Second)).ServeHTTP(httptest.NewRecorder(), makeReq(http.MethodGet, "/t").WithContext(parent))
		require.Equal(t, want, got)
	})

	t.Run("zero is noop", func(t *testing.T) {
		var ok bool
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok = r.Context().Deadline()
		})

		Chain(h, Timeout(0)).ServeHTTP(httptest.NewRecorder(), makeReq(http.MethodGet, "/t"))
		require.False(t, ok)
	})
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	h := &capHandler{}
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := makeReq(http.MethodPost, "/admin/cycles")
	req = req.WithContext(log.Into(req.Context(), slog.New(h)))
	req.Header.Set(HeaderRequestID, "rid-9")
	rr := httptest.NewRecorder()

	Chain(panicky, Recover()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeErr(t, rr)
	require.Equal(t, "internal", env.Error.Code)
	require.Equal(t, "rid-9", env.Error.RequestID)
	require.NotContains(t, rr.Body.String(), "boom")

	require.Equal(t, "panic", h.lastMsg)
	require.Equal(t, slog.LevelError, h.lastLvl)
	require.Equal(t, "boom", h.attrs["reason"])
}

func TestLogging_WritesRecord(t *testing.T) {
	h := &capHandler{}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.From(r.Context()).Debug("inside")
		_, _ = w.Write([]byte("0123456789"))
	})

	req := makeReq(http.MethodGet, "/admin/known/count")
	req.Header.Set(HeaderRequestID, "rid-456")
	rr := httptest.NewRecorder()

	Chain(final, RequestID(), Logging(slog.New(h))).ServeHTTP(rr, req)

	require.Equal(t, 2, h.count)
	require.Equal(t, "http", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.Equal(t, http.MethodGet, h.attrs["method"])
	require.Equal(t, "/admin/known/count", h.attrs["path"])
	require.EqualValues(t, http.StatusOK, h.attrs["status"])
	require.EqualValues(t, 10, h.attrs["bytes"])
	require.Equal(t, "rid-456", h.attrs["request_id"])
	require.Contains(t, h.attrs, "dur")
}

func TestLogging_ServerErrorIsError(t *testing.T) {
	h := &capHandler{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	Chain(final, Logging(slog.New(h))).ServeHTTP(httptest.NewRecorder(), makeReq(http.MethodGet, "/x"))

	require.Equal(t, slog.LevelError, h.lastLvl)
	require.EqualValues(t, http.StatusServiceUnavailable, h.attrs["status"])
}

func TestStatusWriter_DefaultsTo200(t *testing.T) {
	sw := newStatusWriter(httptest.NewRecorder())
	require.Equal(t, http.StatusOK, sw.Status())

	_, _ = sw.Write([]byte("abcd"))
	require.Equal(t, http.StatusOK, sw.status)
	require.Equal(t, 4, sw.count)
}

const (
	testSecret = "admin-secret"
	testIssuer = "digest-service"
)

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   "ops@example.org",
		Issuer:    testIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestAdminAuth(t *testing.T) {
	var reached bool
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Chain(final, AdminAuth(testSecret, testIssuer))

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	otherIssuer := validClaims()
	otherIssuer.Issuer = "someone-else"

	noSubject := validClaims()
	noSubject.Subject = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, validClaims()), http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic YWRtaW46YWRtaW4=", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, expired), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, jwt.SigningMethodHS256, otherIssuer), http.StatusUnauthorized},
		{"wrong alg", "Bearer " + signToken(t, jwt.SigningMethodHS512, validClaims()), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, noSubject), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, jwt.SigningMethodHS256, noExpiry), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := makeReq(http.MethodPost, "/admin/promotions/advance")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.status, rr.Code)
			require.Equal(t, tt.status == http.StatusNoContent, reached)
			if tt.status == http.StatusUnauthorized {
				require.Equal(t, "unauthenticated", decodeErr(t, rr).Error.Code)
				require.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAdminAuth_SubjectInLogger(t *testing.T) {
	h := &capHandler{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.From(r.Context()).Info("handled")
	})

	req := makeReq(http.MethodGet, "/admin/runs")
	req = req.WithContext(log.Into(req.Context(), slog.New(h)))
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, validClaims()))

	Chain(final, AdminAuth(testSecret, testIssuer)).ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "handled", h.lastMsg)
	require.Equal(t, "op***@example.org", h.attrs["admin"])
}

func TestAdminAuth_EmptySecretDisabled(t *testing.T) {
	var reached bool
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })

	Chain(final, AdminAuth("", testIssuer)).ServeHTTP(httptest.NewRecorder(), makeReq(http.MethodGet, "/admin/runs"))
	require.True(t, reached)
}
