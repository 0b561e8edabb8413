package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/auth"
	"github.com/dreamshop/gateway/internal/wordpress"
)

type fakeUpstream struct {
	calls []wordpress.Request
	resp  *wordpress.Response
	err   error
}

func (f *fakeUpstream) Do(_ context.Context, req wordpress.Request) (*wordpress.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func mount(t *testing.T, up Upstreamer, routes ...Route) (http.Handler, *auth.Verifier) {
	t.Helper()
	v := auth.NewVerifier("secret")
	r := chi.NewRouter()
	NewEngine(up, v, zap.NewNop()).Mount(r, routes...)
	return r, v
}

func bearer(t *testing.T, v *auth.Verifier, id int64) string {
	t.Helper()
	tok, err := v.Issue(id, "", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestEngineExpandsTemplates(t *testing.T) {
	up := &fakeUpstream{resp: &wordpress.Response{Status: 200, Body: []byte(`{"ok":true}`)}}
	h, v := mount(t, up, Route{
		Name: "thing", Method: http.MethodGet, Pattern: "/api/things/{slug}", Auth: AuthRequired,
		Upstream: Upstream{
			Path:        "/wp-json/x/v1/things/{slug}/{user_id}",
			Query:       []string{"page"},
			StaticQuery: url.Values{"owner": {"{user_id}"}},
			Auth:        wordpress.AuthBasic,
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/things/a%20b?page=2&ignored=1", nil)
	req.Header.Set("Authorization", bearer(t, v, 7))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	require.Len(t, up.calls, 1)
	assert.Equal(t, "/wp-json/x/v1/things/a%20b/7", up.calls[0].Path)
	assert.Equal(t, http.MethodGet, up.calls[0].Method)
	assert.Equal(t, "2", up.calls[0].Query.Get("page"))
	assert.Equal(t, "7", up.calls[0].Query.Get("owner"))
	assert.Empty(t, up.calls[0].Query.Get("ignored"))
}

func TestEngineSchemaRejectsBeforeUpstream(t *testing.T) {
	up := &fakeUpstream{}
	h, v := mount(t, up, Route{
		Name: "redeem", Method: http.MethodPost, Pattern: "/api/redeem", Auth: AuthRequired,
		Schema:   MustSchema(`{"type":"object","required":["code"],"properties":{"code":{"type":"string","minLength":1}}}`),
		Upstream: Upstream{Path: "/wp-json/x/v1/redeem"},
	})

	for _, body := range []string{`{}`, `{"code":""}`, `not json`, `{"code":5}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/redeem", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, v, 7))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, up.calls)
}

func TestEngineFallbackOnNotFound(t *testing.T) {
	up := &fakeUpstream{err: &wordpress.APIError{Status: 404, Code: "rest_no_route"}}
	h, v := mount(t, up,
		Route{
			Name: "with", Method: http.MethodGet, Pattern: "/a", Auth: AuthRequired,
			Upstream:           Upstream{Path: "/wp-json/x/v1/a/{user_id}"},
			FallbackOnNotFound: func(*Call) interface{} { return map[string]int{"points": 0} },
		},
		Route{
			Name: "without", Method: http.MethodGet, Pattern: "/b", Auth: AuthRequired,
			Upstream: Upstream{Path: "/wp-json/x/v1/b"},
		},
	)

	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	req.Header.Set("Authorization", bearer(t, v, 7))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"points":0}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/b", nil)
	req.Header.Set("Authorization", bearer(t, v, 7))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "rest_no_route")
}

func TestEngineUpstreamServerErrorIsSanitized(t *testing.T) {
	up := &fakeUpstream{err: &wordpress.APIError{Status: 500, Body: []byte("Fatal error in /var/www/wp-content")}}
	h, _ := mount(t, up, Route{Name: "open", Method: http.MethodGet, Pattern: "/open", Upstream: Upstream{Path: "/x"}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "wp-content")
}

func TestEngineUserTemplateNeedsToken(t *testing.T) {
	up := &fakeUpstream{}
	h, _ := mount(t, up, Route{Name: "opt", Method: http.MethodGet, Pattern: "/opt", Auth: AuthOptional,
		Upstream: Upstream{Path: "/x/{user_id}"}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/opt", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, up.calls)
}

func TestCallInt(t *testing.T) {
	c := &Call{Body: map[string]interface{}{"a": float64(5), "b": "12", "c": 1.5, "d": true}}
	n, ok := c.Int("a")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)
	n, ok = c.Int("b")
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)
	_, ok = c.Int("c")
	assert.False(t, ok)
	_, ok = c.Int("d")
	assert.False(t, ok)
	_, ok = c.Int("missing")
	assert.False(t, ok)
}
