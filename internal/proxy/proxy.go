// Package proxy serves storefront routes that map one-to-one onto a
// WordPress endpoint. A Route declares the mapping; only reshaping is code.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/auth"
	"github.com/dreamshop/gateway/internal/middleware"
	"github.com/dreamshop/gateway/internal/wordpress"
)

const maxBodyBytes = 1 << 20

type AuthLevel int

const (
	AuthNone AuthLevel = iota
	AuthOptional
	AuthRequired
)

type Upstream struct {
	Method string
	// Path may contain {user_id} and any chi URL parameter of the route.
	Path string
	Auth wordpress.AuthMode
	// Query lists inbound query parameters forwarded unchanged.
	Query       []string
	StaticQuery url.Values
}

type Route struct {
	Name     string
	Method   string
	Pattern  string
	Auth     AuthLevel
	Schema   *Schema
	Upstream Upstream
	// Request builds the upstream body. Nil forwards the inbound JSON.
	Request func(*Call) (interface{}, error)
	// Response reshapes a 2xx upstream answer. Nil passes it through.
	Response func(*Call, *wordpress.Response) (interface{}, int, error)
	// FallbackOnNotFound, when set, turns an upstream 404 or an inactive
	// plugin into a 200 with the returned payload.
	FallbackOnNotFound func(*Call) interface{}
}

// Call carries one inbound request through a Route.
type Call struct {
	Request *http.Request
	Claims  *auth.Claims
	RawBody []byte
	Body    map[string]interface{}
	// Query is the upstream query; Request hooks may add to it.
	Query url.Values
}

func (c *Call) Context() context.Context { return c.Request.Context() }

// UserID is 0 for anonymous calls.
func (c *Call) UserID() int64 {
	if c.Claims == nil {
		return 0
	}
	return int64(c.Claims.UserID)
}

func (c *Call) Param(name string) string {
	return chi.URLParam(c.Request, name)
}

func (c *Call) Int(field string) (int64, bool) {
	switch v := c.Body[field].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func (c *Call) String(field string) string {
	s, _ := c.Body[field].(string)
	return strings.TrimSpace(s)
}

// Upstreamer is satisfied by *wordpress.Client.
type Upstreamer interface {
	Do(ctx context.Context, req wordpress.Request) (*wordpress.Response, error)
}

type Engine struct {
	upstream Upstreamer
	verifier *auth.Verifier
	logger   *zap.Logger
}

func NewEngine(upstream Upstreamer, verifier *auth.Verifier, logger *zap.Logger) *Engine {
	return &Engine{upstream: upstream, verifier: verifier, logger: logger}
}

func (e *Engine) Mount(r chi.Router, routes ...Route) {
	for _, rt := range routes {
		h := e.handler(rt)
		switch rt.Auth {
		case AuthRequired:
			h = middleware.JWTAuth(e.verifier, true)(h)
		case AuthOptional:
			h = middleware.JWTAuth(e.verifier, false)(h)
		}
		r.Method(rt.Method, rt.Pattern, h)
	}
}

func (e *Engine) handler(rt Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := &Call{Request: r, Query: url.Values{}}
		if claims, ok := auth.ClaimsFrom(r.Context()); ok {
			call.Claims = claims
		}

		if err := e.readBody(w, r, rt, call); err != nil {
			apierr.Write(w, err)
			return
		}

		path, err := expandPath(rt.Upstream.Path, call)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		for k, vs := range rt.Upstream.StaticQuery {
			for _, v := range vs {
				if v, err = expandTemplate(v, call, false); err != nil {
					apierr.Write(w, err)
					return
				}
				call.Query.Add(k, v)
			}
		}
		for _, name := range rt.Upstream.Query {
			if v := r.URL.Query().Get(name); v != "" {
				call.Query.Set(name, v)
			}
		}

		var body interface{}
		if rt.Request != nil {
			if body, err = rt.Request(call); err != nil {
				apierr.Write(w, err)
				return
			}
		} else if len(call.RawBody) > 0 {
			body = json.RawMessage(call.RawBody)
		}

		method := rt.Upstream.Method
		if method == "" {
			method = rt.Method
		}
		resp, err := e.upstream.Do(r.Context(), wordpress.Request{
			Method: method,
			Path:   path,
			Query:  call.Query,
			Body:   body,
			Auth:   rt.Upstream.Auth,
		})
		if err != nil {
			if rt.FallbackOnNotFound != nil && wordpress.IsNotFound(err) {
				e.logger.Info("upstream not found, serving fallback", zap.String("route", rt.Name))
				apierr.WriteJSON(w, http.StatusOK, rt.FallbackOnNotFound(call))
				return
			}
			e.logger.Warn("route failed", zap.String("route", rt.Name), zap.Error(err))
			apierr.Write(w, err)
			return
		}

		if rt.Response == nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(resp.Status)
			_, _ = w.Write(resp.Body)
			return
		}
		data, code, err := rt.Response(call, resp)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if code == 0 {
			code = http.StatusOK
		}
		apierr.WriteJSON(w, code, data)
	})
}

func (e *Engine) readBody(w http.ResponseWriter, r *http.Request, rt Route, call *Call) error {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodDelete {
		return nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.New(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return apierr.BadRequest("cannot read request body")
	}
	call.RawBody = raw
	if rt.Schema != nil {
		if err := rt.Schema.Validate(raw); err != nil {
			return err
		}
	}
	if len(raw) > 0 {
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			return apierr.BadRequest("request body must be a JSON object")
		}
		call.Body = body
	}
	return nil
}

func expandPath(tmpl string, call *Call) (string, error) {
	return expandTemplate(tmpl, call, true)
}

// expandTemplate fills {user_id} from the token and other {name} segments
// from chi URL parameters.
func expandTemplate(tmpl string, call *Call, escape bool) (string, error) {
	var sb strings.Builder
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			sb.WriteString(tmpl)
			return sb.String(), nil
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			sb.WriteString(tmpl)
			return sb.String(), nil
		}
		name := tmpl[open+1 : open+end]
		sb.WriteString(tmpl[:open])
		var value string
		if name == "user_id" {
			if call.UserID() == 0 {
				return "", apierr.Unauthorized(auth.ErrMissingToken.Error())
			}
			value = strconv.FormatInt(call.UserID(), 10)
		} else {
			value = call.Param(name)
			if value == "" {
				return "", apierr.BadRequest("missing " + name)
			}
		}
		if escape {
			value = url.PathEscape(value)
		}
		sb.WriteString(value)
		tmpl = tmpl[open+end+1:]
	}
}
