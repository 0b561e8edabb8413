package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	WooCommercePath   = "/wp-json/wc/v3"
	DreamShopPath     = "/wp-json/dreamshop/v1"
	GiftCardPath      = "/wp-json/gift-card/v1"
	ResinShippingPath = "/wp-json/dreamshop-resin-shipping/v1"
)

// AuthMode selects how consumer credentials travel to WordPress.
type AuthMode int

const (
	// AuthQuery puts consumer_key/consumer_secret in the query string (WooCommerce REST).
	AuthQuery AuthMode = iota
	// AuthBasic sends an Authorization: Basic header (custom plugin endpoints).
	AuthBasic
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	logger         *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("wordpress base URL is required")
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errors.New("wordpress consumer credentials are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		logger:         logger,
	}, nil
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Auth   AuthMode
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode upstream body: %w", err)
	}
	return nil
}

// APIError is a non-2xx answer from WordPress.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wordpress %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("wordpress %d", e.Status)
}

func (e *APIError) StatusCode() int { return e.Status }

// IsNotFound reports an upstream 404, including the rest_no_route answer
// WordPress gives when a plugin namespace is not registered.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound || apiErr.Code == "rest_no_route"
}

type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(c.baseURL + req.Path)
	if err != nil {
		return nil, fmt.Errorf("build upstream url: %w", err)
	}
	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if req.Auth == AuthQuery {
		q.Set("consumer_key", c.consumerKey)
		q.Set("consumer_secret", c.consumerSecret)
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode upstream body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new upstream request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Auth == AuthBasic {
		httpReq.SetBasicAuth(c.consumerKey, c.consumerSecret)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Body: respBody}
		var wpErr wpError
		if json.Unmarshal(respBody, &wpErr) == nil {
			apiErr.Code = wpErr.Code
			apiErr.Message = wpErr.Message
		}
		c.logger.Warn("upstream error",
			zap.String("method", method),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
			zap.ByteString("body", truncate(respBody, 512)))
		return nil, apiErr
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func (c *Client) doJSON(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
