package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"golang.org/x/time/rate"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

const (
	// DefaultBaseURL はローカルで起動した分析サービスのURL
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout は1リクエストあたりのタイムアウト
	DefaultTimeout = 30 * time.Second

	// RequestIDHeader はリクエストIDを送るヘッダー
	RequestIDHeader = "X-Request-ID"

	// maxErrorBodyBytes はエラー時にログへ残すレスポンスボディの上限
	maxErrorBodyBytes = 512
)

// HTTPError は非2xxレスポンスを表す
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status: %s: %s", e.Status, e.Body)
}

// Client は分析サービスのHTTPクライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient は http.Client を差し替える
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout は1リクエストあたりのタイムアウトを設定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit はリクエストのレート制限を設定する。reqPerSec が0以下の場合は制限しない。
func WithRateLimit(reqPerSec float64, burst int) ClientOption {
	return func(c *Client) {
		if reqPerSec <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(reqPerSec), burst)
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL はベースURLを返す
func (c *Client) BaseURL() string {
	return c.baseURL
}

type startRequest struct {
	Company string `json:"company"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resultResponse struct {
	Result *string `json:"result"`
}

// StartAnalysis は POST /analyze/ を呼び出す。レスポンスは任意のJSONとしてそのまま返す。
func (c *Client) StartAnalysis(ctx context.Context, identifier string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "analyze", http.MethodPost, "/analyze/", startRequest{Company: identifier}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetStatus は GET /status/{identifier} を呼び出す
func (c *Client) GetStatus(ctx context.Context, identifier string) (analysis.Status, error) {
	var resp statusResponse
	if err := c.do(ctx, "status", http.MethodGet, "/status/"+url.PathEscape(identifier), nil, &resp); err != nil {
		return analysis.StatusPending, classify(err, identifier)
	}
	return analysis.ParseStatus(resp.Status), nil
}

// GetResult は GET /result/{identifier} を呼び出す
func (c *Client) GetResult(ctx context.Context, identifier string) (mo.Option[string], error) {
	var resp resultResponse
	if err := c.do(ctx, "result", http.MethodGet, "/result/"+url.PathEscape(identifier), nil, &resp); err != nil {
		return mo.None[string](), classify(err, identifier)
	}
	if resp.Result == nil {
		return mo.None[string](), nil
	}
	return mo.Some(*resp.Result), nil
}

// do はリクエストを送信し、2xxのレスポンスボディを out にデコードする
func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &analysis.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("分析サービスを呼び出しました",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"requestID", requestID,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &analysis.TransportError{Op: op, Err: &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(b)),
		}}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &analysis.TransportError{Op: op, Err: fmt.Errorf("%w: %v", analysis.ErrMalformedResponse, err)}
	}
	return nil
}

// classify は status/result エンドポイントのエラーコードを区別可能なエラーに変換する。
// 404 は未知の識別子、409/425 は未完了として扱う。
func classify(err error, identifier string) error {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch httpErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", analysis.ErrNotFound, identifier)
	case http.StatusConflict, http.StatusTooEarly:
		return fmt.Errorf("%w: %s", analysis.ErrNotReady, identifier)
	default:
		return err
	}
}
