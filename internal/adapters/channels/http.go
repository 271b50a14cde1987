// Package channels отправляет подготовленные материалы во внешние платформы по HTTP.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
)

// HTTPPublisher вызывает шлюз одной платформы.
type HTTPPublisher struct {
	platform   domain.Platform
	endpoint   *url.URL
	token      string
	httpClient *http.Client
	now        func() time.Time
}

var _ domain.ChannelPublisher = (*HTTPPublisher)(nil)

// Option настраивает HTTPPublisher.
type Option func(*HTTPPublisher)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPPublisher) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут клиента.
func WithTimeout(timeout time.Duration) Option {
	return func(p *HTTPPublisher) {
		if p.httpClient == nil {
			p.httpClient = &http.Client{}
		}
		p.httpClient.Timeout = timeout
	}
}

// WithClock задаёт часы для разбора Retry-After в формате даты.
func WithClock(now func() time.Time) Option {
	return func(p *HTTPPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

type publishBody struct {
	ContentID string   `json:"content_id"`
	VersionNo int      `json:"version_no"`
	Title     string   `json:"title"`
	Text      string   `json:"text,omitempty"`
	Parts     []string `json:"parts,omitempty"`
	URL       string   `json:"url,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Path      string   `json:"path,omitempty"`
	Silent    bool     `json:"silent"`
}

type publishResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// NewHTTPPublisher создаёт публикатор для платформы.
func NewHTTPPublisher(platform domain.Platform, endpoint, token string, opts ...Option) (*HTTPPublisher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%s: endpoint is required", platform)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: parse endpoint: %w", platform, err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	p := &HTTPPublisher{
		platform:   platform,
		endpoint:   parsed,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Platform реализует domain.ChannelPublisher.
func (p *HTTPPublisher) Platform() domain.Platform { return p.platform }

// Publish реализует domain.ChannelPublisher. Ошибки возвращаются как *domain.ChannelError.
func (p *HTTPPublisher) Publish(ctx context.Context, req domain.PublishRequest) (domain.PublishResult, error) {
	body := publishBody{
		ContentID: req.ContentID.String(),
		VersionNo: req.VersionNo,
		Title:     req.Payload.Title,
		Text:      req.Payload.Text,
		Parts:     req.Payload.Parts,
		URL:       req.Payload.URL,
		ImageURL:  req.Payload.ImageURL,
		Path:      req.Payload.Path,
		Silent:    req.Payload.Silent,
	}
	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return domain.PublishResult{}, &domain.ChannelError{Kind: domain.ChannelErrorPermanent, Err: err}
	}

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("channel", "publish", string(p.platform), start, err)
		return domain.PublishResult{}, &domain.ChannelError{Kind: domain.ChannelErrorTransient, Err: fmt.Errorf("%s request failed: %w", p.platform, err)}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed publishResponse
	if readErr == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &parsed)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.ObserveNetworkRequest("channel", "publish", string(p.platform), start, nil)
		if readErr != nil {
			return domain.PublishResult{}, &domain.ChannelError{Kind: domain.ChannelErrorTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", readErr)}
		}
		return domain.PublishResult{Success: true, ExternalPostID: parsed.ID}, nil
	}

	message := parsed.Error
	if message == "" {
		message = strings.TrimSpace(string(data))
	}
	if message == "" {
		message = resp.Status
	}
	chErr := &domain.ChannelError{
		Kind:       Classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), p.now()),
		Err:        fmt.Errorf("%s: %s", p.platform, message),
	}
	metrics.ObserveNetworkRequest("channel", "publish", string(p.platform), start, chErr)
	return domain.PublishResult{Error: message, RetryAfter: chErr.RetryAfter}, chErr
}

func (p *HTTPPublisher) newRequest(ctx context.Context, body publishBody) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.String(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%d:%s", body.ContentID, body.VersionNo, p.platform))
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	return req, nil
}

// Classify относит HTTP-статус к временной или постоянной ошибке.
func Classify(status int) domain.ChannelErrorKind {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return domain.ChannelErrorTransient
	default:
		return domain.ChannelErrorPermanent
	}
}

// ParseRetryAfter понимает число секунд и HTTP-дату. Некорректное значение даёт ноль.
func ParseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(raw)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
