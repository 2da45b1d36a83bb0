package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/sony/gobreaker/v2"
)

const defaultRequestTimeout = 15 * time.Second

// HTTPClient implements Client against REST endpoints:
//
//	GET    {base}/api/ping
//	POST   {base}/api/{entity}
//	PUT    {base}/api/{entity}/{id}
//	DELETE {base}/api/{entity}/{id}
//	POST   {base}/api/uploads        (multipart/form-data)
//
// A circuit breaker sits in front of every dispatch; repeated transport
// failures open it and subsequent calls fail fast as unavailable, so
// backoff keeps governing retries without hammering a dead endpoint.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPClient returns a client bound to baseURL. The token may be empty;
// when set it is attached as a bearer Authorization header.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	st := gobreaker.Settings{
		Name:    "remote-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](st),
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, c.entityURL("ping", ""), "", nil)
}

func (c *HTTPClient) Create(ctx context.Context, entity string, payload []byte) error {
	return c.call(ctx, http.MethodPost, c.entityURL(entity, ""), "application/json", payload)
}

func (c *HTTPClient) Update(ctx context.Context, entity, id string, payload []byte) error {
	return c.call(ctx, http.MethodPut, c.entityURL(entity, id), "application/json", payload)
}

func (c *HTTPClient) Delete(ctx context.Context, entity, id string) error {
	return c.call(ctx, http.MethodDelete, c.entityURL(entity, id), "", nil)
}

func (c *HTTPClient) Upload(ctx context.Context, req *UploadRequest) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"id":           req.ID,
		"target_id":    req.TargetID,
		"checksum":     req.Checksum,
		"content_type": req.ContentType,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to build multipart body: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", req.Name)
	if err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(req.Body); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}

	return c.call(ctx, http.MethodPost, c.entityURL("uploads", ""), w.FormDataContentType(), buf.Bytes())
}

func (c *HTTPClient) entityURL(entity, id string) string {
	u := c.baseURL + "/api/" + url.PathEscape(entity)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *HTTPClient) call(ctx context.Context, method, u, contentType string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		// 5xx counts against the breaker just like a transport failure.
		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%w: %s: %s", common.ErrUnavailable, resp.Status, string(b))
		}
		return resp, nil
	})
	if err != nil {
		return c.mapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return mapStatus(resp.StatusCode, string(b))
	}
	return nil
}

func (c *HTTPClient) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrUnavailable):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit breaker open", common.ErrUnavailable)
	case errors.Is(err, context.Canceled):
		return err
	default:
		// Transport-level failures, including client timeouts.
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
}

func mapStatus(code int, body string) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", common.ErrUnauthorized, code)
	default:
		return fmt.Errorf("%w: status %d: %s", common.ErrRejected, code, body)
	}
}
