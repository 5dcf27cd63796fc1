package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transmute/internal/jobs"
	"transmute/internal/services"
)

// ErrUnavailable is returned when no daemon address is configured.
var ErrUnavailable = errors.New("daemon API unavailable")

const requestTimeout = 30 * time.Second

// Error is a non-2xx reply decoded from ErrorResponse.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon API returned status %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap exposes the services marker matching Kind.
func (e *Error) Unwrap() error {
	if e.Kind == "" {
		return nil
	}
	return services.Marker(e.Kind)
}

// Client calls the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient returns nil without error when bind is empty.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: requestTimeout},
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Jobs lists jobs known to the daemon, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, status jobs.Status) ([]jobs.Job, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": {string(status)}}
	}
	var out JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, id string) (jobs.Job, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return jobs.Job{}, err
	}
	return out.Job, nil
}

// Submit plans and starts a conversion on the daemon. Paths are resolved by
// the daemon, so relative inputs should be made absolute first.
func (c *Client) Submit(ctx context.Context, req jobs.Request) (jobs.Submission, error) {
	var out jobs.Submission
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out, err
}

// Cancel asks the daemon to cancel a job.
func (c *Client) Cancel(ctx context.Context, id string) (CancelResponse, error) {
	var out CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &out)
	return out, err
}

// StartBatch submits a batch to the daemon.
func (c *Client) StartBatch(ctx context.Context, req jobs.BatchRequest) (string, error) {
	var out BatchCreatedResponse
	if err := c.do(ctx, http.MethodPost, "/api/batches", nil, req, &out); err != nil {
		return "", err
	}
	return out.BatchID, nil
}

// Batch fetches one batch.
func (c *Client) Batch(ctx context.Context, id string) (jobs.Batch, error) {
	var out BatchResponse
	if err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return jobs.Batch{}, err
	}
	return out.Batch, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
