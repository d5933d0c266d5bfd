package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/models"
)

var (
	// ErrNotFound marks a 404 from the data tree.
	ErrNotFound = errors.New("remote document not found")
	// ErrNotConfigured is returned for writes when the deployment has no API.
	ErrNotConfigured = errors.New("no remote API configured")
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Throttled reports a 429 reply. The sync engine retries these without
// charging the item an attempt.
func (e *StatusError) Throttled() bool {
	return e.Code == http.StatusTooManyRequests
}

// Client issues JSON requests with a per-call timeout.
type Client struct {
	resolver     EndpointResolver
	http         *http.Client
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *zap.Logger
}

func NewClient(r EndpointResolver, readTimeout, writeTimeout time.Duration) *Client {
	return &Client{
		resolver:     r,
		http:         &http.Client{},
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		log:          applog.Named("remote"),
	}
}

// Configured reports whether there is an API to write to.
func (c *Client) Configured() bool {
	_, ok := c.resolver.APIBase()
	return ok
}

// PostJSON sends body to an API path such as "/comment". Any 2xx is a
// success; everything else is a NetworkFault.
func (c *Client) PostJSON(ctx context.Context, path string, body any) error {
	base, ok := c.resolver.APIBase()
	if !ok {
		return models.NewNetworkFault("POST "+path, ErrNotConfigured)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return models.NewValidationError("cannot encode request: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	url := base + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return models.NewNetworkFault("POST "+path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewNetworkFault("POST "+path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.NewNetworkFault("POST "+path, &StatusError{Method: http.MethodPost, URL: url, Code: resp.StatusCode})
	}
	return nil
}

// GetJSON fetches a document under /data and decodes it into v. A 404 is
// a NotFound error wrapping ErrNotFound; other failures are NetworkFaults.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	url := c.resolver.DataURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.NewNetworkFault("GET "+path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewNetworkFault("GET "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.AppError{Code: models.CodeNotFound, Message: "GET " + path, Err: ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.NewNetworkFault("GET "+path, &StatusError{Method: http.MethodGet, URL: url, Code: resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return models.NewNetworkFault("GET "+path, fmt.Errorf("malformed document: %w", err))
	}
	return nil
}

// Probe checks that the data host answers at all. Any HTTP reply, even an
// error status, counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	url := c.resolver.DataURL("posts/index.json")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("probe failed", zap.String("url", url), zap.Error(err))
		return models.NewNetworkFault("probe", err)
	}
	resp.Body.Close()
	return nil
}
