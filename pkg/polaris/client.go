// Package polaris is a small client for the catalog service's REST
// management API. It covers what provisioning needs: waiting for the
// service, client-credentials token exchange, catalog creation and the
// catalog/principal role wiring.
package polaris

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

const managementPrefix = "/api/management/v1"

// DefaultTimeout bounds each request when no timeout option is given.
const DefaultTimeout = 15 * time.Second

var (
	// statusesMutationOK are the success statuses of create/update calls.
	statusesMutationOK = []int{http.StatusOK, http.StatusCreated, http.StatusNoContent}
	// statusesAlreadyExists are tolerated as "already provisioned".
	statusesAlreadyExists = []int{http.StatusConflict}
	statusesListOK        = []int{http.StatusOK}
)

// Keys used by listing documents whose body is not a JSON object.
const (
	ListItemsKey = "items"
	ListRawKey   = "raw"
)

// ErrServiceUnavailable is returned when the availability poll gives up.
var ErrServiceUnavailable = errors.New("catalog service is not reachable")

// StatusError is returned when the service answers with a status that is
// neither a success nor tolerated.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s -> %d\n%s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Outcome describes how a tolerant provisioning call ended.
type Outcome struct {
	StatusCode int
}

// AlreadyExisted reports whether the service answered with a conflict,
// meaning the resource or binding was provisioned before.
func (o Outcome) AlreadyExisted() bool {
	return o.StatusCode == http.StatusConflict
}

// Client talks to one catalog service. A Client is safe for concurrent use;
// WithToken returns a copy rather than mutating the receiver.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	timeout    time.Duration
	logger     logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// HTTP client, whichever order the options come in.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logr.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the service root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithToken returns a copy of the client that sends token as a bearer
// credential on every request.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// managementPath joins escaped path segments under the management API prefix.
func managementPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return managementPrefix + "/" + strings.Join(escaped, "/")
}

// do sends a JSON request and decodes the response into out when the status
// is in ok. An out of type *[]byte receives the raw body instead. Statuses
// in tolerated are returned without error and without decoding. Any other
// status yields a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any, ok, tolerated []int) (int, error) {
	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling %s %s body: %w", method, target, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.V(1).Info("sending request", "method", method, "url", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading %s %s response: %w", method, target, err)
	}

	switch {
	case slices.Contains(ok, resp.StatusCode):
	case slices.Contains(tolerated, resp.StatusCode):
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if dst, isRaw := out.(*[]byte); isRaw {
			*dst = respBody
			return resp.StatusCode, nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s %s response: %w", method, target, err)
		}
	}
	return resp.StatusCode, nil
}

// ensure performs a create-or-bind call where a conflict means the state is
// already in place.
func (c *Client) ensure(ctx context.Context, method, path string, body any) (Outcome, error) {
	code, err := c.do(ctx, method, path, body, nil, statusesMutationOK, statusesAlreadyExists)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{StatusCode: code}, nil
}

// list fetches a listing endpoint as a generic document. JSON that is not an
// object is returned decoded under ListItemsKey; a body that is not JSON at
// all is returned as text under ListRawKey rather than failing.
func (c *Client) list(ctx context.Context, path string) (map[string]any, error) {
	var raw []byte
	if _, err := c.do(ctx, http.MethodGet, path, nil, &raw, statusesListOK, nil); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{ListRawKey: strings.TrimSpace(string(raw))}, nil
	}
	switch v := decoded.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return map[string]any{}, nil
	default:
		return map[string]any{ListItemsKey: v}, nil
	}
}
