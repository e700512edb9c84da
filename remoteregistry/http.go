package remoteregistry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HTTPFetcher fetches YAML manifests over HTTP from {baseURL}/{name}.yaml (or .yml).
// 404 tries the next candidate; other non-2xx returns ErrHTTPStatus.
var _ Fetcher = (*HTTPFetcher)(nil)

var _ Lister = (*HTTPFetcher)(nil)

// maxBodySize limits HTTP response body size (1 MB); YAML manifests are small.
const maxBodySize = 1 << 20

// defaultUserAgent is the User-Agent header value for HTTP requests.
const defaultUserAgent = "promptkit-remote-registry/1.0"

// IndexFile is the manifest index ListNames reads: a YAML list of prompt names.
const IndexFile = "index.yaml"

// TokenSource returns the bearer token for a request.
type TokenSource func(ctx context.Context) (string, error)

// HTTPFetcher holds base URL, client, and optional Bearer token.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

// HTTPOption configures HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the HTTP client. Default has 30s timeout. If c is nil, the default client is left unchanged.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPFetcher) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithAuthToken sets a static Bearer token for the Authorization header.
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTPFetcher) {
		h.token = func(context.Context) (string, error) { return token, nil }
	}
}

// WithTokenSource resolves the Bearer token per request, e.g. from a secrets store.
func WithTokenSource(ts TokenSource) HTTPOption {
	return func(h *HTTPFetcher) {
		h.token = ts
	}
}

// NewHTTPFetcher creates an HTTPFetcher. baseURL must be a valid URL (e.g. https://api.example.com/prompts).
func NewHTTPFetcher(baseURL string, opts ...HTTPOption) (*HTTPFetcher, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("remoteregistry: base URL must not be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("remoteregistry: invalid base URL %q", baseURL)
	}
	h := &HTTPFetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Fetch tries {base}/{name}.yaml, then {base}/{name}.yml.
func (h *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	for _, p := range CandidatePaths(name) {
		data, err := h.fetchOne(ctx, p)
		if err != nil {
			if errors.Is(err, errNotFound) {
				continue
			}
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ListNames reads {base}/index.yaml. A missing index yields ErrNoLister.
func (h *HTTPFetcher) ListNames(ctx context.Context) ([]string, error) {
	data, err := h.fetchOne(ctx, IndexFile)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("%w: %s not found", ErrNoLister, IndexFile)
	}
	if err != nil {
		return nil, err
	}
	var names []string
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrFetchFailed, IndexFile, err)
	}
	return names, nil
}

var errNotFound = errors.New("not found")

// escapePath escapes each slash-separated segment so nested names keep their directories.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (h *HTTPFetcher) fetchOne(ctx context.Context, p string) ([]byte, error) {
	u := h.baseURL + "/" + escapePath(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if h.token != nil {
		token, err := h.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token: %w", ErrFetchFailed, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := h.httpClient.Do(req) // #nosec G704 -- URL is from config and path-escaped name
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w: %s %s", ErrFetchFailed, ErrHTTPStatus, resp.Status, u)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrFetchFailed, maxBodySize)
	}
	return data, nil
}
