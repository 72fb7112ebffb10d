package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/specialistvlad/modrun/internal/ctxlog"
)

// FetchPath is the endpoint, relative to a base url, that serves fetch results.
const FetchPath = "/@modrun/fetch"

// HTTPOptions configures an HTTPBackend.
type HTTPOptions struct {
	BaseURL  string
	RetryMax int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// HTTPBackend asks a remote server for modules. Transient failures are
// retried by go-retryablehttp.
type HTTPBackend struct {
	base   *url.URL
	client *retryablehttp.Client
}

// NewHTTPBackend returns a backend talking to the server at opts.BaseURL.
func NewHTTPBackend(opts HTTPOptions) (*HTTPBackend, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing fetch base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("fetch base url %q must be http or https", opts.BaseURL)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = time.Second
	if opts.Logger != nil {
		client.Logger = opts.Logger
	} else {
		client.Logger = nil
	}

	return &HTTPBackend{base: base, client: client}, nil
}

// FetchModule implements Backend.
func (b *HTTPBackend) FetchModule(ctx context.Context, moduleURL, importer string, opts Options) (*Result, error) {
	q := url.Values{}
	q.Set("url", moduleURL)
	if importer != "" {
		q.Set("importer", importer)
	}
	q.Set("cached", strconv.FormatBool(opts.Cached))

	endpoint := *b.base
	endpoint.Path += FetchPath
	endpoint.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	ctxlog.FromContext(ctx).Debug("Fetching module over HTTP.", "url", moduleURL, "endpoint", endpoint.Host)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", moduleURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetching %q: %w", moduleURL, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetching %q: unexpected status %d: %s", moduleURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding fetch result for %q: %w", moduleURL, err)
	}
	return &res, nil
}

// NewHandler serves backend over HTTP using the wire format HTTPBackend
// expects. It is mounted at FetchPath.
func NewHandler(backend Backend) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(FetchPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		moduleURL := q.Get("url")
		if moduleURL == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}
		cached, _ := strconv.ParseBool(q.Get("cached"))

		res, err := backend.FetchModule(r.Context(), moduleURL, q.Get("importer"), Options{Cached: cached})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			ctxlog.FromContext(r.Context()).Error("Failed to encode fetch result.", "url", moduleURL, "error", err)
		}
	})
	return mux
}
