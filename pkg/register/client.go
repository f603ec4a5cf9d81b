// Package register is the client for the remote statute register: the SFST
// database of act texts and the SFSR database of change registers.
package register

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coolbeans/lagen/pkg/metrics"
	"github.com/coolbeans/lagen/pkg/sfs"
)

// NoResultsMarker is the fixed string the register prints when a search has
// no hits.
const NoResultsMarker = sfs.NoResultsMarker

// DefaultUserAgent is the default User-Agent header sent with register requests.
const DefaultUserAgent = "lagen-register-client/1.0"

// DefaultBaseURL is the register's search endpoint.
const DefaultBaseURL = "http://rkrattsbaser.gov.se/cgi-bin/thw"

// basefilePlaceholder is replaced by the query-escaped identifier in endpoint
// templates.
const basefilePlaceholder = "{basefile}"

// Endpoints holds the URL templates the client requests. Each template
// contains "{basefile}".
type Endpoints struct {
	// Document returns the SFST text page of an act.
	Document string `yaml:"document"`
	// Register returns the SFSR change register of a base act; it is also the
	// "does a base act exist" lookup.
	Register string `yaml:"register"`
	// Change searches the SFSR for registers an amending act appears in.
	Change string `yaml:"change"`
}

// EndpointsFor returns the register's endpoint templates rooted at baseURL.
func EndpointsFor(baseURL string) Endpoints {
	return Endpoints{
		Document: baseURL + "?${HTML}=sfst_lst&${OOHTML}=sfst_dok&${SNHTML}=sfst_err&${BASE}=SFST&${TRIPSHOW}=format=THW&BET=" + basefilePlaceholder,
		Register: baseURL + "?${HTML}=sfsr_lst&${OOHTML}=sfsr_dok&${SNHTML}=sfsr_err&${MAXPAGE}=26&${BASE}=SFSR&${FORD}=FIND&BET=" + basefilePlaceholder,
		Change:   baseURL + "?${HTML}=sfsr_lst&${OOHTML}=sfsr_dok&${SNHTML}=sfsr_err&${MAXPAGE}=26&${BASE}=SFSR&${FORD}=FIND&%C4BET=" + basefilePlaceholder,
	}
}

// Config holds configuration for a Client.
type Config struct {
	// Endpoints are the URL templates. Default: EndpointsFor(DefaultBaseURL).
	Endpoints Endpoints

	// RateLimit is the minimum interval between requests. Default: 1 second.
	RateLimit time.Duration

	// Burst is the number of requests allowed back to back. Default: 1.
	Burst int

	// CacheTTL is how long fetched pages are reused. Zero disables caching.
	CacheTTL time.Duration

	// Timeout bounds a single request when HTTPClient is nil. Zero means no
	// timeout; failures are never retried either way.
	Timeout time.Duration

	// HTTPClient is the underlying HTTP client used for requests.
	// If nil, an *http.Client is used (wrapped with rate limiting).
	HTTPClient HTTPClient

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Strategies overrides ChainStrategies.
	Strategies []ExtractionStrategy

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Endpoints: EndpointsFor(DefaultBaseURL),
		RateLimit: DefaultRequestInterval,
		Burst:     1,
		CacheTTL:  DefaultCacheTTL,
		UserAgent: DefaultUserAgent,
	}
}

// Client issues read-only requests against the register.
type Client struct {
	httpClient HTTPClient
	endpoints  Endpoints
	cache      *PageCache
	userAgent  string
	strategies []ExtractionStrategy
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a Client with the given configuration.
func NewClient(config Config) *Client {
	underlyingClient := config.HTTPClient
	if underlyingClient == nil {
		underlyingClient = &http.Client{Timeout: config.Timeout}
	}

	endpoints := config.Endpoints
	if endpoints.Document == "" || endpoints.Register == "" || endpoints.Change == "" {
		endpoints = EndpointsFor(DefaultBaseURL)
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	strategies := config.Strategies
	if len(strategies) == 0 {
		strategies = ChainStrategies
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		httpClient: NewRateLimitedHTTPClient(underlyingClient, config.RateLimit, config.Burst),
		endpoints:  endpoints,
		cache:      NewPageCache(config.CacheTTL),
		userAgent:  userAgent,
		strategies: strategies,
		metrics:    config.Metrics,
		logger:     logger,
	}
}

// LookupBaseAct asks the register whether identifier is itself a base act.
// It returns [identifier] when it is and an empty list when the register has
// no change register for it.
func (client *Client) LookupBaseAct(ctx context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error) {
	page, err := client.get(ctx, "register", client.endpoints.Register, identifier)
	if err != nil {
		return nil, err
	}
	if sfs.HasNoResults(page) {
		return nil, nil
	}
	return []sfs.Identifier{identifier}, nil
}

// LookupAmendmentChain asks the register which base acts identifier amends.
// An empty list means identifier appears in no change register. When the page
// has hits but no strategy recognises its layout, the result is the empty
// list too.
func (client *Client) LookupAmendmentChain(ctx context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error) {
	page, err := client.get(ctx, "change", client.endpoints.Change, identifier)
	if err != nil {
		return nil, err
	}
	if sfs.HasNoResults(page) {
		return nil, nil
	}

	baseActs, strategyName := runStrategies(client.strategies, sfs.Decode(page), identifier)
	if strategyName == "" {
		client.logger.Warn("change register page matched no extraction strategy", "sfs", identifier.String())
		return nil, nil
	}
	client.logger.Debug("found change act", "sfs", identifier.String(), "strategy", strategyName, "base_acts", len(baseActs))
	return baseActs, nil
}

// FetchDocument downloads the SFST text page of an act.
func (client *Client) FetchDocument(ctx context.Context, identifier sfs.Identifier) ([]byte, error) {
	page, err := client.get(ctx, "document", client.endpoints.Document, identifier)
	if err != nil {
		return nil, err
	}
	if sfs.HasNoResults(page) {
		return nil, &sfs.NotFoundError{Identifier: identifier}
	}
	return page, nil
}

// FetchChangeRegister downloads the SFSR change register of a base act.
func (client *Client) FetchChangeRegister(ctx context.Context, identifier sfs.Identifier) ([]byte, error) {
	page, err := client.get(ctx, "register", client.endpoints.Register, identifier)
	if err != nil {
		return nil, err
	}
	if sfs.HasNoResults(page) {
		return nil, &sfs.NotFoundError{Identifier: identifier}
	}
	return page, nil
}

// Invalidate drops the cached text and change register pages of a base act so
// that the next fetch goes to the register.
func (client *Client) Invalidate(identifier sfs.Identifier) {
	client.cache.Invalidate(expand(client.endpoints.Document, identifier))
	client.cache.Invalidate(expand(client.endpoints.Register, identifier))
}

// DocumentURL returns the SFST URL for identifier.
func (client *Client) DocumentURL(identifier sfs.Identifier) string {
	return expand(client.endpoints.Document, identifier)
}

// get performs a GET against the templated endpoint, consulting the page cache
// first. Transport failures and any HTTP status of 400 or above are returned
// wrapped; the register answers unknown numbers with a 200 "no hits" page.
func (client *Client) get(ctx context.Context, endpointName, template string, identifier sfs.Identifier) ([]byte, error) {
	requestURL := expand(template, identifier)

	if cachedPage, found := client.cache.Get(requestURL); found {
		client.metrics.ObserveRequest(endpointName, "cached")
		return cachedPage, nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", identifier, err)
	}
	request.Header.Set("User-Agent", client.userAgent)

	response, err := client.httpClient.Do(request)
	if err != nil {
		client.metrics.ObserveRequest(endpointName, "error")
		return nil, fmt.Errorf("failed to fetch %s for %s: %w", endpointName, identifier, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		client.metrics.ObserveRequest(endpointName, "error")
		return nil, fmt.Errorf("register returned HTTP %d for %s %s", response.StatusCode, endpointName, identifier)
	}

	page, err := io.ReadAll(response.Body)
	if err != nil {
		client.metrics.ObserveRequest(endpointName, "error")
		return nil, fmt.Errorf("failed to read %s for %s: %w", endpointName, identifier, err)
	}

	client.metrics.ObserveRequest(endpointName, "ok")
	client.cache.Set(requestURL, page)
	return page, nil
}

func expand(template string, identifier sfs.Identifier) string {
	return strings.ReplaceAll(template, basefilePlaceholder, url.QueryEscape(identifier.String()))
}
