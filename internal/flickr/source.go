// Package flickr adapts the Flickr REST API to domain.PhotoSource.
package flickr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// DefaultBaseURL is the public REST endpoint
const DefaultBaseURL = "https://api.flickr.com/services/rest/"

const (
	methodGetRecent = "flickr.photos.getRecent"
	methodSearch    = "flickr.photos.search"
	methodGetInfo   = "flickr.photos.getInfo"

	listExtras = "url_s,owner_name,date_taken"
)

// Ensure Source implements domain.PhotoSource
var _ domain.PhotoSource = (*Source)(nil)

// Source fetches photo pages and details over HTTP
type Source struct {
	fetcher domain.Fetcher
	baseURL *url.URL
	apiKey  string
	limiter *limiter
	logger  *utils.Logger
}

// Options configures a Source
type Options struct {
	BaseURL string
	APIKey  string
	// RequestsPerHour caps calls made with APIKey; zero means the
	// public quota
	RequestsPerHour int
	Logger          *utils.Logger
}

// NewSource creates a Source on top of fetcher
func NewSource(fetcher domain.Fetcher, opts Options) (*Source, error) {
	if opts.APIKey == "" {
		return nil, domain.ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidURL, opts.BaseURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	return &Source{
		fetcher: fetcher,
		baseURL: base,
		apiKey:  opts.APIKey,
		limiter: newLimiter(opts.RequestsPerHour, defaultBurst),
		logger:  logger.WithComponent("flickr"),
	}, nil
}

// FetchPage returns one page of recent photos or of a text search
func (s *Source) FetchPage(ctx context.Context, query domain.ListQuery, page, pageSize int) (*domain.Page, error) {
	if page < 1 {
		page = 1
	}

	method := methodGetRecent
	params := url.Values{}
	if query.IsSearch() {
		method = methodSearch
		params.Set("text", query.Text())
	}
	params.Set("extras", listExtras)
	params.Set("per_page", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// feed pages are never served from cache
	resp, err := s.fetcher.GetFresh(ctx, s.endpoint(method, params))
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", method, page, err)
	}

	result, err := decodePhotos(method, resp.Body, page)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("method", method).
		Str("query", query.String()).
		Int("page", result.PageNumber).
		Int("pages", result.TotalPages).
		Int("items", len(result.Items)).
		Msg("Fetched page")

	return result, nil
}

// PhotoInfo returns the detail record for one photo. Responses are cached
// by the fetcher when caching is enabled.
func (s *Source) PhotoInfo(ctx context.Context, photoID, secret string) (*domain.PhotoDetail, error) {
	if photoID == "" {
		return nil, domain.NewValidationError("photo_id", "must not be empty")
	}

	params := url.Values{}
	params.Set("photo_id", photoID)
	if secret != "" {
		params.Set("secret", secret)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.fetcher.Get(ctx, s.endpoint(methodGetInfo, params))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", methodGetInfo, photoID, err)
	}

	detail, err := decodeInfo(resp.Body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("photo_id", photoID).
		Bool("from_cache", resp.FromCache).
		Msg("Fetched photo info")

	return detail, nil
}

func (s *Source) endpoint(method string, params url.Values) string {
	params.Set("method", method)
	params.Set("api_key", s.apiKey)
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")

	u := *s.baseURL
	u.RawQuery = params.Encode()
	return u.String()
}
