package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/retry"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	transactionsPath = "/v1/reporting/transactions"

	// MaxPageSize is the largest page the API accepts.
	MaxPageSize = 500
	// DefaultPageSize is used when FetchOptions.PageSize is unset.
	DefaultPageSize = 100
	// DefaultMaxPages bounds a single extraction.
	DefaultMaxPages = 100
	// DefaultMaxRateLimitRetries bounds consecutive 429 waits.
	DefaultMaxRateLimitRetries = 10
	// RateLimitWait is the pause after a 429.
	RateLimitWait = 60 * time.Second
	// PageInterval separates successive page requests.
	PageInterval = 500 * time.Millisecond
)

// StopReason explains why an extraction ended.
type StopReason string

const (
	StopEmptyPage   StopReason = "empty_page"
	StopNoNextLink  StopReason = "no_next_link"
	StopShortPage   StopReason = "short_page"
	StopMaxPages    StopReason = "max_pages"
	StopAuthFailed  StopReason = "auth_failed"
	StopRateLimited StopReason = "rate_limited"
	StopError       StopReason = "error"
)

// Requester is the subset of Client used by the Extractor.
type Requester interface {
	Do(ctx context.Context, method, path string, params url.Values) (*Response, error)
}

// Observer receives extraction progress. metrics.Manager implements it.
type Observer interface {
	PageFetched()
	RateLimited()
}

// FetchOptions narrows one extraction.
type FetchOptions struct {
	// Status filters on transaction_status when set.
	Status   string
	PageSize int
}

// Result is the outcome of a Fetch, including partial results.
type Result struct {
	Records        []json.RawMessage
	Pages          int
	RateLimitWaits int
	StopReason     StopReason
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxPages overrides the page ceiling.
func WithMaxPages(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithRateLimitRetries overrides the consecutive 429 ceiling.
func WithRateLimitRetries(n int) ExtractorOption {
	return func(e *Extractor) {
		e.maxRateLimitRetries = n
	}
}

// WithSleeper replaces the 429 wait; tests pass a fake.
func WithSleeper(s retry.SleepFunc, wait time.Duration) ExtractorOption {
	return func(e *Extractor) {
		e.sleep = s
		e.rateLimitWait = wait
	}
}

// WithPageLimiter replaces the inter-page limiter.
func WithPageLimiter(l *rate.Limiter) ExtractorOption {
	return func(e *Extractor) {
		e.limiter = l
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) ExtractorOption {
	return func(e *Extractor) {
		e.observer = o
	}
}

// WithExtractorLogger sets the extractor logger.
func WithExtractorLogger(log zerolog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.log = log
	}
}

// Extractor walks the paginated transaction search endpoint.
type Extractor struct {
	client              Requester
	maxPages            int
	maxRateLimitRetries int
	rateLimitWait       time.Duration
	sleep               retry.SleepFunc
	limiter             *rate.Limiter
	observer            Observer
	log                 zerolog.Logger
}

// NewExtractor creates an Extractor over client.
func NewExtractor(client Requester, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		client:              client,
		maxPages:            DefaultMaxPages,
		maxRateLimitRetries: DefaultMaxRateLimitRetries,
		rateLimitWait:       RateLimitWait,
		sleep:               retry.Sleep,
		limiter:             rate.NewLimiter(rate.Every(PageInterval), 1),
		log:                 zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type searchPage struct {
	TransactionDetails []json.RawMessage `json:"transaction_details"`
	Links              []link            `json:"links"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// Fetch retrieves every raw record in window. Records are returned in the
// order received. The returned Result is always usable: when err is non-nil
// it holds whatever was collected before the failure.
//
// Pagination stops on the first of: an empty page, a page without a "next"
// link, a page shorter than the page size, or the page ceiling. A 429 waits
// and retries the same page without consuming the ceiling. A 401 or 403 on
// page 1 is retried once with a fresh token; on later pages it ends the
// extraction.
func (e *Extractor) Fetch(ctx context.Context, window domain.Window, opts FetchOptions) (Result, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var res Result
	authRetried := false
	rateLimitRetries := 0

	log := e.log.With().Str("window", window.Key()).Int("page_size", pageSize).Logger()
	log.Info().Msg("Fetching transactions")

	page := 1
	for page <= e.maxPages {
		if err := e.limiter.Wait(ctx); err != nil {
			res.StopReason = StopError
			return res, fmt.Errorf("Fetch: page %d: %w", page, err)
		}

		resp, err := e.client.Do(ctx, http.MethodGet, transactionsPath, searchParams(window, opts.Status, pageSize, page))
		if err != nil {
			switch {
			case errors.Is(err, ErrRateLimited):
				rateLimitRetries++
				if rateLimitRetries > e.maxRateLimitRetries {
					res.StopReason = StopRateLimited
					return res, fmt.Errorf("Fetch: page %d: %d consecutive rate limits: %w", page, rateLimitRetries-1, err)
				}
				res.RateLimitWaits++
				if e.observer != nil {
					e.observer.RateLimited()
				}
				log.Warn().Int("page", page).Dur("wait", e.rateLimitWait).Msg("Rate limited, waiting")
				if serr := e.sleep(ctx, e.rateLimitWait); serr != nil {
					res.StopReason = StopError
					return res, fmt.Errorf("Fetch: page %d: %w", page, serr)
				}
				continue

			case errors.Is(err, ErrUnauthorized):
				if page == 1 && !authRetried {
					authRetried = true
					log.Warn().Err(err).Msg("Authorization rejected on first page, retrying with a fresh token")
					continue
				}
				res.StopReason = StopAuthFailed
				return res, fmt.Errorf("Fetch: page %d: %w", page, err)

			default:
				res.StopReason = StopError
				return res, fmt.Errorf("Fetch: page %d: %w", page, err)
			}
		}
		rateLimitRetries = 0

		var body searchPage
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			res.StopReason = StopError
			return res, fmt.Errorf("Fetch: page %d: decode: %w", page, err)
		}

		res.Pages++
		if e.observer != nil {
			e.observer.PageFetched()
		}

		n := len(body.TransactionDetails)
		if n == 0 {
			res.StopReason = StopEmptyPage
			break
		}
		res.Records = append(res.Records, body.TransactionDetails...)
		log.Debug().Int("page", page).Int("records", n).Int("total", len(res.Records)).Msg("Fetched page")

		if !hasNext(body.Links) {
			res.StopReason = StopNoNextLink
			break
		}
		if n < pageSize {
			res.StopReason = StopShortPage
			break
		}
		page++
	}
	if res.StopReason == "" {
		res.StopReason = StopMaxPages
		log.Warn().Int("max_pages", e.maxPages).Msg("Page ceiling reached")
	}

	log.Info().
		Int("records", len(res.Records)).
		Int("pages", res.Pages).
		Str("stop_reason", string(res.StopReason)).
		Msg("Fetch complete")
	return res, nil
}

func searchParams(w domain.Window, status string, pageSize, page int) url.Values {
	v := url.Values{}
	v.Set("start_date", w.Start.String()+"T00:00:00-0000")
	v.Set("end_date", w.End.String()+"T23:59:59-0000")
	v.Set("fields", "all")
	v.Set("page_size", strconv.Itoa(pageSize))
	v.Set("page", strconv.Itoa(page))
	if status != "" {
		v.Set("transaction_status", status)
	}
	return v
}

func hasNext(links []link) bool {
	for _, l := range links {
		if l.Rel == "next" {
			return true
		}
	}
	return false
}
