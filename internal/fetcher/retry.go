package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// MaxRetryAfter caps a server-requested delay so one response cannot stall
// a foreground load indefinitely
const MaxRetryAfter = 2 * time.Minute

// Retrier retries transient API failures with exponential backoff. When
// the server asks for a longer pause through Retry-After, that pause wins.
type Retrier struct {
	opts   RetrierOptions
	logger *utils.Logger
}

// RetrierOptions contains options for creating a Retrier
type RetrierOptions struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Logger          *utils.Logger
}

// DefaultRetrierOptions returns default retrier options
func DefaultRetrierOptions() RetrierOptions {
	return RetrierOptions{
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// NewRetrier creates a Retrier. MaxRetries of zero disables retrying.
func NewRetrier(opts RetrierOptions) *Retrier {
	def := DefaultRetrierOptions()
	if opts.MaxRetries < 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = max(def.MaxInterval, opts.InitialInterval)
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = def.Multiplier
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Retrier{opts: opts, logger: logger}
}

// Retry runs op until it succeeds, fails permanently or the retries are
// spent. The last error is returned unchanged.
func Retry[T any](ctx context.Context, r *Retrier, op func() (T, error)) (T, error) {
	var result T
	var lastErr error

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.opts.InitialInterval
	exp.MaxInterval = r.opts.MaxInterval
	exp.Multiplier = r.opts.Multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()

	policy := &retryAfterBackOff{next: exp}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.opts.MaxRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		var err error
		result, err = op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		policy.floor = retryAfterOf(err)
		return err
	}, b, func(err error, wait time.Duration) {
		r.logger.Debug().Err(err).Dur("wait", wait).Msg("Retrying request")
	})

	if err != nil {
		if lastErr == nil {
			// context ended before the first attempt
			return result, err
		}
		return result, lastErr
	}
	return result, nil
}

// retryAfterBackOff never waits less than the delay the server asked for
type retryAfterBackOff struct {
	next  backoff.BackOff
	floor time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.next.NextBackOff()
	if d != backoff.Stop && b.floor > d {
		d = b.floor
	}
	b.floor = 0
	return d
}

func (b *retryAfterBackOff) Reset() {
	b.next.Reset()
	b.floor = 0
}

func retryAfterOf(err error) time.Duration {
	var retryable *domain.RetryableError
	if !errors.As(err, &retryable) || retryable.RetryAfter <= 0 {
		return 0
	}
	return min(retryable.RetryAfter, MaxRetryAfter)
}

// retryableStatus reports whether a response status is worth another
// attempt. The photo API answers overload with 500 as well as 503.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// statusError maps an unsuccessful response onto the error callers see
func statusError(url string, code int, retryAfter string) error {
	fe := domain.NewFetchError(url, code, errors.New(http.StatusText(code)))
	switch {
	case code == http.StatusNotFound:
		fe.Err = domain.ErrNotFound
	case code == http.StatusTooManyRequests:
		fe.Err = domain.ErrRateLimited
	}

	if !retryableStatus(code) {
		return fe
	}
	return &domain.RetryableError{
		Err:        fe,
		RetryAfter: ParseRetryAfter(retryAfter),
	}
}

// ParseRetryAfter parses the Retry-After header value, either delay
// seconds or an HTTP date
func ParseRetryAfter(retryAfter string) time.Duration {
	retryAfter = strings.TrimSpace(retryAfter)
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
