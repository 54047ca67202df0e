package provider

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/providerrequest"
)

// backoffPolicy configures the retry-with-jitter loop shared by every HTTP
// provider client. It honors an upstream Retry-After header when present,
// falling back to exponential backoff with jitter.
type backoffPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func defaultBackoffPolicy() backoffPolicy {
	return backoffPolicy{
		MaxAttempts:  4,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

func (p backoffPolicy) delayFor(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d > p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter <= 0 {
		return d
	}
	delta := float64(d) * p.Jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

// attemptResult captures what a single HTTP attempt produced, for logging
// and retry-decision purposes.
type attemptResult struct {
	resp       *http.Response
	statusCode *int
	retryAfter time.Duration
	rateLimit  string
	requestID  string
	err        error
}

// doWithRetry executes attempt up to policy.MaxAttempts times, logging each
// try to sink and sleeping according to policy between retryable failures.
// It returns the last attemptResult (successful or not).
func doWithRetry(ctx context.Context, sink *countingSink, providerName, endpoint, method string, policy backoffPolicy, attempt func(ctx context.Context) attemptResult) attemptResult {
	var last attemptResult
	for i := 0; i < policy.MaxAttempts; i++ {
		start := time.Now()
		last = attempt(ctx)
		elapsed := time.Since(start).Milliseconds()

		meta := map[string]string{
			"attempt":       strconv.Itoa(i + 1),
			"total_attempts": strconv.Itoa(policy.MaxAttempts),
		}
		if last.retryAfter > 0 {
			meta["retry_after"] = last.retryAfter.String()
		}
		if last.rateLimit != "" {
			meta["rate_limit_remaining"] = last.rateLimit
		}
		if last.requestID != "" {
			meta["upstream_request_id"] = last.requestID
		}

		errText := ""
		if last.err != nil {
			errText = providerrequest.TruncateError(last.err.Error())
		}
		sink.LogRequest(ctx, RequestLog{
			Provider:   providerName,
			Endpoint:   endpoint,
			Method:     method,
			StatusCode: last.statusCode,
			DurationMS: elapsed,
			Error:      errText,
			Meta:       meta,
		})

		retryable := last.err != nil || (last.statusCode != nil && retryableStatus(*last.statusCode))
		if !retryable {
			return last
		}
		if i == policy.MaxAttempts-1 {
			return last
		}

		delay := policy.delayFor(i, last.retryAfter)
		select {
		case <-ctx.Done():
			last.err = ctx.Err()
			return last
		case <-time.After(delay):
		}
	}
	return last
}
