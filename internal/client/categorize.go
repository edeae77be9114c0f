package client

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// ErrorCategory is a stable label for error classification in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryMissingAPIKey ErrorCategory = "missing_api_key"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryCityNotFound  ErrorCategory = "city_not_found"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx   ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error returned by Fetch to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrAPIKeyMissing) {
		return ErrorCategoryMissingAPIKey
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return ErrorCategoryUnknown
	}
	switch {
	case upErr.Status == http.StatusNotFound:
		return ErrorCategoryCityNotFound
	case upErr.Status == http.StatusTooManyRequests:
		return ErrorCategoryRateLimited
	case upErr.Status >= 500:
		return ErrorCategoryUpstream5xx
	case upErr.Status >= 400:
		return ErrorCategoryUpstream4xx
	case upErr.Status == 0 && upErr.Err != nil:
		var opErr *net.OpError
		if errors.As(upErr.Err, &opErr) {
			return ErrorCategoryNetwork
		}
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
