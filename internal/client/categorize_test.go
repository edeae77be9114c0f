package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

// TestCategorizeError verifies that CategorizeError maps Fetch errors to the correct ErrorCategory,
// including sentinel errors, wrapped errors and upstream status classes.
func TestCategorizeError(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"missing key", ErrAPIKeyMissing, ErrorCategoryMissingAPIKey},
		{"invalid key", fmt.Errorf("%w: %w", ErrInvalidAPIKey, &UpstreamError{Status: 401}), ErrorCategoryInvalidAPIKey},
		{"deadline", &UpstreamError{Message: "deadline", Err: context.DeadlineExceeded}, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryTimeout},
		{"dial failure", &UpstreamError{Message: "dial", Err: opErr}, ErrorCategoryNetwork},
		{"not found", &UpstreamError{Status: 404}, ErrorCategoryCityNotFound},
		{"rate limited", &UpstreamError{Status: 429}, ErrorCategoryRateLimited},
		{"bad request", &UpstreamError{Status: 400}, ErrorCategoryUpstream4xx},
		{"bad gateway", &UpstreamError{Status: 502}, ErrorCategoryUpstream5xx},
		{"parse", &UpstreamError{Message: "parse response", Err: errors.New("unexpected EOF")}, ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
