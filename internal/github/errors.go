package github

import (
	"errors"
	"net/http"

	gh "github.com/google/go-github/v82/github"
)

// IsAuthError reports whether an error is an authentication or authorization
// rejection (401, or 403 that is not a rate limit). These usually mean a
// stale installation token and warrant one refresh-and-retry.
func IsAuthError(err error) bool {
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return false
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code == http.StatusUnauthorized || code == http.StatusForbidden
	}
	return false
}

// IsPermanent reports whether an error is a client error that redelivery
// cannot fix: a 4xx other than auth failures and rate limits. Validation
// errors (422) and missing resources (404) fall here.
func IsPermanent(err error) bool {
	if isRetryableError(err) || IsAuthError(err) {
		return false
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}
