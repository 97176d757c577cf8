package processor

import (
	"errors"
	"fmt"

	"github.com/folio-org/eureka-ci-app/internal/github"
	"github.com/folio-org/eureka-ci-app/internal/repoconfig"
)

// transientError marks a failure that redelivery can fix. The message stays
// on the queue and becomes visible again when its lease expires.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e *transientError) Unwrap() error { return e.err }

// permanentError marks a failure that no redelivery can fix. The message is
// dead-lettered.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e *permanentError) Unwrap() error { return e.err }

func transient(err error) error { return &transientError{err: err} }
func permanent(err error) error { return &permanentError{err: err} }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// classifyPlatformError maps a platform client error onto the retry
// taxonomy. Validation-style 4xx responses are permanent; everything else,
// auth failures included, is left to redelivery and the delivery limit.
func classifyPlatformError(err error) error {
	if err == nil {
		return nil
	}
	if github.IsPermanent(err) {
		return permanent(err)
	}
	return transient(err)
}

// classifyResolveError maps resolver failures. An unreadable config store is
// transient; an unmatched repository is handled by the caller before this.
func classifyResolveError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repoconfig.ErrUnavailable) {
		return transient(err)
	}
	return permanent(err)
}
