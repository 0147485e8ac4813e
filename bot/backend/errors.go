package backend

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTrialUsed marks the domain error returned when a trial is requested twice.
	ErrTrialUsed = errors.New("backend: trial already used")
	// ErrPromoRejected marks domain errors about an invalid promo code.
	ErrPromoRejected = errors.New("backend: promo code rejected")

	errNotFound = errors.New("backend: not found")
)

// DomainError is a human-readable refusal meant to be shown to the user verbatim.
type DomainError struct {
	Status  int
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// StatusError is a non-2xx answer without a displayable message.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: unexpected status %d", e.Op, e.Status)
}

// AsDomainError extracts the displayable backend message, if any.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsTrialUsed reports whether err is the trial-reuse refusal.
func IsTrialUsed(err error) bool {
	return errors.Is(err, ErrTrialUsed)
}

// IsPromoRejected reports whether err is a promo code refusal.
func IsPromoRejected(err error) bool {
	return errors.Is(err, ErrPromoRejected)
}

func classify(de *DomainError, trialPrefix, promoPrefix string) error {
	switch {
	case trialPrefix != "" && strings.HasPrefix(de.Message, trialPrefix):
		return errors.Mark(de, ErrTrialUsed)
	case promoPrefix != "" && strings.HasPrefix(de.Message, promoPrefix):
		return errors.Mark(de, ErrPromoRejected)
	}
	return de
}
