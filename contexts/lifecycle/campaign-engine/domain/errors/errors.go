package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEventInput   = errors.New("invalid event input")
	ErrUnknownSegment      = errors.New("unknown segment")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrTemplateNotFound    = errors.New("template not found for variant")
	ErrDeliveryNotFound    = errors.New("delivery not found")
	ErrDeliveryExists      = errors.New("non-terminal delivery already exists for user and campaign")
	ErrDeliveryNotClaimed  = errors.New("delivery is not claimed by this worker")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrUnauthorizedTrigger = errors.New("trigger secret missing or invalid")
)

// TransportError is returned by email/SMS providers. Permanent failures
// (invalid recipient, opt-out, hard bounce) suppress the delivery; everything
// else is retried with backoff.
type TransportError struct {
	Permanent bool
	Reason    string
	Err       error
}

func (e *TransportError) Error() string {
	kind := "retryable"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s failure (%s): %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("transport %s failure (%s)", kind, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewPermanentTransportError marks a recipient-level failure that must never
// be retried.
func NewPermanentTransportError(reason string, err error) *TransportError {
	return &TransportError{Permanent: true, Reason: reason, Err: err}
}

// NewRetryableTransportError marks a transient infrastructure failure.
func NewRetryableTransportError(reason string, err error) *TransportError {
	return &TransportError{Permanent: false, Reason: reason, Err: err}
}

// AsTransportError unwraps err into a TransportError if one is present.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
