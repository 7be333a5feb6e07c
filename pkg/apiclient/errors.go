package apiclient

import (
	"fmt"
	"net/http"
)

// Kind classifies why a request did not produce an envelope.
type Kind int

const (
	KindSendFailure Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindServerError
	KindTimeout
	KindNetworkUnavailable
	KindOtherClientError
	KindRefreshFailure
)

func (k Kind) String() string {
	switch k {
	case KindSendFailure:
		return "send_failure"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindOtherClientError:
		return "other_client_error"
	case KindRefreshFailure:
		return "refresh_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned for every transport or authorization level failure.
// Application level failures (an envelope whose code is not CodeSuccess) are
// reported separately by Envelope.Err.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int

	// Message is a human readable summary, suitable for a notification.
	Message string

	// Envelope is the decoded response body when the server sent one.
	Envelope *Envelope

	// Err is the underlying transport or build error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the predefined sentinels by kind, so callers can write
// errors.Is(err, apiclient.ErrUnauthorized).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}

// ============================================================================
// Predefined errors, for matching with errors.Is
// ============================================================================

var (
	ErrSendFailure        = &Error{Kind: KindSendFailure, Message: "request could not be sent"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "session expired"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "permission denied"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrServerError        = &Error{Kind: KindServerError, Message: "server error"}
	ErrTimeout            = &Error{Kind: KindTimeout, Message: "request timed out"}
	ErrNetworkUnavailable = &Error{Kind: KindNetworkUnavailable, Message: "network unavailable"}
	ErrOtherClientError   = &Error{Kind: KindOtherClientError, Message: "request failed"}
	ErrRefreshFailure     = &Error{Kind: KindRefreshFailure, Message: "credential refresh failed"}
)

// messageFor returns the notification text used for kind when the response
// does not supply a better one.
func messageFor(kind Kind, status int) string {
	switch kind {
	case KindUnauthorized:
		return "session expired, please sign in again"
	case KindForbidden:
		return "you do not have permission to perform this action"
	case KindNotFound:
		return "the requested resource was not found"
	case KindServerError:
		return fmt.Sprintf("server error (%d %s), please try again later", status, http.StatusText(status))
	case KindTimeout:
		return "request timed out, please try again"
	case KindNetworkUnavailable:
		return "network unavailable, please check your connection"
	case KindSendFailure:
		return "request could not be sent"
	case KindRefreshFailure:
		return "credential refresh failed"
	default:
		return "request failed"
	}
}
