package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	contentTypeJSON = "application/json;charset=UTF-8"
	acceptJSON      = "application/json, text/plain, */*"

	headerDeviceID      = "X-Device-Id"
	headerRequestedWith = "X-Requested-With"
	headerRequestID     = "X-Request-ID"
)

// Request describes a logical API call. It is safe to send more than once:
// the body is held as bytes and every attempt gets its own reader.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewRequest returns a body-less request.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path}
}

// NewJSONRequest marshals v as the request body.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return &Request{
		Method: method,
		Path:   path,
		Header: http.Header{"Content-Type": {contentTypeJSON}},
		Body:   body,
	}, nil
}

// Attempt marks whether a request has already been replayed after a refresh.
// A request is sent at most twice.
type Attempt int

const (
	FirstAttempt  Attempt = 0
	ReplayAttempt Attempt = 1
)

func (a Attempt) Retried() bool { return a >= ReplayAttempt }

// requestContext travels with one send of a Request. It is passed by value
// and never stored on the Request itself.
type requestContext struct {
	attempt Attempt

	// credential is the bearer token the attempt was sent with.
	credential string

	// noRefresh sends 401s straight back to the caller; used by the login
	// and logout calls, which must not loop through the refresh flow.
	noRefresh bool
}
