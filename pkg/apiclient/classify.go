package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

// maxBodyBytes caps how much of a response body is buffered.
const maxBodyBytes = 8 << 20

// readBody drains and closes the response body.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// classify maps a completed exchange to an *Error, or nil when the response
// is a success. transportErr is the error from sending the request or from
// reading its body.
func classify(resp *http.Response, body []byte, transportErr error) *Error {
	if transportErr != nil {
		return classifyTransport(transportErr)
	}

	status := resp.StatusCode
	if status < http.StatusBadRequest {
		return nil
	}

	failure := &Error{StatusCode: status}
	if env, err := decodeEnvelope(body); err == nil && (env.Code != 0 || env.Msg != "" || len(env.Data) > 0) {
		failure.Envelope = env
	}

	switch {
	case status == http.StatusUnauthorized:
		failure.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		failure.Kind = KindForbidden
	case status == http.StatusNotFound:
		failure.Kind = KindNotFound
	case status >= http.StatusInternalServerError:
		failure.Kind = KindServerError
	default:
		failure.Kind = KindOtherClientError
		failure.Message = bodyMessage(body)
	}

	if failure.Message == "" {
		failure.Message = messageFor(failure.Kind, status)
	}
	return failure
}

func classifyTransport(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Message: messageFor(KindTimeout, 0), Err: err}
	}
	return &Error{Kind: KindNetworkUnavailable, Message: messageFor(KindNetworkUnavailable, 0), Err: err}
}

// bodyMessage extracts "msg" or "message" from an error body.
func bodyMessage(body []byte) string {
	var payload struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Msg); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Message)
}
