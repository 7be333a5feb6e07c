package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CodeSuccess is the envelope code the console API uses for success.
const CodeSuccess = 1000

// Envelope is the standard response body {code, data, msg}.
type Envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// OK reports application level success.
func (e *Envelope) OK() bool { return e != nil && e.Code == CodeSuccess }

// Err returns a *CodeError when the envelope does not report success.
func (e *Envelope) Err() error {
	if e.OK() {
		return nil
	}
	if e == nil {
		return &CodeError{Msg: "empty response"}
	}
	return &CodeError{Code: e.Code, Msg: e.Msg}
}

// DecodeData unmarshals the data field into v. A missing or null data field
// leaves v untouched.
func (e *Envelope) DecodeData(v any) error {
	if e == nil || len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// DecodeData is the generic form of Envelope.DecodeData.
func DecodeData[T any](env *Envelope) (T, error) {
	var v T
	err := env.DecodeData(&v)
	return v, err
}

// CodeError is an application level failure: the request went through but
// the server answered with a non-success code.
type CodeError struct {
	Code int
	Msg  string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Msg)
}

// decodeEnvelope parses a successful response body. An empty body yields an
// empty envelope.
func decodeEnvelope(body []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &Envelope{}, nil
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Timestamp accepts the shapes the API uses for dates: epoch milliseconds,
// RFC 3339 strings, or "2006-01-02 15:04:05".
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s", s)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, unquoted); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", unquoted)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}
