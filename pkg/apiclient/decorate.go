package apiclient

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/boychina/web-tracing-analysis/pkg/identity"
	"github.com/boychina/web-tracing-analysis/pkg/idx"
)

// Decorator turns a Request into an *http.Request carrying the device
// identity, the bearer credential and the standard API headers.
type Decorator struct {
	baseURL  string
	identity *identity.Store
}

func NewDecorator(baseURL string, ids *identity.Store) *Decorator {
	return &Decorator{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		identity: ids,
	}
}

// Decorate builds the outgoing request for one attempt. It returns the
// credential it attached ("" when none) so a later 401 can tell whether the
// credential has been replaced in the meantime.
func (d *Decorator) Decorate(ctx context.Context, req *Request) (*http.Request, string, error) {
	return d.decorate(ctx, req, true)
}

func (d *Decorator) decorate(
	ctx context.Context,
	req *Request,
	withCredential bool,
) (*http.Request, string, error) {
	if req == nil {
		return nil, "", sendFailure("nil request", nil)
	}

	u, err := url.Parse(d.baseURL + req.Path)
	if err != nil {
		return nil, "", sendFailure("invalid request url", err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *bytes.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	var httpReq *http.Request
	if body != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, u.String(), body)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, "", sendFailure("failed to create request", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if deviceID := d.identity.DeviceID(ctx); deviceID != "" {
		httpReq.Header.Set(headerDeviceID, deviceID)
	}

	var credential string
	if withCredential {
		if token, ok := d.identity.Credential(ctx); ok {
			credential = token
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpReq.Header.Set(headerRequestedWith, "XMLHttpRequest")
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", acceptJSON)
	}
	httpReq.Header.Set(headerRequestID, idx.NewRequestID())

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}

	return httpReq, credential, nil
}

func sendFailure(msg string, err error) *Error {
	return &Error{Kind: KindSendFailure, Message: msg, Err: err}
}
