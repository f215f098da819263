package httr2

import (
	"io"
	"net/http"
)

// Response is the immutable outcome of a performed request: status, headers,
// fully materialized body and a back-reference to the Request that produced
// it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Request is the request that produced this response.
	Request *Request

	// FromCache reports that the response was served from the cache without
	// network access.
	FromCache bool
	// NotModified reports that the server revalidated the cached entry with
	// a 304 and the body is the stored representation.
	NotModified bool
}

// maxBodySize bounds how much of a response body is materialized.
const maxBodySize = 10 * 1024 * 1024

// newResponse drains the wire response into an immutable Response value.
func newResponse(req *Request, hresp *http.Response) (*Response, error) {
	body, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodySize))
	closeErr := hresp.Body.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return &Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header.Clone(),
		Body:       body,
		Request:    req,
	}, nil
}

// Decode unmarshals the response body into v using the supplied codec, or
// JSON when codec is nil.
func (r *Response) Decode(v interface{}, codec BodyCodec) error {
	if codec == nil {
		codec = JSONCodec{}
	}
	return codec.Decode(r.Body, r.Header.Get("Content-Type"), v)
}

// IsError reports whether the response status is an error under the default
// classification (status >= 400).
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}
