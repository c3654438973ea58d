package requester

import (
	"net/http"
)

// Request is an outbound call before authentication headers are applied.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
