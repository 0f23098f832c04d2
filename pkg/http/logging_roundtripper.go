package http

import (
	stdhttp "net/http"

	"github.com/routeflow/routeflow/pkg/logger"
)

// loggingRoundTripper wraps another RoundTripper and logs only errors.
type loggingRoundTripper struct {
	next stdhttp.RoundTripper
}

func (l loggingRoundTripper) RoundTrip(req *stdhttp.Request) (*stdhttp.Response, error) {
	resp, err := l.next.RoundTrip(req)
	if err != nil {
		logger.Errorf("HTTP transport error method=%s url=%s: %v", req.Method, req.URL.Redacted(), err)
		return resp, err
	}

	if resp != nil && resp.StatusCode >= 400 {
		logger.Errorf("HTTP status=%d method=%s url=%s", resp.StatusCode, req.Method, req.URL.Redacted())
	}
	return resp, nil
}

// WithLogging wraps the client's Transport to log only errors (transport failures and HTTP >= 400).
func WithLogging(c *stdhttp.Client) *stdhttp.Client {
	if c == nil {
		c = &stdhttp.Client{}
	}
	next := c.Transport
	if next == nil {
		next = stdhttp.DefaultTransport
	}
	c.Transport = loggingRoundTripper{next: next}
	return c
}
