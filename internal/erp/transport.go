package erp

import (
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// StatusError is returned by the transport for HTTP 429 responses so the
// throttle survives the RPC layer as a typed error.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("erp: http %d %s", e.Code, e.Status)
}

// Is matches ErrRateLimited for 429.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == http.StatusTooManyRequests
}

// throttleTransport paces outgoing requests and turns 429 responses into
// StatusError values.
type throttleTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// newTransport returns a RoundTripper; rps <= 0 disables pacing.
func newTransport(base http.RoundTripper, rps float64) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &throttleTransport{base: base}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return t
}

func (t *throttleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	return resp, nil
}
