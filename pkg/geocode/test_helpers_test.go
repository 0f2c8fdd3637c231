package geocode

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// newTestGeocoder builds a geocoder whose requests to targetPrefix are
// redirected to the given test server, with rate limiting disabled.
func newTestGeocoder(testServerURL, targetPrefix string, opts ...Option) *geocoder {
	g := &geocoder{
		httpClient: &http.Client{
			Transport: &rewriteTransport{
				base:         http.DefaultTransport,
				testServer:   testServerURL,
				targetPrefix: targetPrefix,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// rewriteTransport redirects requests matching targetPrefix to the test
// server, preserving path and query.
type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if !strings.HasPrefix(origURL, t.targetPrefix) {
		return t.base.RoundTrip(req)
	}
	newReq := req.Clone(req.Context())
	parsed, err := req.URL.Parse(t.testServer + origURL[len(t.targetPrefix):])
	if err != nil {
		return nil, err
	}
	newReq.URL = parsed
	newReq.Host = parsed.Host
	return t.base.RoundTrip(newReq)
}
