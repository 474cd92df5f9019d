package okx

import "net/http"

// userAgentTransport overrides the User-Agent header on instrument lookups;
// the OKX REST gateway rejects the default Go client string.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}
