package webdav

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "davgo-webdav/1.0"

// newHTTPClient builds a resty backed transport. With streamBody the timeout
// only bounds the wait for response headers, so response bodies handed to the
// caller can be read for as long as the request context allows. Otherwise it
// bounds the whole exchange.
func newHTTPClient(o *options, timeout time.Duration, streamBody bool) HTTPClient {
	rc := resty.New()
	if timeout > 0 {
		if streamBody {
			t := http.DefaultTransport.(*http.Transport).Clone()
			t.ResponseHeaderTimeout = timeout
			rc.SetTransport(t)
		} else {
			rc.SetTimeout(timeout)
		}
	}
	if o.proxy != "" {
		rc.SetProxy(o.proxy)
	}
	if o.insecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return rc.GetClient()
}

// transports returns the metadata and upload transports. An explicit
// transport wins over the ones built from the timeout, proxy and TLS
// options. Downloads go through the metadata transport.
func transports(o *options) (HTTPClient, HTTPClient) {
	hc := o.httpClient
	if hc == nil {
		hc = newHTTPClient(o, o.timeout, true)
	}
	uc := o.uploadClient
	switch {
	case uc != nil:
	case o.httpClient != nil:
		uc = o.httpClient
	default:
		uc = newHTTPClient(o, o.uploadTimeout, false)
	}
	return hc, uc
}
