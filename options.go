package webdav

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type options struct {
	basePath           string
	port               int
	userAgent          string
	header             http.Header
	username           string
	password           string
	httpClient         HTTPClient
	uploadClient       HTTPClient
	timeout            time.Duration
	uploadTimeout      time.Duration
	proxy              string
	insecureSkipVerify bool
	logger             *zap.Logger
}

// Option configures a Client.
type Option func(o *options)

// WithBasePath sets the collection all relative paths are resolved against.
func WithBasePath(p string) Option {
	return func(o *options) {
		o.basePath = p
	}
}

// WithPort overrides the port of request URIs addressing the configured host.
func WithPort(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

// WithUserAgent sets the User-Agent header to "name/version", or to name
// alone when version is empty.
func WithUserAgent(name, version string) Option {
	return func(o *options) {
		o.userAgent = name
		if version != "" {
			o.userAgent += "/" + version
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(k, v string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(k, v)
	}
}

// WithBasicAuth sends the credentials with every request.
func WithBasicAuth(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithHTTPClient sets the transport used for every request. The timeout,
// proxy and TLS options are ignored for requests it sends.
func WithHTTPClient(c HTTPClient) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithUploadHTTPClient sets the transport used for uploads. It defaults to
// the client given to WithHTTPClient.
func WithUploadHTTPClient(c HTTPClient) Option {
	return func(o *options) {
		o.uploadClient = c
	}
}

// WithTimeout bounds the wait for response headers of metadata, control and
// download requests. Reading a response body is bounded by the request
// context only, so downloads handed to the caller are never cut off. Zero
// means no limit besides the request context.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithUploadTimeout bounds upload requests. Zero means no limit besides the
// request context.
func WithUploadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.uploadTimeout = d
	}
}

// WithProxy routes requests through the given proxy URL.
func WithProxy(proxyURL string) Option {
	return func(o *options) {
		o.proxy = proxyURL
	}
}

// WithInsecureSkipVerify disables server certificate validation.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) {
		o.insecureSkipVerify = skip
	}
}

// WithLogger sets the logger for request traces. It defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

type callOptions struct {
	header    http.Header
	depth     Depth
	hasDepth  bool
	overwrite *bool
}

// CallOption configures a single operation.
type CallOption func(o *callOptions)

// WithCallHeader sets a header on the request. It replaces a default header
// of the same name.
func WithCallHeader(k, v string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(k, v)
	}
}

// WithCallHeaders sets all of h on the request.
func WithCallHeaders(h http.Header) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				o.header.Add(k, v)
			}
		}
	}
}

// WithDepth overrides the Depth header of List.
func WithDepth(d Depth) CallOption {
	return func(o *callOptions) {
		o.depth = d
		o.hasDepth = true
	}
}

// WithOverwrite sets the Overwrite header of MOVE and COPY requests. Without
// it the header is omitted and the server default (overwrite) applies.
func WithOverwrite(overwrite bool) CallOption {
	return func(o *callOptions) {
		o.overwrite = &overwrite
	}
}

func applyCallOptions(opts []CallOption) *callOptions {
	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
