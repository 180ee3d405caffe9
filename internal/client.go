package internal

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HTTPClient performs HTTP requests. It's implemented by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends WebDAV requests. It knows nothing about paths or status
// codes: callers pass resolved URIs and interpret the responses.
type Client struct {
	http     HTTPClient
	upload   HTTPClient
	header   http.Header
	username string
	password string
	logger   *zap.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	HTTP     HTTPClient
	Upload   HTTPClient
	Header   http.Header
	Username string
	Password string
	Logger   *zap.Logger
}

func NewClient(cfg *ClientConfig) *Client {
	c := &Client{
		http:     cfg.HTTP,
		upload:   cfg.Upload,
		header:   cfg.Header.Clone(),
		username: cfg.Username,
		password: cfg.Password,
		logger:   cfg.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.upload == nil {
		c.upload = c.http
	}
	if c.header == nil {
		c.header = make(http.Header)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// NewRequest builds a request for u. The client's default headers are applied
// first, then each of headers in order; a later value replaces earlier ones
// with the same name.
func (c *Client) NewRequest(ctx context.Context, method string, u *url.URL, body io.Reader, headers ...http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	mergeHeader(req.Header, c.header)
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	for _, h := range headers {
		mergeHeader(req.Header, h)
	}
	return req, nil
}

// NewPropfindRequest builds an allprop PROPFIND request.
func (c *Client) NewPropfindRequest(ctx context.Context, u *url.URL, depth Depth, headers ...http.Header) (*http.Request, error) {
	h := http.Header{}
	h.Set("Content-Type", "text/xml")
	h.Set("Depth", depth.String())
	return c.NewRequest(ctx, "PROPFIND", u, strings.NewReader(PropfindAllProp), append([]http.Header{h}, headers...)...)
}

func mergeHeader(dst, src http.Header) {
	for k, vs := range src {
		dst.Del(k)
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// Do sends a metadata or control request. The response is returned whatever
// its status code.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(c.http, req)
}

// DoUpload sends a request carrying a file body through the upload client.
func (c *Client) DoUpload(req *http.Request) (*http.Response, error) {
	return c.do(c.upload, req)
}

func (c *Client) do(hc HTTPClient, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("webdav request failed", zap.String("method", req.Method), zap.String("uri", req.URL.String()),
			zap.Duration("cost", time.Since(start)), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("webdav request finish", zap.String("method", req.Method), zap.String("uri", req.URL.String()),
		zap.Int("status", resp.StatusCode), zap.Duration("cost", time.Since(start)))
	return resp, nil
}

const maxDetailSize = 1024

// ResponseDetail extracts a short description from the body of a failed
// response: the condition of a DAV:error document, or the beginning of a
// text body. It returns nil when there is nothing useful.
func ResponseDetail(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	lr := &io.LimitedReader{R: resp.Body, N: maxDetailSize}
	t, _, _ := mime.ParseMediaType(contentType)
	if t == "application/xml" || t == "text/xml" {
		if cond := davErrorCondition(lr); cond != "" {
			return errors.Errorf("DAV:%s", cond)
		}
		return nil
	} else if strings.HasPrefix(t, "text/") {
		var buf bytes.Buffer
		io.Copy(&buf, lr)
		if s := strings.TrimSpace(buf.String()); s != "" {
			if lr.N == 0 {
				s += " […]"
			}
			return errors.New(s)
		}
	}
	return nil
}

// davErrorCondition returns the local name of the first child of a DAV:error
// root element.
//
// https://tools.ietf.org/html/rfc4918#section-16
func davErrorCondition(r io.Reader) string {
	d := xml.NewDecoder(r)
	inError := false
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if inError {
			return start.Name.Local
		}
		if start.Name.Local != "error" {
			return ""
		}
		inError = true
	}
}

func parseCommaSeparatedSet(values []string, upper bool) map[string]bool {
	m := make(map[string]bool)
	for _, v := range values {
		fields := strings.FieldsFunc(v, func(r rune) bool {
			return unicode.IsSpace(r) || r == ','
		})
		for _, f := range fields {
			if upper {
				f = strings.ToUpper(f)
			} else {
				f = strings.ToLower(f)
			}
			m[f] = true
		}
	}
	return m
}

// ParseOptions extracts the DAV compliance classes and allowed methods of an
// OPTIONS response.
func ParseOptions(resp *http.Response) (classes map[string]bool, methods map[string]bool) {
	classes = parseCommaSeparatedSet(resp.Header["Dav"], false)
	methods = parseCommaSeparatedSet(resp.Header["Allow"], true)
	return classes, methods
}
