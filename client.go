package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/davgo/webdav/internal"
)

// Client provides access to a remote WebDAV filesystem. It is safe for
// concurrent use.
//
// Paths given to Client methods are relative to the root collection: the
// href the server reports for the configured base path. Paths already
// starting with that root, and absolute URIs, are used as they are.
type Client struct {
	ic       *internal.Client
	resolver *internal.Resolver
	root     internal.RootCache
	logger   *zap.Logger
}

// NewClient creates a client for the WebDAV server at the given origin, e.g.
// "https://dav.example.com". No request is sent until the first operation.
func NewClient(server string, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	resolver, err := internal.NewResolver(server, o.basePath, o.port)
	if err != nil {
		return nil, err
	}

	header := o.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if o.userAgent != "" {
		header.Set("User-Agent", o.userAgent)
	} else if header.Get("User-Agent") == "" {
		header.Set("User-Agent", defaultUserAgent)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hc, uc := transports(o)
	ic := internal.NewClient(&internal.ClientConfig{
		HTTP:     hc,
		Upload:   uc,
		Header:   header,
		Username: o.username,
		Password: o.password,
		Logger:   logger,
	})
	return &Client{ic: ic, resolver: resolver, logger: logger}, nil
}

func (c *Client) rootHref(ctx context.Context) (string, error) {
	return c.root.Get(ctx, func(ctx context.Context) (string, error) {
		const op = "resolve root"
		req, err := c.ic.NewPropfindRequest(ctx, c.resolver.BaseURL(), internal.DepthZero)
		if err != nil {
			return "", err
		}
		resp, err := c.ic.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if !statusIn(resp.StatusCode, http.StatusOK, http.StatusMultiStatus) {
			return "", protocolError(op, resp)
		}
		res, err := internal.ParseFirstResource(resp.Body)
		if err != nil {
			return "", bodyError(ctx, op, err)
		}
		if res == nil {
			return "", parseError(op, errors.New("no response in multistatus"))
		}
		c.logger.Debug("webdav root resolved", zap.String("base", c.resolver.BasePath()), zap.String("root", res.RawHref))
		return res.RawHref, nil
	})
}

func (c *Client) resolve(ctx context.Context, p string, dir bool) (*url.URL, error) {
	root, err := c.rootHref(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.Resolve(root, p, dir), nil
}

func statusIn(code int, accepted ...int) bool {
	for _, c := range accepted {
		if code == c {
			return true
		}
	}
	return false
}

// bodyError classifies a failure to decode a multistatus body. A done
// context wins over the decode error it caused.
func bodyError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return parseError(op, err)
}

func (c *Client) do(op string, req *http.Request, accepted ...int) error {
	resp, err := c.ic.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !statusIn(resp.StatusCode, accepted...) {
		return protocolError(op, resp)
	}
	return nil
}

// List returns the members of the collection at p, in the order the server
// sent them. The collection itself is not part of the result. The request
// uses Depth 1 unless WithDepth is given.
func (c *Client) List(ctx context.Context, p string, opts ...CallOption) ([]Item, error) {
	const op = "list folder"
	o := applyCallOptions(opts)
	depth := DepthOne
	if o.hasDepth {
		depth = o.depth
	}

	u, err := c.resolve(ctx, p, true)
	if err != nil {
		return nil, err
	}
	req, err := c.ic.NewPropfindRequest(ctx, u, depth, o.header)
	if err != nil {
		return nil, err
	}
	resp, err := c.ic.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !statusIn(resp.StatusCode, http.StatusOK, http.StatusMultiStatus) {
		return nil, protocolError(op, resp)
	}

	root, _ := c.root.Load()
	target := u.String()
	items := make([]Item, 0)
	err = internal.ParseMultistatus(resp.Body, func(res *internal.Resource) error {
		if res.IsCollection && strings.EqualFold(c.resolver.Resolve(root, res.RawHref, true).String(), target) {
			return nil
		}
		items = append(items, newItem(res))
		return nil
	})
	if err != nil {
		return nil, bodyError(ctx, op, err)
	}
	return items, nil
}

// GetFolder returns the properties of the collection at p.
func (c *Client) GetFolder(ctx context.Context, p string, opts ...CallOption) (*Item, error) {
	return c.getItem(ctx, "get folder", p, true, opts)
}

// GetFile returns the properties of the file at p.
func (c *Client) GetFile(ctx context.Context, p string, opts ...CallOption) (*Item, error) {
	return c.getItem(ctx, "get file", p, false, opts)
}

func (c *Client) getItem(ctx context.Context, op, p string, dir bool, opts []CallOption) (*Item, error) {
	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, p, dir)
	if err != nil {
		return nil, err
	}
	req, err := c.ic.NewPropfindRequest(ctx, u, internal.DepthZero, o.header)
	if err != nil {
		return nil, err
	}
	resp, err := c.ic.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !statusIn(resp.StatusCode, http.StatusOK, http.StatusMultiStatus) {
		return nil, protocolError(op, resp)
	}
	res, err := internal.ParseFirstResource(resp.Body)
	if err != nil {
		return nil, bodyError(ctx, op, err)
	}
	if res == nil {
		return nil, parseError(op, errors.New("no response in multistatus"))
	}
	item := newItem(res)
	return &item, nil
}

// Download returns the content of the file at p. The caller must close it.
func (c *Client) Download(ctx context.Context, p string, opts ...CallOption) (io.ReadCloser, error) {
	return c.download(ctx, "download file", p, "", []int{http.StatusOK}, opts)
}

// DownloadPartial returns the bytes start to end (inclusive, as in a Range
// header) of the file at p. Servers ignoring ranges answer with the whole
// content. The caller must close it.
func (c *Client) DownloadPartial(ctx context.Context, p string, start, end int64, opts ...CallOption) (io.ReadCloser, error) {
	const op = "download partial"
	if start < 0 || end < start {
		return nil, preconditionErrorf(op, "invalid range %d-%d", start, end)
	}
	rng := fmt.Sprintf("bytes=%d-%d", start, end)
	return c.download(ctx, op, p, rng, []int{http.StatusOK, http.StatusPartialContent}, opts)
}

func (c *Client) download(ctx context.Context, op, p, rng string, accepted []int, opts []CallOption) (io.ReadCloser, error) {
	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, p, false)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Translate", "f")
	if rng != "" {
		h.Set("Range", rng)
	}
	req, err := c.ic.NewRequest(ctx, http.MethodGet, u, nil, h, o.header)
	if err != nil {
		return nil, err
	}
	resp, err := c.ic.Do(req)
	if err != nil {
		return nil, err
	}
	if !statusIn(resp.StatusCode, accepted...) {
		defer resp.Body.Close()
		return nil, protocolError(op, resp)
	}
	return resp.Body, nil
}

// Upload stores content as the file name inside the collection p. The body
// is streamed through the upload transport.
func (c *Client) Upload(ctx context.Context, p string, content io.Reader, name string, opts ...CallOption) error {
	const op = "upload file"
	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, internal.JoinName(p, name), false)
	if err != nil {
		return err
	}
	req, err := c.ic.NewRequest(ctx, http.MethodPut, u, content, o.header)
	if err != nil {
		return err
	}
	if n, ok := contentLength(content); ok {
		req.ContentLength = n
		if n == 0 {
			req.Body = http.NoBody
		}
	}
	return c.doUpload(op, req)
}

// UploadPartial writes content at the byte offset start of the file name
// inside the collection p, with a "Content-Range: bytes start-end/*" header.
// end-start must equal the length of content, which therefore has to be
// known: content must have a Len or Size method or be an io.Seeker.
func (c *Client) UploadPartial(ctx context.Context, p string, content io.Reader, name string, start, end int64, opts ...CallOption) error {
	const op = "upload partial"
	if start < 0 || end < start {
		return preconditionErrorf(op, "invalid range %d-%d", start, end)
	}
	n, ok := contentLength(content)
	if !ok {
		return preconditionErrorf(op, "content length is unknown")
	}
	if end-start != n {
		return preconditionErrorf(op, "range %d-%d does not match content length %d", start, end, n)
	}

	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, internal.JoinName(p, name), false)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", start, end))
	req, err := c.ic.NewRequest(ctx, http.MethodPut, u, content, h, o.header)
	if err != nil {
		return err
	}
	req.ContentLength = end - start
	if req.ContentLength == 0 {
		req.Body = http.NoBody
	}
	return c.doUpload(op, req)
}

func (c *Client) doUpload(op string, req *http.Request) error {
	resp, err := c.ic.DoUpload(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !statusIn(resp.StatusCode, http.StatusOK, http.StatusCreated, http.StatusNoContent) {
		return protocolError(op, resp)
	}
	return nil
}

// contentLength returns the number of bytes left in r, if it can be known
// without reading it.
func contentLength(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case nil:
		return 0, true
	case interface{ Len() int }:
		return int64(v.Len()), true
	case interface{ Size() int64 }:
		return v.Size(), true
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, false
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return 0, false
		}
		return end - cur, true
	}
	return 0, false
}

// CreateDir creates the collection name inside the collection p. A 409
// Conflict answer, meaning the parent is missing or the target exists, is
// reported as a KindConflict error.
func (c *Client) CreateDir(ctx context.Context, p, name string, opts ...CallOption) error {
	const op = "create folder"
	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, internal.JoinName(p, name), true)
	if err != nil {
		return err
	}
	req, err := c.ic.NewRequest(ctx, "MKCOL", u, nil, o.header)
	if err != nil {
		return err
	}
	resp, err := c.ic.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return conflictError(op, resp)
	default:
		return protocolError(op, resp)
	}
}

// DeleteFile deletes the file at p.
func (c *Client) DeleteFile(ctx context.Context, p string, opts ...CallOption) error {
	return c.delete(ctx, "delete file", p, false, opts)
}

// DeleteFolder deletes the collection at p and all its members.
func (c *Client) DeleteFolder(ctx context.Context, p string, opts ...CallOption) error {
	return c.delete(ctx, "delete folder", p, true, opts)
}

func (c *Client) delete(ctx context.Context, op, p string, dir bool, opts []CallOption) error {
	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, p, dir)
	if err != nil {
		return err
	}
	req, err := c.ic.NewRequest(ctx, http.MethodDelete, u, nil, o.header)
	if err != nil {
		return err
	}
	return c.do(op, req, http.StatusOK, http.StatusNoContent)
}

// MoveFile moves the file src to dst.
func (c *Client) MoveFile(ctx context.Context, src, dst string, opts ...CallOption) error {
	return c.moveOrCopy(ctx, "move file", "MOVE", src, dst, false, opts)
}

// MoveFolder moves the collection src and all its members to dst.
func (c *Client) MoveFolder(ctx context.Context, src, dst string, opts ...CallOption) error {
	return c.moveOrCopy(ctx, "move folder", "MOVE", src, dst, true, opts)
}

// CopyFile copies the file src to dst.
func (c *Client) CopyFile(ctx context.Context, src, dst string, opts ...CallOption) error {
	return c.moveOrCopy(ctx, "copy file", "COPY", src, dst, false, opts)
}

// CopyFolder copies the collection src and all its members to dst.
func (c *Client) CopyFolder(ctx context.Context, src, dst string, opts ...CallOption) error {
	return c.moveOrCopy(ctx, "copy folder", "COPY", src, dst, true, opts)
}

func (c *Client) moveOrCopy(ctx context.Context, op, method, src, dst string, dir bool, opts []CallOption) error {
	o := applyCallOptions(opts)
	srcURL, err := c.resolve(ctx, src, dir)
	if err != nil {
		return err
	}
	dstURL, err := c.resolve(ctx, dst, dir)
	if err != nil {
		return err
	}

	h := http.Header{}
	h.Set("Destination", dstURL.String())
	if o.overwrite != nil {
		if *o.overwrite {
			h.Set("Overwrite", "T")
		} else {
			h.Set("Overwrite", "F")
		}
	}
	req, err := c.ic.NewRequest(ctx, method, srcURL, nil, h, o.header)
	if err != nil {
		return err
	}
	return c.do(op, req, http.StatusOK, http.StatusCreated)
}

// Capabilities describes what the server supports for a resource.
type Capabilities struct {
	// Classes holds the DAV compliance classes, e.g. "1", "2", "3".
	Classes map[string]bool
	// Methods holds the allowed methods, upper-cased.
	Methods map[string]bool
}

// HasClass reports whether the server advertised the DAV class.
func (caps *Capabilities) HasClass(class string) bool {
	return caps.Classes[strings.ToLower(class)]
}

// Allows reports whether method is listed in the Allow header.
func (caps *Capabilities) Allows(method string) bool {
	return caps.Methods[strings.ToUpper(method)]
}

// Capabilities sends an OPTIONS request for p. It fails when the server does
// not advertise WebDAV class 1.
func (c *Client) Capabilities(ctx context.Context, p string, opts ...CallOption) (*Capabilities, error) {
	const op = "capabilities"
	o := applyCallOptions(opts)
	u, err := c.resolve(ctx, p, false)
	if err != nil {
		return nil, err
	}
	req, err := c.ic.NewRequest(ctx, http.MethodOptions, u, nil, o.header)
	if err != nil {
		return nil, err
	}
	resp, err := c.ic.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, protocolError(op, resp)
	}
	classes, methods := internal.ParseOptions(resp)
	if !classes["1"] {
		return nil, &Error{Kind: KindProtocol, Code: resp.StatusCode, Op: op, Err: errors.New("DAV class 1 is not advertised")}
	}
	return &Capabilities{Classes: classes, Methods: methods}, nil
}
