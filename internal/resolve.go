package internal

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NormalizeServer trims trailing slashes from a server origin.
func NormalizeServer(server string) string {
	return strings.TrimRight(server, "/")
}

// NormalizeBasePath returns p in the "/a/b/" form. An empty path maps to "/".
func NormalizeBasePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}

// JoinName appends name to p with exactly one slash in between.
func JoinName(p, name string) string {
	return strings.TrimRight(p, "/") + "/" + strings.TrimLeft(name, "/")
}

// Resolver turns caller paths into absolute request URIs. It performs no I/O:
// the server-confirmed root href is passed in by the caller.
type Resolver struct {
	server   *url.URL
	origin   string
	basePath string
	port     int
}

// NewResolver validates the server origin and base path. A path component in
// server is moved in front of basePath.
func NewResolver(server, basePath string, port int) (*Resolver, error) {
	origin := NormalizeServer(server)
	u, err := url.Parse(origin)
	if err != nil {
		return nil, errors.Wrapf(err, "webdav: invalid server %q", server)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("webdav: server %q is not an absolute URL", server)
	}
	if port < 0 || port > 65535 {
		return nil, errors.Errorf("webdav: invalid port %d", port)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		basePath = u.Path + "/" + basePath
		u.Path, u.RawPath, u.RawQuery, u.Fragment = "", "", "", ""
		origin = u.String()
	}
	return &Resolver{
		server:   u,
		origin:   origin,
		basePath: NormalizeBasePath(basePath),
		port:     port,
	}, nil
}

// Origin returns the normalized server origin.
func (r *Resolver) Origin() string {
	return r.origin
}

// BasePath returns the normalized configured base path.
func (r *Resolver) BasePath() string {
	return r.basePath
}

// BaseURL returns the configured server origin joined with the base path. It
// is the target of the root resolution request.
func (r *Resolver) BaseURL() *url.URL {
	return r.withPort(newURL(r.server, escapePath(r.basePath)))
}

// Resolve returns the absolute request URI for p.
//
// root is the href the server reported for the base path; an empty root
// falls back to the configured base path. Absolute URIs are used as they are,
// except that the configured origin is stripped so they pass through the
// root and port handling like any other path. Relative paths are joined to
// the root, unless they already start with it (compared case-insensitively).
func (r *Resolver) Resolve(root, p string, trailingSlash bool) *url.URL {
	if rest, ok := r.stripOrigin(p); ok {
		p = rest
	}
	if isAbsoluteURL(p) {
		if u := parseAbsolute(p); u != nil {
			if trailingSlash && !strings.HasSuffix(u.RawPath, "/") {
				setPath(u, u.RawPath+"/")
			}
			return r.withPort(u)
		}
	}

	base, rootPath := r.rootURL(root)
	rootTrim := strings.TrimSuffix(rootPath, "/")
	raw := escapePath(p)

	var full string
	if strings.HasPrefix(raw, "/") && (strings.EqualFold(raw, rootTrim) || hasPrefixFold(raw, rootTrim+"/")) {
		full = raw
	} else {
		full = rootTrim + "/" + strings.TrimLeft(raw, "/")
	}
	if trailingSlash && !strings.HasSuffix(full, "/") {
		full += "/"
	}
	return r.withPort(newURL(base, full))
}

func (r *Resolver) rootURL(root string) (*url.URL, string) {
	if root == "" {
		root = r.basePath
	}
	if rest, ok := r.stripOrigin(root); ok {
		root = rest
	} else if isAbsoluteURL(root) {
		if u := parseAbsolute(root); u != nil {
			p := u.RawPath
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			return u, p
		}
	}
	p := escapePath(root)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return r.server, p
}

// stripOrigin removes the configured origin from p when p starts with it.
func (r *Resolver) stripOrigin(p string) (string, bool) {
	if !hasPrefixFold(p, r.origin) {
		return "", false
	}
	rest := p[len(r.origin):]
	if rest != "" && rest[0] != '/' {
		// a different authority sharing a prefix, e.g. host vs host.example
		return "", false
	}
	return rest, true
}

func (r *Resolver) withPort(u *url.URL) *url.URL {
	if r.port == 0 || !strings.EqualFold(u.Hostname(), r.server.Hostname()) {
		return u
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(r.port))
	return u
}

func newURL(base *url.URL, rawPath string) *url.URL {
	u := &url.URL{
		Scheme: base.Scheme,
		User:   base.User,
		Host:   base.Host,
	}
	setPath(u, rawPath)
	return u
}

// setPath stores an already escaped path so that String keeps its encoding.
func setPath(u *url.URL, rawPath string) {
	p, err := url.PathUnescape(rawPath)
	if err != nil {
		p = rawPath
	}
	u.Path = p
	u.RawPath = rawPath
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// isAbsoluteURL reports whether s starts with "scheme://".
func isAbsoluteURL(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for j := 0; j < i; j++ {
		c := s[j]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// parseAbsolute splits s into origin and path. The path is taken literally,
// so '?', '#' and '%' in decoded hrefs stay part of the path.
func parseAbsolute(s string) *url.URL {
	i := strings.Index(s, "://") + len("://")
	origin, rest := s, ""
	if j := strings.IndexByte(s[i:], '/'); j >= 0 {
		origin, rest = s[:i+j], s[i+j:]
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	u.RawQuery, u.Fragment = "", ""
	setPath(u, escapePath(rest))
	return u
}

const upperhex = "0123456789ABCDEF"

// escapePath percent-encodes p for use as a URL path. Valid %XX sequences are
// kept as they are, so both encoded and plain paths are accepted.
func escapePath(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '%' && i+2 < len(p) && ishex(p[i+1]) && ishex(p[i+2]):
			b.WriteString(p[i : i+3])
			i += 2
		case keepInPath(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
		}
	}
	return b.String()
}

func keepInPath(c byte) bool {
	if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' {
		return true
	}
	switch c {
	case '-', '.', '_', '~', '/', '!', '$', '&', '\'', '(', ')', '*', '+', ',', ';', '=', ':', '@':
		return true
	}
	return false
}

func ishex(c byte) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case 'a' <= c && c <= 'f':
		return true
	case 'A' <= c && c <= 'F':
		return true
	}
	return false
}
