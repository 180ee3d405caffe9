package internal

import (
	"encoding/xml"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relvacode/iso8601"
	"golang.org/x/net/html/charset"
)

// Resource is one <response> element of a multistatus body.
type Resource struct {
	// Href is URL-decoded once. It ends with a slash iff IsCollection.
	Href          string
	// RawHref is the href as the server sent it, with the same trailing
	// slash rule. Unlike Href it is safe to send back as a request path.
	RawHref       string
	IsCollection  bool
	IsHidden      bool
	DisplayName   string
	ContentType   string
	ETag          string
	ContentLength *int64
	CreationDate  *time.Time
	LastModified  *time.Time
}

// PropfindAllProp is the PROPFIND body sent for every listing and metadata
// request.
const PropfindAllProp = `<?xml version="1.0" encoding="utf-8"?><propfind xmlns="DAV:"><allprop/></propfind>`

var errStop = errors.New("webdav: stop parsing")

// https://tools.ietf.org/html/rfc4918#section-9.1.3
var httpDateLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	// RFC 1123 with optional leading zeros on the day
	"Mon, _2 Jan 2006 15:04:05 MST",
	time.RFC850,
	time.ANSIC,
}

// ParseMultistatus decodes a multistatus body and calls fn for each response,
// in document order. Property names are matched on their lower-cased local
// name, whatever the namespace. Unknown properties are skipped.
func ParseMultistatus(r io.Reader, fn func(res *Resource) error) error {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	var (
		cur    *Resource
		hasRef bool
		ps     *propstat
		inProp bool
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(tok.Name.Local)
			switch {
			case cur == nil:
				switch name {
				case "multistatus":
				case "response":
					cur, hasRef = &Resource{}, false
				default:
					if err := d.Skip(); err != nil {
						return err
					}
				}
			case ps == nil:
				switch name {
				case "href":
					s, err := readText(d)
					if err != nil {
						return err
					}
					if !hasRef {
						cur.RawHref = strings.TrimSpace(s)
						cur.Href, hasRef = decodeHref(s), true
					}
				case "propstat":
					ps = &propstat{}
				default:
					if err := d.Skip(); err != nil {
						return err
					}
				}
			case !inProp:
				switch name {
				case "prop":
					inProp = true
				case "status":
					s, err := readText(d)
					if err != nil {
						return err
					}
					ps.status = s
				default:
					if err := d.Skip(); err != nil {
						return err
					}
				}
			default:
				if err := ps.decodeProp(d, name); err != nil {
					return err
				}
			}
		case xml.EndElement:
			switch strings.ToLower(tok.Name.Local) {
			case "prop":
				inProp = false
			case "propstat":
				if ps != nil && ps.ok() {
					ps.mergeInto(cur)
				}
				ps = nil
			case "response":
				if cur == nil {
					continue
				}
				finishResource(cur)
				res := cur
				cur = nil
				if err := fn(res); err != nil {
					return err
				}
			}
		}
	}
}

// ParseResources collects every response of a multistatus body.
func ParseResources(r io.Reader) ([]Resource, error) {
	l := make([]Resource, 0)
	err := ParseMultistatus(r, func(res *Resource) error {
		l = append(l, *res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ParseFirstResource returns the first response of a multistatus body, or nil
// if there is none. The rest of the body is not read.
func ParseFirstResource(r io.Reader) (*Resource, error) {
	var first *Resource
	err := ParseMultistatus(r, func(res *Resource) error {
		first = res
		return errStop
	})
	if err != nil && err != errStop {
		return nil, err
	}
	return first, nil
}

type propstat struct {
	status string
	props  Resource
}

// ok reports whether the propstat status is 2xx. A missing status counts as
// success.
func (ps *propstat) ok() bool {
	s := strings.TrimSpace(ps.status)
	if s == "" {
		return true
	}
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	return code >= 200 && code < 300
}

func (ps *propstat) decodeProp(d *xml.Decoder, name string) error {
	p := &ps.props
	switch name {
	case "resourcetype":
		isCol, err := readResourceType(d)
		if err != nil {
			return err
		}
		p.IsCollection = p.IsCollection || isCol
		return nil
	case "hidden", "ishidden":
		p.IsHidden = true
		return d.Skip()
	}

	var set func(s string)
	switch name {
	case "displayname":
		set = func(s string) { p.DisplayName = s }
	case "getcontenttype":
		set = func(s string) { p.ContentType = strings.TrimSpace(s) }
	case "getetag":
		set = func(s string) { p.ETag = strings.TrimSpace(s) }
	case "getcontentlength":
		set = func(s string) {
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				p.ContentLength = &n
			}
		}
	case "creationdate":
		set = func(s string) {
			if t, ok := parseDate(s); ok {
				p.CreationDate = &t
			}
		}
	case "getlastmodified":
		set = func(s string) {
			if t, ok := parseDate(s); ok {
				p.LastModified = &t
			}
		}
	case "iscollection":
		set = func(s string) {
			s = strings.TrimSpace(s)
			if b, err := strconv.ParseBool(s); err == nil && b {
				p.IsCollection = true
			} else if n, err := strconv.Atoi(s); err == nil && n == 1 {
				p.IsCollection = true
			}
		}
	default:
		return d.Skip()
	}

	s, err := readText(d)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	set(s)
	return nil
}

func (ps *propstat) mergeInto(res *Resource) {
	p := &ps.props
	res.IsCollection = res.IsCollection || p.IsCollection
	res.IsHidden = res.IsHidden || p.IsHidden
	if p.DisplayName != "" {
		res.DisplayName = p.DisplayName
	}
	if p.ContentType != "" {
		res.ContentType = p.ContentType
	}
	if p.ETag != "" {
		res.ETag = p.ETag
	}
	if p.ContentLength != nil {
		res.ContentLength = p.ContentLength
	}
	if p.CreationDate != nil {
		res.CreationDate = p.CreationDate
	}
	if p.LastModified != nil {
		res.LastModified = p.LastModified
	}
}

func finishResource(res *Resource) {
	res.Href = withTrailingSlash(res.Href, res.IsCollection)
	res.RawHref = withTrailingSlash(res.RawHref, res.IsCollection)
	if res.DisplayName == "" {
		res.DisplayName = lastSegment(res.Href)
	}
}

func withTrailingSlash(href string, dir bool) string {
	if !dir {
		return strings.TrimRight(href, "/")
	}
	if !strings.HasSuffix(href, "/") {
		return href + "/"
	}
	return href
}

// lastSegment returns the last path segment of an href, "/" for the root.
func lastSegment(href string) string {
	p := href
	if isAbsoluteURL(p) {
		i := strings.Index(p, "://") + len("://")
		if j := strings.IndexByte(p[i:], '/'); j >= 0 {
			p = p[i+j:]
		} else {
			p = ""
		}
	}
	p = strings.TrimRight(p, "/")
	if name := p[strings.LastIndexByte(p, '/')+1:]; name != "" {
		return name
	}
	return "/"
}

// decodeHref URL-decodes an href exactly once. Hrefs that are not valid
// escapes are kept verbatim.
func decodeHref(s string) string {
	s = strings.TrimSpace(s)
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := iso8601.ParseString(s); err == nil {
		return t, true
	}
	for _, layout := range httpDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// readText returns the character data of the current element and consumes
// its end tag. Child elements are skipped. A self-closing element yields "".
func readText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch tok := tok.(type) {
		case xml.CharData:
			sb.Write(tok)
		case xml.StartElement:
			if err := d.Skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			return sb.String(), nil
		}
	}
}

// readResourceType consumes a resourcetype element and reports whether it
// contains a collection child.
func readResourceType(d *xml.Decoder) (bool, error) {
	isCol := false
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return false, err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if depth == 0 && strings.EqualFold(tok.Name.Local, "collection") {
				isCol = true
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				return isCol, nil
			}
			depth--
		}
	}
}
