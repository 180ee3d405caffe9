// Package webdav provides a WebDAV client addressing a remote server as a
// hierarchical filesystem.
//
// WebDAV is defined in RFC 4918.
package webdav

import (
	"io/fs"
	"time"

	"github.com/davgo/webdav/internal"
)

// Depth indicates whether a request applies to the resource's members. It's
// defined in RFC 4918 section 10.2.
type Depth = internal.Depth

const (
	DepthZero     = internal.DepthZero
	DepthOne      = internal.DepthOne
	DepthInfinity = internal.DepthInfinity
)

// ParseDepth parses a Depth header value.
func ParseDepth(s string) (Depth, error) {
	return internal.ParseDepth(s)
}

// HTTPClient performs HTTP requests. It's implemented by *http.Client.
type HTTPClient = internal.HTTPClient

// Item is a resource returned by a PROPFIND request.
//
// Href is URL-decoded once and ends with a slash iff the item is a
// collection. RawHref keeps the server's encoding and is the form to pass back
// as a path: a decoded Href containing a literal '%' followed by two hex
// digits would address a different resource. DisplayName is never empty: when the server omits it, the last
// segment of Href is used. Nil fields were not reported by the server.
type Item struct {
	Href          string
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

func newItem(res *internal.Resource) Item {
	return Item{
		Href:          res.Href,
		RawHref:       res.RawHref,
		IsCollection:  res.IsCollection,
		IsHidden:      res.IsHidden,
		DisplayName:   res.DisplayName,
		ContentType:   res.ContentType,
		ETag:          res.ETag,
		ContentLength: res.ContentLength,
		CreationDate:  res.CreationDate,
		LastModified:  res.LastModified,
	}
}

// FileInfo returns the item as a fs.FileInfo, which is also a fs.DirEntry.
func (item *Item) FileInfo() fs.FileInfo {
	return &fileInfo{item}
}

type fileInfo struct {
	item *Item
}

var (
	_ fs.FileInfo = (*fileInfo)(nil)
	_ fs.DirEntry = (*fileInfo)(nil)
)

func (fi *fileInfo) Name() string {
	return fi.item.DisplayName
}

func (fi *fileInfo) Size() int64 {
	if fi.item.ContentLength == nil {
		return 0
	}
	return *fi.item.ContentLength
}

func (fi *fileInfo) Mode() fs.FileMode {
	var mode fs.FileMode
	if fi.item.IsCollection {
		mode |= fs.ModeDir
	}
	return mode
}

func (fi *fileInfo) ModTime() time.Time {
	if fi.item.LastModified == nil {
		return time.Time{}
	}
	return *fi.item.LastModified
}

func (fi *fileInfo) IsDir() bool {
	return fi.item.IsCollection
}

func (fi *fileInfo) Sys() interface{} {
	return fi.item
}

func (fi *fileInfo) Type() fs.FileMode {
	return fi.Mode().Type()
}

func (fi *fileInfo) Info() (fs.FileInfo, error) {
	return fi, nil
}
