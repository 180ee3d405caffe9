package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davgo/webdav/internal"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	length int64
	body   string
}

// fakeServer answers the root lookup on /dav/ and hands every other request to
// handler.
type fakeServer struct {
	*httptest.Server
	root      string
	rootCalls int32
	rootFail  int32

	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func newFakeServer(t *testing.T, handler http.HandlerFunc) *fakeServer {
	s := &fakeServer{root: "/dav/", handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{method: r.Method, path: r.URL.EscapedPath(), header: r.Header.Clone(), length: r.ContentLength, body: string(body)})
	s.mu.Unlock()

	if r.Method == "PROPFIND" && r.Header.Get("Depth") == "0" && r.URL.Path == "/dav/" {
		atomic.AddInt32(&s.rootCalls, 1)
		if atomic.AddInt32(&s.rootFail, -1) >= 0 {
			http.Error(w, "backend down", http.StatusServiceUnavailable)
			return
		}
		writeMultistatus(w, collectionResponse(s.root))
		return
	}
	if s.handler == nil {
		http.NotFound(w, r)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	s.handler(w, r)
}

func (s *fakeServer) lastRequest(t *testing.T) recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func (s *fakeServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeServer) client(t *testing.T, opts ...Option) *Client {
	opts = append([]Option{
		WithBasePath("dav"),
		WithHTTPClient(s.Client()),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	c, err := NewClient(s.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeMultistatus(w http.ResponseWriter, responses ...string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><d:multistatus xmlns:d="DAV:">%s</d:multistatus>`, strings.Join(responses, ""))
}

func collectionResponse(href string) string {
	return fmt.Sprintf(`<d:response><d:href>%s</d:href><d:propstat><d:prop>`+
		`<d:resourcetype><d:collection/></d:resourcetype></d:prop>`+
		`<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`, href)
}

func fileResponse(href string, size int) string {
	return fmt.Sprintf(`<d:response><d:href>%s</d:href><d:propstat><d:prop>`+
		`<d:resourcetype/><d:getcontentlength>%d</d:getcontentlength>`+
		`<d:getlastmodified>Mon, 02 Jan 2006 15:04:05 GMT</d:getlastmodified></d:prop>`+
		`<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`, href, size)
}

func TestListFiltersSelfEntry(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" || r.URL.Path != "/dav/Test/" {
			http.NotFound(w, r)
			return
		}
		writeMultistatus(w,
			collectionResponse("/dav/Test/"),
			fileResponse("/dav/Test/photo.jpg", 1024),
			collectionResponse("/dav/Test/sub/"),
		)
	})
	c := s.client(t)

	items, err := c.List(context.Background(), "/Test/")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/dav/Test/photo.jpg", items[0].Href)
	assert.Equal(t, "photo.jpg", items[0].DisplayName)
	assert.False(t, items[0].IsCollection)
	require.NotNil(t, items[0].ContentLength)
	assert.Equal(t, int64(1024), *items[0].ContentLength)
	assert.Equal(t, "/dav/Test/sub/", items[1].Href)
	assert.True(t, items[1].IsCollection)

	req := s.lastRequest(t)
	assert.Equal(t, "PROPFIND", req.method)
	assert.Equal(t, "/dav/Test/", req.path)
	assert.Equal(t, "1", req.header.Get("Depth"))
	assert.Equal(t, "text/xml", req.header.Get("Content-Type"))
	assert.Equal(t, internal.PropfindAllProp, req.body)
}

func TestListSelfEntryVariants(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeMultistatus(w,
			collectionResponse(hostURL(r)+"/dav/test"),
			fileResponse("/dav/Test", 3),
			fileResponse("/dav/Test/a%20b.txt", 3),
		)
	})
	c := s.client(t)

	items, err := c.List(context.Background(), "Test")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/dav/Test", items[0].Href)
	assert.Equal(t, "/dav/Test/a b.txt", items[1].Href)
}

func TestListRawHrefRoundTrip(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			writeMultistatus(w,
				collectionResponse("/dav/100%2541/"),
				fileResponse("/dav/100%2541/100%2541.txt", 3),
			)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	c := s.client(t)
	ctx := context.Background()

	items, err := c.List(ctx, "100%2541")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/dav/100%41/100%41.txt", items[0].Href)
	assert.Equal(t, "/dav/100%2541/100%2541.txt", items[0].RawHref)

	require.NoError(t, c.DeleteFile(ctx, items[0].RawHref))
	req := s.lastRequest(t)
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/dav/100%2541/100%2541.txt", req.path)
}

func hostURL(r *http.Request) string {
	return "http://" + r.Host
}

func TestListDepthAndHeaders(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeMultistatus(w)
	})
	c := s.client(t, WithHeader("X-Token", "default"), WithUserAgent("app", "2.0"))

	items, err := c.List(context.Background(), "", WithDepth(DepthInfinity), WithCallHeader("X-Token", "call"))
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	req := s.lastRequest(t)
	assert.Equal(t, "/dav/", req.path)
	assert.Equal(t, "infinity", req.header.Get("Depth"))
	assert.Equal(t, []string{"call"}, req.header.Values("X-Token"))
	assert.Equal(t, "app/2.0", req.header.Get("User-Agent"))
}

func TestListErrors(t *testing.T) {
	var status int32 = http.StatusNotFound
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if code := int(atomic.LoadInt32(&status)); code != http.StatusMultiStatus {
			http.Error(w, "nope", code)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<multistatus xmlns="DAV:"><response><href>/dav/x</href>`)
	})
	c := s.client(t)

	_, err := c.List(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsKind(err, KindProtocol))
	assert.Contains(t, err.Error(), "nope")

	atomic.StoreInt32(&status, http.StatusMultiStatus)
	_, err = c.List(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindParse))
}

func TestGetFileAndFolder(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dav/docs/report.pdf":
			writeMultistatus(w, fileResponse("/dav/docs/report.pdf", 77))
		case "/dav/docs/":
			writeMultistatus(w, collectionResponse("/dav/docs/"), fileResponse("/dav/docs/report.pdf", 77))
		default:
			writeMultistatus(w)
		}
	})
	c := s.client(t)

	file, err := c.GetFile(context.Background(), "docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.DisplayName)
	assert.Equal(t, int64(77), *file.ContentLength)
	require.NotNil(t, file.LastModified)
	assert.Equal(t, "0", s.lastRequest(t).header.Get("Depth"))

	dir, err := c.GetFolder(context.Background(), "docs")
	require.NoError(t, err)
	assert.True(t, dir.IsCollection)
	assert.Equal(t, "docs", dir.DisplayName)
	assert.Equal(t, "/dav/docs/", s.lastRequest(t).path)

	_, err = c.GetFile(context.Background(), "empty.txt")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindParse))
}

func TestDownload(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dav/a.txt" {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "a.txt", time.Time{}, strings.NewReader("hello world"))
	})
	c := s.client(t)

	rc, err := c.Download(context.Background(), "a.txt")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello world", string(b))
	req := s.lastRequest(t)
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "f", req.header.Get("Translate"))
	assert.Empty(t, req.header.Get("Range"))

	rc, err = c.DownloadPartial(context.Background(), "a.txt", 6, 10)
	require.NoError(t, err)
	b, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "world", string(b))
	assert.Equal(t, "bytes=6-10", s.lastRequest(t).header.Get("Range"))

	_, err = c.Download(context.Background(), "missing.txt")
	assert.True(t, IsNotFound(err))

	n := s.requestCount()
	_, err = c.DownloadPartial(context.Background(), "a.txt", 10, 6)
	assert.True(t, IsKind(err, KindPrecondition))
	assert.Equal(t, n, s.requestCount())
}

func TestUpload(t *testing.T) {
	var status int32 = http.StatusCreated
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if code := int(atomic.LoadInt32(&status)); code >= 400 {
			http.Error(w, "disk full", code)
			return
		}
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	})
	var uploads int32
	upload := uploadCounter{hc: s.Client(), n: &uploads}
	c := s.client(t, WithUploadHTTPClient(upload))

	err := c.Upload(context.Background(), "docs/", strings.NewReader("hello"), "a b.txt",
		WithCallHeader("Content-Type", "text/plain"))
	require.NoError(t, err)
	req := s.lastRequest(t)
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/dav/docs/a%20b.txt", req.path)
	assert.Equal(t, "hello", req.body)
	assert.Equal(t, "text/plain", req.header.Get("Content-Type"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&uploads))

	atomic.StoreInt32(&status, http.StatusNoContent)
	require.NoError(t, c.Upload(context.Background(), "docs", bytes.NewReader(nil), "empty.txt"))
	assert.Equal(t, "", s.lastRequest(t).body)

	atomic.StoreInt32(&status, http.StatusInsufficientStorage)
	err = c.Upload(context.Background(), "docs", strings.NewReader("x"), "b.txt")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
	assert.Equal(t, http.StatusInsufficientStorage, StatusCode(err))
	assert.Contains(t, err.Error(), "disk full")
}

type uploadCounter struct {
	hc *http.Client
	n  *int32
}

func (u uploadCounter) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(u.n, 1)
	return u.hc.Do(req)
}

func TestUploadPartial(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := s.client(t)

	err := c.UploadPartial(context.Background(), "docs", strings.NewReader("abcd"), "part.bin", 100, 104)
	require.NoError(t, err)
	req := s.lastRequest(t)
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/dav/docs/part.bin", req.path)
	assert.Equal(t, "bytes 100-104/*", req.header.Get("Content-Range"))
	assert.Equal(t, int64(4), req.length)
	assert.Equal(t, "abcd", req.body)
}

func TestUploadPartialPrecondition(t *testing.T) {
	s := newFakeServer(t, nil)
	c := s.client(t)

	err := c.UploadPartial(context.Background(), "docs", bytes.NewReader(make([]byte, 500)), "f.bin", 0, 400)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPrecondition))
	assert.Equal(t, 0, StatusCode(err))

	err = c.UploadPartial(context.Background(), "docs", io.MultiReader(strings.NewReader("abc")), "f.bin", 0, 3)
	assert.True(t, IsKind(err, KindPrecondition))

	err = c.UploadPartial(context.Background(), "docs", strings.NewReader("abc"), "f.bin", 5, 2)
	assert.True(t, IsKind(err, KindPrecondition))

	assert.Equal(t, 0, s.requestCount())
}

func TestCreateDir(t *testing.T) {
	var status int32 = http.StatusCreated
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	})
	c := s.client(t)

	require.NoError(t, c.CreateDir(context.Background(), "parent", "child"))
	req := s.lastRequest(t)
	assert.Equal(t, "MKCOL", req.method)
	assert.Equal(t, "/dav/parent/child/", req.path)

	atomic.StoreInt32(&status, http.StatusConflict)
	err := c.CreateDir(context.Background(), "missing", "child")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, http.StatusConflict, StatusCode(err))

	atomic.StoreInt32(&status, http.StatusMethodNotAllowed)
	err = c.CreateDir(context.Background(), "parent", "child")
	require.Error(t, err)
	assert.False(t, IsConflict(err))
	assert.True(t, IsKind(err, KindProtocol))
}

func TestDelete(t *testing.T) {
	var status int32 = http.StatusNoContent
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	})
	c := s.client(t)

	require.NoError(t, c.DeleteFile(context.Background(), "a.txt"))
	req := s.lastRequest(t)
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/dav/a.txt", req.path)

	atomic.StoreInt32(&status, http.StatusOK)
	require.NoError(t, c.DeleteFolder(context.Background(), "dir"))
	assert.Equal(t, "/dav/dir/", s.lastRequest(t).path)

	atomic.StoreInt32(&status, http.StatusLocked)
	err := c.DeleteFile(context.Background(), "a.txt")
	assert.Equal(t, http.StatusLocked, StatusCode(err))
}

func TestMoveAndCopy(t *testing.T) {
	var status int32 = http.StatusCreated
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	})
	c := s.client(t)

	require.NoError(t, c.MoveFile(context.Background(), "a.txt", "b c.txt"))
	req := s.lastRequest(t)
	assert.Equal(t, "MOVE", req.method)
	assert.Equal(t, "/dav/a.txt", req.path)
	assert.Equal(t, s.URL+"/dav/b%20c.txt", req.header.Get("Destination"))
	assert.Empty(t, req.header.Get("Overwrite"))

	require.NoError(t, c.CopyFolder(context.Background(), "src", "dst", WithOverwrite(false)))
	req = s.lastRequest(t)
	assert.Equal(t, "COPY", req.method)
	assert.Equal(t, "/dav/src/", req.path)
	assert.Equal(t, s.URL+"/dav/dst/", req.header.Get("Destination"))
	assert.Equal(t, "F", req.header.Get("Overwrite"))

	atomic.StoreInt32(&status, http.StatusOK)
	require.NoError(t, c.CopyFile(context.Background(), "a.txt", "b.txt", WithOverwrite(true)))
	assert.Equal(t, "T", s.lastRequest(t).header.Get("Overwrite"))

	atomic.StoreInt32(&status, http.StatusPreconditionFailed)
	err := c.MoveFolder(context.Background(), "src", "dst", WithOverwrite(false))
	assert.Equal(t, http.StatusPreconditionFailed, StatusCode(err))

	atomic.StoreInt32(&status, http.StatusNoContent)
	err = c.MoveFile(context.Background(), "a.txt", "b.txt")
	assert.True(t, IsKind(err, KindProtocol))
}

func TestCapabilities(t *testing.T) {
	var dav atomic.Value
	dav.Store("1, 2")
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("DAV", dav.Load().(string))
		w.Header().Set("Allow", "OPTIONS, GET, PUT, PROPFIND, MKCOL")
		w.WriteHeader(http.StatusOK)
	})
	c := s.client(t)

	caps, err := c.Capabilities(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, caps.HasClass("1"))
	assert.True(t, caps.HasClass("2"))
	assert.False(t, caps.HasClass("3"))
	assert.True(t, caps.Allows("mkcol"))
	assert.False(t, caps.Allows("LOCK"))
	assert.Equal(t, http.MethodOptions, s.lastRequest(t).method)

	dav.Store("")
	_, err = c.Capabilities(context.Background(), "")
	assert.True(t, IsKind(err, KindProtocol))
}

func TestRootResolution(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.root = "/Real/Mount/"
	atomic.StoreInt32(&s.rootFail, 1)
	c := s.client(t)

	err := c.DeleteFile(context.Background(), "a.txt")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Contains(t, err.Error(), "resolve root")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.DeleteFile(context.Background(), fmt.Sprintf("f%d.txt", i))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&s.rootCalls))

	require.NoError(t, c.DeleteFile(context.Background(), "/Real/Mount/b.txt"))
	assert.Equal(t, "/Real/Mount/b.txt", s.lastRequest(t).path)
	require.NoError(t, c.DeleteFile(context.Background(), "c.txt"))
	assert.Equal(t, "/Real/Mount/c.txt", s.lastRequest(t).path)
	assert.Equal(t, int32(2), atomic.LoadInt32(&s.rootCalls))
}

func TestAbsoluteURIPassThrough(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "from other host")
	}))
	defer other.Close()
	s := newFakeServer(t, nil)
	c := s.client(t)

	rc, err := c.Download(context.Background(), other.URL+"/files/a.txt")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "from other host", string(b))
}

func TestContextCanceled(t *testing.T) {
	block := make(chan struct{})
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)
	c := s.client(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.List(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsKind(err, KindProtocol))
}

func TestNewClientErrors(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
	_, err = NewClient("https://dav.example.com", WithPort(-1))
	assert.Error(t, err)

	c, err := NewClient("https://dav.example.com/", WithTimeout(time.Second), WithUploadTimeout(time.Hour),
		WithProxy("http://proxy.example.com:3128"), WithInsecureSkipVerify(true), WithBasicAuth("u", "p"))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestTransports(t *testing.T) {
	o := &options{timeout: time.Second, uploadTimeout: time.Hour}
	hc, uc := transports(o)
	assert.Zero(t, hc.(*http.Client).Timeout)
	tr, ok := hc.(*http.Client).Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, time.Hour, uc.(*http.Client).Timeout)

	explicit := &http.Client{}
	hc, uc = transports(&options{httpClient: explicit, uploadTimeout: time.Hour})
	assert.Same(t, explicit, hc)
	assert.Same(t, explicit, uc)

	upload := &http.Client{}
	_, uc = transports(&options{httpClient: explicit, uploadClient: upload})
	assert.Same(t, upload, uc)
}

func TestDownloadOutlivesTimeout(t *testing.T) {
	s := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dav/slow-headers.bin" {
			time.Sleep(500 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 6; i++ {
			io.WriteString(w, "chunk")
			w.(http.Flusher).Flush()
			time.Sleep(100 * time.Millisecond)
		}
	})
	c, err := NewClient(s.URL, WithBasePath("dav"), WithTimeout(200*time.Millisecond), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	rc, err := c.Download(context.Background(), "big.bin")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("chunk", 6), string(b))

	_, err = c.Download(context.Background(), "slow-headers.bin")
	assert.Error(t, err)
}
