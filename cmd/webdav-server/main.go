// Command webdav-server serves a local directory over WebDAV, for trying
// davc against a real server.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/xxxsen/common/logger"
	"go.uber.org/zap"
	"golang.org/x/net/webdav"
)

func main() {
	var addr, prefix, level string
	flag.StringVar(&addr, "addr", ":8080", "listening address")
	flag.StringVar(&prefix, "prefix", "", "URL path prefix to serve the directory under")
	flag.StringVar(&level, "log-level", "info", "log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [options...] [directory]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	path := flag.Arg(0)
	if path == "" {
		path = "."
	}

	l := logger.Init("", level, 0, 0, 0, true)
	handler := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: webdav.Dir(path),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				l.Error("webdav request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
				return
			}
			l.Debug("webdav request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		},
	}
	l.Info("WebDAV server listening", zap.String("addr", addr), zap.String("dir", path))
	if err := http.ListenAndServe(addr, handler); err != nil {
		l.Fatal("listen failed", zap.Error(err))
	}
}
