package internal

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// RootCache holds the href the server reports for the configured base path.
// The value is written once, by the first successful resolution, and read
// without locking afterwards. A failed resolution leaves the cache empty.
type RootCache struct {
	root  atomic.Pointer[string]
	group singleflight.Group
}

// Load returns the resolved root, if any.
func (c *RootCache) Load() (string, bool) {
	if p := c.root.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// Get returns the resolved root, calling fetch if it is not known yet.
// Concurrent callers share a single in-flight fetch but each one returns as
// soon as its own ctx is done. When the caller that started the fetch is
// cancelled, the remaining callers start a new one.
func (c *RootCache) Get(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	for {
		if root, ok := c.Load(); ok {
			return root, nil
		}

		ch := c.group.DoChan("root", func() (interface{}, error) {
			if root, ok := c.Load(); ok {
				return root, nil
			}
			root, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, &abandonedError{err}
				}
				return nil, err
			}
			c.root.CompareAndSwap(nil, &root)
			v, _ := c.Load()
			return v, nil
		})

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(string), nil
			}
			var abandoned *abandonedError
			if errors.As(res.Err, &abandoned) {
				if ctx.Err() == nil {
					continue
				}
				return "", abandoned.err
			}
			return "", res.Err
		}
	}
}

// abandonedError marks a fetch that failed because the context of the caller
// that started it was done.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string {
	return e.err.Error()
}

func (e *abandonedError) Unwrap() error {
	return e.err
}
