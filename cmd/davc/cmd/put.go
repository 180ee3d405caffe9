package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davgo/webdav"
)

type putArgs struct {
	dir string
}

func NewPutCmd(c *Context) *cobra.Command {
	args := &putArgs{}
	subc := &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload local files into a remote folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			return onRunPut(cmd.Context(), c, args, params)
		},
	}
	subc.Flags().StringVarP(&args.dir, "dir", "d", "", "remote folder")
	return subc
}

func onRunPut(ctx context.Context, c *Context, args *putArgs, files []string) error {
	eg, subctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.Config.Thread)
	for _, file := range files {
		file := file
		eg.Go(func() error {
			return putFile(subctx, c, args.dir, file)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("upload failed, err:%w", err)
	}
	return nil
}

func putFile(ctx context.Context, c *Context, dir, file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", file)
	}
	var opts []webdav.CallOption
	if mt, err := mimetype.DetectFile(file); err == nil {
		opts = append(opts, webdav.WithCallHeader("Content-Type", mt.String()))
	}

	start := time.Now()
	name := filepath.Base(file)
	if err := retry.RetryDo(ctx, uint32(c.Config.Retry), 2*time.Second, func(ctx context.Context) error {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := c.Client.Upload(ctx, dir, f, name, opts...); err != nil {
			logutil.GetLogger(ctx).Error("upload file failed, wait retry", zap.Error(err), zap.String("file", file))
			return err
		}
		return nil
	}); err != nil {
		return err
	}
	cost := time.Since(start)
	speed := "-"
	if ms := int64(cost / time.Millisecond); ms > 0 {
		speed = humanize.IBytes(uint64(float64(info.Size())*1000/float64(ms))) + "/s"
	}
	logutil.GetLogger(ctx).Info("upload file succ", zap.String("file", file), zap.String("size", humanize.IBytes(uint64(info.Size()))),
		zap.Duration("cost", cost), zap.String("speed", speed))
	return nil
}

func init() {
	register(NewPutCmd)
}
