package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/retry"
	"go.uber.org/zap"
)

type getArgs struct {
	output string
	rng    string
}

func NewGetCmd(c *Context) *cobra.Command {
	args := &getArgs{}
	subc := &cobra.Command{
		Use:   "get <remote>",
		Short: "Download a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			return onRunGet(cmd.Context(), c, args, params[0])
		},
	}
	subc.Flags().StringVarP(&args.output, "output", "o", "", "local file, default to the remote file name")
	subc.Flags().StringVarP(&args.rng, "range", "r", "", "byte range to download, as start-end")
	return subc
}

func parseRange(s string) (int64, int64, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start %q", a)
	}
	end, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range end %q", b)
	}
	return start, end, nil
}

func onRunGet(ctx context.Context, c *Context, args *getArgs, remote string) error {
	output := args.output
	if output == "" {
		output = path.Base(strings.TrimRight(remote, "/"))
	}
	var start, end int64
	partial := args.rng != ""
	if partial {
		var err error
		if start, end, err = parseRange(args.rng); err != nil {
			return err
		}
	}

	begin := time.Now()
	var size int64
	err := retry.RetryDo(ctx, uint32(c.Config.Retry), 2*time.Second, func(ctx context.Context) error {
		var rc io.ReadCloser
		var err error
		if partial {
			rc, err = c.Client.DownloadPartial(ctx, remote, start, end)
		} else {
			rc, err = c.Client.Download(ctx, remote)
		}
		if err != nil {
			logutil.GetLogger(ctx).Error("download failed, wait retry", zap.Error(err), zap.String("remote", remote))
			return err
		}
		defer rc.Close()
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		size, err = io.Copy(f, rc)
		return err
	})
	if err != nil {
		return fmt.Errorf("download file failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("download file succ", zap.String("remote", remote), zap.String("local", output),
		zap.String("size", humanize.IBytes(uint64(size))), zap.Duration("cost", time.Since(begin)))
	return nil
}

func init() {
	register(NewGetCmd)
}
