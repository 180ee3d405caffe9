package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/davgo/webdav"
)

type mkdirArgs struct {
	parents bool
}

func NewMkdirCmd(c *Context) *cobra.Command {
	args := &mkdirArgs{}
	subc := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a remote folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			return onRunMkdir(cmd.Context(), c, args, params[0])
		},
	}
	subc.Flags().BoolVarP(&args.parents, "parents", "p", false, "create missing parents, ignore existing folders")
	return subc
}

func onRunMkdir(ctx context.Context, c *Context, args *mkdirArgs, p string) error {
	p = strings.Trim(p, "/")
	if p == "" {
		return fmt.Errorf("no folder name")
	}
	if !args.parents {
		parent, name := path.Split(p)
		if err := c.Client.CreateDir(ctx, parent, name); err != nil {
			return fmt.Errorf("create folder failed, err:%w", err)
		}
		return nil
	}
	parent := ""
	for _, name := range strings.Split(p, "/") {
		err := c.Client.CreateDir(ctx, parent, name)
		if err != nil && !webdav.IsConflict(err) && webdav.StatusCode(err) != http.StatusMethodNotAllowed {
			return fmt.Errorf("create folder failed, err:%w", err)
		}
		parent = path.Join(parent, name)
	}
	return nil
}

type rmArgs struct {
	recursive bool
}

func NewRmCmd(c *Context) *cobra.Command {
	args := &rmArgs{}
	subc := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete remote files or folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			return onRunRm(cmd.Context(), c, args, params)
		},
	}
	subc.Flags().BoolVarP(&args.recursive, "recursive", "r", false, "delete folders and their content")
	return subc
}

func onRunRm(ctx context.Context, c *Context, args *rmArgs, paths []string) error {
	for _, p := range paths {
		var err error
		if args.recursive {
			err = c.Client.DeleteFolder(ctx, p)
		} else {
			err = c.Client.DeleteFile(ctx, p)
		}
		if err != nil {
			return fmt.Errorf("delete %s failed, err:%w", p, err)
		}
		logutil.GetLogger(ctx).Debug("deleted", zap.String("path", p))
	}
	return nil
}

type transferArgs struct {
	dir         bool
	noOverwrite bool
}

func newTransferCmd(c *Context, use, short string, move bool) *cobra.Command {
	args := &transferArgs{}
	subc := &cobra.Command{
		Use:   use + " <src> <dst>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, params []string) error {
			return onRunTransfer(cmd.Context(), c, args, move, params[0], params[1])
		},
	}
	subc.Flags().BoolVar(&args.dir, "dir", false, "source is a folder")
	subc.Flags().BoolVarP(&args.noOverwrite, "no-clobber", "n", false, "fail if the destination exists")
	return subc
}

func NewMvCmd(c *Context) *cobra.Command {
	return newTransferCmd(c, "mv", "Move a remote file or folder", true)
}

func NewCpCmd(c *Context) *cobra.Command {
	return newTransferCmd(c, "cp", "Copy a remote file or folder", false)
}

func onRunTransfer(ctx context.Context, c *Context, args *transferArgs, move bool, src, dst string) error {
	var opts []webdav.CallOption
	if args.noOverwrite {
		opts = append(opts, webdav.WithOverwrite(false))
	}
	var err error
	switch {
	case move && args.dir:
		err = c.Client.MoveFolder(ctx, src, dst, opts...)
	case move:
		err = c.Client.MoveFile(ctx, src, dst, opts...)
	case args.dir:
		err = c.Client.CopyFolder(ctx, src, dst, opts...)
	default:
		err = c.Client.CopyFile(ctx, src, dst, opts...)
	}
	if err != nil {
		return fmt.Errorf("transfer %s to %s failed, err:%w", src, dst, err)
	}
	return nil
}

func NewCapsCmd(c *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "caps [path]",
		Short: "Show the WebDAV classes and methods the server supports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			p := ""
			if len(params) > 0 {
				p = params[0]
			}
			return onRunCaps(cmd.Context(), c, p, cmd.OutOrStdout())
		},
	}
}

func onRunCaps(ctx context.Context, c *Context, p string, out io.Writer) error {
	caps, err := c.Client.Capabilities(ctx, p)
	if err != nil {
		return fmt.Errorf("query capabilities failed, err:%w", err)
	}
	fmt.Fprintf(out, "classes: %s\n", strings.Join(sortedKeys(caps.Classes), ", "))
	fmt.Fprintf(out, "methods: %s\n", strings.Join(sortedKeys(caps.Methods), ", "))
	return nil
}

func sortedKeys(m map[string]bool) []string {
	l := make([]string, 0, len(m))
	for k := range m {
		l = append(l, k)
	}
	sort.Strings(l)
	return l
}

func init() {
	register(NewMkdirCmd)
	register(NewRmCmd)
	register(NewMvCmd)
	register(NewCpCmd)
	register(NewCapsCmd)
}
