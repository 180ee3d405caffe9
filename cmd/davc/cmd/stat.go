package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/davgo/webdav"
)

type statArgs struct {
	dir bool
}

func NewStatCmd(c *Context) *cobra.Command {
	args := &statArgs{}
	subc := &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the properties of a remote file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			return onRunStat(cmd.Context(), c, args, params[0], cmd.OutOrStdout())
		},
	}
	subc.Flags().BoolVar(&args.dir, "dir", false, "target is a folder")
	return subc
}

func onRunStat(ctx context.Context, c *Context, args *statArgs, p string, out io.Writer) error {
	var item *webdav.Item
	var err error
	if args.dir {
		item, err = c.Client.GetFolder(ctx, p)
	} else {
		item, err = c.Client.GetFile(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("stat failed, err:%w", err)
	}
	fmt.Fprintf(out, "href:          %s\n", item.Href)
	fmt.Fprintf(out, "raw href:      %s\n", item.RawHref)
	fmt.Fprintf(out, "name:          %s\n", item.DisplayName)
	fmt.Fprintf(out, "collection:    %t\n", item.IsCollection)
	fmt.Fprintf(out, "hidden:        %t\n", item.IsHidden)
	fmt.Fprintf(out, "size:          %s\n", itemSize(item))
	fmt.Fprintf(out, "content type:  %s\n", item.ContentType)
	fmt.Fprintf(out, "etag:          %s\n", item.ETag)
	fmt.Fprintf(out, "created:       %s\n", itemTime(item.CreationDate))
	fmt.Fprintf(out, "last modified: %s\n", itemTime(item.LastModified))
	return nil
}

func init() {
	register(NewStatCmd)
}
