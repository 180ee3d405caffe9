package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/davgo/webdav"
)

type lsArgs struct {
	depth  string
	hidden bool
}

func NewLsCmd(c *Context) *cobra.Command {
	args := &lsArgs{}
	subc := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, params []string) error {
			p := ""
			if len(params) > 0 {
				p = params[0]
			}
			return onRunLs(cmd.Context(), c, args, p, cmd.OutOrStdout())
		},
	}
	subc.Flags().StringVarP(&args.depth, "depth", "d", "1", "listing depth: 0, 1 or infinity")
	subc.Flags().BoolVarP(&args.hidden, "all", "a", false, "show hidden items")
	return subc
}

func onRunLs(ctx context.Context, c *Context, args *lsArgs, p string, out io.Writer) error {
	depth, err := webdav.ParseDepth(args.depth)
	if err != nil {
		return err
	}
	items, err := c.Client.List(ctx, p, webdav.WithDepth(depth))
	if err != nil {
		return fmt.Errorf("list folder failed, err:%w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i := range items {
		item := &items[i]
		if item.IsHidden && !args.hidden {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", itemKind(item), itemSize(item), itemTime(item.LastModified), item.DisplayName)
	}
	return tw.Flush()
}

func itemKind(item *webdav.Item) string {
	if item.IsCollection {
		return "d"
	}
	return "-"
}

func itemSize(item *webdav.Item) string {
	if item.IsCollection || item.ContentLength == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*item.ContentLength))
}

func itemTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func init() {
	register(NewLsCmd)
}
