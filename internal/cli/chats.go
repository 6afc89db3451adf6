package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"ugc-studio/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type chatLister interface {
	ListChats(ctx context.Context) ([]model.ChatSummary, error)
}

func init() {
	rootCmd.AddCommand(chatsCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List the chats of this session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChats(cmd.Context(), cmd.OutOrStdout(), newAPIClient(sessionID()))
	},
}

func runChats(ctx context.Context, out io.Writer, lister chatLister) error {
	items, err := lister.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No chats yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.ID, item.Title, humanize.Time(item.UpdatedAt))
	}
	return tw.Flush()
}
