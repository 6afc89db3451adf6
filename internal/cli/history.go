package cli

import (
	"context"
	"fmt"
	"io"

	"ugc-studio/internal/studio"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <chatId>",
	Short: "Print the persisted messages of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd.Context(), cmd.OutOrStdout(), newAPIClient(sessionID()), cfg.Studio.APIBaseURL, args[0])
	},
}

func runHistory(ctx context.Context, out io.Writer, fetcher studio.SnapshotFetcher, baseURL, chatID string) error {
	msgs, err := studio.NewHistoryLoader(fetcher, baseURL).Load(ctx, chatID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}

	for _, m := range msgs {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
		for _, u := range m.ImageURLs {
			fmt.Fprintln(out, "  [image] "+describeImage(u))
		}
	}
	return nil
}
