package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"ugc-studio/internal/model"
	"ugc-studio/internal/studio"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

func init() {
	sendCmd.Flags().String("chat", "", "chat id to continue (a new chat when empty)")
	sendCmd.Flags().StringP("provider", "p", "", "model provider (overrides studio.provider)")
	sendCmd.Flags().StringSliceP("image", "i", nil, "image file to attach, repeatable")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Send a message and print the streamed reply",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, _ := cmd.Flags().GetString("chat")
		provider, _ := cmd.Flags().GetString("provider")
		paths, _ := cmd.Flags().GetStringSlice("image")

		files, err := loadImages(paths)
		if err != nil {
			return err
		}

		session := sessionID()
		opts := studio.Options{
			BaseURL:        cfg.Studio.APIBaseURL,
			Provider:       cfg.Studio.Provider,
			WelcomeMessage: cfg.Studio.WelcomeMessage,
		}
		chatID, err = runSend(cmd.Context(), cmd.OutOrStdout(), newAPIClient(session), opts, chatID,
			studio.SendInput{Text: strings.Join(args, " "), Provider: provider}, files)
		if chatID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "chat: %s\n", chatID)
		}
		return err
	},
}

func loadImages(paths []string) ([]model.PendingFile, error) {
	files := make([]model.PendingFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		mtype := mimetype.Detect(data)
		if !strings.HasPrefix(mtype.String(), "image/") {
			return nil, fmt.Errorf("%s is not an image (%s)", p, mtype.String())
		}
		files = append(files, model.PendingFile{Name: p, ContentType: mtype.String(), Data: data})
	}
	return files, nil
}

// runSend sends one message and writes the assistant reply to out as it
// streams, followed by any images. It returns the chat id used.
func runSend(ctx context.Context, out io.Writer, api studio.API, opts studio.Options, chatID string, in studio.SendInput, files []model.PendingFile) (string, error) {
	ctrl := studio.NewController(api, opts)
	defer ctrl.Close()

	if chatID != "" {
		ctrl.Open(ctx, chatID)
	}
	if err := ctrl.Composer().Add(files...); err != nil {
		return "", err
	}

	states, cancel := ctrl.List().Subscribe()
	defer cancel()
	// The user message lands at base, the reply right after it.
	base := len(ctrl.List().Snapshot().Messages)

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Send(ctx, in)
		errCh <- err
		cancel()
	}()

	var printed string
	var reply model.ChatMessage
	for state := range states {
		if len(state.Messages) <= base+1 {
			continue
		}
		reply = state.Messages[base+1]
		if strings.HasPrefix(reply.Content, printed) {
			fmt.Fprint(out, reply.Content[len(printed):])
		} else {
			fmt.Fprint(out, "\n"+reply.Content)
		}
		printed = reply.Content
	}

	err := <-errCh
	if reply.ID == "" {
		return ctrl.List().ChatID(), err
	}
	fmt.Fprintln(out)
	for _, u := range reply.ImageURLs {
		fmt.Fprintln(out, "[image] "+describeImage(u))
	}
	return ctrl.List().ChatID(), err
}

func describeImage(u string) string {
	if !model.IsDataURI(u) {
		return u
	}
	mime := strings.TrimPrefix(strings.SplitN(u, ";", 2)[0], "data:")
	return fmt.Sprintf("inline %s (%s)", mime, humanize.Bytes(uint64(len(u))))
}
