package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"chatstream/internal/adapter/render"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var ropts render.Options

	cmd := &cobra.Command{
		Use:   "send <chat-id> [message|-]",
		Short: "Send one message and stream the reply to stdout",
		Long: `Send one message to a conversation and print the reply as it streams.
The message is read from stdin when omitted or given as "-".
Ctrl+C cancels the request.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := args[0]
			content, err := messageArg(args[1:], cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := render.NewWriterRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), ropts)
			if err != nil {
				return err
			}
			session, err := a.newSession(chatID, r)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Load(ctx); err != nil {
				if ctx.Err() != nil {
					return errInterrupted
				}
				return err
			}
			if err := session.Send(ctx, content); err != nil {
				return reportedError{err: err}
			}
			if ctx.Err() != nil {
				return errInterrupted
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&ropts.Markdown, "markdown", "m", false, "render the finished reply as markdown")
	cmd.Flags().BoolVarP(&ropts.ShowStatus, "status", "s", false, "print progress labels to stderr")
	cmd.Flags().IntVarP(&ropts.Width, "width", "w", 0, "wrap width for markdown output")
	return cmd
}

// messageArg returns the message from args, or reads stdin for "-" or no argument.
func messageArg(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("no message given")
	}
	return content, nil
}
