package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatstream/internal/adapter/tui/chat"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "chat <chat-id>",
		Short: "Open a conversation in the interactive terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := args[0]

			// Ctrl+C reaches the UI as a key press; only SIGTERM ends the program from outside.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer a.Close()

			bridge := chat.NewBridge()
			session, err := a.newSession(chatID, bridge)
			if err != nil {
				return err
			}
			defer session.Close()

			a.log.Info("chat ui starting", "chat_id", chatID)
			return chat.Run(ctx, bridge, chat.ChatModelDeps{
				Session:     session,
				Logger:      a.log,
				ChatID:      chatID,
				Title:       title,
				LoadOnStart: true,
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "title shown in the status bar")
	return cmd
}
