package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatstream/internal/adapter/render"
	"chatstream/internal/domain"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "Print the committed messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var loader domain.ConversationLoader = a.loader
			if offline {
				if a.cache == nil {
					return fmt.Errorf("--offline needs cache.enabled: true")
				}
				loader = a.cache
			}

			conv, err := loader.LoadConversation(ctx, args[0])
			if err != nil {
				return err
			}
			render.WriteHistory(cmd.OutOrStdout(), conv)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read from the local cache only")
	return cmd
}
