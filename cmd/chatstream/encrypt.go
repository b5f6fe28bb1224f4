package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chatstream/internal/infra/config"
)

func newEncryptTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-token",
		Short: "Encrypt a session token read from stdin for auth.token",
		Long: `Read a session token from stdin and print the value to store in
auth.token. The passphrase is taken from CHATSTREAM_CONFIG_KEY, which must
also be set when the config is loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			passphrase := os.Getenv("CHATSTREAM_CONFIG_KEY")
			if passphrase == "" {
				return fmt.Errorf("CHATSTREAM_CONFIG_KEY is not set")
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token := strings.TrimSpace(line)
			if token == "" {
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				return fmt.Errorf("empty token")
			}
			enc, err := config.EncryptValue(token, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enc:%s\n", enc)
			return nil
		},
	}
}
