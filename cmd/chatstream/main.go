package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatstream/internal/adapter/tui/uxerror"
)

// errInterrupted reports that the user stopped a command with a signal.
var errInterrupted = errors.New("interrupted")

// reportedError wraps a failure the renderer has already shown.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	os.Exit(execute(newRootCmd(), os.Args[1:]))
}

// execute runs root with args and maps the outcome to a process exit code.
func execute(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	if errors.Is(err, errInterrupted) {
		return 130
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %s\n", uxerror.Humanize(err).Render())
	}
	return 1
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "chatstream",
		Short: "Streaming chat client",
		Long: `chatstream talks to a streaming chat service: it sends questions,
renders replies as they arrive and keeps a local cache of conversations.

Configuration is read from config.yaml (or --config / CHATSTREAM_CONFIG).
CHATSTREAM_* environment variables override the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "config file")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "override logger.level")

	root.AddCommand(
		newChatCmd(opts),
		newSendCmd(opts),
		newHistoryCmd(opts),
		newDoctorCmd(opts),
		newEncryptTokenCmd(),
	)
	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("CHATSTREAM_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
