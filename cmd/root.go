package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genrelay/genrelay/pkg/logutil"
)

var rootLogLevel string

var rootCmd = &cobra.Command{
	Use:   "genrelay",
	Short: "Generative-AI relay server",
	Long:  "Relay server proxying browser clients to generative-AI providers: text LLMs, image/video task APIs, and agent services, with SSE streaming and usage accounting.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := logutil.Configure(rootLogLevel); err != nil {
			return err
		}
		if os.Geteuid() == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: running as root")
		}
		return nil
	}
}
