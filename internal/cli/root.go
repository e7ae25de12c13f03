package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	port       string
	session    string
	logLevel   string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	envSession := os.Getenv("QUIZ_SESSION")
	if envSession == "" {
		envSession = "cli"
	}

	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "emsi-preparator",
		Short:         "Quiz practice client for the EMSI PREPARATOR API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.port, "port", "", "port for the UI shell server (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.session, "session", envSession, "session key the logged-in identity is stored under")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	cmd.AddCommand(
		NewStartCmd(opts),
		NewMigrateCmd(opts),
		NewLoginCmd(opts),
		NewLogoutCmd(opts),
		NewRegisterCmd(opts),
		NewQuizCmd(opts),
		NewHistoryCmd(opts),
		NewReportCmd(opts),
		NewDashboardCmd(opts),
	)
	return cmd
}
