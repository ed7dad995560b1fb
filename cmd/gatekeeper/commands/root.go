package commands

import (
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Gatekeeper - Discord approval bot",
		Long: `Gatekeeper is a Discord bot that manages club, event and project channels.
Privileged slash commands wait for a member of the approver role to approve them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewStatusCmd(),
		NewApprovalCmd(),
		NewGuildCmd(),
		NewVersionCmd(),
	)

	return cmd
}
