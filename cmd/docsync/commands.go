package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chronicle/docsync/internal/config"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "docsync",
		Short:         "Publish draft documents into the published tree",
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogger(v.GetString("log_level"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("database-driver", "", "Database driver (postgres or sqlite)")
	flags.String("database-url", "", "Database URL, or file path for sqlite")
	flags.String("published-backend", "", "Published store backend (sql or git)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"database_driver":   "database-driver",
		"database_url":      "database-url",
		"published_backend": "published-backend",
		"log_level":         "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newServeCmd(v))
	root.AddCommand(newPublishCmd(v))
	root.AddCommand(newMigrateCmd(v))
	return root
}
