package main

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chronicle/docsync/internal/app"
	"chronicle/docsync/internal/config"
)

func newPublishCmd(v *viper.Viper) *cobra.Command {
	var (
		locale    string
		sessionID string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "publish <document-id>...",
		Short: "Publish draft documents and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, config.FromViper(v), slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			result, err := rt.service.PublishMany(ctx, app.PublishInput{
				DocumentIDs: args,
				Locale:      locale,
				SessionID:   sessionID,
				Force:       force,
			})
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}
	cmd.Flags().StringVar(&locale, "locale", app.DefaultLocale, "Locale of the documents")
	cmd.Flags().StringVar(&sessionID, "session", "", "Reuse the published registry of an existing session")
	cmd.Flags().BoolVar(&force, "force", false, "Resolve documents even when the session already bound them")
	return cmd
}
