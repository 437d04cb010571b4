package cmd

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pytake/flowbroker/internal/flowerrors"
)

var webhookTenant string

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Operate on outbound webhook delivery and the dead-letter queue",
}

func init() {
	webhooksReplayCmd.Flags().StringVar(&webhookTenant, "tenant", "", "tenant the dead-lettered event belongs to (required)")
	webhooksDLQCmd.AddCommand(webhooksDLQClearCmd)
	webhooksCmd.AddCommand(webhooksReplayCmd)
	webhooksCmd.AddCommand(webhooksDLQCmd)
}

var webhooksReplayCmd = &cobra.Command{
	Use:   "replay <event_id>",
	Short: "Redeliver a dead-lettered webhook event, preserving its event_id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookTenant == "" {
			return validationFailed(flowerrors.New(flowerrors.KindInput, "--tenant is required"))
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, dispatcher, err := webhookStoreAndDispatcher(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := dispatcher.Retry(cmdCtx(), webhookTenant, args[0]); err != nil {
			if flowerrors.IsKind(err, flowerrors.KindInput) {
				return notFound(err)
			}
			return err
		}
		printOK("replayed event %s for tenant %s", args[0], webhookTenant)
		return nil
	},
}

var webhooksDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Manage the dead-letter queue",
}

var webhooksDLQClearCmd = &cobra.Command{
	Use:   "clear <tenant>",
	Short: "Wipe a tenant's entire dead-letter queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, dispatcher, err := webhookStoreAndDispatcher(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.GetConfig(cmdCtx(), args[0]); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(fmt.Errorf("no webhook config for tenant %q", args[0]))
			}
			return err
		}

		if err := dispatcher.Clear(cmdCtx(), args[0]); err != nil {
			return err
		}
		printOK("cleared dead-letter queue for tenant %s", args[0])
		return nil
	},
}
