package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pytake/flowbroker/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage running flow sessions",
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsCancelCmd)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := sessionStore(cfg)
		sessions, err := store.ListActive(cmdCtx())
		if err != nil {
			return err
		}
		printHeader("Active sessions")
		if len(sessions) == 0 {
			fmt.Println("(none)")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%-36s  tenant=%-12s  flow=%-20s  node=%-16s  status=%s\n",
				s.ID, s.TenantID, s.FlowID, s.CurrentNodeID, s.Status)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the full record for one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := sessionStore(cfg)
		s, err := store.Get(cmdCtx(), args[0])
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return notFound(err)
			}
			return err
		}
		out, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		printHeader(fmt.Sprintf("Session %s", s.ID))
		fmt.Println(string(out))
		return nil
	},
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := sessionStore(cfg)
		ctx := cmdCtx()
		s, err := store.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return notFound(err)
			}
			return err
		}
		if s.Status.IsTerminal() {
			printWarn("session %s is already terminal (%s)", s.ID, s.Status)
			return nil
		}
		baseline := s.LastActivityAt
		s.Status = session.StatusCancelled
		if err := store.Put(ctx, s, &baseline); err != nil {
			return err
		}
		printOK("cancelled session %s", s.ID)
		return nil
	},
}
