package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagWrite bool
	flagAdmin bool
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Moderate identities",
}

var grantCmd = &cobra.Command{
	Use:   "grant <token>",
	Short: "Set the permissions of an identity, registering it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFlags(cmd, args[0], flagWrite || flagAdmin, flagAdmin)
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Remove every permission of an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFlags(cmd, args[0], false, false)
	},
}

func init() {
	grantCmd.Flags().BoolVar(&flagWrite, "write", true, "allow editing pages")
	grantCmd.Flags().BoolVar(&flagAdmin, "admin", false, "allow restoring revisions (implies --write)")

	adminCmd.AddCommand(grantCmd)
	adminCmd.AddCommand(revokeCmd)
}

func setFlags(cmd *cobra.Command, token string, write, admin bool) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gate := a.gate()
	if err := gate.Grant(cmd.Context(), token, write, admin); err != nil {
		return fmt.Errorf("update %q: %w", token, err)
	}
	logger.Info("identity updated", "key", gate.Key(token), "write", write, "admin", admin)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: write=%t admin=%t\n", token, write, admin)
	return nil
}
