package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/mcwarden/pkg/client"
)

func createSendCommand(apiFlags *APIFlags) *cobra.Command {
	var caller string
	cmd := &cobra.Command{
		Use:   "send <command...>",
		Short: "Send a chat command to a running daemon",
		Long: `Send a chat command to a running daemon and print its reply.

Examples:
  mcwarden send --caller=alice '!start'
  mcwarden send --caller=op#0001 '!say' hello everyone`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caller == "" {
				caller = defaultCaller()
			}
			c, err := apiFlags.newClient()
			if err != nil {
				return err
			}
			reply, err := c.SendCommand(cmd.Context(), client.CommandRequest{Caller: caller, Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "caller identity checked against the admin list (default $USER)")
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createStatusCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiFlags.newClient()
			if err != nil {
				return err
			}
			st, err := c.GetState(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), st)
			return nil
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createNotificationsCommand(apiFlags *APIFlags) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List recent notifications buffered by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			c, err := apiFlags.newClient()
			if err != nil {
				return err
			}
			ns, err := c.GetNotifications(cmd.Context(), from)
			if err != nil {
				return err
			}
			for _, n := range ns {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", n.At.Local().Format(time.DateTime), n.Channel, n.Message)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only show notifications newer than this (e.g. 10m)")
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func defaultCaller() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
