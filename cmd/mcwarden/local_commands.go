package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/mcwarden/internal/probe"
	"github.com/loykin/mcwarden/internal/props"
	"github.com/loykin/mcwarden/internal/rcon"
)

var errUnreachable = errors.New("server unreachable")

func createProbeCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe [host:port]",
		Short: "Ping a server's status endpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := probe.DefaultAddress
			if len(args) > 0 {
				addr = args[0]
			}
			res := probe.NewSLP(timeout).Probe(cmd.Context(), addr)
			if !res.Reachable {
				return fmt.Errorf("%s: %w", addr, errUnreachable)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d players online, version %s, %s\n",
				addr, res.Online, res.Max, res.Version, res.Latency.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", probe.DefaultTimeout, "probe timeout")
	return cmd
}

// staticTarget serves fixed credentials to the RCON client.
type staticTarget props.RconCredentials

func (t staticTarget) Credentials() (props.RconCredentials, bool) {
	return props.RconCredentials(t), true
}

func createRconCommand() *cobra.Command {
	var (
		propsFile string
		host      string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rcon <command...>",
		Short: "Run one console command over RCON",
		Long: `Run one console command over RCON using the credentials in server.properties.

Examples:
  mcwarden rcon --props=/srv/minecraft/server.properties list
  mcwarden rcon whitelist add Steve`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := props.Load(propsFile)
			if err != nil {
				return err
			}
			client := rcon.New(staticTarget(p.Credentials(host)), timeout)
			resp, err := client.SendCommand(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if resp = strings.TrimSpace(resp); resp != "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&propsFile, "props", "server.properties", "path to server.properties")
	cmd.Flags().StringVar(&host, "host", "localhost", "RCON host")
	cmd.Flags().DurationVar(&timeout, "timeout", rcon.DefaultTimeout, "dial and I/O timeout")
	return cmd
}

func createPropsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "props [server.properties]",
		Short: "Print a server.properties file as typed JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "server.properties"
			if len(args) > 0 {
				path = args[0]
			}
			p, err := props.Load(path)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
