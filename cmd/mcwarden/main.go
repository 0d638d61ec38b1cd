package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/mcwarden/pkg/client"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects a running daemon for the remote subcommands
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createInitCommand(),
		createSendCommand(apiFlags),
		createStatusCommand(apiFlags),
		createNotificationsCommand(apiFlags),
		createProbeCommand(),
		createRconCommand(),
		createPropsCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcwarden",
		Short: "Minecraft server supervisor with idle shutdown",
		Long: `mcwarden launches a Minecraft server on request, watches it with status
pings, and shuts it down after it has been empty for a while.

Examples:
  mcwarden serve --config=mcwarden.toml        # Run the daemon
  mcwarden send --caller=alice '!start'        # Send a chat command to the daemon
  mcwarden status                              # Show the daemon's lifecycle state
  mcwarden probe 127.0.0.1:25565               # Ping a server directly`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 2*time.Minute, "request timeout")
	cmd.Flags().StringVar(&flags.CACert, "ca-cert", "", "CA certificate for an https daemon with a self-signed certificate")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
}

func (f *APIFlags) newClient() (*client.Client, error) {
	cfg := client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout}
	if f.CACert != "" || f.Insecure {
		cfg.TLS = &client.TLSClientConfig{CACert: f.CACert, SkipVerify: f.Insecure}
	}
	return client.New(cfg)
}
