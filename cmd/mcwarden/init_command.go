package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/mcwarden/pkg/template"
)

// InitFlags holds flags for the init command
type InitFlags struct {
	Flavor  string
	Name    string
	WorkDir string
	Heap    string
	Output  string
	Force   bool
}

func createInitCommand() *cobra.Command {
	f := &InitFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter mcwarden.toml",
		Long: `Write a starter config for a server distribution.

Supported flavors: ` + strings.Join(template.SupportedFlavors(), ", ") + `

Examples:
  mcwarden init --flavor=paper --heap=4G --workdir=/srv/minecraft/smp
  mcwarden init --flavor=forge --output=-     # print to stdout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.Flavor, "flavor", "vanilla", "server distribution")
	cmd.Flags().StringVar(&f.Name, "name", "", "server name (default: flavor)")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "server directory (default /srv/minecraft/<name>)")
	cmd.Flags().StringVar(&f.Heap, "heap", template.DefaultHeap, "JVM heap size")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "mcwarden.toml", "output file, - for stdout")
	cmd.Flags().BoolVar(&f.Force, "force", false, "overwrite an existing file")
	return cmd
}

func runInit(cmd *cobra.Command, f *InitFlags) error {
	file, err := template.Generate(template.Options{
		Flavor:  template.Flavor(f.Flavor),
		Name:    f.Name,
		WorkDir: f.WorkDir,
		Heap:    f.Heap,
	})
	if err != nil {
		return err
	}
	content, err := file.TOML()
	if err != nil {
		return err
	}
	if f.Output == "-" {
		_, err := cmd.OutOrStdout().Write(content)
		return err
	}
	if _, err := os.Stat(f.Output); err == nil && !f.Force {
		return fmt.Errorf("config file '%s' already exists (use --force to overwrite)", f.Output)
	}
	if err := os.WriteFile(f.Output, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config for %s written: %s\nEdit it and run: mcwarden serve --config=%s\n", file.Server.Name, f.Output, f.Output)
	return nil
}
