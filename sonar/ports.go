package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/itohio/gosonar/pkg/link"
)

//nolint:gochecknoglobals // Cobra command tree.
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := link.Ports()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			_, _ = fmt.Fprintln(out, "no serial ports found")
			return nil
		}
		for _, p := range ports {
			mark := " "
			if p.Pico {
				mark = "*"
			}
			_, _ = fmt.Fprintf(out, "%s %-16s %s\n", mark, p.Name, p.Description)
		}
		return nil
	},
}

//nolint:gochecknoglobals // Cobra command tree.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information.",
	Args:  cobra.NoArgs,
	// Skip config loading.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "gosonar (unknown version)")
			return
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gosonar %s (%s)\n", info.Main.Version, info.GoVersion)
	},
}
