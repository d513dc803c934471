package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:       %v (pid %d, up %s)\n",
				status.Running, status.PID, (time.Duration(status.UptimeSeconds) * time.Second).String())
			if status.Busy {
				fmt.Fprintf(out, "In flight:     %s\n", status.InFlightRun)
			} else {
				fmt.Fprintln(out, "In flight:     none")
			}
			fmt.Fprintf(out, "Retained runs: %d\n", status.RetainedRuns)
			fmt.Fprintf(out, "Output dir:    %s\n", status.OutputDir)
			fmt.Fprintf(out, "Lock file:     %s\n", status.LockFilePath)
			if len(status.Backends) > 0 {
				names := make([]string, 0, len(status.Backends))
				for name := range status.Backends {
					names = append(names, name)
				}
				sort.Strings(names)
				parts := make([]string, 0, len(names))
				for _, name := range names {
					state := "down"
					if status.Backends[name] {
						state = "up"
					}
					parts = append(parts, fmt.Sprintf("%s=%s", name, state))
				}
				fmt.Fprintf(out, "Backends:      %s\n", strings.Join(parts, " "))
			}
			return nil
		},
	}
}
