package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the state of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			state, err := c.RunState(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s   Stage: %s   pages=%d audio=%d\n",
				statusCell(string(state.Status)), state.Stage, state.ReadyMaxPage+1, state.ReadyMaxAudioPage+1)
			if state.Error != "" {
				fmt.Fprintf(out, "Error:  %s\n", state.Error)
			}

			rows := make([][]string, 0, len(state.Pages))
			for _, page := range state.Pages {
				text := page.Title
				if page.Page > 0 {
					text = page.Summary
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", page.Page),
					truncate(text, 48),
					marker(page.ImageURL),
					marker(page.AudioURL),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"PAGE", "TEXT", "IMAGE", "AUDIO"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func marker(url string) string {
	if url == "" {
		return "-"
	}
	return "ready"
}
