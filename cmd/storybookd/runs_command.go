package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List retained runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := c.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list.Runs) == 0 {
				fmt.Fprintln(out, "No retained runs")
				return nil
			}

			rows := make([][]string, 0, len(list.Runs))
			for _, item := range list.Runs {
				detail := item.Topic
				if item.Error != "" {
					detail = item.Error
				}
				rows = append(rows, []string{
					item.RunID,
					statusCell(item.Status),
					truncate(detail, 48),
					item.CreatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"RUN", "STATUS", "DETAIL", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
