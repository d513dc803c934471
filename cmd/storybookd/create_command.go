package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storybook/internal/api"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var era, place, characters, topic string
	var noTTS bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new storybook run",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}

			tts := !noTTS
			created, err := c.CreateRun(cmd.Context(), api.CreateRunRequest{
				EraKo:        era,
				PlaceKo:      place,
				CharactersKo: characters,
				TopicKo:      topic,
				TTSEnabled:   &tts,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run started: %s\n", created.RunID)
			if !watch {
				return nil
			}

			return c.WatchEvents(cmd.Context(), created.RunID, func(evt api.RunEvent) {
				if evt.Error != "" {
					fmt.Fprintf(out, "%-8s %-8s error: %s\n", evt.Status, evt.Stage, evt.Error)
					return
				}
				fmt.Fprintf(out, "%-8s %-8s pages=%d audio=%d\n",
					evt.Status, evt.Stage, evt.ReadyMaxPage+1, evt.ReadyMaxAudioPage+1)
			})
		},
	}

	cmd.Flags().StringVar(&era, "era", "", "Story era (Korean)")
	cmd.Flags().StringVar(&place, "place", "", "Story place (Korean)")
	cmd.Flags().StringVar(&characters, "characters", "", "Story characters (Korean)")
	cmd.Flags().StringVar(&topic, "topic", "", "Story topic (Korean)")
	cmd.Flags().BoolVar(&noTTS, "no-tts", false, "Skip audio narration")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress events until the run finishes")
	_ = cmd.MarkFlagRequired("era")
	_ = cmd.MarkFlagRequired("place")
	_ = cmd.MarkFlagRequired("characters")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}
