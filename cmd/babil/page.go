package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"babil/internal/audio"
	"babil/internal/wiki"
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Page maintenance",
}

var renderAudioCmd = &cobra.Command{
	Use:   "render-audio <name>...",
	Short: "Render the spoken title of pages again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		renderer := a.audioRenderer()
		if renderer == nil {
			return errors.New("audio is disabled (audio.engine is none)")
		}
		engine := a.engine(audio.Inline{Renderer: renderer, Logger: logger})

		for _, name := range args {
			name = wiki.NormalizeName(name)
			if err := engine.Revisions.RerenderAudio(cmd.Context(), name); err != nil {
				return fmt.Errorf("render %q: %w", name, err)
			}
			if _, err := renderer.Sink().Stat(name); err != nil {
				return fmt.Errorf("render %q: %w", name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderer.Sink().Path(name))
		}
		return nil
	},
}

func init() {
	pageCmd.AddCommand(renderAudioCmd)
}
