package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/menta2k/image-cropper/internal/tui"
	"github.com/menta2k/image-cropper/pkg/processing"
)

func newEditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <input>...",
		Short: "Open the interactive crop editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, cfg, err := ctx.workspace(cmd, true)
			if err != nil {
				return err
			}
			defer ws.Close()

			if _, err := loadInputs(cmd.Context(), ws, processing.NewProcessor(), args); err != nil {
				return err
			}

			p := tea.NewProgram(tui.New(cmd.Context(), ws, ctx.output(cfg)),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
}
