package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-cropper/internal/utils"
	"github.com/menta2k/image-cropper/pkg/processing"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "export <input>...",
		Short: "Crop a single image and write it as JPEG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, cfg, err := ctx.workspace(cmd, false)
			if err != nil {
				return err
			}
			defer ws.Close()

			n, err := loadInputs(cmd.Context(), ws, processing.NewProcessor(), args)
			if err != nil {
				return err
			}
			if index < 0 || index >= n {
				return fmt.Errorf("--index %d out of range: %d images loaded", index, n)
			}

			ws.Select(index)
			waitCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Export.SettleTimeout)
			defer cancel()
			if err := ws.AwaitCurrent(waitCtx); err != nil {
				return err
			}

			res, ok := ws.Export()
			if !ok {
				return fmt.Errorf("image %d could not be cropped", index)
			}

			dir := ctx.output(cfg)
			if err := utils.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			path := filepath.Join(dir, res.Filename)
			if err := os.WriteFile(path, res.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d, quality %d%%, %s)\n",
				path, res.Width, res.Height, ws.QualityPercent(), utils.FormatFileSize(int64(len(res.Data))))
			return nil
		},
	}

	cmd.Flags().IntVarP(&index, "index", "i", 0, "Index of the image to export")
	return cmd
}
