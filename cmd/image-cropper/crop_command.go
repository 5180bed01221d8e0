package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	imagecropper "github.com/menta2k/image-cropper"
	"github.com/menta2k/image-cropper/internal/utils"
	"github.com/menta2k/image-cropper/pkg/export"
	"github.com/menta2k/image-cropper/pkg/processing"
	"github.com/menta2k/image-cropper/pkg/registry"
)

func newCropCommand(ctx *commandContext) *cobra.Command {
	var overlay bool
	var overlayExt string

	cmd := &cobra.Command{
		Use:   "crop <input>...",
		Short: "Crop every input with its default box and write one zip archive",
		Long: "Inputs may be image files, directories or http(s) URLs. Non-image inputs are dropped.\n" +
			"Each image gets a centered crop box at the selected aspect ratio, is encoded as JPEG\n" +
			"and stored under the archive folder.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, cfg, err := ctx.workspace(cmd, false)
			if err != nil {
				return err
			}
			defer ws.Close()

			proc := processing.NewProcessor()
			n, err := loadInputs(cmd.Context(), ws, proc, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded %d images\n", n)
			if n == 0 {
				return export.ErrNoImages
			}

			dir := ctx.output(cfg)
			if err := utils.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			if overlay {
				if err := writeOverlays(cmd.Context(), ws, proc, dir, overlayExt); err != nil {
					return err
				}
			}

			path := filepath.Join(dir, ws.ArchiveName())
			report, err := writeArchive(cmd.Context(), ws, path)
			if err != nil {
				return err
			}

			for _, entry := range report.Entries {
				fmt.Fprintf(out, "  %s\n", entry)
			}
			for _, s := range report.Skipped {
				fmt.Fprintf(out, "  skipped %s: %v\n", s.Name, s.Err)
			}
			fmt.Fprintf(out, "Wrote %s (%d images, %s)\n", path, len(report.Entries), utils.FormatFileSize(report.Bytes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&overlay, "overlay", false, "Also write each image with its crop box drawn on it")
	cmd.Flags().StringVar(&overlayExt, "overlay-ext", "png", "Overlay format: png|jpg|webp")
	return cmd
}

func loadInputs(ctx context.Context, ws *imagecropper.Workspace, proc *processing.Processor, inputs []string) (int, error) {
	files, err := utils.ReadInputs(ctx, proc, inputs)
	if err != nil {
		return 0, err
	}
	return ws.Load(files), nil
}

func writeArchive(ctx context.Context, ws *imagecropper.Workspace, path string) (*export.Report, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	report, err := ws.ExportAll(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return report, nil
}

func writeOverlays(ctx context.Context, ws *imagecropper.Workspace, proc *processing.Processor, dir, ext string) error {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for i, src := range ws.Sources() {
		ws.Select(i)
		if err := ws.AwaitCurrent(ctx); err != nil {
			return err
		}
		img, ok := ws.Overlay()
		if !ok {
			continue
		}
		base := strings.TrimSuffix(registry.OutputFilename(src.Name), ".jpg")
		path := filepath.Join(dir, base+"_overlay."+ext)
		if err := proc.SaveImage(img, path, ext, 92, false); err != nil {
			return fmt.Errorf("failed to save overlay %s: %w", path, err)
		}
	}
	return nil
}
