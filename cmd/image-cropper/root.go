package main

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	imagecropper "github.com/menta2k/image-cropper"
	"github.com/menta2k/image-cropper/internal/config"
	"github.com/menta2k/image-cropper/pkg/cropper"
)

type commandContext struct {
	configFlag string
	ratioFlag  string
	quality    int
	outDir     string
	verbose    bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// output returns the --out flag, falling back to the configured directory.
func (c *commandContext) output(cfg *config.Config) string {
	if c.outDir != "" {
		return c.outDir
	}
	return cfg.Output.OutputDir
}

// workspace builds a workspace from configuration with flag overrides applied.
func (c *commandContext) workspace(cmd *cobra.Command, thumbnails bool) (*imagecropper.Workspace, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	cropCfg, err := cfg.CropperConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("ratio") {
		ratio, err := cropper.ParseAspectRatio(c.ratioFlag)
		if err != nil {
			return nil, nil, err
		}
		cropCfg.AspectRatio = ratio
	}

	quality := cfg.Export.Quality
	if cmd.Flags().Changed("quality") {
		if c.quality < 1 || c.quality > 100 {
			return nil, nil, fmt.Errorf("--quality must be between 1 and 100")
		}
		quality = float64(c.quality) / 100
	}

	ws := imagecropper.New(imagecropper.Options{
		Cropper:       cropCfg,
		Quality:       quality,
		Export:        cfg.ExportOptions(),
		Thumbnails:    thumbnails,
		ThumbnailSize: cfg.Preview.ThumbnailSize,
		Logger:        c.logger(cmd),
	})
	return ws, cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "image-cropper",
		Short:         "Crop batches of images to an aspect ratio and bundle them as JPEG",
		Version:       imagecropper.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Defaults mirror config.Default; a flag only applies when set explicitly.
	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&ctx.ratioFlag, "ratio", "r", d.Cropper.AspectRatio,
		"Aspect ratio: free, square, portrait, landscape, widescreen, instagram, story or W:H (overrides cropper.aspect_ratio)")
	flags.IntVarP(&ctx.quality, "quality", "q", int(math.Round(d.Export.Quality*100)),
		"JPEG quality 1-100 (overrides export.quality)")
	flags.StringVarP(&ctx.outDir, "out", "o", "", "Output directory")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newCropCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newEditCommand(ctx))
	rootCmd.AddCommand(newRatiosCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
