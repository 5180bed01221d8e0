package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-cropper/pkg/cropper"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "cropped_images.zip", cfg.Export.ArchiveName)
	require.Equal(t, "cropped_images", cfg.Export.FolderName)
	require.Equal(t, 5*time.Second, cfg.Export.SettleTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown ratio", func(c *Config) { c.Cropper.AspectRatio = "7:2" }},
		{"zero crop area", func(c *Config) { c.Cropper.AutoCropArea = 0 }},
		{"bad drag mode", func(c *Config) { c.Cropper.DragMode = "spin" }},
		{"quality above one", func(c *Config) { c.Export.Quality = 1.5 }},
		{"negative max dimension", func(c *Config) { c.Export.MaxDimension = -1 }},
		{"empty archive name", func(c *Config) { c.Export.ArchiveName = "" }},
		{"zero settle timeout", func(c *Config) { c.Export.SettleTimeout = 0 }},
		{"negative thumbnail", func(c *Config) { c.Preview.ThumbnailSize = -4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvPrefix+"_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Cropper.AspectRatio = "16:9"
	cfg.Export.Quality = 0.5
	cfg.Export.SettleTimeout = 2 * time.Second
	cfg.Output.OutputDir = "/tmp/crops"
	require.NoError(t, cfg.SaveToFile(path))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvPrefix+"_EXPORT_QUALITY", "0.4")
	t.Setenv(EnvPrefix+"_CROPPER_ASPECT_RATIO", "square")
	t.Setenv(EnvPrefix+"_EXPORT_SETTLE_TIMEOUT", "750ms")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 0.4, cfg.Export.Quality)
	require.Equal(t, "square", cfg.Cropper.AspectRatio)
	require.Equal(t, 750*time.Millisecond, cfg.Export.SettleTimeout)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Cropper.AspectRatio = "portrait"
	cfg.Cropper.Movable = false
	cfg.Export.MaxDimension = 1024

	cc, err := cfg.CropperConfig()
	require.NoError(t, err)
	require.Equal(t, cropper.Portrait, cc.AspectRatio)
	require.False(t, cc.Movable)
	require.True(t, cc.Center)

	opts := cfg.ExportOptions()
	require.Equal(t, 1024, opts.MaxDimension)
	require.Equal(t, "cropped_images.zip", opts.ArchiveName)

	cfg.Cropper.AspectRatio = "bogus"
	_, err = cfg.CropperConfig()
	require.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	require.Equal(t, "config.toml", filepath.Base(GetConfigPath()))
}
