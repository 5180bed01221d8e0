package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/menta2k/image-cropper/pkg/cropper"
	"github.com/menta2k/image-cropper/pkg/export"
)

// EnvPrefix prefixes every environment override, e.g. IMAGECROPPER_EXPORT_QUALITY.
const EnvPrefix = "IMAGECROPPER"

// Config holds the application configuration
type Config struct {
	Cropper CropperConfig `mapstructure:"cropper"`
	Export  ExportConfig  `mapstructure:"export"`
	Preview PreviewConfig `mapstructure:"preview"`
	Output  OutputConfig  `mapstructure:"output"`
}

// CropperConfig holds the crop box construction options
type CropperConfig struct {
	AspectRatio  string  `mapstructure:"aspect_ratio"`
	AutoCropArea float64 `mapstructure:"auto_crop_area"`
	Movable      bool    `mapstructure:"movable"`
	Resizable    bool    `mapstructure:"resizable"`
	DragMode     string  `mapstructure:"drag_mode"`
}

// ExportConfig holds encoding and archive settings
type ExportConfig struct {
	Quality       float64       `mapstructure:"quality"`
	MaxDimension  int           `mapstructure:"max_dimension"`
	ArchiveName   string        `mapstructure:"archive_name"`
	FolderName    string        `mapstructure:"folder_name"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`
}

// PreviewConfig holds preview strip settings
type PreviewConfig struct {
	ThumbnailSize int `mapstructure:"thumbnail_size"`
}

// OutputConfig holds where single crops and archives are written
type OutputConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	exp := export.DefaultOptions()
	return &Config{
		Cropper: CropperConfig{
			AspectRatio:  cropper.Free.Name,
			AutoCropArea: 0.8,
			Movable:      true,
			Resizable:    true,
			DragMode:     string(cropper.DragMove),
		},
		Export: ExportConfig{
			Quality:       0.92,
			MaxDimension:  0,
			ArchiveName:   exp.ArchiveName,
			FolderName:    exp.FolderName,
			SettleTimeout: exp.SettleTimeout,
		},
		Preview: PreviewConfig{
			ThumbnailSize: 96,
		},
		Output: OutputConfig{
			OutputDir: "./output",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("cropper.aspect_ratio", d.Cropper.AspectRatio)
	v.SetDefault("cropper.auto_crop_area", d.Cropper.AutoCropArea)
	v.SetDefault("cropper.movable", d.Cropper.Movable)
	v.SetDefault("cropper.resizable", d.Cropper.Resizable)
	v.SetDefault("cropper.drag_mode", d.Cropper.DragMode)
	v.SetDefault("export.quality", d.Export.Quality)
	v.SetDefault("export.max_dimension", d.Export.MaxDimension)
	v.SetDefault("export.archive_name", d.Export.ArchiveName)
	v.SetDefault("export.folder_name", d.Export.FolderName)
	v.SetDefault("export.settle_timeout", d.Export.SettleTimeout)
	v.SetDefault("preview.thumbnail_size", d.Preview.ThumbnailSize)
	v.SetDefault("output.output_dir", d.Output.OutputDir)
}

// Load reads configuration from defaults, an optional file and the
// environment. An empty path falls back to IMAGECROPPER_CONFIG, then to
// GetConfigPath; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = GetConfigPath()
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &c, nil
}

// SaveToFile saves configuration to a file; the format follows the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("cropper.aspect_ratio", c.Cropper.AspectRatio)
	v.Set("cropper.auto_crop_area", c.Cropper.AutoCropArea)
	v.Set("cropper.movable", c.Cropper.Movable)
	v.Set("cropper.resizable", c.Cropper.Resizable)
	v.Set("cropper.drag_mode", c.Cropper.DragMode)
	v.Set("export.quality", c.Export.Quality)
	v.Set("export.max_dimension", c.Export.MaxDimension)
	v.Set("export.archive_name", c.Export.ArchiveName)
	v.Set("export.folder_name", c.Export.FolderName)
	v.Set("export.settle_timeout", c.Export.SettleTimeout.String())
	v.Set("preview.thumbnail_size", c.Preview.ThumbnailSize)
	v.Set("output.output_dir", c.Output.OutputDir)

	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := cropper.ParseAspectRatio(c.Cropper.AspectRatio); err != nil {
		return fmt.Errorf("cropper.aspect_ratio: %w", err)
	}

	if c.Cropper.AutoCropArea <= 0 || c.Cropper.AutoCropArea > 1 {
		return fmt.Errorf("cropper.auto_crop_area must be in (0, 1]")
	}

	switch cropper.DragMode(c.Cropper.DragMode) {
	case cropper.DragMove, cropper.DragCrop, cropper.DragNone:
	default:
		return fmt.Errorf("cropper.drag_mode must be one of move, crop, none")
	}

	if c.Export.Quality < 0 || c.Export.Quality > 1 {
		return fmt.Errorf("export.quality must be between 0 and 1")
	}

	if c.Export.MaxDimension < 0 {
		return fmt.Errorf("export.max_dimension cannot be negative")
	}

	if c.Export.ArchiveName == "" {
		return fmt.Errorf("export.archive_name cannot be empty")
	}

	if c.Export.SettleTimeout <= 0 {
		return fmt.Errorf("export.settle_timeout must be positive")
	}

	if c.Preview.ThumbnailSize < 0 {
		return fmt.Errorf("preview.thumbnail_size cannot be negative")
	}

	return nil
}

// CropperConfig converts the cropper section into crop box options.
func (c *Config) CropperConfig() (cropper.Config, error) {
	ratio, err := cropper.ParseAspectRatio(c.Cropper.AspectRatio)
	if err != nil {
		return cropper.Config{}, err
	}
	cfg := cropper.DefaultConfig()
	cfg.AspectRatio = ratio
	cfg.AutoCropArea = c.Cropper.AutoCropArea
	cfg.Movable = c.Cropper.Movable
	cfg.Resizable = c.Cropper.Resizable
	cfg.DragMode = cropper.DragMode(c.Cropper.DragMode)
	return cfg, nil
}

// ExportOptions converts the export section into pipeline options.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		ArchiveName:   c.Export.ArchiveName,
		FolderName:    c.Export.FolderName,
		MaxDimension:  c.Export.MaxDimension,
		SettleTimeout: c.Export.SettleTimeout,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.toml"
	}
	return filepath.Join(home, ".config", "image-cropper", "config.toml")
}
