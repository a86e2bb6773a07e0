package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/menta2k/carvision/pkg/cropper"
	"github.com/menta2k/carvision/pkg/storage"
	"github.com/menta2k/carvision/pkg/types"
)

// EnvPrefix is prepended to environment overrides, e.g. CARVISION_VISION_MODEL
const EnvPrefix = "CARVISION"

// Config holds the application configuration
type Config struct {
	Vision    VisionConfig    `yaml:"vision"    mapstructure:"vision"`
	Crop      CropConfig      `yaml:"crop"      mapstructure:"crop"`
	Documents DocumentsConfig `yaml:"documents" mapstructure:"documents"`
	Objects   ObjectsConfig   `yaml:"objects"   mapstructure:"objects"`
	Upload    UploadConfig    `yaml:"upload"    mapstructure:"upload"`
	Log       LogConfig       `yaml:"log"       mapstructure:"log"`
}

// VisionConfig selects the model backend and how images are sent to it
type VisionConfig struct {
	Backend     string `yaml:"backend"      mapstructure:"backend"`
	URL         string `yaml:"url"          mapstructure:"url"`
	Model       string `yaml:"model"        mapstructure:"model"`
	APIKey      string `yaml:"api_key"      mapstructure:"api_key"`
	Prompt      string `yaml:"prompt"       mapstructure:"prompt"`
	SendFormat  string `yaml:"send_format"  mapstructure:"send_format"`
	SendSize    int    `yaml:"send_size"    mapstructure:"send_size"`
	SendQuality int    `yaml:"send_quality" mapstructure:"send_quality"`
}

// CropConfig holds the crop window geometry in screen points
type CropConfig struct {
	WindowWidth    float64 `yaml:"window_width"    mapstructure:"window_width"`
	WindowHeight   float64 `yaml:"window_height"   mapstructure:"window_height"`
	ScreenWidth    float64 `yaml:"screen_width"    mapstructure:"screen_width"`
	ScreenHeight   float64 `yaml:"screen_height"   mapstructure:"screen_height"`
	MagnifyDamping float64 `yaml:"magnify_damping" mapstructure:"magnify_damping"`
	MinImageSize   int     `yaml:"min_image_size"  mapstructure:"min_image_size"`
}

// DocumentsConfig selects where car records are kept
type DocumentsConfig struct {
	Driver   string `yaml:"driver"    mapstructure:"driver"`
	Dir      string `yaml:"dir"       mapstructure:"dir"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	RedisKey string `yaml:"redis_key" mapstructure:"redis_key"`
}

// ObjectsConfig selects where car images are kept
type ObjectsConfig struct {
	Driver string           `yaml:"driver" mapstructure:"driver"`
	Dir    string           `yaml:"dir"    mapstructure:"dir"`
	S3     storage.S3Config `yaml:"s3"     mapstructure:"s3"`
}

// UploadConfig controls the format images are stored in
type UploadConfig struct {
	Format   string `yaml:"format"   mapstructure:"format"`
	Quality  int    `yaml:"quality"  mapstructure:"quality"`
	Lossless bool   `yaml:"lossless" mapstructure:"lossless"`
}

// LogConfig controls logrus output
type LogConfig struct {
	Level  string `yaml:"level"  mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Vision: VisionConfig{
			Backend:     "ollama",
			Model:       "qwen2.5vl:7b",
			SendFormat:  "jpg",
			SendSize:    1024,
			SendQuality: 85,
		},
		Crop: CropConfig{
			WindowWidth:    300,
			WindowHeight:   225,
			ScreenWidth:    393,
			ScreenHeight:   852,
			MagnifyDamping: cropper.DefaultMagnifyDamping,
			MinImageSize:   16,
		},
		Documents: DocumentsConfig{
			Driver:   "local",
			Dir:      "./data/cars",
			RedisURL: "redis://localhost:6379/0",
			RedisKey: storage.DefaultHashKey,
		},
		Objects: ObjectsConfig{
			Driver: "local",
			Dir:    "./data/images",
			S3: storage.S3Config{
				Region: "us-east-1",
			},
		},
		Upload: UploadConfig{
			Format:  "jpg",
			Quality: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setValues registers every key of c on v. Keys must be known to viper for
// environment overrides to reach Unmarshal.
func setValues(v *viper.Viper, c *Config) {
	values := map[string]interface{}{
		"vision.backend":      c.Vision.Backend,
		"vision.url":          c.Vision.URL,
		"vision.model":        c.Vision.Model,
		"vision.api_key":      c.Vision.APIKey,
		"vision.prompt":       c.Vision.Prompt,
		"vision.send_format":  c.Vision.SendFormat,
		"vision.send_size":    c.Vision.SendSize,
		"vision.send_quality": c.Vision.SendQuality,

		"crop.window_width":    c.Crop.WindowWidth,
		"crop.window_height":   c.Crop.WindowHeight,
		"crop.screen_width":    c.Crop.ScreenWidth,
		"crop.screen_height":   c.Crop.ScreenHeight,
		"crop.magnify_damping": c.Crop.MagnifyDamping,
		"crop.min_image_size":  c.Crop.MinImageSize,

		"documents.driver":    c.Documents.Driver,
		"documents.dir":       c.Documents.Dir,
		"documents.redis_url": c.Documents.RedisURL,
		"documents.redis_key": c.Documents.RedisKey,

		"objects.driver":                     c.Objects.Driver,
		"objects.dir":                        c.Objects.Dir,
		"objects.s3.bucket":                  c.Objects.S3.Bucket,
		"objects.s3.region":                  c.Objects.S3.Region,
		"objects.s3.endpoint":                c.Objects.S3.Endpoint,
		"objects.s3.use_path_style_endpoint": c.Objects.S3.UsePathStyleEndpoint,
		"objects.s3.access_key":              c.Objects.S3.AccessKey,
		"objects.s3.secret_key":              c.Objects.S3.SecretKey,
		"objects.s3.public_url":              c.Objects.S3.PublicURL,
		"objects.s3.acl":                     c.Objects.S3.ACL,

		"upload.format":   c.Upload.Format,
		"upload.quality":  c.Upload.Quality,
		"upload.lossless": c.Upload.Lossless,

		"log.level":  c.Log.Level,
		"log.format": c.Log.Format,
	}
	for key, value := range values {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration from an optional file (YAML, JSON or TOML)
// and CARVISION_* environment variables, on top of Default()
func Load(filename string) (*Config, error) {
	v := viper.New()
	setValues(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveToFile saves configuration to a file. The extension picks the format.
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setValues(v, c)
	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Vision.Backend {
	case "ollama", "llamacpp":
	case "gemini":
		if c.Vision.APIKey == "" {
			return fmt.Errorf("vision.api_key is required for the gemini backend")
		}
	default:
		return fmt.Errorf("vision.backend must be one of ollama, llamacpp, gemini (got %q)", c.Vision.Backend)
	}

	if c.Vision.Model == "" {
		return fmt.Errorf("vision.model cannot be empty")
	}

	if !oneOf(c.Vision.SendFormat, "jpg", "jpeg", "png") {
		return fmt.Errorf("vision.send_format must be jpg or png")
	}

	if c.Vision.SendSize < 0 {
		return fmt.Errorf("vision.send_size cannot be negative")
	}

	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	if c.Crop.WindowWidth <= 0 || c.Crop.WindowHeight <= 0 {
		return fmt.Errorf("crop window must have a positive size")
	}

	if c.Crop.ScreenWidth <= 0 || c.Crop.ScreenHeight <= 0 {
		return fmt.Errorf("crop screen must have a positive size")
	}

	if c.Crop.MagnifyDamping <= 0 || c.Crop.MagnifyDamping > 1 {
		return fmt.Errorf("crop.magnify_damping must be between 0 and 1")
	}

	if c.Crop.MinImageSize < 1 {
		return fmt.Errorf("crop.min_image_size must be positive")
	}

	switch c.Documents.Driver {
	case "local":
		if c.Documents.Dir == "" {
			return fmt.Errorf("documents.dir is required for the local driver")
		}
	case "redis":
		if c.Documents.RedisURL == "" {
			return fmt.Errorf("documents.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("documents.driver must be local or redis (got %q)", c.Documents.Driver)
	}

	switch c.Objects.Driver {
	case "local":
		if c.Objects.Dir == "" {
			return fmt.Errorf("objects.dir is required for the local driver")
		}
	case "s3":
		if c.Objects.S3.Bucket == "" {
			return fmt.Errorf("objects.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("objects.driver must be local or s3 (got %q)", c.Objects.Driver)
	}

	if !oneOf(c.Upload.Format, "jpg", "jpeg", "png", "webp") {
		return fmt.Errorf("upload.format must be jpg, png or webp")
	}

	if c.Upload.Quality < 1 || c.Upload.Quality > 100 {
		return fmt.Errorf("upload.quality must be between 1 and 100")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if !oneOf(c.Log.Format, "text", "json") {
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// CropperConfig returns the geometry used by the crop transformer
func (c *Config) CropperConfig() cropper.Config {
	return cropper.Config{
		Window:         cropper.Size{Width: c.Crop.WindowWidth, Height: c.Crop.WindowHeight},
		Screen:         cropper.Size{Width: c.Crop.ScreenWidth, Height: c.Crop.ScreenHeight},
		MagnifyDamping: c.Crop.MagnifyDamping,
	}
}

// ProcessingOptions returns the send and upload image settings
func (c *Config) ProcessingOptions() types.ProcessingOptions {
	return types.ProcessingOptions{
		SendFormat:  c.Vision.SendFormat,
		SendSize:    c.Vision.SendSize,
		SendQuality: c.Vision.SendQuality,
		Format:      c.Upload.Format,
		Quality:     c.Upload.Quality,
		Lossless:    c.Upload.Lossless,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./carvision.yaml"
	}
	return filepath.Join(home, ".config", "carvision", "config.yaml")
}

func oneOf(value string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(value, o) {
			return true
		}
	}
	return false
}
