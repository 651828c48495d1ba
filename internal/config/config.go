// Package config loads the immutable per-invocation configuration from a
// YAML file, with secrets taken from the environment (a .env file is
// honored when present). Components receive the loaded struct at
// construction; there are no ambient globals.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Paths struct {
	Downloads    string `yaml:"downloads"`
	Processed    string `yaml:"processed"`
	TrackingFile string `yaml:"tracking_file"`
	Logs         string `yaml:"logs"`
}

type Segments struct {
	LengthSeconds  float64 `yaml:"length_seconds"`
	MinTailSeconds float64 `yaml:"min_tail_seconds"`
	MaxPerItem     int     `yaml:"max_per_item"`
}

type RunLimits struct {
	MaxUploadsPerRun   int `yaml:"max_uploads_per_run"`
	MaxSyncPerRun      int `yaml:"max_sync_per_run"`
	ChainDepth         int `yaml:"chain_depth"`
	StepTimeoutSeconds int `yaml:"step_timeout_seconds"`
}

type Catalog struct {
	Mode         string `yaml:"mode"` // ytdlp | html
	MinPublished string `yaml:"min_published,omitempty"`
}

type Cache struct {
	Backend  string `yaml:"backend"` // fsdir | gridfs
	Dir      string `yaml:"dir"`
	MongoURI string `yaml:"-"` // SHORTS_MONGO_URI
	Database string `yaml:"database"`
	Bucket   string `yaml:"bucket"`
}

type Origin struct {
	CookiesPath    string `yaml:"cookies_path"`
	Quality        string `yaml:"quality"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MinSourceBytes int64  `yaml:"min_source_bytes"`
}

type Render struct {
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FontFile string `yaml:"font_file,omitempty"`
}

type Publish struct {
	Command             []string `yaml:"command"`
	TitleMaxLen         int      `yaml:"title_max_len"`
	TitleSuffix         string   `yaml:"title_suffix"`
	DescriptionTemplate string   `yaml:"description_template"`
	Tags                []string `yaml:"tags"`
	Privacy             string   `yaml:"privacy"`
	CategoryID          string   `yaml:"category_id"`
}

type Config struct {
	ChannelURL string    `yaml:"channel_url"`
	Paths      Paths     `yaml:"paths"`
	Segments   Segments  `yaml:"segments"`
	Run        RunLimits `yaml:"run"`
	Catalog    Catalog   `yaml:"catalog"`
	Cache      Cache     `yaml:"cache"`
	Origin     Origin    `yaml:"origin"`
	Render     Render    `yaml:"render"`
	Publish    Publish   `yaml:"publish"`
}

// Load reads the config file, fills defaults, applies environment secrets
// and validates. Invalid configuration aborts the run before any work.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg = Normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration before any file is applied.
func Default() Config {
	return Normalize(Config{})
}

// Normalize fills zero values with defaults.
func Normalize(cfg Config) Config {
	if cfg.Paths.Downloads == "" {
		cfg.Paths.Downloads = "downloads"
	}
	if cfg.Paths.Processed == "" {
		cfg.Paths.Processed = "processed"
	}
	if cfg.Paths.TrackingFile == "" {
		cfg.Paths.TrackingFile = "tracking.json"
	}
	if cfg.Paths.Logs == "" {
		cfg.Paths.Logs = "logs"
	}
	if cfg.Segments.LengthSeconds <= 0 {
		cfg.Segments.LengthSeconds = 60
	}
	if cfg.Segments.MinTailSeconds < 0 {
		cfg.Segments.MinTailSeconds = 0
	} else if cfg.Segments.MinTailSeconds == 0 {
		cfg.Segments.MinTailSeconds = 10
	}
	if cfg.Segments.MaxPerItem <= 0 {
		cfg.Segments.MaxPerItem = 10
	}
	if cfg.Run.MaxUploadsPerRun <= 0 {
		cfg.Run.MaxUploadsPerRun = 3
	}
	if cfg.Run.MaxSyncPerRun <= 0 {
		cfg.Run.MaxSyncPerRun = 5
	}
	if cfg.Run.ChainDepth < 0 {
		cfg.Run.ChainDepth = 0
	} else if cfg.Run.ChainDepth == 0 {
		cfg.Run.ChainDepth = 1
	}
	if cfg.Run.StepTimeoutSeconds <= 0 {
		cfg.Run.StepTimeoutSeconds = 900
	}
	if cfg.Catalog.Mode == "" {
		cfg.Catalog.Mode = "ytdlp"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "fsdir"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "cache"
	}
	if cfg.Cache.Database == "" {
		cfg.Cache.Database = "shorts_pipeline"
	}
	if cfg.Cache.MongoURI == "" {
		cfg.Cache.MongoURI = os.Getenv("SHORTS_MONGO_URI")
	}
	if cfg.Origin.Quality == "" {
		cfg.Origin.Quality = "1080p"
	}
	if cfg.Origin.TimeoutSeconds <= 0 {
		cfg.Origin.TimeoutSeconds = 1800
	}
	if cfg.Origin.MinSourceBytes <= 0 {
		cfg.Origin.MinSourceBytes = 1 << 20
	}
	if cfg.Origin.CookiesPath == "" {
		cfg.Origin.CookiesPath = os.Getenv("SHORTS_COOKIES_PATH")
	}
	if cfg.Render.Width <= 0 {
		cfg.Render.Width = 1080
	}
	if cfg.Render.Height <= 0 {
		cfg.Render.Height = 1920
	}
	if cfg.Publish.TitleMaxLen <= 0 {
		cfg.Publish.TitleMaxLen = 95
	}
	if cfg.Publish.DescriptionTemplate == "" {
		cfg.Publish.DescriptionTemplate = "{title} - Part {part}/{total}\nOriginal: {url}"
	}
	if cfg.Publish.Privacy == "" {
		cfg.Publish.Privacy = "public"
	}
	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ChannelURL) == "" {
		return fmt.Errorf("channel_url is required")
	}
	switch c.Catalog.Mode {
	case "ytdlp", "html":
	default:
		return fmt.Errorf("catalog mode %q is not supported (expected ytdlp or html)", c.Catalog.Mode)
	}
	switch c.Cache.Backend {
	case "fsdir":
	case "gridfs":
		if strings.TrimSpace(c.Cache.MongoURI) == "" {
			return fmt.Errorf("cache backend gridfs requires SHORTS_MONGO_URI")
		}
	default:
		return fmt.Errorf("cache backend %q is not supported (expected fsdir or gridfs)", c.Cache.Backend)
	}
	if len(c.Publish.Command) == 0 {
		return fmt.Errorf("publish command is required")
	}
	if c.Segments.MinTailSeconds > c.Segments.LengthSeconds {
		return fmt.Errorf("min_tail_seconds must not exceed length_seconds")
	}
	return nil
}
