package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const appName = "notes_browser"

// Config is the configuration for the application
type Config struct {
	RootPath   string   `mapstructure:"root_path"`  // Root path of the notes.
	Editor     string   `mapstructure:"editor"`     // Editor to open the notes with
	Extensions []string `mapstructure:"extensions"` // Extensions of notes to be indexed
	Recursive  bool     `mapstructure:"recursive"`  // Include notes in subdirectories

	TitleWeight          float64 `mapstructure:"search_title_weight"`
	TextWeight           float64 `mapstructure:"search_text_weight"`
	MinQueryLength       int     `mapstructure:"min_query_length"`
	MaxResults           int     `mapstructure:"max_results"`
	ContentExcerptLength int     `mapstructure:"content_excerpt_length"`
	TitleExcerptLength   int     `mapstructure:"title_excerpt_length"`
	QueryCacheSize       int     `mapstructure:"query_cache_size"`

	FallbackTitle  bool   `mapstructure:"fallback_title"`   // Use the file name when a note has no title
	OnParseFailure string `mapstructure:"on_parse_failure"` // "evict" or "keep"
	Stylesheet     string `mapstructure:"stylesheet"`       // CSS file for rendered sections, empty for the built in one
	IndexPath      string `mapstructure:"index_path"`       // Directory of the search index, empty keeps it in memory

	LogPath  string `mapstructure:"log_path"`
	LogLevel string `mapstructure:"log_level"`
}

// ConfigDir returns the directory holding the config file and the log.
func ConfigDir() string {
	homedir, _ := os.UserHomeDir()
	return filepath.Join(homedir, ".config", appName)
}

func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	cwd, _ := os.Getwd()
	v.SetDefault("root_path", cwd)
	v.SetDefault("editor", "vi")
	v.SetDefault("extensions", []string{".md"})
	v.SetDefault("recursive", false)
	v.SetDefault("search_title_weight", 3.0)
	v.SetDefault("search_text_weight", 1.0)
	v.SetDefault("min_query_length", 2)
	v.SetDefault("max_results", 10)
	v.SetDefault("content_excerpt_length", 60)
	v.SetDefault("title_excerpt_length", 80)
	v.SetDefault("query_cache_size", 128)
	v.SetDefault("fallback_title", false)
	v.SetDefault("on_parse_failure", "evict")
	v.SetDefault("stylesheet", "")
	v.SetDefault("index_path", "")
	v.SetDefault("log_path", filepath.Join(ConfigDir(), "debug.log"))
	v.SetDefault("log_level", "info")
}

// LoadConfig reads the config file at path, or the default one when path
// is empty. A missing default file leaves every setting at its default.
// Settings can be overridden with NOTES_BROWSER_<KEY> variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to parse the config file %s: %w", path, err)
	}
	config.RootPath = expandHome(config.RootPath)
	config.IndexPath = expandHome(config.IndexPath)
	config.Stylesheet = expandHome(config.Stylesheet)
	config.LogPath = expandHome(config.LogPath)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings that have a restricted range.
func (c *Config) Validate() error {
	var errs []error
	if c.TitleWeight <= 0 {
		errs = append(errs, fmt.Errorf("search_title_weight must be positive, got %v", c.TitleWeight))
	}
	if c.TextWeight <= 0 {
		errs = append(errs, fmt.Errorf("search_text_weight must be positive, got %v", c.TextWeight))
	}
	if c.MinQueryLength < 1 {
		errs = append(errs, fmt.Errorf("min_query_length must be at least 1, got %d", c.MinQueryLength))
	}
	if c.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("max_results must be at least 1, got %d", c.MaxResults))
	}
	if c.ContentExcerptLength < 10 {
		errs = append(errs, fmt.Errorf("content_excerpt_length must be at least 10, got %d", c.ContentExcerptLength))
	}
	if c.TitleExcerptLength < 10 {
		errs = append(errs, fmt.Errorf("title_excerpt_length must be at least 10, got %d", c.TitleExcerptLength))
	}
	if c.OnParseFailure != "evict" && c.OnParseFailure != "keep" {
		errs = append(errs, fmt.Errorf("on_parse_failure must be evict or keep, got %q", c.OnParseFailure))
	}
	if len(c.Extensions) == 0 {
		errs = append(errs, errors.New("extensions must not be empty"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homedir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homedir, strings.TrimPrefix(path, "~"))
}
