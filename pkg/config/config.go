package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DetailLevel controls how much of a request/response is rendered in summaries.
type DetailLevel int

const (
	Low DetailLevel = iota
	Medium
	High
)

func (d DetailLevel) String() string {
	switch d {
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "low"
	}
}

// ParseDetailLevel accepts low, medium or high (case insensitive).
func ParseDetailLevel(s string) (DetailLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	}
	return Low, fmt.Errorf("unknown detail level %q", s)
}

type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
}

// URL returns the proxy address or "" when the proxy is disabled.
func (p ProxyConfig) URL() string {
	if !p.Enabled || p.Host == "" {
		return ""
	}
	if p.Port == "" {
		return "http://" + p.Host
	}
	return fmt.Sprintf("http://%s:%s", p.Host, p.Port)
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TinkConfig struct {
	URL          string `mapstructure:"url"`
	ConnectorURL string `mapstructure:"connector_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AllowDelete  bool   `mapstructure:"allow_delete"`
}

type CastlightConfig struct {
	URL             string        `mapstructure:"url"`
	SubscriptionKey string        `mapstructure:"subscription_key"`
	APIVersion      string        `mapstructure:"api_version"`
	Wait            time.Duration `mapstructure:"wait"`
}

type CSVConfig struct {
	Delimiter string `mapstructure:"delimiter"`
}

type FilesConfig struct {
	InPattern  string `mapstructure:"in_pattern"`
	OutPattern string `mapstructure:"out_pattern"`
}

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	Detail    string          `mapstructure:"detail_level"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFile   string          `mapstructure:"log_file"`
	DryRun    bool            `mapstructure:"dry_run"`
	CSV       CSVConfig       `mapstructure:"csv"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Tink      TinkConfig      `mapstructure:"tink"`
	Castlight CastlightConfig `mapstructure:"castlight"`
	Files     FilesConfig     `mapstructure:"files"`

	DetailLevel DetailLevel `mapstructure:"-"`
}

// Delimiter returns the first rune of the configured CSV delimiter.
func (c *Config) Delimiter() rune {
	for _, r := range c.CSV.Delimiter {
		return r
	}
	return ';'
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so that environment-only values are unmarshalled.
	v.SetDefault("detail_level", "low")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("dry_run", false)
	v.SetDefault("csv.delimiter", ";")
	v.SetDefault("http.timeout", 0)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.host", "")
	v.SetDefault("proxy.port", "8080")
	v.SetDefault("tink.url", "https://api.tink.se")
	v.SetDefault("tink.connector_url", "https://api.tink.se/connector")
	v.SetDefault("tink.client_id", "")
	v.SetDefault("tink.client_secret", "")
	v.SetDefault("tink.allow_delete", false)
	v.SetDefault("castlight.url", "https://gateway.castlightfinancial.com")
	v.SetDefault("castlight.subscription_key", "")
	v.SetDefault("castlight.api_version", "v1")
	v.SetDefault("castlight.wait", 5*time.Second)
	v.SetDefault("files.in_pattern", "data/TinkReq*.csv")
	v.SetDefault("files.out_pattern", "data/TinkResp*.csv")
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"detail":        "detail_level",
	"log-level":     "log_level",
	"log-file":      "log_file",
	"dry-run":       "dry_run",
	"delimiter":     "csv.delimiter",
	"timeout":       "http.timeout",
	"proxy":         "proxy.host",
	"tink-url":      "tink.url",
	"castlight-api": "castlight.api_version",
	"allow-delete":  "tink.allow_delete",
}

// Default returns the configuration with every default applied and nothing else.
func Default() *Config {
	cfg, err := Build("", nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Build loads the configuration from (in increasing precedence) defaults, the
// YAML config file, a .env file, CATPOC_* environment variables and flags.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else if flags != nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if flags != nil {
		if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
		v.SetEnvPrefix("catpoc")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		if f := flags.Lookup("proxy"); f != nil && f.Changed {
			v.Set("proxy.enabled", true)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if host, port, ok := strings.Cut(cfg.Proxy.Host, ":"); ok {
		cfg.Proxy.Host, cfg.Proxy.Port = host, port
	}

	level, err := ParseDetailLevel(cfg.Detail)
	if err != nil {
		return nil, err
	}
	cfg.DetailLevel = level

	switch cfg.Castlight.APIVersion {
	case "v1", "v2":
	default:
		return nil, fmt.Errorf("unsupported castlight api version %q", cfg.Castlight.APIVersion)
	}

	return &cfg, nil
}
