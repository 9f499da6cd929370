// mediadrop/config/config.go
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/shlex"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Eviction policies for stored artifacts.
const (
	EvictionSweep     = "sweep"      // artifacts live until the periodic sweep reaps them
	EvictionServeOnce = "serve-once" // a successful serve shortens expiry to ServeGrace
)

// Filename strategies.
const (
	NameSanitize  = "sanitize"
	NameRandomize = "randomize"
)

type Config struct {
	YTDLPBin       string        `mapstructure:"YTDLP_BIN"`
	ExtraArgs      string        `mapstructure:"EXTRA_ARGS"`
	FormatVideo    string        `mapstructure:"FORMAT_VIDEO"`
	FormatAudio    string        `mapstructure:"FORMAT_AUDIO"`
	ExtractTimeout time.Duration `mapstructure:"EXTRACT_TIMEOUT"` // 0 means no timeout

	ArtifactTTL    time.Duration `mapstructure:"ARTIFACT_TTL"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	EvictionPolicy string        `mapstructure:"EVICTION_POLICY"`
	ServeGrace     time.Duration `mapstructure:"SERVE_GRACE"`
	NameStrategy   string        `mapstructure:"NAME_STRATEGY"`
	StorageDir     string        `mapstructure:"STORAGE_DIR"`

	MaxConcurrency   int     `mapstructure:"MAX_CONCURRENCY"`
	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`

	Port    string `mapstructure:"PORT"`
	BaseURL string `mapstructure:"BASE"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Set default values as strings, the hooks will handle them.
	vp.SetDefault("YTDLP_BIN", "yt-dlp")
	vp.SetDefault("EXTRA_ARGS", "")
	vp.SetDefault("FORMAT_VIDEO", "bestvideo*+bestaudio/best")
	vp.SetDefault("FORMAT_AUDIO", "bestaudio/best")
	vp.SetDefault("EXTRACT_TIMEOUT", "0s")
	vp.SetDefault("ARTIFACT_TTL", "5m")
	vp.SetDefault("SWEEP_INTERVAL", "1m")
	vp.SetDefault("EVICTION_POLICY", EvictionSweep)
	vp.SetDefault("SERVE_GRACE", "10s")
	vp.SetDefault("NAME_STRATEGY", NameSanitize)
	vp.SetDefault("STORAGE_DIR", "")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("THROTTLE_CPU", 50.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")

	// Load from config file
	vp.SetConfigName("mediadrop_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/mediadrop/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	vp.SetEnvPrefix("MEDIADROP")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.EvictionPolicy {
	case EvictionSweep, EvictionServeOnce:
	default:
		return fmt.Errorf("unknown eviction policy %q", c.EvictionPolicy)
	}

	switch c.NameStrategy {
	case NameSanitize, NameRandomize:
	default:
		return fmt.Errorf("unknown filename strategy %q", c.NameStrategy)
	}

	// Fail fast on an unparseable passthrough fragment rather than at job time.
	if _, err := c.ExtraYTDLPArgs(); err != nil {
		return err
	}

	return nil
}

// ExtraYTDLPArgs splits the configured passthrough fragment into argv form.
// Splitting is done without a shell, so metacharacters carry no meaning.
func (c *Config) ExtraYTDLPArgs() ([]string, error) {
	if c.ExtraArgs == "" {
		return nil, nil
	}
	args, err := shlex.Split(c.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid EXTRA_ARGS syntax: %w", err)
	}
	return args, nil
}
