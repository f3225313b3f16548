package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Agency   AgencyConfig   `yaml:"agency" mapstructure:"agency"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ModelConfig configures the accessibility model.
type ModelConfig struct {
	Mode         string   `yaml:"mode" mapstructure:"mode" validate:"oneof=drive walk bike"`
	UpperMinutes float64  `yaml:"upper_minutes" mapstructure:"upper_minutes" validate:"gt=0"`
	Policy       string   `yaml:"policy" mapstructure:"policy" validate:"oneof=last any"`
	Workers      int      `yaml:"workers" mapstructure:"workers" validate:"gte=0"`
	Subset       []string `yaml:"subset" mapstructure:"subset"`
	ColumnsFile  string   `yaml:"columns_file" mapstructure:"columns_file"`
}

// ProviderConfig selects and configures the travel time provider.
type ProviderConfig struct {
	Kind         string     `yaml:"kind" mapstructure:"kind" validate:"oneof=matrix sqlite crowflies osrm"`
	MatrixFile   string     `yaml:"matrix_file" mapstructure:"matrix_file"`
	MatrixFormat string     `yaml:"matrix_format" mapstructure:"matrix_format" validate:"oneof=long wide"`
	MatrixDB     string     `yaml:"matrix_db" mapstructure:"matrix_db"`
	BBox         []float64  `yaml:"bbox" mapstructure:"bbox"`
	OSRM         OSRMConfig `yaml:"osrm" mapstructure:"osrm"`
}

// OSRMConfig holds settings for an OSRM table service.
type OSRMConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=0"`
}

// OutputConfig configures report export.
type OutputConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	Format        string `yaml:"format" mapstructure:"format" validate:"oneof=csv xlsx"`
	UnknownMarker string `yaml:"unknown_marker" mapstructure:"unknown_marker"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AgencyConfig configures the agency linking tool.
type AgencyConfig struct {
	LinkThreshold float64 `yaml:"link_threshold" mapstructure:"link_threshold" validate:"gte=0,lte=1"`
	GeocodeURL    string  `yaml:"geocode_url" mapstructure:"geocode_url"`
	GeocodeRPS    float64 `yaml:"geocode_rps" mapstructure:"geocode_rps" validate:"gte=0"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("model.mode", "walk")
	v.SetDefault("model.upper_minutes", 30)
	v.SetDefault("model.policy", "last")
	v.SetDefault("model.workers", 4)
	v.SetDefault("provider.kind", "matrix")
	v.SetDefault("provider.matrix_format", "wide")
	v.SetDefault("provider.osrm.base_url", "http://localhost:5000")
	v.SetDefault("provider.osrm.rate_per_sec", 20)
	v.SetDefault("provider.osrm.timeout_secs", 30)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.unknown_marker", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "access.db")
	v.SetDefault("agency.link_threshold", 0.34)
	v.SetDefault("agency.geocode_url", "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress")
	v.SetDefault("agency.geocode_rps", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct-level constraints and the settings required by the
// given command ("access", "matrix", "agencies", "serve").
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q (got %v)", fieldPath(fe), fe.Tag(), fe.Value()))
		}
	}

	switch mode {
	case "access":
		switch c.Provider.Kind {
		case "matrix":
			if c.Provider.MatrixFile == "" {
				problems = append(problems, "provider.matrix_file is required for provider kind matrix")
			}
		case "sqlite":
			if c.Provider.MatrixDB == "" {
				problems = append(problems, "provider.matrix_db is required for provider kind sqlite")
			}
		case "crowflies":
			if len(c.Provider.BBox) != 0 && len(c.Provider.BBox) != 4 {
				problems = append(problems, "provider.bbox must have 4 values (min_lon, min_lat, max_lon, max_lat)")
			}
		case "osrm":
			if c.Provider.OSRM.BaseURL == "" {
				problems = append(problems, "provider.osrm.base_url is required for provider kind osrm")
			}
		}
	case "matrix":
		if c.Provider.MatrixDB == "" {
			problems = append(problems, "provider.matrix_db is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port must be 1-65535 (got %d)", c.Server.Port))
		}
		if c.Store.Driver == "none" {
			problems = append(problems, "store.driver must be sqlite or postgres to serve runs")
		}
	}

	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required unless store.driver is none")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// fieldPath turns "Config.Model.UpperMinutes" into "Model.UpperMinutes".
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
