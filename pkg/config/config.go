package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	httpclient "github.com/natserract/zcrm/pkg/http"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "ZOHOCRM"
	configFileName = "zcrm"
	configFileType = "yaml"

	KeyRefreshToken         = "refresh_token"
	KeyClientID             = "client_id"
	KeyClientSecret         = "client_secret"
	KeyHosting              = "hosting"
	KeyBaseURL              = "base_url"
	KeyAccountsURL          = "accounts_url"
	KeyTokenDir             = "token_dir"
	KeyDefaultUserName      = "default_user_name"
	KeyDefaultUserID        = "default_user_id"
	KeyHTTPTimeout          = "http_timeout"
	KeyRetryMaxTries        = "retry_max_tries"
	KeyRetryInitialInterval = "retry_initial_interval"
	KeyRetryMaxInterval     = "retry_max_interval"
	KeyRetryStatusCodes     = "retry_status_codes"
)

type Config struct {
	RefreshToken string
	ClientID     string
	ClientSecret string

	// Hosting selects the data centre (US, EU, IN, CN, AU, JP).
	Hosting string
	// BaseURL is the API root; empty means derived from Hosting.
	BaseURL string
	// AccountsURL overrides the OAuth host derived from Hosting.
	AccountsURL string
	TokenDir    string

	DefaultUserName string
	DefaultUserID   string

	HTTPTimeout          time.Duration
	RetryMaxTries        uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryStatusCodes     []int
}

// Load reads configuration from .env, ZOHOCRM_* environment variables and an
// optional zcrm.yaml in the working directory.
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile is Load with an explicit config file. A missing default
// config file is not an error; a missing explicit one is.
func LoadFromFile(path string) (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	defaults := httpclient.DefaultOptions()
	v.SetDefault(KeyHosting, "US")
	v.SetDefault(KeyTokenDir, os.TempDir())
	v.SetDefault(KeyHTTPTimeout, defaults.Timeout)
	v.SetDefault(KeyRetryMaxTries, defaults.MaxTries)
	v.SetDefault(KeyRetryInitialInterval, defaults.InitialInterval)
	v.SetDefault(KeyRetryMaxInterval, defaults.MaxInterval)
	v.SetDefault(KeyRetryStatusCodes, "500,502,503,504")
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	codes, err := parseStatusCodes(v.GetStringSlice(KeyRetryStatusCodes))
	if err != nil {
		return nil, err
	}

	return &Config{
		RefreshToken:         v.GetString(KeyRefreshToken),
		ClientID:             v.GetString(KeyClientID),
		ClientSecret:         v.GetString(KeyClientSecret),
		Hosting:              v.GetString(KeyHosting),
		BaseURL:              v.GetString(KeyBaseURL),
		AccountsURL:          v.GetString(KeyAccountsURL),
		TokenDir:             v.GetString(KeyTokenDir),
		DefaultUserName:      v.GetString(KeyDefaultUserName),
		DefaultUserID:        v.GetString(KeyDefaultUserID),
		HTTPTimeout:          v.GetDuration(KeyHTTPTimeout),
		RetryMaxTries:        v.GetUint(KeyRetryMaxTries),
		RetryInitialInterval: v.GetDuration(KeyRetryInitialInterval),
		RetryMaxInterval:     v.GetDuration(KeyRetryMaxInterval),
		RetryStatusCodes:     codes,
	}, nil
}

// parseStatusCodes accepts both a YAML list and a comma separated env value.
func parseStatusCodes(raw []string) ([]int, error) {
	var codes []int
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			code, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid %s entry %q: %w", KeyRetryStatusCodes, part, err)
			}
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (c *Config) Validate() error {
	if c.RefreshToken == "" {
		return fmt.Errorf("ZOHOCRM_REFRESH_TOKEN is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("ZOHOCRM_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("ZOHOCRM_CLIENT_SECRET is required")
	}
	if c.TokenDir == "" {
		return fmt.Errorf("ZOHOCRM_TOKEN_DIR is required")
	}
	// Hosting is checked against the known data centres by the CRM client
	return nil
}

// HTTPOptions converts the retry settings into transport options.
func (c *Config) HTTPOptions() httpclient.Options {
	return httpclient.Options{
		Timeout:          c.HTTPTimeout,
		MaxTries:         c.RetryMaxTries,
		InitialInterval:  c.RetryInitialInterval,
		MaxInterval:      c.RetryMaxInterval,
		RetryStatusCodes: c.RetryStatusCodes,
	}
}
