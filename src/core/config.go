package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port               string        `json:"port"`
	LogLevel           string        `json:"logLevel"`
	BlockInterval      time.Duration `json:"blockInterval"`
	RateLimitPerMinute int           `json:"rateLimitPerMinute"`
	TrustProxyHeaders  bool          `json:"trustProxyHeaders"`
	MaxBodySizeBytes   int64         `json:"maxBodySizeBytes"`
	DataDir            string        `json:"dataDir"`
	ShutdownTimeout    time.Duration `json:"shutdownTimeout"`
	NodeAuthSecret     string        `json:"-"`
	RequireNodeAuth    bool          `json:"requireNodeAuth"`
	EventLogSize       int           `json:"eventLogSize"`

	// Settlement parameters
	Asset               AssetID     `json:"asset"`
	MaxUpdateCount      uint32      `json:"maxUpdateCount"`
	UpdateStakingAmount Amount      `json:"updateStakingAmount"`
	ConfirmationPeriod  BlockNumber `json:"confirmationPeriod"`
	ShareRatio          Ratio       `json:"shareRatio"`
	SelfRatio           Ratio       `json:"selfRatio"`
	FeeRatio            Ratio       `json:"feeRatio"`
	ProxyRatio          Ratio       `json:"proxyRatio"`
	ProxyGracePeriod    BlockNumber `json:"proxyGracePeriod"`
	MinShareTrust       float64     `json:"minShareTrust"`
}

// Default values
const (
	DefaultPort                = "8080"
	DefaultLogLevel            = "info"
	DefaultBlockInterval       = 6 * time.Second
	DefaultRateLimitPerMinute  = 100
	DefaultMaxBodySizeBytes    = 1 << 20 // 1MB
	DefaultDataDir             = "./data"
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultAsset               = AssetID("REP")
	DefaultMaxUpdateCount      = 50
	DefaultUpdateStakingAmount = Amount(10)
	DefaultConfirmationPeriod  = BlockNumber(100)
	DefaultProxyGracePeriod    = BlockNumber(200)
	DefaultMinShareTrust       = 0.5
)

// Default sharing ratios: 20% to the trust network, 30% back to the target,
// 10% as the pathfinder fee; proxies keep 5% of what they settle.
var (
	DefaultShareRatio = RatioFromPercent(20)
	DefaultSelfRatio  = RatioFromPercent(30)
	DefaultFeeRatio   = RatioFromPercent(10)
	DefaultProxyRatio = RatioFromPercent(5)
)

// defaultConfig returns the built-in configuration
func defaultConfig() *Config {
	return &Config{
		Port:                DefaultPort,
		LogLevel:            DefaultLogLevel,
		BlockInterval:       DefaultBlockInterval,
		RateLimitPerMinute:  DefaultRateLimitPerMinute,
		MaxBodySizeBytes:    DefaultMaxBodySizeBytes,
		DataDir:             DefaultDataDir,
		ShutdownTimeout:     DefaultShutdownTimeout,
		EventLogSize:        DefaultEventLogSize,
		Asset:               DefaultAsset,
		MaxUpdateCount:      DefaultMaxUpdateCount,
		UpdateStakingAmount: DefaultUpdateStakingAmount,
		ConfirmationPeriod:  DefaultConfirmationPeriod,
		ShareRatio:          DefaultShareRatio,
		SelfRatio:           DefaultSelfRatio,
		FeeRatio:            DefaultFeeRatio,
		ProxyRatio:          DefaultProxyRatio,
		ProxyGracePeriod:    DefaultProxyGracePeriod,
		MinShareTrust:       DefaultMinShareTrust,
	}
}

// fileConfig mirrors Config for config files; nil fields keep the current value
type fileConfig struct {
	Port                *string  `yaml:"port" json:"port"`
	LogLevel            *string  `yaml:"log_level" json:"logLevel"`
	BlockInterval       *string  `yaml:"block_interval" json:"blockInterval"`
	RateLimitPerMinute  *int     `yaml:"rate_limit_per_minute" json:"rateLimitPerMinute"`
	TrustProxyHeaders   *bool    `yaml:"trust_proxy_headers" json:"trustProxyHeaders"`
	MaxBodySizeBytes    *int64   `yaml:"max_body_size_bytes" json:"maxBodySizeBytes"`
	DataDir             *string  `yaml:"data_dir" json:"dataDir"`
	ShutdownTimeout     *string  `yaml:"shutdown_timeout" json:"shutdownTimeout"`
	NodeAuthSecret      *string  `yaml:"node_auth_secret" json:"nodeAuthSecret"`
	RequireNodeAuth     *bool    `yaml:"require_node_auth" json:"requireNodeAuth"`
	EventLogSize        *int     `yaml:"event_log_size" json:"eventLogSize"`
	Asset               *string  `yaml:"asset" json:"asset"`
	MaxUpdateCount      *uint32  `yaml:"max_update_count" json:"maxUpdateCount"`
	UpdateStakingAmount *uint64  `yaml:"update_staking_amount" json:"updateStakingAmount"`
	ConfirmationPeriod  *uint64  `yaml:"confirmation_period" json:"confirmationPeriod"`
	ShareRatio          *float64 `yaml:"share_ratio" json:"shareRatio"`
	SelfRatio           *float64 `yaml:"self_ratio" json:"selfRatio"`
	FeeRatio            *float64 `yaml:"fee_ratio" json:"feeRatio"`
	ProxyRatio          *float64 `yaml:"proxy_ratio" json:"proxyRatio"`
	ProxyGracePeriod    *uint64  `yaml:"proxy_grace_period" json:"proxyGracePeriod"`
	MinShareTrust       *float64 `yaml:"min_share_trust" json:"minShareTrust"`
}

// LoadConfigFromFile reads a YAML or JSON (by .json extension) config file on
// top of the defaults
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return cfg.merge(fc)
}

func (cfg *Config) merge(fc fileConfig) error {
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.BlockInterval != nil {
		d, err := time.ParseDuration(*fc.BlockInterval)
		if err != nil {
			return fmt.Errorf("invalid block_interval: %w", err)
		}
		cfg.BlockInterval = d
	}
	if fc.RateLimitPerMinute != nil {
		cfg.RateLimitPerMinute = *fc.RateLimitPerMinute
	}
	if fc.TrustProxyHeaders != nil {
		cfg.TrustProxyHeaders = *fc.TrustProxyHeaders
	}
	if fc.MaxBodySizeBytes != nil {
		cfg.MaxBodySizeBytes = *fc.MaxBodySizeBytes
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.ShutdownTimeout != nil {
		d, err := time.ParseDuration(*fc.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if fc.NodeAuthSecret != nil {
		cfg.NodeAuthSecret = *fc.NodeAuthSecret
	}
	if fc.RequireNodeAuth != nil {
		cfg.RequireNodeAuth = *fc.RequireNodeAuth
	}
	if fc.EventLogSize != nil {
		cfg.EventLogSize = *fc.EventLogSize
	}
	if fc.Asset != nil {
		cfg.Asset = AssetID(*fc.Asset)
	}
	if fc.MaxUpdateCount != nil {
		cfg.MaxUpdateCount = *fc.MaxUpdateCount
	}
	if fc.UpdateStakingAmount != nil {
		cfg.UpdateStakingAmount = Amount(*fc.UpdateStakingAmount)
	}
	if fc.ConfirmationPeriod != nil {
		cfg.ConfirmationPeriod = BlockNumber(*fc.ConfirmationPeriod)
	}
	if fc.ProxyGracePeriod != nil {
		cfg.ProxyGracePeriod = BlockNumber(*fc.ProxyGracePeriod)
	}
	if fc.MinShareTrust != nil {
		cfg.MinShareTrust = *fc.MinShareTrust
	}

	ratios := []struct {
		name string
		src  *float64
		dst  *Ratio
	}{
		{"share_ratio", fc.ShareRatio, &cfg.ShareRatio},
		{"self_ratio", fc.SelfRatio, &cfg.SelfRatio},
		{"fee_ratio", fc.FeeRatio, &cfg.FeeRatio},
		{"proxy_ratio", fc.ProxyRatio, &cfg.ProxyRatio},
	}
	for _, r := range ratios {
		if r.src == nil {
			continue
		}
		parsed, err := ParseRatio(strconv.FormatFloat(*r.src, 'f', -1, 64))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", r.name, err)
		}
		*r.dst = parsed
	}
	return nil
}

// LoadConfig reads configuration from defaults, an optional CONFIG_FILE and
// environment variables, in increasing precedence
func LoadConfig() *Config {
	cfg := defaultConfig()

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := cfg.applyFile(configFile); err != nil && logger != nil {
			logger.Warn("Ignoring config file", "file", configFile, "error", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if blockInterval := os.Getenv("BLOCK_INTERVAL"); blockInterval != "" {
		if duration, err := time.ParseDuration(blockInterval); err == nil && duration > 0 {
			cfg.BlockInterval = duration
		}
	}

	if rateLimitEnv := os.Getenv("RATE_LIMIT_PER_MINUTE"); rateLimitEnv != "" {
		if rateLimit, err := strconv.Atoi(rateLimitEnv); err == nil && rateLimit > 0 {
			cfg.RateLimitPerMinute = rateLimit
		}
	}

	if os.Getenv("TRUST_PROXY_HEADERS") == "true" {
		cfg.TrustProxyHeaders = true
	}

	if maxBodyEnv := os.Getenv("MAX_BODY_SIZE_BYTES"); maxBodyEnv != "" {
		if maxBody, err := strconv.ParseInt(maxBodyEnv, 10, 64); err == nil && maxBody > 0 {
			cfg.MaxBodySizeBytes = maxBody
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	if shutdownTimeout := os.Getenv("SHUTDOWN_TIMEOUT"); shutdownTimeout != "" {
		if duration, err := time.ParseDuration(shutdownTimeout); err == nil {
			cfg.ShutdownTimeout = duration
		}
	}

	if secret := os.Getenv("NODE_AUTH_SECRET"); secret != "" {
		cfg.NodeAuthSecret = secret
	}

	if os.Getenv("REQUIRE_NODE_AUTH") == "true" {
		cfg.RequireNodeAuth = true
	}

	if asset := os.Getenv("ASSET"); asset != "" {
		cfg.Asset = AssetID(asset)
	}

	if v := os.Getenv("MAX_UPDATE_COUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxUpdateCount = uint32(n)
		}
	}

	if v := os.Getenv("UPDATE_STAKING_AMOUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.UpdateStakingAmount = Amount(n)
		}
	}

	if v := os.Getenv("CONFIRMATION_PERIOD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ConfirmationPeriod = BlockNumber(n)
		}
	}

	if v := os.Getenv("PROXY_GRACE_PERIOD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ProxyGracePeriod = BlockNumber(n)
		}
	}

	if v := os.Getenv("MIN_SHARE_TRUST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.MinShareTrust = f
		}
	}

	for env, dst := range map[string]*Ratio{
		"SHARE_RATIO": &cfg.ShareRatio,
		"SELF_RATIO":  &cfg.SelfRatio,
		"FEE_RATIO":   &cfg.FeeRatio,
		"PROXY_RATIO": &cfg.ProxyRatio,
	} {
		if v := os.Getenv(env); v != "" {
			if r, err := ParseRatio(v); err == nil {
				*dst = r
			}
		}
	}

	return cfg
}

// EngineParams extracts the settlement parameters
func (cfg *Config) EngineParams() EngineParams {
	return EngineParams{
		Asset:               cfg.Asset,
		MaxUpdateCount:      cfg.MaxUpdateCount,
		UpdateStakingAmount: cfg.UpdateStakingAmount,
		ConfirmationPeriod:  cfg.ConfirmationPeriod,
		ShareRatio:          cfg.ShareRatio,
		SelfRatio:           cfg.SelfRatio,
		FeeRatio:            cfg.FeeRatio,
	}
}

// ProxyPolicy builds the proxy fee policy
func (cfg *Config) ProxyPolicy() ProxyFeePolicy {
	return ProxyFeePolicy{Ratio: cfg.ProxyRatio, GracePeriod: cfg.ProxyGracePeriod}
}

// Validate checks the settlement parameters for consistency
func (cfg *Config) Validate() error {
	if err := cfg.EngineParams().Validate(); err != nil {
		return err
	}
	if !cfg.ProxyRatio.Valid() {
		return fmt.Errorf("%w: proxy ratio %s exceeds 1", ErrInvalidRatios, cfg.ProxyRatio)
	}
	// Records left behind by a round drain must be out of the dispute window
	// before the next round can open.
	if cfg.ProxyGracePeriod < cfg.ConfirmationPeriod {
		return fmt.Errorf("proxy grace period %d must not be shorter than confirmation period %d",
			cfg.ProxyGracePeriod, cfg.ConfirmationPeriod)
	}
	if cfg.MinShareTrust < 0 || cfg.MinShareTrust > 1 {
		return fmt.Errorf("min share trust %v out of range [0, 1]", cfg.MinShareTrust)
	}
	if cfg.RequireNodeAuth && cfg.NodeAuthSecret == "" {
		return fmt.Errorf("node auth required but NODE_AUTH_SECRET is empty")
	}
	return nil
}
