package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/dlkeeper/internal/flagx"
	"github.com/dmitrijs2005/dlkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "168h" and integer nanoseconds are accepted.
// Absent keys keep the value already present in Config.
type JsonConfig struct {
	HTTPAddr           *string         `json:"http_addr"`
	GRPCAddr           *string         `json:"grpc_addr"`
	DatabaseDSN        *string         `json:"database_dsn"`
	SecretKey          *string         `json:"secret_key"`
	S3RootUser         *string         `json:"s3_root_user"`
	S3RootPassword     *string         `json:"s3_root_password"`
	S3Bucket           *string         `json:"s3_bucket"`
	S3Region           *string         `json:"s3_region"`
	S3BaseEndpoint     *string         `json:"s3_base_endpoint"`
	DownloadBaseURL    *string         `json:"download_base_url"`
	DefaultFileKey     *string         `json:"default_file_key"`
	TokenTTL           *timex.Duration `json:"token_ttl"`
	MaxDownloads       *int            `json:"max_downloads"`
	RequestTimeout     *timex.Duration `json:"request_timeout"`
	SweepInterval      *timex.Duration `json:"sweep_interval"`
	RedisAddr          *string         `json:"redis_addr"`
	RateLimitPerMinute *int            `json:"rate_limit_per_minute"`
	LogLevel           *string         `json:"log_level"`
	TrustedProxies     []string        `json:"trusted_proxies"`
}

// parseJson loads the file named by -c/-config (if any) into config.
// A missing or malformed file panics: the server must not start on a
// configuration it could not read.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.DownloadBaseURL, c.DownloadBaseURL)
	setString(&config.DefaultFileKey, c.DefaultFileKey)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)

	if c.TokenTTL != nil {
		config.TokenTTL = c.TokenTTL.Duration
	}
	if c.RequestTimeout != nil {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.SweepInterval != nil {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.MaxDownloads != nil {
		config.MaxDownloads = *c.MaxDownloads
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}
	if c.RateLimitPerMinute != nil {
		config.RateLimitPerMinute = *c.RateLimitPerMinute
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
