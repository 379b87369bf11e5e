// Package config holds settings for dlkeeperctl, the operator CLI that talks
// to the fulfillment gRPC endpoint.
package config

import "time"

// Config holds runtime settings for dlkeeperctl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the fulfillment gRPC endpoint.
//   - SecretKey: HMAC secret shared with the server, used to mint service JWTs.
//   - ServiceName: caller name put into minted JWTs.
//   - TokenValidity: lifetime of each minted JWT.
//   - CallTimeout: upper bound for a single RPC or download.
type Config struct {
	ServerEndpointAddr string
	SecretKey          string
	ServiceName        string
	TokenValidity      time.Duration
	CallTimeout        time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.SecretKey = "secretKey"
	c.ServiceName = "dlkeeperctl"
	c.TokenValidity = 5 * time.Minute
	c.CallTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
