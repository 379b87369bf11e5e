package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/dlkeeper/internal/flagx"
	"github.com/dmitrijs2005/dlkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept strings like "30s" or integer nanoseconds. Zero values leave the
// current setting untouched.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	SecretKey          string         `json:"secret_key"`
	ServiceName        string         `json:"service_name"`
	TokenValidity      timex.Duration `json:"token_validity"`
	CallTimeout        timex.Duration `json:"call_timeout"`
}

// parseJson overlays cfg with the file named by -c/-config. Read or decode
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.ServiceName != "" {
		cfg.ServiceName = jc.ServiceName
	}
	if jc.TokenValidity.Duration > 0 {
		cfg.TokenValidity = jc.TokenValidity.Duration
	}
	if jc.CallTimeout.Duration > 0 {
		cfg.CallTimeout = jc.CallTimeout.Duration
	}
}
