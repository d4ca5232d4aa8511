/*
File Name:  config.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

YAML configuration for the relipeer binary, following the embedded-default
pattern from Settings.go: an empty or missing config file falls back to
"default.yaml" rather than failing startup.
*/
package config

import (
	_ "embed" // required for embedding the default config file
	"os"
	"time"

	"gopkg.in/yaml.v3"

	reliconn "github.com/Trangar/reliconn"
)

//go:embed "default.yaml"
var defaultConfig []byte

// Config is the full relipeer configuration. Durations are stored as
// strings (e.g. "500ms") since yaml.v3 cannot unmarshal time.Duration
// directly; use ToParams to get the parsed reliconn.Params.
type Config struct {
	Listen string `yaml:"Listen"` // UDP IP:Port this node listens on

	PingInterval            string `yaml:"PingInterval"`
	RequestMissingInterval  string `yaml:"RequestMissingInterval"`
	EmitUnconfirmedInterval string `yaml:"EmitUnconfirmedInterval"`
	ReceivePingTimeout      string `yaml:"ReceivePingTimeout"`
	SendPingTimeout         string `yaml:"SendPingTimeout"`
	MaxDatagramSize         int    `yaml:"MaxDatagramSize"`

	StatusListen string `yaml:"StatusListen"` // IP:Port for the HTTP status API, empty disables it
	PeerStoreDir string `yaml:"PeerStoreDir"` // directory for the pogreb-backed peer counter log
}

// Load reads filename as YAML. A missing or empty file falls back to the
// embedded default configuration.
func Load(filename string) (cfg Config, err error) {
	data := defaultConfig

	if stats, statErr := os.Stat(filename); statErr == nil && stats.Size() > 0 {
		if data, err = os.ReadFile(filename); err != nil {
			return Config{}, err
		}
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ToParams parses the duration strings into a reliconn.Params and validates
// the result.
func (c Config) ToParams() (params reliconn.Params, err error) {
	if params.PingInterval, err = time.ParseDuration(c.PingInterval); err != nil {
		return reliconn.Params{}, err
	}
	if params.RequestMissingInterval, err = time.ParseDuration(c.RequestMissingInterval); err != nil {
		return reliconn.Params{}, err
	}
	if params.EmitUnconfirmedInterval, err = time.ParseDuration(c.EmitUnconfirmedInterval); err != nil {
		return reliconn.Params{}, err
	}
	if params.ReceivePingTimeout, err = time.ParseDuration(c.ReceivePingTimeout); err != nil {
		return reliconn.Params{}, err
	}
	if params.SendPingTimeout, err = time.ParseDuration(c.SendPingTimeout); err != nil {
		return reliconn.Params{}, err
	}
	params.MaxDatagramSize = c.MaxDatagramSize

	if err = params.Validate(); err != nil {
		return reliconn.Params{}, err
	}
	return params, nil
}
