package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	APIAddr     string `yaml:"api_addr"`
	JWTSecret   string `yaml:"jwt_secret"`

	SyncIntervalSec int     `yaml:"sync_interval_sec"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

func Default() *Config {
	return &Config{
		RPCURL:          "https://api.mainnet-beta.solana.com",
		WSURL:           "wss://api.mainnet-beta.solana.com",
		APIAddr:         ":8080",
		SyncIntervalSec: 30,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// Load reads the yaml file into the defaults. A missing file is fine;
// env overrides are applied last either way.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("SOLANA_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.APIAddr = ":" + v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
}
