package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// jwtSecretEnv overrides the file-supplied signing secret so production
// deployments can keep secret material out of config files.
const jwtSecretEnv = "SENTINEL_JWT_SECRET"

// Config is the configuration for the sentinel server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Listeners []ListenerBlock `hcl:"listener,block"`
	Redis     *RedisBlock     `hcl:"redis,block"`
	JWT       *JWTBlock       `hcl:"jwt,block"`
	Users     []UserBlock     `hcl:"user,block"`
}

// UserBlock declares a locally-known account for deployments that run
// without an external user service. Passwords are stored as sha256 hex.
type UserBlock struct {
	Email        string `hcl:"email,label"`
	ID           string `hcl:"id"`
	Name         string `hcl:"name,optional"`
	PasswordHash string `hcl:"password_hash"`
}

// RedisBlock configures the durable store backend. When absent the token
// store runs on its in-process fallback only.
type RedisBlock struct {
	Address        string `hcl:"address"`
	Password       string `hcl:"password,optional"`
	DB             int    `hcl:"db,optional"`
	ConnectTimeout int    `hcl:"connect_timeout_seconds,optional"`
	CommandTimeout int    `hcl:"command_timeout_seconds,optional"`
}

// JWTBlock configures token signing and lifetimes. TTLs are in seconds; zero
// means the built-in default.
type JWTBlock struct {
	Secret            string `hcl:"secret,optional"`
	AccessTTLSeconds  int    `hcl:"access_ttl_seconds,optional"`
	RefreshTTLSeconds int    `hcl:"refresh_ttl_seconds,optional"`
}

// Secret resolution order: environment, then config file.
func (j *JWTBlock) ResolvedSecret() string {
	if secret := os.Getenv(jwtSecretEnv); secret != "" {
		return secret
	}
	return j.Secret
}

func (j *JWTBlock) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLSeconds) * time.Second
}

func (j *JWTBlock) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLSeconds) * time.Second
}

type ListenerBlock struct {
	Name        string `hcl:"name,label"`
	Protocol    string `hcl:"protocol"`
	Address     string `hcl:"address"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`
	TLSEnabled  bool   `hcl:"tls_enabled,optional"`
}

func LoadConfig(configFile string) (*Config, error) {
	var config Config

	err := hclsimple.DecodeFile(configFile, nil, &config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// GetListenerByName returns a listener by its name (label)
func (c *Config) GetListenerByName(name string) (*ListenerBlock, error) {
	for _, listener := range c.Listeners {
		if listener.Name == name {
			return &listener, nil
		}
	}
	return nil, fmt.Errorf("listener '%s' not found", name)
}

// GetApiListener is a convenience method to get the api listener
func (c *Config) GetApiListener() (*ListenerBlock, error) {
	return c.GetListenerByName("api")
}
