package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetPort() string
	GetBaseURL() string
	GetRedisAddr() string
	GetClientSeedFile() string
}

type UpstreamConfig interface {
	GetUpstreamIssuerURL() string
	GetUpstreamClientID() string
	GetUpstreamClientSecret() string
	GetUpstreamScopes() []string
	GetCallbackURL() string
}

type TokenConfig interface {
	GetSigningSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetTransactionTTL() time.Duration
}

// EnvVars is the validated snapshot of the environment at load time.
type EnvVars struct {
	Env        string
	AppName    string
	Port       string
	BaseURL    string `validate:"required,url"`
	RedisAddr  string
	ClientSeed string

	UpstreamIssuerURL    string `validate:"required,url"`
	UpstreamClientID     string `validate:"required"`
	UpstreamClientSecret string
	UpstreamScopes       string

	SigningSecret      string        `validate:"required,min=32"`
	AccessTokenExpiry  time.Duration `validate:"gt=0"`
	RefreshTokenExpiry time.Duration `validate:"gt=0"`
	TransactionTTL     time.Duration `validate:"gt=0"`
}

var (
	_ EnvConfig      = EnvVars{}
	_ UpstreamConfig = EnvVars{}
	_ TokenConfig    = EnvVars{}
)

func newEnvVars() EnvVars {
	return EnvVars{
		Env:        getEnv("ENV", "DEV"),
		AppName:    getEnv("APP_NAME", "Go MCP Broker"),
		Port:       getEnv("PORT", "8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),
		RedisAddr:  getEnv("REDIS_ADDR", ""),
		ClientSeed: getEnv("CLIENT_SEED_FILE", ""),

		UpstreamIssuerURL:    getEnv("UPSTREAM_ISSUER_URL", ""),
		UpstreamClientID:     getEnv("UPSTREAM_CLIENT_ID", ""),
		UpstreamClientSecret: getEnv("UPSTREAM_CLIENT_SECRET", ""),
		UpstreamScopes:       getEnv("UPSTREAM_SCOPES", "openid profile email"),

		SigningSecret:      getEnv("SIGNING_SECRET", ""),
		AccessTokenExpiry:  getDurationEnv("ACCESS_TOKEN_EXPIRY", 5*time.Minute),
		RefreshTokenExpiry: getDurationEnv("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		TransactionTTL:     getDurationEnv("TRANSACTION_TTL", 5*time.Minute),
	}
}

func (e EnvVars) GetEnv() string     { return e.Env }
func (e EnvVars) GetAppName() string { return e.AppName }

func (e EnvVars) GetPort() string {
	port := e.Port
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetBaseURL() string        { return e.BaseURL }
func (e EnvVars) GetRedisAddr() string      { return e.RedisAddr }
func (e EnvVars) GetClientSeedFile() string { return e.ClientSeed }

func (e EnvVars) GetUpstreamIssuerURL() string    { return e.UpstreamIssuerURL }
func (e EnvVars) GetUpstreamClientID() string     { return e.UpstreamClientID }
func (e EnvVars) GetUpstreamClientSecret() string { return e.UpstreamClientSecret }

func (e EnvVars) GetUpstreamScopes() []string {
	return strings.Fields(e.UpstreamScopes)
}

// GetCallbackURL is the broker's own callback endpoint, registered with the
// upstream provider.
func (e EnvVars) GetCallbackURL() string {
	return e.BaseURL + "/oauth2/callback"
}

func (e EnvVars) GetSigningSecret() string             { return e.SigningSecret }
func (e EnvVars) GetAccessTokenExpiry() time.Duration  { return e.AccessTokenExpiry }
func (e EnvVars) GetRefreshTokenExpiry() time.Duration { return e.RefreshTokenExpiry }
func (e EnvVars) GetTransactionTTL() time.Duration     { return e.TransactionTTL }

func getEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
