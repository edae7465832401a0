// Package config centralizes the environment-variable surface the rest of
// the repository reads piecemeal with os.Getenv, the way the teacher
// repository does it, but completes the wiring its go.mod only promised:
// a .env file is loaded once at startup via godotenv before FromEnv
// reads the environment. Values read during package initialization
// (the logger's LOG_REQUESTS/LOG_DEBUG switches) are read before Load
// runs and do not see the .env file.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads a .env file from the working directory if present. A missing
// file is not an error — production deployments set real environment
// variables instead.
func Load() {
	_ = godotenv.Load()
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "YES", "true", "1":
		return true
	case "NO", "false", "0":
		return false
	default:
		return fallback
	}
}

// Server holds the listener and server-wide limits.
type Server struct {
	Host string
	Port int

	SSLEnabled        bool
	SSLCertPath       string
	SSLKeyPath        string
	SSLPort           int
	SSLCertReloadSecs int

	MaxIPConcurrentConnections int
	IPExemptRangesFile         string

	StreamIDMaxLength int

	MaxChunkSize int
}

// Redis holds the optional command-bus configuration.
type Redis struct {
	Use      bool
	Host     string
	Port     string
	Password string
	Channel  string
	TLS      bool
}

// Control holds the optional external coordinator configuration.
type Control struct {
	WebsocketURL  string
	AuthSecret    string
	CallbackURL   string
	CallbackToken string
}

type Config struct {
	Server  Server
	Redis   Redis
	Control Control
}

// FromEnv reads the full configuration from the process environment.
// Call Load before FromEnv so a .env file is taken into account.
func FromEnv() *Config {
	return &Config{
		Server: Server{
			Host:                       getEnv("RTMP_HOST", "0.0.0.0"),
			Port:                       getEnvInt("RTMP_PORT", 1935),
			SSLEnabled:                 getEnvBool("RTMP_SSL", false),
			SSLCertPath:                os.Getenv("SSL_CERT"),
			SSLKeyPath:                 os.Getenv("SSL_KEY"),
			SSLPort:                    getEnvInt("RTMP_SSL_PORT", 1936),
			SSLCertReloadSecs:          getEnvInt("SSL_CHECK_RELOAD_SECONDS", 60),
			MaxIPConcurrentConnections: getEnvInt("MAX_IP_CONCURRENT_CONNECTIONS", 8),
			IPExemptRangesFile:         os.Getenv("IP_EXEMPT_RANGES_FILE"),
			StreamIDMaxLength:          getEnvInt("STREAM_ID_MAX_LENGTH", 128),
			MaxChunkSize:               getEnvInt("MAX_CHUNK_SIZE", 10485760),
		},
		Redis: Redis{
			Use:      getEnvBool("REDIS_USE", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			Channel:  getEnv("REDIS_CHANNEL", "rtmp_commands"),
			TLS:      getEnvBool("REDIS_TLS", false),
		},
		Control: Control{
			WebsocketURL:  os.Getenv("CONTROL_WS_URL"),
			AuthSecret:    os.Getenv("CONTROL_AUTH_SECRET"),
			CallbackURL:   os.Getenv("CALLBACK_URL"),
			CallbackToken: os.Getenv("CALLBACK_TOKEN"),
		},
	}
}
