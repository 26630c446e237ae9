// Package config resolves, parses, validates, and defaults cgproxy configuration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the fully materialized runtime configuration used by cgproxy.
type Config struct {
	Miner   MinerConfig   `toml:"miner"`
	HTTP    HTTPConfig    `toml:"http"`
	Health  HealthConfig  `toml:"health"`
	Log     LogConfig     `toml:"log"`
	Tracing TracingConfig `toml:"tracing"`
}

// MinerConfig points at the cgminer API socket.
type MinerConfig struct {
	Host             string        `toml:"host" env:"CGMINER_HOST"`
	Port             int           `toml:"port" env:"CGMINER_PORT"`
	ConnectTimeout   time.Duration `toml:"connect_timeout" env:"CGMINER_CONNECT_TIMEOUT"`
	CommandTimeout   time.Duration `toml:"command_timeout" env:"CGMINER_COMMAND_TIMEOUT"`
	MaxResponseBytes int           `toml:"max_response_bytes" env:"CGMINER_MAX_RESPONSE_BYTES"`
}

// Addr returns the daemon endpoint in host:port form.
func (m MinerConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// HTTPConfig controls the REST listener.
type HTTPConfig struct {
	Host            string        `toml:"host" env:"CGPROXY_HTTP_HOST"`
	Port            int           `toml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"CGPROXY_SHUTDOWN_TIMEOUT"`
}

// ListenAddr returns the REST listen address in host:port form.
func (h HTTPConfig) ListenAddr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// HealthConfig controls the optional gRPC health endpoint.
type HealthConfig struct {
	GRPCAddr      string        `toml:"grpc_addr" env:"CGPROXY_HEALTH_GRPC_ADDR"`
	ProbeInterval time.Duration `toml:"probe_interval" env:"CGPROXY_HEALTH_PROBE_INTERVAL"`
}

// LogConfig controls runtime log output.
type LogConfig struct {
	Level  string `toml:"level" env:"CGPROXY_LOG_LEVEL"`
	Format string `toml:"format" env:"CGPROXY_LOG_FORMAT"`
	Path   string `toml:"path" env:"CGPROXY_LOG_PATH"`
}

// TracingConfig controls OTLP span export. Tracing is off without an endpoint.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled" env:"CGPROXY_OTEL_ENABLED"`
	Endpoint    string `toml:"endpoint" env:"CGPROXY_OTEL_ENDPOINT"`
	ServiceName string `toml:"service_name" env:"CGPROXY_OTEL_SERVICE_NAME"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
