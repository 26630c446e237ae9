package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Miner.Host) == "" {
		return nil, fmt.Errorf("miner.host must not be empty")
	}
	if err := validatePort("miner.port", cfg.Miner.Port); err != nil {
		return nil, err
	}
	if cfg.Miner.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("miner.connect_timeout must be > 0")
	}
	if cfg.Miner.CommandTimeout <= 0 {
		return nil, fmt.Errorf("miner.command_timeout must be > 0")
	}
	if cfg.Miner.MaxResponseBytes < 0 {
		return nil, fmt.Errorf("miner.max_response_bytes must be >= 0")
	}

	if err := validatePort("http.port", cfg.HTTP.Port); err != nil {
		return nil, err
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("http.shutdown_timeout must be > 0")
	}

	if addr := strings.TrimSpace(cfg.Health.GRPCAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("health.grpc_addr %q: %w", addr, err)
		}
		if cfg.Health.ProbeInterval <= 0 {
			return nil, fmt.Errorf("health.probe_interval must be > 0 when health.grpc_addr is set")
		}
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Format)) {
	case "json", "text":
	default:
		return nil, fmt.Errorf("log.format must be one of: json, text")
	}

	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) != "" && strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		return nil, fmt.Errorf("tracing.service_name must not be empty when tracing.endpoint is set")
	}

	if !cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) != "" {
		warnings = append(warnings, Warning{Message: "tracing.endpoint is set but tracing.enabled=false; spans will not be exported"})
	}

	return warnings, nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be within 1..65535, got %d", name, port)
	}
	return nil
}
