package observability

import (
	"strings"

	"github.com/smallbiznis/creditledger/internal/config"
)

// Config is the resolved telemetry setup shared by the logger, tracer and meter.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "creditledger"
	}
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.TrimSpace(cfg.Telemetry.LogLevel),
		LogFormat:            strings.TrimSpace(cfg.Telemetry.LogFormat),
		OtelEnabled:          cfg.Telemetry.OtelEnabled && strings.TrimSpace(cfg.Telemetry.OtelEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.Telemetry.OtelEndpoint),
		OtelExporterProtocol: strings.TrimSpace(cfg.Telemetry.OtelProtocol),
		OtelSamplingRatio:    ratio,
	}
}

// Debug enables stack traces in request logs.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
