package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New builds the process-wide zap logger, colourised outside production.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// RequestIDKey keys the request id stored on the request context.
type RequestIDKey struct{}

// MaskCode masks an activation code for logging, keeping the first group.
// Example: ABCD-1234-EFGH-5678 -> ABCD-***
func MaskCode(code string) string {
	if code == "" {
		return ""
	}

	if idx := strings.IndexByte(code, '-'); idx > 0 {
		return code[:idx] + "-***"
	}

	if len(code) > 4 {
		return code[:4] + "***"
	}
	return "***"
}

// MaskIP keeps the first two IPv4 octets or the first four IPv6 groups so
// access logs stay correlatable without recording the full address.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}

	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}

	return "***"
}
