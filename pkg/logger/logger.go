// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

func New(env string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar().With("service", "authwidget")
}

// Nop is used by tests and by callers that don't care about output.
func Nop() Sugared { return zap.NewNop().Sugar() }

// Redact keeps the first n characters of a credential for log correlation.
func Redact(secret string, n int) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= n {
		return "***"
	}
	return secret[:n] + "..."
}
