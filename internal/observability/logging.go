// Package observability builds the zap loggers shared by every binary and
// the field conventions used for connections and rooms.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

// Field keys shared across packages so log queries can join on them.
const (
	FieldService    = "service"
	FieldConnID     = "conn_id"
	FieldRemoteAddr = "remote_addr"
	FieldRoomID     = "room_id"
)

// baseConfigs maps a logging.format value onto its zap preset.
var baseConfigs = map[string]func() zap.Config{
	"json":    zap.NewProductionConfig,
	"console": zap.NewDevelopmentConfig,
}

// NewLogger creates the process logger for service.
//
// Precondition: cfg.Level is one of "debug", "info", "warn", "error" and
// cfg.Format is "json" or "console".
// Postcondition: Every entry carries service under FieldService when service
// is non-empty. Stack traces are attached to error level and above only.
func NewLogger(cfg config.LoggingConfig, service string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	base, ok := baseConfigs[cfg.Format]
	if !ok {
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg := base()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.TimeKey = "ts"
	if service != "" {
		zapCfg.InitialFields = map[string]any{FieldService: service}
	}

	logger, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// ConnLogger scopes logger to one client connection.
func ConnLogger(logger *zap.Logger, connID, remoteAddr string) *zap.Logger {
	return logger.With(
		zap.String(FieldConnID, connID),
		zap.String(FieldRemoteAddr, remoteAddr),
	)
}

// Room tags an entry with the room it concerns.
func Room(roomID string) zap.Field {
	return zap.String(FieldRoomID, roomID)
}

// Conn tags an entry with the connection it concerns.
func Conn(connID string) zap.Field {
	return zap.String(FieldConnID, connID)
}
