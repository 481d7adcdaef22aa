package logx

import (
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

// Init configura o slog global em JSON no stdout com o nível pedido
// (debug, info, warn, error; desconhecido vira info).
func Init(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
