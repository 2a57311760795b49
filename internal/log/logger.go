package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	config "github.com/tablecache/tablecache/configs"
)

const defaultLevel = zerolog.WarnLevel

func InitLogger() {
	// overrides zerolog global logger
	log.Logger = NewLogger("tablecache", config.Cfg.Log, os.Stderr)
}

// NewLogger returns a logger tagged with component name. An empty or unknown
// level falls back to warn.
func NewLogger(name string, cfg config.LogConfig, out io.Writer) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Prettify {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Str("component", name).Caller().Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return defaultLevel
	}
	return lvl
}
