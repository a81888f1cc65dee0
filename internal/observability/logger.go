package observability

import (
	"github.com/danmuck/edgedash/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func InitLogger(app string, cfg logging.Config) zerolog.Logger {
	logger := logging.Apply(cfg).With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
