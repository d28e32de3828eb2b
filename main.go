package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alexhholmes/flint/bootstrap"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(os.Getenv("FLINT_LOG")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := bootstrap.Run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
