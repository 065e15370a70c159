package main

import (
	"context"
	goflag "flag"
	"time"

	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/media"
	"github.com/livecast/livecast/pkg/os"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewMediaConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Media.Debug, "m", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	m, err := media.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("media init fail")
	}
	m.Start()
	<-os.ExpectTermination()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
