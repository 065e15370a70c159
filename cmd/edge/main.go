package main

import (
	"context"
	goflag "flag"
	"time"

	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/edge"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/os"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewEdgeConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Edge.Debug, "e", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	e, err := edge.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("edge init fail")
	}
	e.Start(context.Background())
	<-os.ExpectTermination()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
