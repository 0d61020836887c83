package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/app"
	"github.com/travigo/stopdisplay/pkg/events"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	if os.Getenv("STOPDISPLAY_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("STOPDISPLAY_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	commands := app.RegisterCLI()
	commands = append(commands, events.RegisterCLI())

	cliApp := &cli.App{
		Name:        "stopdisplay",
		Description: "Keeps a stop departure board fresh from the PRIM stop monitoring API",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"STOPDISPLAY_CONFIG"},
			},
		},

		Commands: commands,
	}

	err := cliApp.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
