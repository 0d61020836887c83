package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/config"
	"github.com/travigo/stopdisplay/pkg/freshness"
	"github.com/travigo/stopdisplay/pkg/siri_sm"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "run",
			Usage: "run the departure board service",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "listen",
					Usage: "listen target for the web server",
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := config.Load(c.String("config"))
				if err != nil {
					return err
				}
				if listen := c.String("listen"); listen != "" {
					cfg.ListenAddress = listen
				}

				ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				service, err := NewService(ctx, cfg, clock.New())
				if err != nil {
					return err
				}

				go func() {
					<-ctx.Done()
					stop()

					// hard exit on second signal (in case shutdown gets stuck)
					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					<-signals
					os.Exit(1)
				}()

				return service.Run(ctx)
			},
		},
		{
			Name:  "fetch",
			Usage: "fetch the departures once and print them",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "stop",
					Usage: "stop reference to query instead of the configured one",
				},
				&cli.BoolFlag{
					Name:  "records",
					Usage: "also print the raw departure records",
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := config.Load(c.String("config"))
				if err != nil {
					return err
				}
				if stopReference := c.String("stop"); stopReference != "" {
					cfg.StopReference = stopReference
				}

				return fetchOnce(c.Context, cfg, c.Bool("records"))
			},
		},
	}
}

func fetchOnce(ctx context.Context, cfg config.Config, printRecords bool) error {
	fetcher := siri_sm.NewFetcher(cfg.Endpoint, cfg.APIKey)

	records, err := fetcher.Fetch(ctx, cfg.StopReference, cfg.ResultLimit, cfg.RequestTimeout.Duration())
	if err != nil {
		return err
	}

	store := freshness.NewStore(clock.New())
	store.SetSuccess(records)
	snapshot := store.Snapshot()

	log.Info().Str("stop", cfg.StopReference).Int("departures", len(records)).Msg("Fetched departures")

	for _, item := range freshness.FormattedItems(snapshot, snapshot.LastSuccessAt, cfg.DisplayCount) {
		fmt.Printf("%-12s %-32s %3d min  %s\n", item.Line, item.Destination, item.WaitMinutes, item.Status)
	}

	if printRecords {
		pretty.Println(records)
	}

	return nil
}
