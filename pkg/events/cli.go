package events

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/config"
	"github.com/travigo/stopdisplay/pkg/consumer"
	"github.com/travigo/stopdisplay/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

const defaultRedisAddress = "localhost:6379"

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Departure board transition events",
		Subcommands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "log events as they are published",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "print full event bodies",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					address := cfg.Redis.Address
					if address == "" {
						address = defaultRedisAddress
					}

					client, err := redis_client.Connect(c.Context, redis_client.Config{
						Address:  address,
						Password: cfg.Redis.Password,
						Database: cfg.Redis.Database,
					}, 30*time.Second)
					if err != nil {
						return err
					}
					defer client.Close()

					connection, err := redis_client.OpenQueueConnection(client)
					if err != nil {
						return err
					}

					redisConsumer := consumer.RedisConsumer{
						Connection:      connection,
						QueueName:       cfg.Redis.EventsQueue,
						NumberConsumers: 1,
						BatchSize:       20,
						Timeout:         2 * time.Second,
						Consumer:        NewWatchConsumer(c.Bool("verbose")),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					log.Info().Msg("Stopping event consumers")
					<-connection.StopAllConsuming() // wait for all Consume() calls to finish

					return nil
				},
			},
		},
	}
}
