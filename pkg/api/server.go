package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/api/routes"
)

// NewApp builds the HTTP surface. gatherer may be nil to leave out /metrics.
func NewApp(board *routes.Board, gatherer prometheus.Gatherer) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	webApp.Get("/health", routes.Health)
	webApp.Get("/version", routes.APIVersion)

	board.Router(webApp)

	if gatherer != nil {
		webApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return webApp
}

// SetupServer serves webApp on listen until ctx is cancelled.
func SetupServer(ctx context.Context, listen string, webApp *fiber.App) error {
	go func() {
		<-ctx.Done()
		if err := webApp.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Failed to shut down web server")
		}
	}()

	log.Info().Str("listen", listen).Msg("Starting web server")

	return webApp.Listen(listen)
}
