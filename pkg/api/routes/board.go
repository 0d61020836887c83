package routes

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/copier"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/filter"
	"github.com/travigo/stopdisplay/pkg/freshness"
)

type Snapshotter interface {
	Snapshot() freshness.CacheSnapshot
}

type Refresher interface {
	RefreshNow() bool
	IsRunning() bool
	IsRefreshing() bool
}

// Board serves the pull-based reads a display performs plus the manual
// refresh button.
type Board struct {
	Store         Snapshotter
	Refresher     Refresher
	StopReference string
	DisplayCount  int
	Filter        *filter.Filter
	Clock         clock.Clock
}

func (b *Board) Router(router fiber.Router) {
	router.Get("/departures", b.getDepartures)
	router.Get("/snapshot", b.getSnapshot)
	router.Post("/refresh", b.postRefresh)
}

type departuresResponse struct {
	StopReference string                    `json:"stop_reference"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	State         freshness.State           `json:"state"`
	Stale         bool                      `json:"stale"`
	Error         string                    `json:"error,omitempty"`
	LastSuccessAt *time.Time                `json:"last_success_at"`
	AgeSeconds    *int                      `json:"age_seconds"`
	Count         int                       `json:"count"`
	Items         []freshness.FormattedItem `json:"items"`
}

func (b *Board) getDepartures(c *fiber.Ctx) error {
	count, err := getCountQuery(c, b.DisplayCount)
	if err != nil {
		return badRequest(c, err)
	}

	now := b.Clock.Now()
	snapshot := b.Store.Snapshot()
	snapshot.Records = b.Filter.Apply(snapshot.Records, now)

	items := freshness.FormattedItems(snapshot, now, count)

	response := departuresResponse{
		StopReference: b.StopReference,
		GeneratedAt:   now.UTC(),
		State:         snapshot.State,
		Stale:         snapshot.Stale(),
		Error:         snapshot.ErrorDetail,
		Count:         len(items),
		Items:         items,
	}
	if snapshot.HasLastSuccess() {
		lastSuccess := snapshot.LastSuccessAt.UTC()
		age := int(snapshot.Age(now).Seconds())
		response.LastSuccessAt = &lastSuccess
		response.AgeSeconds = &age
	}

	return c.JSON(response)
}

type snapshotResponse struct {
	State         freshness.State `json:"state"`
	ErrorDetail   string          `json:"error_detail,omitempty"`
	LastSuccessAt time.Time       `json:"last_success_at"`
	Version       uint64          `json:"version"`
	Departures    interface{}     `json:"departures" copier:"-"`
}

func (b *Board) getSnapshot(c *fiber.Ctx) error {
	group := c.Query("groups", "basic")
	if group != "basic" && group != "detailed" {
		return badRequest(c, fmt.Errorf("groups must be basic or detailed"))
	}

	snapshot := b.Store.Snapshot()

	var response snapshotResponse
	if err := copier.Copy(&response, &snapshot); err != nil {
		log.Error().Err(err).Msg("Failed to copy snapshot")
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": "could not build snapshot"})
	}

	departures, err := sheriff.Marshal(&sheriff.Options{
		Groups: []string{group},
	}, snapshot.Records)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reduce departures")
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": "could not build snapshot"})
	}
	if departures == nil {
		departures = []interface{}{}
	}
	response.Departures = departures

	return c.JSON(response)
}

func (b *Board) postRefresh(c *fiber.Ctx) error {
	if !b.Refresher.IsRunning() {
		c.Status(fiber.StatusServiceUnavailable)
		return c.JSON(fiber.Map{
			"accepted": false,
			"error":    "refresh coordinator is stopped",
		})
	}

	if !b.Refresher.RefreshNow() {
		status := fiber.StatusConflict
		message := "a refresh is already in flight"
		if !b.Refresher.IsRunning() {
			status = fiber.StatusServiceUnavailable
			message = "refresh coordinator is stopped"
		}

		c.Status(status)
		return c.JSON(fiber.Map{
			"accepted": false,
			"error":    message,
		})
	}

	c.Status(fiber.StatusAccepted)
	return c.JSON(fiber.Map{
		"accepted": true,
	})
}
