package routes

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const maxDisplayCount = 20

func getCountQuery(c *fiber.Ctx, fallback int) (int, error) {
	raw := c.Query("count")
	if raw == "" {
		return fallback, nil
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 || count > maxDisplayCount {
		return 0, fmt.Errorf("count must be an integer between 1 and %d", maxDisplayCount)
	}

	return count, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	c.Status(fiber.StatusBadRequest)
	return c.JSON(fiber.Map{
		"error": err.Error(),
	})
}
