package consumer

import (
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

const pollDuration = time.Second

// RedisConsumer attaches NumberConsumers batch consumers to one queue.
type RedisConsumer struct {
	Connection rmq.Connection
	QueueName  string

	NumberConsumers int
	BatchSize       int

	Timeout time.Duration

	Consumer rmq.BatchConsumer
}

func (c *RedisConsumer) Setup() error {
	log.Info().Str("queue", c.QueueName).Int("consumers", c.NumberConsumers).Msg("Starting consumers")

	queue, err := c.Connection.OpenQueue(c.QueueName)
	if err != nil {
		return fmt.Errorf("opening queue %s: %w", c.QueueName, err)
	}
	if err := queue.StartConsuming(int64(c.NumberConsumers*c.BatchSize), pollDuration); err != nil {
		return fmt.Errorf("consuming queue %s: %w", c.QueueName, err)
	}

	for i := 0; i < c.NumberConsumers; i++ {
		tag := fmt.Sprintf("%s-%d", c.QueueName, i)
		if _, err := queue.AddBatchConsumer(tag, int64(c.BatchSize), c.Timeout, c.Consumer); err != nil {
			return fmt.Errorf("adding consumer %s: %w", tag, err)
		}
		log.Debug().Str("consumer", tag).Msg("Started queue consumer")
	}

	return nil
}
