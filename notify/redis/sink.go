// Package redis publishes notifications on a pub/sub channel so browser UIs
// subscribed through a gateway can render them as toasts.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cimena/cinecast/internal/log"
)

const publishTimeout = 2 * time.Second

type payload struct {
	Message string `json:"message,omitempty"`
	Visible bool   `json:"visible"`
}

// Sink publishes the visible-notification state. Publish failures are logged
// and dropped; notifications are advisory.
type Sink struct {
	client  redis.UniversalClient
	channel string
	logger  *log.Logger
}

func NewSink(client redis.UniversalClient, channel string, logger *log.Logger) *Sink {
	return &Sink{
		client:  client,
		channel: channel,
		logger:  logger.Module("notify").Module("redis"),
	}
}

func (s *Sink) Show(message string) {
	s.publish(payload{Message: message, Visible: true})
}

func (s *Sink) Clear() {
	s.publish(payload{Visible: false})
}

func (s *Sink) publish(p payload) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("Fail to marshal notification", log.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Warn("Fail to publish notification", log.Error(err))
	}
}
